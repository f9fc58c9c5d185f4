package handlers

import (
	"net/http"
	"strings"

	"stagesync/internal/models"
	"stagesync/internal/services"

	"github.com/gin-gonic/gin"
)

// IntegrationHandler 平台连接管理和 CRM 管道查询
type IntegrationHandler struct {
	creds *services.CredentialService
	oauth *services.OAuthService
	sync  *services.PipelineSyncService
}

func NewIntegrationHandler(creds *services.CredentialService, oauth *services.OAuthService, sync *services.PipelineSyncService) *IntegrationHandler {
	return &IntegrationHandler{creds: creds, oauth: oauth, sync: sync}
}

// ConnectCRMRequest CRM API Key 连接请求
type ConnectCRMRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

// 兼容旧的平台名称
var platformAliases = map[string]models.Platform{
	"social":      models.PlatformSocial,
	"instagram":   models.PlatformSocial,
	"crm":         models.PlatformCRM,
	"gohighlevel": models.PlatformCRM,
}

// List 返回已连接平台（不含密钥）
func (h *IntegrationHandler) List(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	list, err := h.creds.List(c.Request.Context(), owner)
	if err != nil {
		writeServiceError(c, "Failed to list integrations", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// ConnectCRM 保存 GoHighLevel API Key
func (h *IntegrationHandler) ConnectCRM(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	var req ConnectCRMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error(), Kind: services.KindInput})
		return
	}
	summary, err := h.creds.ConnectAPIKey(c.Request.Context(), owner, req.APIKey)
	if err != nil {
		writeServiceError(c, "Failed to connect CRM", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Disconnect 删除平台凭证
func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	platform, known := platformAliases[strings.ToLower(c.Param("platform"))]
	if !known {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid platform", Message: c.Param("platform"), Kind: services.KindInput})
		return
	}
	if err := h.creds.Delete(c.Request.Context(), owner, platform); err != nil {
		writeServiceError(c, "Failed to disconnect", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "disconnected"})
}

// RefreshSocial 续期 Instagram 长期令牌
func (h *IntegrationHandler) RefreshSocial(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	summary, err := h.oauth.Refresh(c.Request.Context(), owner)
	if err != nil {
		writeServiceError(c, "Failed to refresh token", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ListPipelines 读取 CRM 管道和阶段，供规则配置使用
func (h *IntegrationHandler) ListPipelines(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	cred, err := h.creds.Get(ctx, owner, models.PlatformCRM)
	if err != nil {
		writeServiceError(c, "Failed to load pipelines", err)
		return
	}
	if cred == nil {
		writeServiceError(c, "CRM not connected", services.ErrIntegrationMissing)
		return
	}
	pipelines, err := h.sync.ListPipelines(ctx, cred)
	if err != nil {
		writeServiceError(c, "Failed to load pipelines", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pipelines": pipelines})
}

// RegisterIntegrationRoutes 注册路由
func RegisterIntegrationRoutes(r *gin.RouterGroup, handler *IntegrationHandler) {
	integrations := r.Group("/integrations")
	{
		integrations.GET("", handler.List)
		integrations.POST("/crm", handler.ConnectCRM)
		integrations.POST("/social/refresh", handler.RefreshSocial)
		integrations.DELETE("/:platform", handler.Disconnect)
	}
	r.GET("/pipelines", handler.ListPipelines)
}
