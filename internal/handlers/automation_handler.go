package handlers

import (
	"net/http"

	"stagesync/internal/services"

	"github.com/gin-gonic/gin"
)

// AutomationHandler 关键词规则管理和执行记录
type AutomationHandler struct {
	rules     *services.RuleService
	processor *services.MessageProcessor
}

func NewAutomationHandler(rules *services.RuleService, processor *services.MessageProcessor) *AutomationHandler {
	return &AutomationHandler{rules: rules, processor: processor}
}

// ListRules 获取全部规则（含停用）
func (h *AutomationHandler) ListRules(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	rules, err := h.rules.List(c.Request.Context(), owner)
	if err != nil {
		writeServiceError(c, "Failed to list rules", err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

// CreateRule 创建规则
func (h *AutomationHandler) CreateRule(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	var req services.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error(), Kind: services.KindInput})
		return
	}
	rule, err := h.rules.Create(c.Request.Context(), owner, &req)
	if err != nil {
		writeServiceError(c, "Failed to create rule", err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// UpdateRule 整体替换规则
func (h *AutomationHandler) UpdateRule(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	var req services.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error(), Kind: services.KindInput})
		return
	}
	rule, err := h.rules.Update(c.Request.Context(), owner, c.Param("id"), &req)
	if err != nil {
		writeServiceError(c, "Failed to update rule", err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// ToggleRule 启用/停用
func (h *AutomationHandler) ToggleRule(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	rule, err := h.rules.Toggle(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		writeServiceError(c, "Failed to toggle rule", err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule 删除规则
func (h *AutomationHandler) DeleteRule(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	if err := h.rules.Delete(c.Request.Context(), owner, c.Param("id")); err != nil {
		writeServiceError(c, "Failed to delete rule", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// ListRuns 执行记录
func (h *AutomationHandler) ListRuns(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	var req services.RunListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid query", Message: err.Error(), Kind: services.KindInput})
		return
	}
	runs, total, err := h.processor.ListRuns(c.Request.Context(), owner, &req)
	if err != nil {
		writeServiceError(c, "Failed to list runs", err)
		return
	}
	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     runs,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Pages:    pages(total, req.PageSize),
	})
}

// RegisterAutomationRoutes 注册路由
func RegisterAutomationRoutes(r *gin.RouterGroup, handler *AutomationHandler) {
	auto := r.Group("/automations")
	{
		auto.GET("", handler.ListRules)
		auto.POST("", handler.CreateRule)
		auto.GET("/runs", handler.ListRuns)
		auto.PUT("/:id", handler.UpdateRule)
		auto.POST("/:id/toggle", handler.ToggleRule)
		auto.DELETE("/:id", handler.DeleteRule)
	}
}
