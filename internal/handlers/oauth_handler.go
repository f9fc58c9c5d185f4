package handlers

import (
	"bytes"
	"html/template"
	"net/http"

	"stagesync/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 授权弹窗页面：成功时通知 opener 后关闭窗口
var callbackPage = template.Must(template.New("callback").Parse(`<html><body><script>
{{if .Success}}window.opener && window.opener.postMessage({ type: 'INSTAGRAM_AUTH_SUCCESS', username: {{.Username}} }, '*');
{{end}}window.close();
</script><p>{{.Message}}</p></body></html>`))

type callbackView struct {
	Success  bool
	Username string
	Message  string
}

// OAuthHandler Instagram 授权跳转和回调
type OAuthHandler struct {
	oauth  *services.OAuthService
	logger *logrus.Logger
}

func NewOAuthHandler(oauth *services.OAuthService, logger *logrus.Logger) *OAuthHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &OAuthHandler{oauth: oauth, logger: logger}
}

// Authorize 返回授权地址和 state
func (h *OAuthHandler) Authorize(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	start, err := h.oauth.BeginAuthorization(c.Request.Context(), owner)
	if err != nil {
		writeServiceError(c, "Failed to start authorization", err)
		return
	}
	c.JSON(http.StatusOK, start)
}

// Callback 授权服务器回调；owner 从 state 中恢复，故无需登录
func (h *OAuthHandler) Callback(c *gin.Context) {
	if providerErr := c.Query("error"); providerErr != "" {
		h.logger.WithField("error", providerErr).Warn("instagram oauth denied")
		h.renderCallback(c, callbackView{Message: "Authentication failed: " + providerErr})
		return
	}
	code, state := c.Query("code"), c.Query("state")
	if code == "" || state == "" {
		h.renderCallback(c, callbackView{Message: "Missing authorization code or state"})
		return
	}

	summary, err := h.oauth.CompleteAuthorization(c.Request.Context(), code, state)
	if err != nil {
		h.logger.WithError(err).Warn("instagram oauth callback failed")
		h.renderCallback(c, callbackView{Message: "Failed to exchange authorization code"})
		return
	}
	h.renderCallback(c, callbackView{
		Success:  true,
		Username: summary.ExternalUsername,
		Message:  "Instagram connected successfully! You can close this window.",
	})
}

// renderCallback 弹窗页面总是 200，结果只体现在文案和 postMessage 上
func (h *OAuthHandler) renderCallback(c *gin.Context, view callbackView) {
	var buf bytes.Buffer
	if err := callbackPage.Execute(&buf, view); err != nil {
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// RegisterOAuthRoutes 授权跳转需要登录，回调公开
func RegisterOAuthRoutes(protected, public *gin.RouterGroup, handler *OAuthHandler) {
	protected.GET("/oauth/instagram/authorize", handler.Authorize)
	public.GET("/oauth/instagram/callback", handler.Callback)
}
