package handlers

import (
	"errors"
	"net/http"

	"stagesync/internal/services"

	"github.com/gin-gonic/gin"
)

// MessageHandler 外发消息触发规则
type MessageHandler struct {
	processor *services.MessageProcessor
}

func NewMessageHandler(processor *services.MessageProcessor) *MessageHandler {
	return &MessageHandler{processor: processor}
}

// Process 匹配规则并同步 CRM。规则已匹配但同步失败时返回 502，响应体同时带上匹配结果。
func (h *MessageHandler) Process(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	var req services.ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error(), Kind: services.KindInput})
		return
	}
	req.OwnerID = owner

	result, err := h.processor.Process(c.Request.Context(), &req)
	if err != nil {
		if result != nil && result.Outcome == services.OutcomeMatchedSyncFailed {
			status := statusForError(err)
			var syncErr *services.SyncError
			upstream := 0
			if errors.As(err, &syncErr) {
				upstream = syncErr.Status
			}
			c.JSON(status, gin.H{
				"error":           "Rule matched but CRM update failed",
				"message":         err.Error(),
				"kind":            services.ErrorKind(err),
				"upstream_status": upstream,
				"result":          result,
			})
			return
		}
		writeServiceError(c, "Failed to process message", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RegisterMessageRoutes 注册路由
func RegisterMessageRoutes(r *gin.RouterGroup, handler *MessageHandler) {
	r.POST("/messages/process", handler.Process)
}
