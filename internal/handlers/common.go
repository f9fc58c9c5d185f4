package handlers

import (
	"errors"
	"net/http"

	"stagesync/internal/middleware"
	"stagesync/internal/services"

	"github.com/gin-gonic/gin"
)

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Error          string `json:"error"`
	Message        string `json:"message"`
	Code           int    `json:"code,omitempty"`
	Kind           string `json:"kind,omitempty"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

// PaginatedResponse 分页响应结构
type PaginatedResponse struct {
	Data     interface{} `json:"data"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Pages    int         `json:"pages"`
}

// SuccessResponse 成功响应结构
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

var kindStatus = map[string]int{
	services.KindInput:                 http.StatusBadRequest,
	services.KindNotFound:              http.StatusNotFound,
	services.KindIntegrationMissing:    http.StatusNotFound,
	services.KindCredentialUnavailable: http.StatusConflict,
	services.KindExchangeFailed:        http.StatusBadGateway,
	services.KindSyncFailed:            http.StatusBadGateway,
}

func statusForError(err error) int {
	if code, ok := kindStatus[services.ErrorKind(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// writeServiceError 把服务层错误转换为 HTTP 响应
func writeServiceError(c *gin.Context, title string, err error) {
	code := statusForError(err)
	resp := ErrorResponse{
		Error:   title,
		Message: err.Error(),
		Code:    code,
		Kind:    services.ErrorKind(err),
	}
	var syncErr *services.SyncError
	if errors.As(err, &syncErr) {
		resp.UpstreamStatus = syncErr.Status
	}
	if code == http.StatusInternalServerError {
		resp.Message = "internal server error"
	}
	c.JSON(code, resp)
}

// requireOwner 读取认证后的用户 id；缺失时返回 401
func requireOwner(c *gin.Context) (string, bool) {
	owner := middleware.OwnerID(c)
	if owner == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized", Message: "owner not resolved", Code: http.StatusUnauthorized})
		return "", false
	}
	return owner, true
}

func pages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
