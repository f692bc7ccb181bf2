// internal/api/response_helpers.go
package api

import (
	"net/http"

	apperrors "github.com/Corphon/ScriptRelayMCP/internal/errors"
	"github.com/gin-gonic/gin"
)

// ResponseHelper 响应助手类
// 成功响应直接输出 {transcript, scripts[]} 裸对象，这是对前端承诺的契约；
// 错误响应统一为 {error, code} 外加限流场景的 retryAfter/details
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string) {
	c.JSON(statusCode, gin.H{
		"error": message,
		"code":  errorCode,
	})
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, errorCode, message string) {
	rh.Error(c, http.StatusBadRequest, errorCode, message)
}

// InternalError 500错误响应
func (rh *ResponseHelper) InternalError(c *gin.Context, errorCode, message string) {
	rh.Error(c, http.StatusInternalServerError, errorCode, message)
}

// MethodNotAllowed 405错误响应
func (rh *ResponseHelper) MethodNotAllowed(c *gin.Context) {
	rh.Error(c, http.StatusMethodNotAllowed, ErrorMethodNotAllowed, "Method not allowed")
}

// RateLimited 429错误响应，携带重试提示
func (rh *ResponseHelper) RateLimited(c *gin.Context, message, details string, retryAfter int) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":      message,
		"code":       ErrorUpstreamRateLimited,
		"retryAfter": retryAfter,
		"details":    details,
	})
}

// FromAppError 按错误分类写出响应
// 内部细节只进日志，不随响应泄露给调用方
func (rh *ResponseHelper) FromAppError(c *gin.Context, err error) {
	appErr := apperrors.AsAppError(err)

	if appErr.Type == apperrors.ErrorTypeUpstreamRateLimited {
		rh.RateLimited(c, appErr.Message, appErr.Details, appErr.RetryAfter)
		return
	}

	rh.Error(c, appErr.HTTPStatus(), appErr.Code, appErr.Message)
}
