// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 中继错误分类，每类对应一条稳定的用户提示
	ErrorTypeConfig              ErrorType = "config_error"
	ErrorTypeValidation          ErrorType = "validation_error"
	ErrorTypeNetwork             ErrorType = "network_error"
	ErrorTypeTimeout             ErrorType = "timeout"
	ErrorTypeUpstreamClient      ErrorType = "upstream_client_error"
	ErrorTypeUpstreamRateLimited ErrorType = "upstream_rate_limited"
	ErrorTypeUpstreamServer      ErrorType = "upstream_server_error"
	ErrorTypeUnknown             ErrorType = "unknown"
)

// AppError 应用程序错误结构
type AppError struct {
	Type       ErrorType
	Message    string // 面向用户的提示
	Details    string // 附加说明（可为空）
	RetryAfter int    // 重试提示（秒），仅限流类错误使用
	Err        error
	Code       string // 稳定的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus 返回该错误类别对应的本地HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch e.Type {
	case ErrorTypeValidation, ErrorTypeUpstreamClient:
		return http.StatusBadRequest
	case ErrorTypeUpstreamRateLimited:
		return http.StatusTooManyRequests
	default:
		// config / network / timeout / upstream_server / unknown
		return http.StatusInternalServerError
	}
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewConfigError 创建配置缺失错误
func NewConfigError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConfig, message, originalError)
}

// NewValidationError 创建本地校验错误
func NewValidationError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, message, nil)
}

// NewNetworkError 创建网络不可达错误
func NewNetworkError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNetwork, message, originalError)
}

// NewTimeoutError 创建超时错误
func NewTimeoutError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeTimeout, message, originalError)
}

// NewUpstreamClientError 创建上游4xx错误
func NewUpstreamClientError(message string) *AppError {
	return NewAppError(ErrorTypeUpstreamClient, message, nil)
}

// NewUpstreamRateLimitedError 创建上游并发限流错误
// retryAfter 为建议的重试间隔（秒）
func NewUpstreamRateLimitedError(message, details string, retryAfter int) *AppError {
	err := NewAppError(ErrorTypeUpstreamRateLimited, message, nil)
	err.Details = details
	err.RetryAfter = retryAfter
	return err
}

// NewUpstreamServerError 创建上游5xx错误
func NewUpstreamServerError(message string) *AppError {
	return NewAppError(ErrorTypeUpstreamServer, message, nil)
}

// NewUnknownError 创建未分类错误
func NewUnknownError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUnknown, message, originalError)
}

// IsConfigError 检查是否为配置错误
func IsConfigError(err error) bool {
	return hasType(err, ErrorTypeConfig)
}

// IsValidationError 检查是否为校验错误
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsNetworkError 检查是否为网络错误
func IsNetworkError(err error) bool {
	return hasType(err, ErrorTypeNetwork)
}

// IsTimeoutError 检查是否为超时错误
func IsTimeoutError(err error) bool {
	return hasType(err, ErrorTypeTimeout)
}

// IsUpstreamRateLimitedError 检查是否为上游限流错误
func IsUpstreamRateLimitedError(err error) bool {
	return hasType(err, ErrorTypeUpstreamRateLimited)
}

func hasType(err error, errType ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == errType
	}
	return false
}

// AsAppError 提取错误链中的 AppError，不存在时归入未分类
func AsAppError(err error) *AppError {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError
	}
	return NewUnknownError("An error occurred while processing the video. Please try again.", err)
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeConfig:
		return "CONFIG_MISSING"
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNetwork:
		return "NETWORK_ERROR"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeUpstreamClient:
		return "UPSTREAM_CLIENT_ERROR"
	case ErrorTypeUpstreamRateLimited:
		return "UPSTREAM_RATE_LIMITED"
	case ErrorTypeUpstreamServer:
		return "UPSTREAM_SERVER_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}
