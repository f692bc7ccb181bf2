// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest       = "BAD_REQUEST"
	ErrorInternalError    = "INTERNAL_ERROR"
	ErrorMethodNotAllowed = "METHOD_NOT_ALLOWED"

	// 上传相关错误
	ErrorNoFile           = "NO_FILE"
	ErrorFileInvalid      = "VALIDATION_ERROR"
	ErrorFileUploadFailed = "FILE_UPLOAD_FAILED"

	// 上游相关错误
	ErrorConfigMissing       = "CONFIG_MISSING"
	ErrorNetwork             = "NETWORK_ERROR"
	ErrorTimeout             = "TIMEOUT"
	ErrorUpstreamClient      = "UPSTREAM_CLIENT_ERROR"
	ErrorUpstreamRateLimited = "UPSTREAM_RATE_LIMITED"
	ErrorUpstreamServer      = "UPSTREAM_SERVER_ERROR"
	ErrorUnknown             = "UNKNOWN_ERROR"
)
