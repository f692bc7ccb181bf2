// internal/services/forward_service.go
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"

	apperrors "github.com/Corphon/ScriptRelayMCP/internal/errors"
	"github.com/Corphon/ScriptRelayMCP/internal/jsonval"
	"github.com/Corphon/ScriptRelayMCP/internal/logger"
	"github.com/Corphon/ScriptRelayMCP/internal/models"
)

const (
	// MaxUploadSize 本地大小上限，100MB
	MaxUploadSize = 100 * 1024 * 1024

	// ForwardTimeout 上游处理视频可能很慢，给足五分钟
	ForwardTimeout = 5 * time.Minute

	// RateLimitRetryAfter 上游并发限流时建议的重试间隔（秒）
	RateLimitRetryAfter = 600

	// 上游错误体中标识并发任务数耗尽的已知子串
	parallelJobLimitMarker = "PARALLEL_JOB_LIMIT_EXCEEDED"

	userAgent = "ScriptRelayMCP/1.0"
)

// ForwardService 负责把上传文件转发到上游webhook
type ForwardService struct {
	WebhookURL string
	client     *http.Client
}

// NewForwardService 创建转发服务
func NewForwardService(webhookURL string) *ForwardService {
	return &ForwardService{
		WebhookURL: webhookURL,
		client: &http.Client{
			Timeout: ForwardTimeout,
		},
	}
}

// SetHTTPClient 替换底层HTTP客户端（测试用）
func (s *ForwardService) SetHTTPClient(client *http.Client) {
	s.client = client
}

// Validate 在任何网络或文件I/O之前执行的本地校验
// 顺序: 配置存在 -> 文件类型 -> 文件大小
func (s *ForwardService) Validate(file *models.UploadedFile) error {
	if s.WebhookURL == "" {
		return apperrors.NewConfigError(
			"N8N webhook URL not configured. Please set N8N_WEBHOOK_URL in your environment variables.", nil)
	}

	if !strings.Contains(file.ContentType, "video/mp4") &&
		!strings.HasSuffix(strings.ToLower(file.Filename), ".mp4") {
		return apperrors.NewValidationError("Only MP4 video files are allowed.")
	}

	if file.Size > MaxUploadSize {
		return apperrors.NewValidationError("File too large. Maximum size is 100MB.")
	}

	return nil
}

// Forward 校验后把文件作为multipart字段video转发到webhook
// 不做重试；响应或失败立即分类返回
func (s *ForwardService) Forward(ctx context.Context, file *models.UploadedFile) (*models.ForwardResult, error) {
	if err := s.Validate(file); err != nil {
		return nil, err
	}

	body, contentType, err := s.buildMultipartBody(file)
	if err != nil {
		return nil, apperrors.NewUnknownError(
			"An error occurred while processing the video. Please try again.", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, body)
	if err != nil {
		return nil, apperrors.NewUnknownError(
			"An error occurred while processing the video. Please try again.", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	logger.L().WithField("filename", file.Filename).
		WithField("size", file.Size).
		Info("转发视频到上游webhook")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, s.classifyTransportError(err)
	}
	defer resp.Body.Close()

	// 本地100MB上限只约束入口，响应体不设上限
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewUnknownError(
			"An error occurred while processing the video. Please try again.", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, s.classifyStatusError(resp.StatusCode, raw)
	}

	logger.L().WithField("status", resp.StatusCode).
		WithField("bytes", len(raw)).
		Info("收到上游响应")

	return &models.ForwardResult{
		StatusCode: resp.StatusCode,
		Raw:        raw,
		Value:      decodeBody(raw),
	}, nil
}

// buildMultipartBody 把暂存文件打包为单字段multipart表单
// 字段名固定为video，保留原始文件名和Content-Type
func (s *ForwardService) buildMultipartBody(file *models.UploadedFile) (io.Reader, string, error) {
	src, err := os.Open(file.Path)
	if err != nil {
		return nil, "", fmt.Errorf("打开暂存文件失败: %w", err)
	}
	defer src.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="video"; filename="%s"`, file.Filename))
	header.Set("Content-Type", file.ContentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", fmt.Errorf("读取暂存文件失败: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return body, writer.FormDataContentType(), nil
}

// classifyTransportError 把传输层失败映射到错误分类
func (s *ForwardService) classifyTransportError(err error) error {
	// 超时与普通网络故障分开呈现，调用方能据此判断任务可能已在上游部分执行
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return apperrors.NewTimeoutError(
			"Request timeout. The video processing took too long.", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError(
			"Request timeout. The video processing took too long.", err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return apperrors.NewNetworkError(
			"Unable to connect to n8n service. Please check your N8N_WEBHOOK_URL configuration.", err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return apperrors.NewNetworkError(
			"Unable to connect to n8n service. Please check your N8N_WEBHOOK_URL configuration.", err)
	}

	return apperrors.NewUnknownError(
		"An error occurred while processing the video. Please try again.", err)
}

// classifyStatusError 把上游非2xx响应映射到错误分类
func (s *ForwardService) classifyStatusError(statusCode int, body []byte) error {
	logger.L().WithField("status", statusCode).
		WithField("body", truncateForLog(body)).
		Warn("上游返回错误状态")

	// 并发限流子串优先于状态码判定
	if bytes.Contains(body, []byte(parallelJobLimitMarker)) {
		return apperrors.NewUpstreamRateLimitedError(
			"CloudConvert is processing too many jobs. Please wait 5-10 minutes and try again.",
			"Your video was received successfully, but CloudConvert has reached its concurrent job limit.",
			RateLimitRetryAfter)
	}

	switch {
	case statusCode == http.StatusRequestEntityTooLarge:
		return apperrors.NewUpstreamClientError(
			"File too large for n8n processing. Please try a smaller file.")
	case statusCode == http.StatusUnsupportedMediaType:
		return apperrors.NewUpstreamClientError(
			"Unsupported media type. Please ensure the file is a valid MP4 video.")
	case statusCode == http.StatusBadRequest:
		return apperrors.NewUpstreamClientError(
			"Invalid request format. n8n could not process the binary data.")
	case statusCode >= 500:
		return apperrors.NewUpstreamServerError(
			"n8n service error. Please try again later.")
	default:
		return apperrors.NewUnknownError(
			"An error occurred while processing the video. Please try again.",
			fmt.Errorf("上游状态码 %d", statusCode))
	}
}

// decodeBody 解码上游响应体
// 空体视为空对象；无法解析的体按原始文本处理，归一化兜底仍可能从中提取字幕
func decodeBody(raw []byte) jsonval.Value {
	if len(bytes.TrimSpace(raw)) == 0 {
		return jsonval.NewObject()
	}
	v, err := jsonval.Decode(raw)
	if err != nil {
		return string(raw)
	}
	return v
}

func truncateForLog(body []byte) string {
	const max = 512
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
