// internal/services/forward_service_test.go
package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/Corphon/ScriptRelayMCP/internal/errors"
	"github.com/Corphon/ScriptRelayMCP/internal/jsonval"
	"github.com/Corphon/ScriptRelayMCP/internal/models"
)

// stageTestFile 在临时目录写一个假视频文件
func stageTestFile(t *testing.T, content string) *models.UploadedFile {
	t.Helper()

	path := filepath.Join(t.TempDir(), "staged-clip.mp4")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入测试文件失败: %v", err)
	}

	return &models.UploadedFile{
		Filename:    "clip.mp4",
		ContentType: "video/mp4",
		Size:        int64(len(content)),
		Path:        path,
	}
}

// TestValidate 本地校验顺序: 配置 -> 类型 -> 大小
func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		webhookURL string
		file       *models.UploadedFile
		wantErr    func(error) bool
		wantMsg    string
	}{
		{
			name:       "missing webhook config",
			webhookURL: "",
			file:       &models.UploadedFile{Filename: "a.mp4", ContentType: "video/mp4", Size: 10},
			wantErr:    apperrors.IsConfigError,
		},
		{
			name:       "wrong file type",
			webhookURL: "https://example.com/hook",
			file:       &models.UploadedFile{Filename: "a.mov", ContentType: "video/quicktime", Size: 10},
			wantErr:    apperrors.IsValidationError,
			wantMsg:    "Only MP4 video files are allowed.",
		},
		{
			name:       "oversize file",
			webhookURL: "https://example.com/hook",
			file:       &models.UploadedFile{Filename: "a.mp4", ContentType: "video/mp4", Size: MaxUploadSize + 1},
			wantErr:    apperrors.IsValidationError,
			wantMsg:    "File too large. Maximum size is 100MB.",
		},
		{
			name:       "mp4 content type with odd name passes",
			webhookURL: "https://example.com/hook",
			file:       &models.UploadedFile{Filename: "blob", ContentType: "video/mp4", Size: 10},
		},
		{
			name:       "uppercase extension passes",
			webhookURL: "https://example.com/hook",
			file:       &models.UploadedFile{Filename: "CLIP.MP4", ContentType: "application/octet-stream", Size: 10},
		},
		{
			name:       "config error beats type error",
			webhookURL: "",
			file:       &models.UploadedFile{Filename: "a.mov", ContentType: "video/quicktime", Size: 10},
			wantErr:    apperrors.IsConfigError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewForwardService(tt.webhookURL)
			err := svc.Validate(tt.file)

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate返回意外错误: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("期望校验失败")
			}
			if !tt.wantErr(err) {
				t.Errorf("错误分类不符: %v", err)
			}
			if tt.wantMsg != "" && apperrors.AsAppError(err).Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", apperrors.AsAppError(err).Message, tt.wantMsg)
			}
		})
	}
}

// TestValidateBeforeIO 校验失败时不发起任何网络请求
func TestValidateBeforeIO(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	svc := NewForwardService(srv.URL)
	file := &models.UploadedFile{
		Filename:    "huge.mp4",
		ContentType: "video/mp4",
		Size:        MaxUploadSize + 1,
		Path:        "/nonexistent/never-opened.mp4",
	}

	if _, err := svc.Forward(context.Background(), file); err == nil {
		t.Fatal("期望校验失败")
	}
	if called {
		t.Error("校验失败时不应请求上游")
	}
}

// TestForwardSuccess 转发成功: multipart字段、请求头、响应解码
func TestForwardSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "ScriptRelayMCP/1.0" {
			t.Errorf("User-Agent = %q", got)
		}

		f, fh, err := r.FormFile("video")
		if err != nil {
			t.Errorf("缺少video字段: %v", err)
		} else {
			f.Close()
			if fh.Filename != "clip.mp4" {
				t.Errorf("上游收到的文件名 = %q", fh.Filename)
			}
			if got := fh.Header.Get("Content-Type"); got != "video/mp4" {
				t.Errorf("上游收到的Content-Type = %q", got)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transcript": "hello world", "scripts": ["Intro"]}`))
	}))
	defer srv.Close()

	svc := NewForwardService(srv.URL)
	result, err := svc.Forward(context.Background(), stageTestFile(t, "fake mp4 bytes"))
	if err != nil {
		t.Fatalf("Forward失败: %v", err)
	}

	if result.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", result.StatusCode)
	}
	obj, ok := result.Value.(*jsonval.Object)
	if !ok {
		t.Fatalf("Value期望*jsonval.Object, 得到%T", result.Value)
	}
	if v, _ := obj.Get("transcript"); v != "hello world" {
		t.Errorf("transcript = %v", v)
	}
}

// TestForwardRateLimited 上游响应体含并发限流标识时优先归类为限流
func TestForwardRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "PARALLEL_JOB_LIMIT_EXCEEDED: too many jobs"}`))
	}))
	defer srv.Close()

	svc := NewForwardService(srv.URL)
	_, err := svc.Forward(context.Background(), stageTestFile(t, "x"))
	if err == nil {
		t.Fatal("期望限流错误")
	}

	if !apperrors.IsUpstreamRateLimitedError(err) {
		t.Fatalf("错误分类不符: %v", err)
	}
	appErr := apperrors.AsAppError(err)
	if appErr.RetryAfter != RateLimitRetryAfter {
		t.Errorf("RetryAfter = %d, want %d", appErr.RetryAfter, RateLimitRetryAfter)
	}
	if appErr.HTTPStatus() != http.StatusTooManyRequests {
		t.Errorf("HTTPStatus = %d, want 429", appErr.HTTPStatus())
	}
}

// TestForwardStatusClassification 上游状态码到错误分类的映射
func TestForwardStatusClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantType   apperrors.ErrorType
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "payload too large",
			status:     http.StatusRequestEntityTooLarge,
			wantType:   apperrors.ErrorTypeUpstreamClient,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "File too large for n8n processing. Please try a smaller file.",
		},
		{
			name:       "unsupported media type",
			status:     http.StatusUnsupportedMediaType,
			wantType:   apperrors.ErrorTypeUpstreamClient,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Unsupported media type. Please ensure the file is a valid MP4 video.",
		},
		{
			name:       "bad request",
			status:     http.StatusBadRequest,
			wantType:   apperrors.ErrorTypeUpstreamClient,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Invalid request format. n8n could not process the binary data.",
		},
		{
			name:       "server error",
			status:     http.StatusBadGateway,
			wantType:   apperrors.ErrorTypeUpstreamServer,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "n8n service error. Please try again later.",
		},
		{
			name:       "bare 429 without marker",
			status:     http.StatusTooManyRequests,
			wantType:   apperrors.ErrorTypeUnknown,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error": "upstream failure"}`))
			}))
			defer srv.Close()

			svc := NewForwardService(srv.URL)
			_, err := svc.Forward(context.Background(), stageTestFile(t, "x"))
			if err == nil {
				t.Fatal("期望上游错误")
			}

			appErr := apperrors.AsAppError(err)
			if appErr.Type != tt.wantType {
				t.Errorf("Type = %s, want %s", appErr.Type, tt.wantType)
			}
			if appErr.HTTPStatus() != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", appErr.HTTPStatus(), tt.wantStatus)
			}
			if tt.wantMsg != "" && appErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", appErr.Message, tt.wantMsg)
			}
		})
	}
}

// TestForwardNetworkError 上游不可达归类为网络错误
func TestForwardNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	svc := NewForwardService(url)
	_, err := svc.Forward(context.Background(), stageTestFile(t, "x"))
	if err == nil {
		t.Fatal("期望网络错误")
	}
	if !apperrors.IsNetworkError(err) {
		t.Errorf("错误分类不符: %v", err)
	}
}

// TestForwardTimeout 客户端超时归类为超时错误
func TestForwardTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	svc := NewForwardService(srv.URL)
	svc.SetHTTPClient(&http.Client{Timeout: 30 * time.Millisecond})

	_, err := svc.Forward(context.Background(), stageTestFile(t, "x"))
	if err == nil {
		t.Fatal("期望超时错误")
	}
	if !apperrors.IsTimeoutError(err) {
		t.Errorf("错误分类不符: %v", err)
	}
	if got := apperrors.AsAppError(err).Message; got != "Request timeout. The video processing took too long." {
		t.Errorf("Message = %q", got)
	}
}

// TestForwardBodyDecoding 响应体解码: 空体为空对象，非JSON按原始文本
func TestForwardBodyDecoding(t *testing.T) {
	t.Run("empty body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		svc := NewForwardService(srv.URL)
		result, err := svc.Forward(context.Background(), stageTestFile(t, "x"))
		if err != nil {
			t.Fatalf("Forward失败: %v", err)
		}
		obj, ok := result.Value.(*jsonval.Object)
		if !ok || obj.Len() != 0 {
			t.Errorf("空响应体应解码为空对象, 得到%#v", result.Value)
		}
	})

	t.Run("non-json body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("plain text that is definitely not json at all here"))
		}))
		defer srv.Close()

		svc := NewForwardService(srv.URL)
		result, err := svc.Forward(context.Background(), stageTestFile(t, "x"))
		if err != nil {
			t.Fatalf("Forward失败: %v", err)
		}
		if _, ok := result.Value.(string); !ok {
			t.Errorf("非JSON响应体应保留为字符串, 得到%T", result.Value)
		}
	})
}
