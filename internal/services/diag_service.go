// internal/services/diag_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Corphon/ScriptRelayMCP/internal/models"
)

// pingTimeout 连通性探测无需等待视频处理，给10秒足够
const pingTimeout = 10 * time.Second

// DiagService 诊断服务
// 持有最近一次上游响应的单槽缓存；并发上传时槽位由最后完成的请求覆盖，
// 内容仅供排障参考，调用方不得假设它对应某个特定请求
type DiagService struct {
	WebhookURL string
	client     *http.Client

	mu   sync.RWMutex
	last *models.UpstreamRecord
}

// NewDiagService 创建诊断服务
func NewDiagService(webhookURL string) *DiagService {
	return &DiagService{
		WebhookURL: webhookURL,
		client: &http.Client{
			Timeout: pingTimeout,
		},
	}
}

// Record 记录一次上游响应快照
func (s *DiagService) Record(statusCode int, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = &models.UpstreamRecord{
		Raw:        string(raw),
		StatusCode: statusCode,
		ReceivedAt: time.Now(),
	}
}

// Last 返回最近一次上游响应快照
func (s *DiagService) Last() (*models.UpstreamRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		return nil, false
	}
	snapshot := *s.last
	return &snapshot, true
}

// PingUpstream 向webhook发送一个小的JSON探测请求，验证连通性
func (s *DiagService) PingUpstream(ctx context.Context) (map[string]interface{}, error) {
	if s.WebhookURL == "" {
		return nil, fmt.Errorf("N8N webhook URL not configured")
	}

	payload, _ := json.Marshal(map[string]string{
		"test":      "ping from ScriptRelayMCP",
		"timestamp": time.Now().Format(time.RFC3339),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("n8n webhook test failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	return map[string]interface{}{
		"status":   "OK",
		"message":  "n8n webhook is accessible",
		"httpCode": resp.StatusCode,
		"response": string(body),
	}, nil
}
