// internal/models/relay.go
package models

import (
	"time"

	"github.com/Corphon/ScriptRelayMCP/internal/jsonval"
)

// ScriptCard 单张脚本卡片
type ScriptCard struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// NormalizedResult 归一化后的标准响应
// 无论上游返回什么形状，前端始终拿到这个契约
type NormalizedResult struct {
	Transcript string       `json:"transcript"`
	Scripts    []ScriptCard `json:"scripts"`
}

// UploadedFile 一次请求范围内的上传文件
// Path 指向暂存目录中的副本，请求结束后无条件删除
type UploadedFile struct {
	Filename    string
	ContentType string
	Size        int64
	Path        string
}

// ForwardResult 上游webhook的成功响应
type ForwardResult struct {
	StatusCode int
	Raw        []byte
	Value      jsonval.Value
}

// UpstreamRecord 诊断用的最近一次上游响应快照
type UpstreamRecord struct {
	Raw        string    `json:"raw"`
	StatusCode int       `json:"statusCode"`
	ReceivedAt time.Time `json:"receivedAt"`
}
