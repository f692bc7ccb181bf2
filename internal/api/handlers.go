// internal/api/handlers.go
package api

import (
	"net/http"
	"time"

	apperrors "github.com/Corphon/ScriptRelayMCP/internal/errors"
	"github.com/Corphon/ScriptRelayMCP/internal/logger"
	"github.com/Corphon/ScriptRelayMCP/internal/models"
	"github.com/Corphon/ScriptRelayMCP/internal/services"
	"github.com/Corphon/ScriptRelayMCP/internal/storage"
	"github.com/gin-gonic/gin"
)

// Handler API处理器
type Handler struct {
	ForwardService   *services.ForwardService
	NormalizeService *services.NormalizeService
	DiagService      *services.DiagService
	Staging          *storage.StagingStore
	Response         *ResponseHelper
}

// NewHandler 创建API处理器
func NewHandler(
	forwardService *services.ForwardService,
	normalizeService *services.NormalizeService,
	diagService *services.DiagService,
	staging *storage.StagingStore,
) *Handler {
	return &Handler{
		ForwardService:   forwardService,
		NormalizeService: normalizeService,
		DiagService:      diagService,
		Staging:          staging,
		Response:         NewResponseHelper(),
	}
}

// UploadVideo 处理视频上传
// 流程: 暂存 -> 校验并转发 -> 记录诊断快照 -> 归一化 -> 返回标准结构
// 暂存副本在每条退出路径上删除
func (h *Handler) UploadVideo(c *gin.Context) {
	fileHeader, err := c.FormFile("video")
	if err != nil {
		h.Response.BadRequest(c, ErrorNoFile, "No video file uploaded")
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		h.Response.InternalError(c, ErrorFileUploadFailed, "Failed to read uploaded file.")
		return
	}
	defer src.Close()

	stagedPath, err := h.Staging.Save(src, fileHeader.Filename)
	if err != nil {
		logger.L().WithError(err).Error("暂存上传文件失败")
		h.Response.InternalError(c, ErrorFileUploadFailed, "Failed to store uploaded file.")
		return
	}
	// 成功或失败都不留下暂存副本
	defer func() {
		if err := h.Staging.Remove(stagedPath); err != nil {
			logger.L().WithError(err).Warn("删除暂存文件失败")
		}
	}()

	file := &models.UploadedFile{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Path:        stagedPath,
	}

	result, err := h.ForwardService.Forward(c.Request.Context(), file)
	if err != nil {
		appErr := apperrors.AsAppError(err)
		logger.L().WithError(err).
			WithField("filename", file.Filename).
			WithField("type", string(appErr.Type)).
			Error("视频处理失败")

		eventHub.Broadcast(map[string]interface{}{
			"type":     "upload_failed",
			"filename": file.Filename,
			"code":     appErr.Code,
		})

		h.Response.FromAppError(c, err)
		return
	}

	h.DiagService.Record(result.StatusCode, result.Raw)

	normalized := h.NormalizeService.Normalize(result.Value)

	eventHub.Broadcast(map[string]interface{}{
		"type":     "upload_completed",
		"filename": file.Filename,
		"scripts":  len(normalized.Scripts),
	})

	h.Response.Success(c, normalized)
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"message": "Server is running",
	})
}

// GetLastResponse 返回最近一次上游响应快照（仅供排障）
func (h *Handler) GetLastResponse(c *gin.Context) {
	record, ok := h.DiagService.Last()
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"hasLastResponse": false,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"hasLastResponse": true,
		"lastResponse":    record,
	})
}

// TestUpstream 探测上游webhook的连通性
func (h *Handler) TestUpstream(c *gin.Context) {
	info, err := h.DiagService.PingUpstream(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "n8n webhook test failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, info)
}

// DebugInfo 回显请求概况
func (h *Handler) DebugInfo(c *gin.Context) {
	hasWebhook := h.ForwardService.WebhookURL != ""
	webhookState := "Not set"
	if hasWebhook {
		webhookState = "Set"
	}

	c.JSON(http.StatusOK, gin.H{
		"method":      c.Request.Method,
		"hasN8nUrl":   hasWebhook,
		"n8nUrl":      webhookState,
		"wsClients":   eventHub.ClientCount(),
		"timestamp":   time.Now().Format(time.RFC3339),
		"userAgent":   c.Request.UserAgent(),
		"contentType": c.ContentType(),
	})
}

// EventsWebSocket 上传事件的WebSocket订阅入口
func (h *Handler) EventsWebSocket(c *gin.Context) {
	serveEvents(c.Writer, c.Request)
}
