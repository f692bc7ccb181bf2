// internal/api/router.go
package api

import (
	"fmt"

	"github.com/Corphon/ScriptRelayMCP/internal/di"
	"github.com/Corphon/ScriptRelayMCP/internal/services"
	"github.com/Corphon/ScriptRelayMCP/internal/storage"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	// 获取依赖注入容器
	container := di.GetContainer()

	// 只从容器获取服务，不再创建新实例
	forwardService, ok := container.Get("forward").(*services.ForwardService)
	if !ok {
		return nil, fmt.Errorf("转发服务未正确初始化")
	}

	normalizeService, ok := container.Get("normalize").(*services.NormalizeService)
	if !ok {
		return nil, fmt.Errorf("归一化服务未正确初始化")
	}

	diagService, ok := container.Get("diag").(*services.DiagService)
	if !ok {
		return nil, fmt.Errorf("诊断服务未正确初始化")
	}

	staging, ok := container.Get("staging").(*storage.StagingStore)
	if !ok {
		return nil, fmt.Errorf("暂存存储未正确初始化")
	}

	handler := NewHandler(forwardService, normalizeService, diagService, staging)

	// 创建路由
	r := gin.Default()

	// 启用CORS
	r.Use(corsMiddleware())

	// 不支持的方法返回405而不是404
	r.HandleMethodNotAllowed = true
	r.NoMethod(handler.Response.MethodNotAllowed)

	// ===============================
	// 健康检查
	// ===============================
	r.GET("/health", handler.Health)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		api.GET("/health", handler.Health)

		// 上传入口
		api.POST("/upload", UploadRateLimit(), handler.UploadVideo)

		// 诊断路由（非核心，仅供排障）
		debugGroup := api.Group("/debug")
		{
			debugGroup.GET("/last-response", handler.GetLastResponse)
			debugGroup.GET("/test-n8n", handler.TestUpstream)
			debugGroup.GET("/info", handler.DebugInfo)
		}

		// WebSocket 事件订阅
		api.GET("/ws/events", handler.EventsWebSocket)
	}

	return r, nil
}
