// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Corphon/ScriptRelayMCP/internal/api"
	"github.com/Corphon/ScriptRelayMCP/internal/app"
	"github.com/Corphon/ScriptRelayMCP/internal/config"
	"github.com/Corphon/ScriptRelayMCP/internal/di"
	"github.com/Corphon/ScriptRelayMCP/internal/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 首先加载基础配置
	baseConfig, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	if err := logger.Init(baseConfig.LogDir, baseConfig.DebugMode); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	log := logger.L()
	log.Info("🚀 启动 ScriptRelayMCP 服务器...")
	log.Infof("✅ 基础配置加载完成，端口: %s", baseConfig.Port)

	// 3. 初始化配置系统
	if err := config.InitConfig(baseConfig.DataDir); err != nil {
		log.Fatalf("初始化配置系统失败: %v", err)
	}
	log.Info("✅ 配置系统初始化完成")

	// 4. 初始化所有服务（按依赖顺序）
	if err := app.InitServices(); err != nil {
		log.Fatalf("初始化服务失败: %v", err)
	}
	container := di.GetContainer()
	log.Infof("✅ 所有服务初始化完成，服务数量: %d", len(container.GetNames()))

	// 5. 服务健康检查
	if err := performHealthCheck(); err != nil {
		log.Warnf("⚠️ 服务健康检查警告: %v", err)
	}

	// 6. 设置路由
	if !baseConfig.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := api.SetupRouter()
	if err != nil {
		log.Fatalf("❌ 设置路由失败: %v", err)
	}
	log.Info("✅ 路由设置完成")

	// 7. 启动服务器
	log.Infof("🌐 服务器启动在端口 %s", baseConfig.Port)
	log.Infof("🔗 健康检查: http://localhost:%s/health", baseConfig.Port)
	if baseConfig.WebhookURL == "" {
		log.Warn("⚠️ 未配置上游webhook，上传请求将返回配置错误")
	}

	setupGracefulShutdown(router, baseConfig.Port)
}

// performHealthCheck 检查关键服务是否已注册
func performHealthCheck() error {
	container := di.GetContainer()

	for _, serviceName := range app.CriticalServices() {
		if service := container.Get(serviceName); service == nil {
			return fmt.Errorf("关键服务未注册: %s", serviceName)
		}
	}

	logger.L().Info("✅ 服务健康检查通过")
	return nil
}

// setupGracefulShutdown 优雅关闭
func setupGracefulShutdown(router *gin.Engine, port string) {
	log := logger.L()

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// 在新的 goroutine 中启动服务器
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ 启动服务器失败: %v", err)
		}
	}()

	// 等待中断信号以进行优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("🛑 正在关闭服务器...")

	// 在途的上传最长要等一次完整的上游转发
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("❌ 服务器强制关闭: %v", err)
	}

	log.Info("✅ 服务器优雅关闭完成")
}
