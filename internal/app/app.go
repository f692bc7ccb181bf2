// internal/app/app.go
package app

import (
	"fmt"

	"github.com/Corphon/ScriptRelayMCP/internal/config"
	"github.com/Corphon/ScriptRelayMCP/internal/di"
	"github.com/Corphon/ScriptRelayMCP/internal/services"
	"github.com/Corphon/ScriptRelayMCP/internal/storage"
)

// InitServices 按依赖顺序初始化所有服务并注册到容器
func InitServices() error {
	container := di.GetContainer()
	cfg := config.GetCurrentConfig()

	// 1. 暂存存储（无依赖）
	staging, err := storage.NewStagingStore(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("初始化暂存存储失败: %w", err)
	}
	container.Register("staging", staging)

	// 2. 归一化服务（无依赖）
	container.Register("normalize", services.NewNormalizeService())

	// 3. 转发服务（依赖webhook配置）
	container.Register("forward", services.NewForwardService(cfg.WebhookURL))

	// 4. 诊断服务（依赖webhook配置）
	container.Register("diag", services.NewDiagService(cfg.WebhookURL))

	return nil
}

// CriticalServices 启动健康检查要求的关键服务名
func CriticalServices() []string {
	return []string{"staging", "normalize", "forward", "diag"}
}
