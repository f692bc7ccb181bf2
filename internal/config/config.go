// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	UploadDir string `json:"upload_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// 上游webhook配置
	WebhookURL string `json:"webhook_url,omitempty"`
}

// Config 存储应用配置
type Config struct {
	Port       string
	WebhookURL string
	DataDir    string
	UploadDir  string
	LogDir     string
	DebugMode  bool
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	// 创建配置
	config := &Config{
		Port:       getEnv("PORT", "3001"),
		WebhookURL: getEnv("N8N_WEBHOOK_URL", ""),
		DataDir:    getEnvPath("DATA_DIR", "data"),
		UploadDir:  getEnvPath("UPLOAD_DIR", "uploads"),
		LogDir:     getEnvPath("LOG_DIR", "logs"),
		DebugMode:  getEnvBool("DEBUG_MODE", true),
	}

	// 验证webhook地址
	if config.WebhookURL == "" {
		// 只记录警告，不返回错误；缺失时每次上传都会以配置错误快速失败
		log.Println("警告: 未设置N8N_WEBHOOK_URL，上传请求将直接返回配置错误")
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		err = os.MkdirAll(path, 0755)
		if err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	// 加载基础配置
	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = &AppConfig{
		Port:       baseConfig.Port,
		DataDir:    baseConfig.DataDir,
		UploadDir:  baseConfig.UploadDir,
		LogDir:     baseConfig.LogDir,
		DebugMode:  baseConfig.DebugMode,
		WebhookURL: baseConfig.WebhookURL,
	}

	// 尝试从文件加载已保存的配置
	if _, err := os.Stat(configFile); !os.IsNotExist(err) {
		data, err := os.ReadFile(configFile)
		if err == nil {
			var savedConfig AppConfig
			if json.Unmarshal(data, &savedConfig) == nil {
				// 合并配置：保留文件中的webhook设置，基础配置以环境变量为准
				savedConfig.Port = baseConfig.Port
				savedConfig.DataDir = baseConfig.DataDir
				savedConfig.UploadDir = baseConfig.UploadDir
				savedConfig.LogDir = baseConfig.LogDir
				savedConfig.DebugMode = baseConfig.DebugMode

				// 环境变量优先于文件中保存的webhook地址
				if baseConfig.WebhookURL != "" {
					savedConfig.WebhookURL = baseConfig.WebhookURL
				}

				currentConfig = &savedConfig
			}
		}
	}

	// 保存初始配置到文件
	return SaveConfig()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		// 紧急情况，返回一个基本配置
		baseConfig, _ := Load()
		return &AppConfig{
			Port:       baseConfig.Port,
			DataDir:    baseConfig.DataDir,
			UploadDir:  baseConfig.UploadDir,
			LogDir:     baseConfig.LogDir,
			DebugMode:  baseConfig.DebugMode,
			WebhookURL: baseConfig.WebhookURL,
		}
	}

	// 返回配置的副本
	configCopy := *currentConfig
	return &configCopy
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	// 确保目录存在
	dir := filepath.Dir(configFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}
	}

	// 序列化并保存
	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}
