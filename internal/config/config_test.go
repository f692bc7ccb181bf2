// internal/config/config_test.go
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// setTestDirs 把所有路径类环境变量指向临时目录，避免在工作目录留痕
func setTestDirs(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	t.Setenv("DATA_DIR", filepath.Join(base, "data"))
	t.Setenv("UPLOAD_DIR", filepath.Join(base, "uploads"))
	t.Setenv("LOG_DIR", filepath.Join(base, "logs"))
	return base
}

// TestLoadDefaults 未设置环境变量时使用默认值
func TestLoadDefaults(t *testing.T) {
	setTestDirs(t)
	t.Setenv("PORT", "")
	t.Setenv("N8N_WEBHOOK_URL", "")
	t.Setenv("DEBUG_MODE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load失败: %v", err)
	}

	if cfg.Port != "3001" {
		t.Errorf("Port = %q, want 3001", cfg.Port)
	}
	if cfg.WebhookURL != "" {
		t.Errorf("WebhookURL = %q, want empty", cfg.WebhookURL)
	}
	if !cfg.DebugMode {
		t.Error("DebugMode默认应为true")
	}
}

// TestLoadFromEnv 环境变量覆盖默认值
func TestLoadFromEnv(t *testing.T) {
	setTestDirs(t)
	t.Setenv("PORT", "8080")
	t.Setenv("N8N_WEBHOOK_URL", "https://n8n.example.com/webhook/video")
	t.Setenv("DEBUG_MODE", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load失败: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.WebhookURL != "https://n8n.example.com/webhook/video" {
		t.Errorf("WebhookURL = %q", cfg.WebhookURL)
	}
	if cfg.DebugMode {
		t.Error("DEBUG_MODE=false时DebugMode应为false")
	}
}

// TestLoadCreatesDirs 路径类配置的目录会被创建
func TestLoadCreatesDirs(t *testing.T) {
	setTestDirs(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load失败: %v", err)
	}

	for _, dir := range []string{cfg.DataDir, cfg.UploadDir, cfg.LogDir} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("目录未创建: %s (%v)", dir, err)
		}
	}
}

// TestGetEnvBool 布尔环境变量解析
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"false", true, false},
		{"0", true, false},
		{"anything", true, false},
		{"", true, true},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Setenv("TEST_BOOL_KEY", tt.value)
		if got := getEnvBool("TEST_BOOL_KEY", tt.defaultValue); got != tt.want {
			t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.value, tt.defaultValue, got, tt.want)
		}
	}
}

// TestInitConfigPersists 初始化后配置落盘为config.json
func TestInitConfigPersists(t *testing.T) {
	base := setTestDirs(t)
	t.Setenv("N8N_WEBHOOK_URL", "https://n8n.example.com/hook")

	dataDir := filepath.Join(base, "data")
	if err := InitConfig(dataDir); err != nil {
		t.Fatalf("InitConfig失败: %v", err)
	}

	cfg := GetCurrentConfig()
	if cfg.WebhookURL != "https://n8n.example.com/hook" {
		t.Errorf("WebhookURL = %q", cfg.WebhookURL)
	}

	data, err := os.ReadFile(filepath.Join(dataDir, "config.json"))
	if err != nil {
		t.Fatalf("读取配置文件失败: %v", err)
	}
	var saved AppConfig
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("解析配置文件失败: %v", err)
	}
	if saved.WebhookURL != cfg.WebhookURL {
		t.Errorf("落盘的WebhookURL = %q", saved.WebhookURL)
	}
}

// TestInitConfigEnvOverridesFile 环境变量优先于文件中保存的webhook地址
func TestInitConfigEnvOverridesFile(t *testing.T) {
	base := setTestDirs(t)
	dataDir := filepath.Join(base, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatalf("创建数据目录失败: %v", err)
	}

	saved, _ := json.Marshal(&AppConfig{WebhookURL: "https://old.example.com/hook"})
	if err := os.WriteFile(filepath.Join(dataDir, "config.json"), saved, 0644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}

	t.Setenv("N8N_WEBHOOK_URL", "https://new.example.com/hook")
	if err := InitConfig(dataDir); err != nil {
		t.Fatalf("InitConfig失败: %v", err)
	}

	if got := GetCurrentConfig().WebhookURL; got != "https://new.example.com/hook" {
		t.Errorf("WebhookURL = %q, 环境变量应覆盖文件", got)
	}
}

// TestInitConfigKeepsSavedWebhook 环境变量缺失时沿用文件中保存的webhook
func TestInitConfigKeepsSavedWebhook(t *testing.T) {
	base := setTestDirs(t)
	t.Setenv("N8N_WEBHOOK_URL", "")

	dataDir := filepath.Join(base, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatalf("创建数据目录失败: %v", err)
	}

	saved, _ := json.Marshal(&AppConfig{WebhookURL: "https://saved.example.com/hook"})
	if err := os.WriteFile(filepath.Join(dataDir, "config.json"), saved, 0644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}

	if err := InitConfig(dataDir); err != nil {
		t.Fatalf("InitConfig失败: %v", err)
	}

	if got := GetCurrentConfig().WebhookURL; got != "https://saved.example.com/hook" {
		t.Errorf("WebhookURL = %q, 应沿用文件中的值", got)
	}
}
