// internal/storage/staging.go
package storage

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Corphon/ScriptRelayMCP/internal/logger"
)

// StagingStore 管理上传文件的磁盘暂存
// 暂存副本由请求处理器在每条退出路径上删除；
// 清扫协程兜底处理进程异常中断后遗留的文件
type StagingStore struct {
	BaseDir string

	maxAge        time.Duration
	sweepInterval time.Duration
}

// NewStagingStore 创建暂存存储
func NewStagingStore(baseDir string) (*StagingStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建暂存目录失败: %w", err)
	}

	s := &StagingStore{
		BaseDir:       baseDir,
		maxAge:        1 * time.Hour,
		sweepInterval: 10 * time.Minute,
	}

	// 启动遗留文件清扫
	s.StartSweeper()

	return s, nil
}

// Save 将上传内容写入暂存目录，返回暂存路径
// 文件名带时间戳和随机后缀，避免并发请求互相覆盖
func (s *StagingStore) Save(src io.Reader, originalName string) (string, error) {
	ext := filepath.Ext(originalName)
	name := fmt.Sprintf("video-%d-%d%s", time.Now().UnixNano(), rand.Int63n(1e9), ext)
	fullPath := filepath.Join(s.BaseDir, name)

	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("创建暂存文件失败: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		// 写入失败时不留半成品
		os.Remove(fullPath)
		return "", fmt.Errorf("写入暂存文件失败: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("关闭暂存文件失败: %w", err)
	}

	return fullPath, nil
}

// Remove 删除暂存文件，文件不存在时视为成功
func (s *StagingStore) Remove(path string) error {
	if path == "" {
		return nil
	}

	// 只允许删除暂存目录内的文件
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(s.BaseDir)) {
		return fmt.Errorf("拒绝删除暂存目录之外的文件: %s", path)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除暂存文件失败: %w", err)
	}

	return nil
}

// StartSweeper 启动遗留文件清扫协程
func (s *StagingStore) StartSweeper() {
	go func() {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for range ticker.C {
			s.sweepStale()
		}
	}()
}

// sweepStale 清理超过maxAge的暂存文件
func (s *StagingStore) sweepStale() {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		return
	}

	now := time.Now()
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > s.maxAge {
			if err := os.Remove(filepath.Join(s.BaseDir, entry.Name())); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		logger.L().Warnf("暂存清扫: 移除了 %d 个遗留文件", removed)
	}
}
