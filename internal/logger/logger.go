// internal/logger/logger.go
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

// Init 初始化全局日志器
// 同时输出到stdout和logDir/server.log；DEBUG_MODE下启用debug级别
func Init(logDir string, debug bool) error {
	std.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if debug {
		std.SetLevel(logrus.DebugLevel)
	} else {
		std.SetLevel(logrus.InfoLevel)
	}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return err
		}
		logFile, err := os.OpenFile(filepath.Join(logDir, "server.log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		std.SetOutput(io.MultiWriter(os.Stdout, logFile))
	}

	return nil
}

// L 返回全局日志器
func L() *logrus.Logger {
	return std
}
