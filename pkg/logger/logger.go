package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"tecnodash/pkg/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	Logger *logrus.Logger

	fallback     *logrus.Logger
	fallbackOnce sync.Once
)

// Initialize 初始化日志
func Initialize(cfg *config.Config) error {
	l := logrus.New()
	l.SetLevel(parseLevel(cfg.Log.Level))
	l.SetFormatter(newFormatter(cfg.Log.Format))

	out, err := newOutput(cfg.Log, cfg.Ambient)
	if err != nil {
		return err
	}
	l.SetOutput(out)

	Logger = l
	return nil
}

func parseLevel(value string) logrus.Level {
	level, err := logrus.ParseLevel(value)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func newFormatter(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{}
	}
	return &logrus.TextFormatter{FullTimestamp: true}
}

// newOutput 配置了文件路径时按大小轮转写入文件；开发环境同时输出到控制台
func newOutput(cfg config.LogConfig, ambient string) (io.Writer, error) {
	if cfg.FilePath == "" {
		return os.Stdout, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, err
	}

	rotateLogger := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	if ambient == config.AmbientProduction {
		return rotateLogger, nil
	}
	return io.MultiWriter(os.Stdout, rotateLogger), nil
}

// GetLogger 获取日志实例，未初始化时返回输出到stderr的默认实例（测试中常见）
func GetLogger() *logrus.Logger {
	if Logger != nil {
		return Logger
	}
	fallbackOnce.Do(func() {
		fallback = logrus.New()
	})
	return fallback
}

// WithComponent 带组件名的日志条目
func WithComponent(name string) *logrus.Entry {
	return GetLogger().WithField("component", name)
}
