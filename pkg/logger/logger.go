// Package logger 基于zerolog的结构化日志
//
// 设计说明：
// 1. 由配置决定级别、输出格式（console|json）、输出目标（stdout|stderr|文件）
// 2. 请求级别的字段（request_id、trace_id）通过context传递，业务代码用FromContext取出
// 3. 库存相关日志统一带上order_id、product_id等字段，便于按订单检索
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config 日志配置（与config.LogConfig字段一一对应，避免pkg依赖internal）
type Config struct {
	Level        string // debug | info | warn | error
	Format       string // console | json
	Output       string // stdout | stderr | /path/to/file
	EnableCaller bool
}

// New 根据配置创建Logger
func New(cfg Config, service string) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("打开日志文件失败: %w", err)
		}
		out = f
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	if cfg.EnableCaller {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), nil
}

// FromContext 从context获取请求级Logger，没有则返回fallback
func FromContext(ctx context.Context, fallback zerolog.Logger) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &fallback
}
