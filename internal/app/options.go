package app

import (
	"os"
	"time"

	"github.com/dujiao-next/voucher/internal/config"
	"github.com/dujiao-next/voucher/internal/logger"

	"go.uber.org/zap"
)

// 启动模式
const (
	ModeAll     = "all"
	ModeWorker  = "worker"
	ModeSweeper = "sweeper"
)

// Options 应用启动选项
type Options struct {
	Config          *config.Config
	Logger          *zap.SugaredLogger
	Signals         []os.Signal
	ShutdownTimeout time.Duration
	Mode            string
}

// normalizeOptions 补齐默认参数
func normalizeOptions(opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = logger.S()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.Mode == "" {
		opts.Mode = ModeAll
	}
	return opts
}
