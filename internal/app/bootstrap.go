package app

import (
	"errors"
	"fmt"

	"github.com/dujiao-next/voucher/internal/config"
	"github.com/dujiao-next/voucher/internal/provider"
	"github.com/dujiao-next/voucher/internal/queue"
	"github.com/dujiao-next/voucher/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, *provider.Container, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is nil")
	}
	switch mode {
	case ModeAll, ModeWorker, ModeSweeper:
	default:
		return nil, nil, fmt.Errorf("unknown mode: %s", mode)
	}

	container, err := provider.NewContainer(cfg)
	if err != nil {
		return nil, nil, err
	}

	var services []Service
	runWorker := mode == ModeWorker || (mode == ModeAll && cfg.Queue.Enabled)

	// 初始化 Worker 服务；all 模式下队列关闭时仅运行清理
	if runWorker {
		consumer := worker.NewConsumer(container)
		workerService, err := worker.NewService(&cfg.Queue, consumer)
		if err != nil {
			container.Close()
			return nil, nil, err
		}
		services = append(services, workerService)
	}

	// 初始化过期预占清理
	if mode == ModeAll || mode == ModeSweeper {
		// 同进程有 Worker 时经队列分发清理任务，否则直接清理
		var publisher *queue.Client
		if runWorker {
			publisher = container.QueueClient
		}
		sweeper, err := worker.NewSweeperService(container.VoucherReservationService, publisher, cfg.Voucher.SweepInterval())
		if err != nil {
			container.Close()
			return nil, nil, err
		}
		services = append(services, sweeper)
	}

	if len(services) == 0 {
		container.Close()
		return nil, nil, errors.New("no services initialized (check mode and config)")
	}

	return NewRunner(services...), container, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, container, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}
	defer container.Close()

	opts.Logger.Infow("app_start",
		"mode", opts.Mode,
		"queue_enabled", opts.Config.Queue.Enabled,
		"redis_enabled", opts.Config.Redis.Enabled,
		"lock_threshold", container.Options.LockThreshold,
	)
	return RunWithOptions(runner, opts)
}
