package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/dujiao-next/voucher/internal/config"
	"github.com/dujiao-next/voucher/internal/logger"
	"github.com/dujiao-next/voucher/internal/queue"

	"github.com/hibiken/asynq"
)

const voucherWorkerName = "voucher-worker"

// voucherTaskTypes Worker 消费的优惠券任务
var voucherTaskTypes = []string{
	queue.TaskVoucherReservationExpire,
	queue.TaskVoucherReservationSweep,
}

// Service 优惠券预占任务消费服务
type Service struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	queues map[string]int
}

// NewService 创建预占任务消费服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("voucher worker requires queue enabled")
	}
	if consumer == nil || consumer.Container == nil {
		return nil, errors.New("voucher worker consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		server: asynq.NewServer(opt, serverCfg),
		mux:    mux,
		queues: serverCfg.Queues,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	return voucherWorkerName
}

// TaskTypes 已注册的任务类型
func (s *Service) TaskTypes() []string {
	return append([]string(nil), voucherTaskTypes...)
}

// Start 连通队列后阻塞消费，直到 Stop
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("voucher worker not initialized")
	}
	if err := s.server.Ping(); err != nil {
		return fmt.Errorf("voucher worker ping queue: %w", err)
	}
	logger.Infow("worker_voucher_started", "task_types", voucherTaskTypes, "queues", s.queues)
	if err := s.server.Run(s.mux); err != nil {
		return fmt.Errorf("voucher worker run: %w", err)
	}
	return nil
}

// Stop 优雅关闭；ctx 到期时不再等待进行中的任务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	s.server.Stop()
	done := make(chan struct{})
	go func() {
		s.server.Shutdown()
		close(done)
	}()
	select {
	case <-done:
		logger.Infow("worker_voucher_stopped")
		return nil
	case <-ctx.Done():
		logger.Warnw("worker_voucher_stop_timeout", "error", ctx.Err())
		return ctx.Err()
	}
}
