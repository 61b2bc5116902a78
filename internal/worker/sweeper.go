package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dujiao-next/voucher/internal/logger"
	"github.com/dujiao-next/voucher/internal/queue"
	"github.com/dujiao-next/voucher/internal/service"

	"github.com/hibiken/asynq"
)

// reservationSweeper 过期预占清理
type reservationSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// sweepPublisher 通过队列分发清理任务，多实例部署时同一周期只执行一次
type sweepPublisher interface {
	Enabled() bool
	EnqueueVoucherReservationSweep(payload queue.VoucherReservationSweepPayload, opts ...asynq.Option) error
}

// SweeperService 定时让出过期预占的槽位
// 读路径按时间判断过期，不依赖本服务；它只负责回收槽位，队列关闭时也可以单独运行。
type SweeperService struct {
	name      string
	sweeper   reservationSweeper
	publisher sweepPublisher
	interval  time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

// NewSweeperService 创建清理服务；publisher 为 nil 或队列未启用时在本进程直接清理
func NewSweeperService(reservations *service.VoucherReservationService, publisher *queue.Client, interval time.Duration) (*SweeperService, error) {
	if reservations == nil {
		return nil, errors.New("reservation service is nil")
	}
	svc := newSweeperService(reservations, interval)
	if publisher != nil {
		svc.publisher = publisher
	}
	return svc, nil
}

func newSweeperService(sweeper reservationSweeper, interval time.Duration) *SweeperService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SweeperService{
		name:     "voucher_sweeper",
		sweeper:  sweeper,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Name 服务名称
func (s *SweeperService) Name() string {
	if s == nil || s.name == "" {
		return "voucher_sweeper"
	}
	return s.name
}

// Start 启动清理循环，直到 ctx 结束或 Stop 被调用
func (s *SweeperService) Start(ctx context.Context) error {
	if s == nil || s.sweeper == nil {
		return errors.New("sweeper not initialized")
	}
	runOnce := func() {
		if s.publish() {
			return
		}
		if _, err := s.sweeper.SweepExpired(ctx); err != nil && ctx.Err() == nil {
			logger.Warnw("worker_voucher_sweep_failed", "error", err)
		}
	}
	runOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-ticker.C:
			runOnce()
		}
	}
}

// publish 投递清理任务，返回 false 时由本进程直接清理
func (s *SweeperService) publish() bool {
	if s.publisher == nil || !s.publisher.Enabled() {
		return false
	}
	unique := s.interval
	if unique < time.Second {
		unique = time.Second
	}
	err := s.publisher.EnqueueVoucherReservationSweep(queue.VoucherReservationSweepPayload{}, asynq.Unique(unique))
	if err == nil || errors.Is(err, asynq.ErrDuplicateTask) {
		return true
	}
	logger.Warnw("worker_voucher_sweep_enqueue_failed", "error", err)
	return false
}

// Stop 停止清理循环
func (s *SweeperService) Stop(ctx context.Context) error {
	if s == nil || s.done == nil {
		return nil
	}
	s.stopOnce.Do(func() {
		close(s.done)
	})
	return nil
}
