package worker

import (
	"context"

	"github.com/dujiao-next/voucher/internal/logger"
	"github.com/dujiao-next/voucher/internal/provider"
	"github.com/dujiao-next/voucher/internal/queue"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskVoucherReservationExpire, c.handleVoucherReservationExpire)
	mux.HandleFunc(queue.TaskVoucherReservationSweep, c.handleVoucherReservationSweep)
}

func (c *Consumer) handleVoucherReservationExpire(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.Container == nil {
		logger.Debugw("worker_voucher_reservation_expire_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseVoucherReservationExpirePayload(task)
	if err != nil {
		logger.Warnw("worker_voucher_reservation_expire_unmarshal_failed", "error", err)
		return err
	}
	if payload.ReservationID == 0 {
		logger.Debugw("worker_voucher_reservation_expire_skip_invalid_payload", "reservation_id", payload.ReservationID)
		return nil
	}
	if c.VoucherReservationService == nil {
		logger.Warnw("worker_voucher_reservation_expire_skip_service_nil", "reservation_id", payload.ReservationID)
		return nil
	}
	freed, err := c.VoucherReservationService.ExpireReservation(ctx, payload.ReservationID)
	if err != nil {
		logger.Warnw("worker_voucher_reservation_expire_failed",
			"reservation_id", payload.ReservationID,
			"voucher_id", payload.VoucherID,
			"error", err,
		)
		return err
	}
	if !freed {
		logger.Debugw("worker_voucher_reservation_expire_skip_not_expired", "reservation_id", payload.ReservationID)
	}
	return nil
}

func (c *Consumer) handleVoucherReservationSweep(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.Container == nil || c.VoucherReservationService == nil {
		logger.Debugw("worker_voucher_reservation_sweep_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseVoucherReservationSweepPayload(task)
	if err != nil {
		logger.Warnw("worker_voucher_reservation_sweep_unmarshal_failed", "error", err)
		return err
	}
	if payload.VoucherID == 0 {
		_, err = c.VoucherReservationService.SweepExpired(ctx)
	} else {
		_, err = c.VoucherReservationService.SweepExpiredForVoucher(ctx, payload.VoucherID)
	}
	if err != nil {
		logger.Warnw("worker_voucher_reservation_sweep_failed", "voucher_id", payload.VoucherID, "error", err)
	}
	return err
}
