package queue

import (
	"encoding/json"

	"github.com/dujiao-next/voucher/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskVoucherReservationExpire 预占到期释放任务
	TaskVoucherReservationExpire = constants.TaskVoucherReservationExpire
	// TaskVoucherReservationSweep 过期预占清理任务
	TaskVoucherReservationSweep = constants.TaskVoucherReservationSweep
)

// VoucherReservationExpirePayload 预占到期任务载荷
type VoucherReservationExpirePayload struct {
	ReservationID uint `json:"reservation_id"`
	VoucherID     uint `json:"voucher_id"`
}

// VoucherReservationSweepPayload 清理任务载荷，VoucherID 为 0 表示全部优惠券
type VoucherReservationSweepPayload struct {
	VoucherID uint `json:"voucher_id,omitempty"`
}

// NewVoucherReservationExpireTask 创建预占到期任务
func NewVoucherReservationExpireTask(payload VoucherReservationExpirePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVoucherReservationExpire, body), nil
}

// NewVoucherReservationSweepTask 创建清理任务
func NewVoucherReservationSweepTask(payload VoucherReservationSweepPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVoucherReservationSweep, body), nil
}

// ParseVoucherReservationExpirePayload 解析预占到期任务载荷
func ParseVoucherReservationExpirePayload(task *asynq.Task) (VoucherReservationExpirePayload, error) {
	var payload VoucherReservationExpirePayload
	if task == nil {
		return payload, nil
	}
	err := json.Unmarshal(task.Payload(), &payload)
	return payload, err
}

// ParseVoucherReservationSweepPayload 解析清理任务载荷，空载荷视为全量清理
func ParseVoucherReservationSweepPayload(task *asynq.Task) (VoucherReservationSweepPayload, error) {
	var payload VoucherReservationSweepPayload
	if task == nil || len(task.Payload()) == 0 {
		return payload, nil
	}
	err := json.Unmarshal(task.Payload(), &payload)
	return payload, err
}
