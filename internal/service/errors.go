package service

import (
	"errors"
	"fmt"
)

// 参数与管理类错误；业务校验结果通过 constants.Verdict 返回，不走 error
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrVoucherInvalid      = errors.New("voucher invalid")
	ErrVoucherCodeExists   = errors.New("voucher code already exists")
	ErrVoucherNotFound     = errors.New("voucher not found")
	ErrVoucherLocked       = errors.New("voucher has redemption history, structural fields are locked")
	ErrVoucherUpdateFailed = errors.New("voucher update failed")
	ErrVoucherDeleteFailed = errors.New("voucher delete failed")
	ErrVoucherGrantFailed  = errors.New("voucher grant failed")
	ErrVoucherStore        = errors.New("voucher store unavailable")
)

// storeError 包装存储层故障，保留原始错误链以便调用方区分冲突类型
func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrVoucherStore, err)
}
