package service

import (
	"time"

	"github.com/dujiao-next/voucher/internal/constants"
)

// VoucherOptions 优惠券引擎的可调参数
type VoucherOptions struct {
	// LockThreshold 剩余次数小于等于该值时 Reserve 需要独占预占，可为 0
	LockThreshold int
	// DefaultHold 调用方未提供会话过期时间时的预占时长
	DefaultHold time.Duration
	// Location 判定生效/失效日期所用的业务时区
	Location *time.Location
	// Now 时钟，测试中可替换
	Now func() time.Time
}

// DefaultVoucherOptions 返回默认参数
func DefaultVoucherOptions() VoucherOptions {
	return VoucherOptions{
		LockThreshold: constants.DefaultLockThreshold,
		DefaultHold:   time.Duration(constants.DefaultHoldMinutes) * time.Minute,
		Location:      time.Local,
		Now:           time.Now,
	}
}

func (o VoucherOptions) normalize() VoucherOptions {
	if o.LockThreshold < 0 {
		o.LockThreshold = constants.DefaultLockThreshold
	}
	if o.DefaultHold <= 0 {
		o.DefaultHold = time.Duration(constants.DefaultHoldMinutes) * time.Minute
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// now 统一使用 UTC，保证存储层的时间比较一致
func (o VoucherOptions) now() time.Time {
	return o.Now().UTC()
}

func (o VoucherOptions) today(now time.Time) time.Time {
	return now.In(o.Location)
}
