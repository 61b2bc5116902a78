package models

import "time"

// 预占状态
const (
	VoucherReservationStatusActive    = "active"
	VoucherReservationStatusReleased  = "released"
	VoucherReservationStatusExpired   = "expired"
	VoucherReservationStatusFinalized = "finalized"
)

// VoucherReservation 结账会话对稀缺优惠券的独占预占
type VoucherReservation struct {
	ID          uint       `gorm:"primarykey" json:"id"`                            // 主键
	VoucherID   uint       `gorm:"index;not null" json:"voucher_id"`                // 优惠券ID
	SessionID   string     `gorm:"index;size:128;not null" json:"session_id"`       // 结账会话ID
	UserID      uint       `gorm:"index;not null;default:0" json:"user_id"`         // 用户ID（0 表示游客）
	Token       string     `gorm:"uniqueIndex;size:64;not null" json:"token"`       // 预占凭证
	HoldKey     *uint      `gorm:"uniqueIndex" json:"-"`                            // 占用槽位，持有期间等于 voucher_id
	ReservedAt  time.Time  `gorm:"not null" json:"reserved_at"`                     // 预占时间
	ExpiresAt   time.Time  `gorm:"index;not null" json:"expires_at"`                // 过期时间
	ReleasedAt  *time.Time `gorm:"index" json:"released_at"`                        // 释放时间
	FinalizedAt *time.Time `json:"finalized_at"`                                    // 核销时间
	CreatedAt   time.Time  `json:"created_at"`                                      // 创建时间
	UpdatedAt   time.Time  `json:"updated_at"`                                      // 更新时间
}

// TableName 指定表名
func (VoucherReservation) TableName() string {
	return "voucher_reservations"
}

// IsLive 在给定时间点是否仍有效
func (r *VoucherReservation) IsLive(now time.Time) bool {
	return r != nil && r.ReleasedAt == nil && r.ExpiresAt.After(now)
}

// Status 根据时间推导预占状态，过期无需落库
func (r *VoucherReservation) Status(now time.Time) string {
	switch {
	case r == nil:
		return ""
	case r.FinalizedAt != nil:
		return VoucherReservationStatusFinalized
	case r.ReleasedAt != nil:
		return VoucherReservationStatusReleased
	case !r.ExpiresAt.After(now):
		return VoucherReservationStatusExpired
	default:
		return VoucherReservationStatusActive
	}
}
