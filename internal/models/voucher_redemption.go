package models

import "time"

// VoucherRedemption 优惠券核销记录，每个结账会话最多一条
type VoucherRedemption struct {
	ID             uint      `gorm:"primarykey" json:"id"`                                         // 主键
	VoucherID      uint      `gorm:"index;not null" json:"voucher_id"`                             // 优惠券ID
	SessionID      string    `gorm:"uniqueIndex;size:128;not null" json:"session_id"`              // 结账会话ID
	UserID         uint      `gorm:"index;not null;default:0" json:"user_id"`                      // 用户ID
	ReservationID  *uint     `gorm:"index" json:"reservation_id"`                                  // 关联预占
	OrderAmount    Money     `gorm:"type:decimal(20,2);not null;default:0" json:"order_amount"`    // 订单金额
	DiscountAmount Money     `gorm:"type:decimal(20,2);not null;default:0" json:"discount_amount"` // 优惠金额
	RedeemedAt     time.Time `gorm:"index;not null" json:"redeemed_at"`                            // 核销时间
	CreatedAt      time.Time `json:"created_at"`                                                   // 创建时间
}

// TableName 指定表名
func (VoucherRedemption) TableName() string {
	return "voucher_redemptions"
}
