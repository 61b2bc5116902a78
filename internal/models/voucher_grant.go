package models

import "time"

// VoucherGrant 优惠券发放/使用记录
// 定向券：记录存在即代表有权使用；公开券：核销时惰性创建，用于每人一次的去重。
type VoucherGrant struct {
	ID        uint       `gorm:"primarykey" json:"id"`
	VoucherID uint       `gorm:"uniqueIndex:idx_voucher_grant_pair;not null" json:"voucher_id"`
	UserID    uint       `gorm:"uniqueIndex:idx_voucher_grant_pair;index;not null" json:"user_id"`
	IsUsed    bool       `gorm:"not null;default:false" json:"is_used"`
	GrantedAt time.Time  `gorm:"not null" json:"granted_at"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (VoucherGrant) TableName() string {
	return "voucher_grants"
}
