package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Voucher 优惠券
type Voucher struct {
	ID            uint           `gorm:"primarykey" json:"id"`                                  // 主键
	Code          string         `gorm:"uniqueIndex;size:64;not null" json:"code"`              // 优惠码（统一大写）
	Description   string         `gorm:"type:text" json:"description"`                          // 描述
	DiscountKind  string         `gorm:"size:16;not null" json:"discount_kind"`                 // 类型（fixed/percent）
	DiscountValue Money          `gorm:"type:decimal(20,2);not null" json:"discount_value"`     // 数值（固定金额或百分比）
	ValidFrom     time.Time      `gorm:"index;not null" json:"valid_from"`                      // 生效日期（含）
	ValidTo       time.Time      `gorm:"index;not null" json:"valid_to"`                        // 失效日期（含）
	UsageLimit    *int           `json:"usage_limit"`                                           // 总使用上限（NULL 表示不限制）
	UsedCount     int            `gorm:"not null;default:0" json:"used_count"`                  // 已使用次数
	IsActive      bool           `gorm:"not null" json:"is_active"`                             // 是否启用
	IsRestricted  bool           `gorm:"not null;default:false" json:"is_restricted"`           // 是否仅限定向发放用户
	CreatedBy     uint           `gorm:"index;not null;default:0" json:"created_by"`            // 发行人
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`                               // 创建时间
	UpdatedAt     time.Time      `gorm:"index" json:"updated_at"`                               // 更新时间
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`                                        // 软删除时间
}

// TableName 指定表名
func (Voucher) TableName() string {
	return "vouchers"
}

// IsDeleted 是否已软删除
func (v *Voucher) IsDeleted() bool {
	return v != nil && v.DeletedAt.Valid
}

// IsLimited 是否设置了使用上限
func (v *Voucher) IsLimited() bool {
	return v != nil && v.UsageLimit != nil
}

// NormalizeVoucherCode 规范化优惠码
func NormalizeVoucherCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
