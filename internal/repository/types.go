package repository

import "time"

// VoucherListFilter 查询优惠券列表的过滤条件
type VoucherListFilter struct {
	Page           int
	PageSize       int
	Code           string
	IsActive       *bool
	IsRestricted   *bool
	IncludeDeleted bool
	ValidOn        *time.Time
}

// VoucherRedemptionListFilter 查询核销记录列表的过滤条件
type VoucherRedemptionListFilter struct {
	Page         int
	PageSize     int
	VoucherID    uint
	UserID       uint
	RedeemedFrom *time.Time
	RedeemedTo   *time.Time
}
