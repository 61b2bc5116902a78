package service

import (
	"strings"
	"time"

	"github.com/dujiao-next/voucher/internal/constants"
	"github.com/dujiao-next/voucher/internal/models"

	"github.com/shopspring/decimal"
)

// EvaluationResult 优惠券校验结果
type EvaluationResult struct {
	Verdict        constants.Verdict
	DiscountAmount models.Money
	Voucher        *models.Voucher
}

// Valid 是否校验通过
func (r EvaluationResult) Valid() bool {
	return r.Verdict.IsValid()
}

func rejected(verdict constants.Verdict, voucher *models.Voucher) EvaluationResult {
	return EvaluationResult{Verdict: verdict, Voucher: voucher}
}

// EvaluateVoucher 按固定顺序校验优惠券，第一个不满足的条件即为结论。
// 纯函数：不读写存储，Evaluate、Reserve、Finalize 共用同一套规则。
// grant 为该用户的发放记录（可为 nil），today 需已换算到业务时区。
func EvaluateVoucher(voucher *models.Voucher, grant *models.VoucherGrant, orderAmount models.Money, userID uint, today time.Time) EvaluationResult {
	if voucher == nil || voucher.IsDeleted() {
		return rejected(constants.VerdictNotFound, nil)
	}
	if !voucher.IsActive {
		return rejected(constants.VerdictInactive, voucher)
	}
	day := civilDay(today)
	if civilDay(voucher.ValidFrom.UTC()) > day {
		return rejected(constants.VerdictNotYetValid, voucher)
	}
	if civilDay(voucher.ValidTo.UTC()) < day {
		return rejected(constants.VerdictExpired, voucher)
	}
	if voucher.IsLimited() && voucher.UsedCount >= *voucher.UsageLimit {
		return rejected(constants.VerdictUsageExhausted, voucher)
	}
	if voucher.IsRestricted {
		// 未知身份不做任何兜底，直接视为未获发放
		if userID == 0 || grant == nil || grant.UserID != userID {
			return rejected(constants.VerdictRestrictedNotGranted, voucher)
		}
		if grant.IsUsed {
			return rejected(constants.VerdictRestrictedAlreadyUsed, voucher)
		}
	} else if userID != 0 && grant != nil && grant.UserID == userID && grant.IsUsed {
		return rejected(constants.VerdictPublicAlreadyUsedByUser, voucher)
	}

	return EvaluationResult{
		Verdict:        constants.VerdictValid,
		DiscountAmount: CalculateDiscount(voucher, orderAmount),
		Voucher:        voucher,
	}
}

// CalculateDiscount 计算优惠金额，结果不超过订单金额
func CalculateDiscount(voucher *models.Voucher, orderAmount models.Money) models.Money {
	if voucher == nil || !orderAmount.IsPositive() || !voucher.DiscountValue.IsPositive() {
		return models.Money{}
	}
	switch strings.ToLower(strings.TrimSpace(voucher.DiscountKind)) {
	case constants.DiscountKindFixed:
		return models.MinMoney(voucher.DiscountValue, orderAmount)
	case constants.DiscountKindPercent:
		percent := voucher.DiscountValue.Decimal.Div(decimal.NewFromInt(100))
		discount := models.NewMoneyFromDecimal(orderAmount.Decimal.Mul(percent))
		return models.MinMoney(discount, orderAmount)
	default:
		return models.Money{}
	}
}

// NeedsLock 剩余次数不超过阈值时需要独占预占；不限量的优惠券永远不需要
func NeedsLock(usageLimit *int, usedCount int, threshold int) bool {
	if usageLimit == nil {
		return false
	}
	return *usageLimit-usedCount <= threshold
}

// civilDay 取日历日期（yyyymmdd），不做时区换算
func civilDay(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// DateOnly 截取日历日期，统一存储为 UTC 零点
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
