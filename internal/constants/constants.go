package constants

// Verdict 优惠券校验结论
type Verdict string

// 校验结论常量（业务结果，不作为 error 返回）
const (
	VerdictValid                   Verdict = "valid"
	VerdictNotFound                Verdict = "not_found"
	VerdictInactive                Verdict = "inactive"
	VerdictNotYetValid             Verdict = "not_yet_valid"
	VerdictExpired                 Verdict = "expired"
	VerdictUsageExhausted          Verdict = "usage_exhausted"
	VerdictRestrictedNotGranted    Verdict = "restricted_not_granted"
	VerdictRestrictedAlreadyUsed   Verdict = "restricted_already_used"
	VerdictPublicAlreadyUsedByUser Verdict = "public_already_used_by_user"
	VerdictReservationConflict     Verdict = "reservation_conflict"

	// VerdictFinalizeGuardFailed 核销时条件自增失败，与 usage_exhausted 同义
	VerdictFinalizeGuardFailed = VerdictUsageExhausted
)

// IsValid 是否校验通过
func (v Verdict) IsValid() bool {
	return v == VerdictValid
}

// String 返回结论字符串
func (v Verdict) String() string {
	return string(v)
}

// 优惠类型常量
const (
	DiscountKindFixed   = "fixed"
	DiscountKindPercent = "percent"
)

// 预占相关默认值
const (
	// DefaultLockThreshold 剩余次数小于等于该值时需要独占预占
	DefaultLockThreshold = 1
	// DefaultHoldMinutes 未提供会话过期时间时的默认预占时长
	DefaultHoldMinutes = 15
	// DefaultSweepIntervalSeconds 过期预占清理间隔
	DefaultSweepIntervalSeconds = 60
	// DefaultCatalogCacheTTLSeconds 优惠券目录缓存时间
	DefaultCatalogCacheTTLSeconds = 30
)

// 队列与任务常量
const (
	QueueDefault                 = "default"
	TaskVoucherReservationExpire = "voucher_reservation:expire_release"
	TaskVoucherReservationSweep  = "voucher_reservation:sweep"
)
