package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/voucher/internal/constants"
	"github.com/dujiao-next/voucher/internal/logger"
	"github.com/dujiao-next/voucher/internal/models"
	"github.com/dujiao-next/voucher/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const maxVoucherCodeLength = 64

// VoucherAdminService 优惠券管理服务
type VoucherAdminService struct {
	db              *gorm.DB
	catalog         *VoucherCatalog
	repo            repository.VoucherRepository
	grantRepo       repository.VoucherGrantRepository
	reservationRepo repository.VoucherReservationRepository
	redemptionRepo  repository.VoucherRedemptionRepository
	opts            VoucherOptions
}

// NewVoucherAdminService 创建优惠券管理服务
func NewVoucherAdminService(
	db *gorm.DB,
	catalog *VoucherCatalog,
	repo repository.VoucherRepository,
	grantRepo repository.VoucherGrantRepository,
	reservationRepo repository.VoucherReservationRepository,
	redemptionRepo repository.VoucherRedemptionRepository,
	opts VoucherOptions,
) *VoucherAdminService {
	return &VoucherAdminService{
		db:              db,
		catalog:         catalog,
		repo:            repo,
		grantRepo:       grantRepo,
		reservationRepo: reservationRepo,
		redemptionRepo:  redemptionRepo,
		opts:            opts.normalize(),
	}
}

// CreateVoucherInput 创建优惠券输入
type CreateVoucherInput struct {
	Code          string
	Description   string
	DiscountKind  string
	DiscountValue models.Money
	ValidFrom     time.Time
	ValidTo       time.Time
	UsageLimit    *int
	IsActive      *bool
	IsRestricted  bool
	CreatedBy     uint
}

// UpdateVoucherInput 更新优惠券输入，nil 字段保持不变
type UpdateVoucherInput struct {
	Code          *string
	Description   *string
	DiscountKind  *string
	DiscountValue *models.Money
	ValidFrom     *time.Time
	ValidTo       *time.Time
	UsageLimit    *int
	ClearLimit    bool
	IsActive      *bool
	IsRestricted  *bool
}

// Create 创建优惠券
func (s *VoucherAdminService) Create(ctx context.Context, input CreateVoucherInput) (*models.Voucher, error) {
	code := models.NormalizeVoucherCode(input.Code)
	if code == "" || len(code) > maxVoucherCodeLength {
		return nil, ErrVoucherInvalid
	}
	kind := strings.ToLower(strings.TrimSpace(input.DiscountKind))
	if err := validateDiscount(kind, input.DiscountValue); err != nil {
		return nil, err
	}
	if input.ValidFrom.IsZero() || input.ValidTo.IsZero() {
		return nil, ErrVoucherInvalid
	}
	validFrom := DateOnly(input.ValidFrom)
	validTo := DateOnly(input.ValidTo)
	if validTo.Before(validFrom) {
		return nil, ErrVoucherInvalid
	}
	if input.UsageLimit != nil && *input.UsageLimit < 0 {
		return nil, ErrVoucherInvalid
	}

	repo := s.repo.WithContext(ctx)
	exists, err := repo.CodeExists(code, 0)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrVoucherCodeExists
	}

	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}
	voucher := &models.Voucher{
		Code:          code,
		Description:   strings.TrimSpace(input.Description),
		DiscountKind:  kind,
		DiscountValue: models.NewMoneyFromDecimal(input.DiscountValue.Decimal),
		ValidFrom:     validFrom,
		ValidTo:       validTo,
		UsageLimit:    copyIntPtr(input.UsageLimit),
		UsedCount:     0,
		IsActive:      isActive,
		IsRestricted:  input.IsRestricted,
		CreatedBy:     input.CreatedBy,
	}
	if err := repo.Create(voucher); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrVoucherCodeExists
		}
		return nil, err
	}
	logger.Infow("voucher_created", "voucher_id", voucher.ID, "code", voucher.Code, "created_by", voucher.CreatedBy)
	return voucher, nil
}

// Update 更新优惠券
// 一旦产生过发放或核销，优惠码、优惠类型与数值、生效日期、定向标记不可再修改；
// 失效日期、描述、使用上限与启用状态仍可调整。
func (s *VoucherAdminService) Update(ctx context.Context, id uint, input UpdateVoucherInput) (*models.Voucher, error) {
	if id == 0 {
		return nil, ErrVoucherInvalid
	}
	repo := s.repo.WithContext(ctx)
	existing, err := repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrVoucherNotFound
	}
	previousCode := existing.Code

	structural := false
	code := existing.Code
	if input.Code != nil {
		code = models.NormalizeVoucherCode(*input.Code)
		if code == "" || len(code) > maxVoucherCodeLength {
			return nil, ErrVoucherInvalid
		}
		structural = structural || code != existing.Code
	}
	kind := existing.DiscountKind
	if input.DiscountKind != nil {
		kind = strings.ToLower(strings.TrimSpace(*input.DiscountKind))
		structural = structural || kind != existing.DiscountKind
	}
	value := existing.DiscountValue
	if input.DiscountValue != nil {
		value = models.NewMoneyFromDecimal(input.DiscountValue.Decimal)
		structural = structural || !value.Decimal.Equal(existing.DiscountValue.Decimal)
	}
	validFrom := existing.ValidFrom
	if input.ValidFrom != nil {
		validFrom = DateOnly(*input.ValidFrom)
		structural = structural || civilDay(validFrom) != civilDay(existing.ValidFrom.UTC())
	}
	isRestricted := existing.IsRestricted
	if input.IsRestricted != nil {
		isRestricted = *input.IsRestricted
		structural = structural || isRestricted != existing.IsRestricted
	}

	if structural {
		hasHistory, err := s.HasHistory(ctx, existing)
		if err != nil {
			return nil, err
		}
		if hasHistory {
			return nil, ErrVoucherLocked
		}
	}

	if err := validateDiscount(kind, value); err != nil {
		return nil, err
	}
	validTo := existing.ValidTo
	if input.ValidTo != nil {
		validTo = DateOnly(*input.ValidTo)
	}
	if civilDay(validTo.UTC()) < civilDay(validFrom.UTC()) {
		return nil, ErrVoucherInvalid
	}

	usageLimit := existing.UsageLimit
	switch {
	case input.ClearLimit:
		usageLimit = nil
	case input.UsageLimit != nil:
		// 上限不能低于已使用次数
		if *input.UsageLimit < 0 || *input.UsageLimit < existing.UsedCount {
			return nil, ErrVoucherInvalid
		}
		usageLimit = copyIntPtr(input.UsageLimit)
	}

	if code != existing.Code {
		dup, err := repo.CodeExists(code, existing.ID)
		if err != nil {
			return nil, err
		}
		if dup {
			return nil, ErrVoucherCodeExists
		}
	}

	existing.Code = code
	existing.DiscountKind = kind
	existing.DiscountValue = value
	existing.ValidFrom = validFrom
	existing.ValidTo = validTo
	existing.UsageLimit = usageLimit
	existing.IsRestricted = isRestricted
	if input.Description != nil {
		existing.Description = strings.TrimSpace(*input.Description)
	}
	if input.IsActive != nil {
		existing.IsActive = *input.IsActive
	}

	existing.UpdatedAt = s.opts.now()

	// 读取之后可能有核销提交，计数约束交给条件更新判断
	affected, err := repo.UpdateEditable(existing, structural)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrVoucherCodeExists
		}
		logger.Warnw("voucher_update_failed", "voucher_id", existing.ID, "error", err)
		return nil, ErrVoucherUpdateFailed
	}
	current, err := repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		switch {
		case current == nil:
			return nil, ErrVoucherNotFound
		case structural && current.UsedCount > 0:
			return nil, ErrVoucherLocked
		default:
			return nil, ErrVoucherInvalid
		}
	}
	s.catalog.Invalidate(ctx, previousCode)
	s.catalog.Invalidate(ctx, code)
	if current == nil {
		return nil, ErrVoucherNotFound
	}
	return current, nil
}

// Delete 删除优惠券：存在发放、预占或核销历史时软删除，否则物理删除
func (s *VoucherAdminService) Delete(ctx context.Context, id uint) error {
	if id == 0 {
		return ErrVoucherInvalid
	}
	repo := s.repo.WithContext(ctx)
	existing, err := repo.GetByID(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrVoucherNotFound
	}
	hasHistory, err := s.HasHistory(ctx, existing)
	if err != nil {
		return err
	}
	if hasHistory {
		err = repo.SoftDelete(id)
	} else {
		err = repo.HardDelete(id)
	}
	if err != nil {
		logger.Warnw("voucher_delete_failed", "voucher_id", id, "soft", hasHistory, "error", err)
		return ErrVoucherDeleteFailed
	}
	s.catalog.Invalidate(ctx, existing.Code)
	logger.Infow("voucher_deleted", "voucher_id", id, "code", existing.Code, "soft", hasHistory)
	return nil
}

// Get 获取优惠券
func (s *VoucherAdminService) Get(ctx context.Context, id uint) (*models.Voucher, error) {
	voucher, err := s.repo.WithContext(ctx).GetByID(id)
	if err != nil {
		return nil, err
	}
	if voucher == nil {
		return nil, ErrVoucherNotFound
	}
	return voucher, nil
}

// List 获取优惠券列表
func (s *VoucherAdminService) List(ctx context.Context, filter repository.VoucherListFilter) ([]models.Voucher, int64, error) {
	return s.repo.WithContext(ctx).List(filter)
}

// ListRedemptions 获取核销记录
func (s *VoucherAdminService) ListRedemptions(ctx context.Context, filter repository.VoucherRedemptionListFilter) ([]models.VoucherRedemption, int64, error) {
	return s.redemptionRepo.WithContext(ctx).List(filter)
}

// GrantToUsers 向用户定向发放优惠券，已发放的用户保持不变，返回新增数量
func (s *VoucherAdminService) GrantToUsers(ctx context.Context, voucherID uint, userIDs []uint) (int64, error) {
	if voucherID == 0 || len(userIDs) == 0 {
		return 0, ErrInvalidArgument
	}
	voucher, err := s.repo.WithContext(ctx).GetByID(voucherID)
	if err != nil {
		return 0, err
	}
	if voucher == nil {
		return 0, ErrVoucherNotFound
	}

	now := s.opts.now()
	seen := make(map[uint]struct{}, len(userIDs))
	grants := make([]models.VoucherGrant, 0, len(userIDs))
	for _, userID := range userIDs {
		if userID == 0 {
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		grants = append(grants, models.VoucherGrant{
			VoucherID: voucherID,
			UserID:    userID,
			GrantedAt: now,
		})
	}
	if len(grants) == 0 {
		return 0, ErrInvalidArgument
	}

	created, err := s.grantRepo.WithContext(ctx).CreateIgnoreDuplicates(grants)
	if err != nil {
		logger.Warnw("voucher_grant_failed", "voucher_id", voucherID, "error", err)
		return 0, fmt.Errorf("%w: %v", ErrVoucherGrantFailed, err)
	}
	logger.Infow("voucher_granted", "voucher_id", voucherID, "requested", len(grants), "created", created)
	return created, nil
}

// HasHistory 是否已有发放、预占、使用或核销记录
func (s *VoucherAdminService) HasHistory(ctx context.Context, voucher *models.Voucher) (bool, error) {
	if voucher == nil {
		return false, nil
	}
	if voucher.UsedCount > 0 {
		return true, nil
	}
	grants, err := s.grantRepo.WithContext(ctx).CountByVoucher(voucher.ID)
	if err != nil {
		return false, err
	}
	if grants > 0 {
		return true, nil
	}
	reservations, err := s.reservationRepo.WithContext(ctx).CountByVoucher(voucher.ID)
	if err != nil {
		return false, err
	}
	if reservations > 0 {
		return true, nil
	}
	redemptions, err := s.redemptionRepo.WithContext(ctx).CountByVoucher(voucher.ID)
	if err != nil {
		return false, err
	}
	return redemptions > 0, nil
}

func validateDiscount(kind string, value models.Money) error {
	switch kind {
	case constants.DiscountKindFixed:
	case constants.DiscountKindPercent:
		if value.Decimal.GreaterThan(decimal.NewFromInt(100)) {
			return ErrVoucherInvalid
		}
	default:
		return ErrVoucherInvalid
	}
	if value.Decimal.LessThanOrEqual(decimal.Zero) {
		return ErrVoucherInvalid
	}
	return nil
}

func copyIntPtr(v *int) *int {
	if v == nil {
		return nil
	}
	copied := *v
	return &copied
}
