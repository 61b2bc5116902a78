package repository

import (
	"context"
	"errors"

	"github.com/dujiao-next/voucher/internal/models"

	"gorm.io/gorm"
)

// VoucherRedemptionRepository 核销记录数据访问接口
type VoucherRedemptionRepository interface {
	Create(redemption *models.VoucherRedemption) error
	GetBySession(sessionID string) (*models.VoucherRedemption, error)
	CountByVoucher(voucherID uint) (int64, error)
	List(filter VoucherRedemptionListFilter) ([]models.VoucherRedemption, int64, error)
	WithTx(tx *gorm.DB) *GormVoucherRedemptionRepository
	WithContext(ctx context.Context) *GormVoucherRedemptionRepository
}

// GormVoucherRedemptionRepository GORM 实现
type GormVoucherRedemptionRepository struct {
	db *gorm.DB
}

// NewVoucherRedemptionRepository 创建核销记录仓库
func NewVoucherRedemptionRepository(db *gorm.DB) *GormVoucherRedemptionRepository {
	return &GormVoucherRedemptionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormVoucherRedemptionRepository) WithTx(tx *gorm.DB) *GormVoucherRedemptionRepository {
	if tx == nil {
		return r
	}
	return &GormVoucherRedemptionRepository{db: tx}
}

// WithContext 绑定上下文
func (r *GormVoucherRedemptionRepository) WithContext(ctx context.Context) *GormVoucherRedemptionRepository {
	if ctx == nil {
		return r
	}
	return &GormVoucherRedemptionRepository{db: r.db.WithContext(ctx)}
}

// Create 创建核销记录，同一会话重复核销返回唯一约束错误
func (r *GormVoucherRedemptionRepository) Create(redemption *models.VoucherRedemption) error {
	return r.db.Create(redemption).Error
}

// GetBySession 获取会话的核销记录
func (r *GormVoucherRedemptionRepository) GetBySession(sessionID string) (*models.VoucherRedemption, error) {
	if sessionID == "" {
		return nil, nil
	}
	var redemption models.VoucherRedemption
	if err := r.db.Where("session_id = ?", sessionID).First(&redemption).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &redemption, nil
}

// CountByVoucher 统计优惠券核销次数
func (r *GormVoucherRedemptionRepository) CountByVoucher(voucherID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&models.VoucherRedemption{}).
		Where("voucher_id = ?", voucherID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// List 获取核销记录列表
func (r *GormVoucherRedemptionRepository) List(filter VoucherRedemptionListFilter) ([]models.VoucherRedemption, int64, error) {
	query := r.db.Model(&models.VoucherRedemption{})
	if filter.VoucherID > 0 {
		query = query.Where("voucher_id = ?", filter.VoucherID)
	}
	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.RedeemedFrom != nil {
		query = query.Where("redeemed_at >= ?", *filter.RedeemedFrom)
	}
	if filter.RedeemedTo != nil {
		query = query.Where("redeemed_at <= ?", *filter.RedeemedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var redemptions []models.VoucherRedemption
	if err := query.Order("id desc").Find(&redemptions).Error; err != nil {
		return nil, 0, err
	}
	return redemptions, total, nil
}
