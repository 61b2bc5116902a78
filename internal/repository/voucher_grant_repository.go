package repository

import (
	"context"
	"errors"
	"time"

	"github.com/dujiao-next/voucher/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VoucherGrantRepository 优惠券发放记录数据访问接口
type VoucherGrantRepository interface {
	Get(voucherID, userID uint) (*models.VoucherGrant, error)
	Create(grant *models.VoucherGrant) error
	CreateIgnoreDuplicates(grants []models.VoucherGrant) (int64, error)
	MarkUsed(voucherID, userID uint, usedAt time.Time) (int64, error)
	CountByVoucher(voucherID uint) (int64, error)
	WithTx(tx *gorm.DB) *GormVoucherGrantRepository
	WithContext(ctx context.Context) *GormVoucherGrantRepository
}

// GormVoucherGrantRepository GORM 实现
type GormVoucherGrantRepository struct {
	db *gorm.DB
}

// NewVoucherGrantRepository 创建发放记录仓库
func NewVoucherGrantRepository(db *gorm.DB) *GormVoucherGrantRepository {
	return &GormVoucherGrantRepository{db: db}
}

// WithTx 绑定事务
func (r *GormVoucherGrantRepository) WithTx(tx *gorm.DB) *GormVoucherGrantRepository {
	if tx == nil {
		return r
	}
	return &GormVoucherGrantRepository{db: tx}
}

// WithContext 绑定上下文
func (r *GormVoucherGrantRepository) WithContext(ctx context.Context) *GormVoucherGrantRepository {
	if ctx == nil {
		return r
	}
	return &GormVoucherGrantRepository{db: r.db.WithContext(ctx)}
}

// Get 获取用户的发放记录
func (r *GormVoucherGrantRepository) Get(voucherID, userID uint) (*models.VoucherGrant, error) {
	if voucherID == 0 || userID == 0 {
		return nil, nil
	}
	var grant models.VoucherGrant
	if err := r.db.Where("voucher_id = ? AND user_id = ?", voucherID, userID).First(&grant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

// Create 创建发放记录，(voucher_id, user_id) 重复时返回唯一约束错误
func (r *GormVoucherGrantRepository) Create(grant *models.VoucherGrant) error {
	return r.db.Create(grant).Error
}

// CreateIgnoreDuplicates 批量发放，已存在的记录保持不变
func (r *GormVoucherGrantRepository) CreateIgnoreDuplicates(grants []models.VoucherGrant) (int64, error) {
	if len(grants) == 0 {
		return 0, nil
	}
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "voucher_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&grants)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// MarkUsed 将未使用的发放记录标记为已使用，返回受影响行数
func (r *GormVoucherGrantRepository) MarkUsed(voucherID, userID uint, usedAt time.Time) (int64, error) {
	result := r.db.Model(&models.VoucherGrant{}).
		Where("voucher_id = ? AND user_id = ? AND is_used = ?", voucherID, userID, false).
		Updates(map[string]interface{}{
			"is_used":    true,
			"used_at":    usedAt,
			"updated_at": usedAt,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CountByVoucher 统计优惠券的发放记录数
func (r *GormVoucherGrantRepository) CountByVoucher(voucherID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&models.VoucherGrant{}).
		Where("voucher_id = ?", voucherID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
