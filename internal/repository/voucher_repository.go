package repository

import (
	"context"
	"errors"

	"github.com/dujiao-next/voucher/internal/models"

	"gorm.io/gorm"
)

// VoucherRepository 优惠券数据访问接口
type VoucherRepository interface {
	GetByID(id uint) (*models.Voucher, error)
	GetByIDUnscoped(id uint) (*models.Voucher, error)
	GetByCode(code string) (*models.Voucher, error)
	CodeExists(code string, excludeID uint) (bool, error)
	Create(voucher *models.Voucher) error
	UpdateEditable(voucher *models.Voucher, requireUnused bool) (int64, error)
	SoftDelete(id uint) error
	HardDelete(id uint) error
	List(filter VoucherListFilter) ([]models.Voucher, int64, error)
	IncrementUsedCountGuarded(id uint) (int64, error)
	WithTx(tx *gorm.DB) *GormVoucherRepository
	WithContext(ctx context.Context) *GormVoucherRepository
}

// GormVoucherRepository GORM 实现
type GormVoucherRepository struct {
	db *gorm.DB
}

// NewVoucherRepository 创建优惠券仓库
func NewVoucherRepository(db *gorm.DB) *GormVoucherRepository {
	return &GormVoucherRepository{db: db}
}

// WithTx 绑定事务
func (r *GormVoucherRepository) WithTx(tx *gorm.DB) *GormVoucherRepository {
	if tx == nil {
		return r
	}
	return &GormVoucherRepository{db: tx}
}

// WithContext 绑定上下文
func (r *GormVoucherRepository) WithContext(ctx context.Context) *GormVoucherRepository {
	if ctx == nil {
		return r
	}
	return &GormVoucherRepository{db: r.db.WithContext(ctx)}
}

// GetByID 根据ID获取优惠券（不含已删除）
func (r *GormVoucherRepository) GetByID(id uint) (*models.Voucher, error) {
	if id == 0 {
		return nil, nil
	}
	var voucher models.Voucher
	if err := r.db.First(&voucher, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

// GetByIDUnscoped 根据ID获取优惠券（含已删除）
func (r *GormVoucherRepository) GetByIDUnscoped(id uint) (*models.Voucher, error) {
	if id == 0 {
		return nil, nil
	}
	var voucher models.Voucher
	if err := r.db.Unscoped().First(&voucher, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

// GetByCode 根据优惠码获取优惠券，软删除的记录视为不存在
func (r *GormVoucherRepository) GetByCode(code string) (*models.Voucher, error) {
	normalized := models.NormalizeVoucherCode(code)
	if normalized == "" {
		return nil, nil
	}
	var voucher models.Voucher
	if err := r.db.Where("code = ?", normalized).First(&voucher).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

// CodeExists 判断优惠码是否已被占用（含已删除记录，唯一索引同样覆盖它们）
func (r *GormVoucherRepository) CodeExists(code string, excludeID uint) (bool, error) {
	query := r.db.Unscoped().Model(&models.Voucher{}).Where("code = ?", models.NormalizeVoucherCode(code))
	if excludeID > 0 {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create 创建优惠券
func (r *GormVoucherRepository) Create(voucher *models.Voucher) error {
	return r.db.Create(voucher).Error
}

// UpdateEditable 只写入可编辑字段，不触碰 used_count。
// 设置上限时要求 used_count 不超过新上限；requireUnused 要求 used_count 仍为 0。
// 返回受影响行数，0 表示记录不存在或条件不满足。
func (r *GormVoucherRepository) UpdateEditable(voucher *models.Voucher, requireUnused bool) (int64, error) {
	if voucher == nil || voucher.ID == 0 {
		return 0, nil
	}
	query := r.db.Model(&models.Voucher{}).Where("id = ?", voucher.ID)
	if voucher.UsageLimit != nil {
		query = query.Where("used_count <= ?", *voucher.UsageLimit)
	}
	if requireUnused {
		query = query.Where("used_count = 0")
	}
	result := query.Updates(map[string]interface{}{
		"code":           voucher.Code,
		"description":    voucher.Description,
		"discount_kind":  voucher.DiscountKind,
		"discount_value": voucher.DiscountValue,
		"valid_from":     voucher.ValidFrom,
		"valid_to":       voucher.ValidTo,
		"usage_limit":    voucher.UsageLimit,
		"is_active":      voucher.IsActive,
		"is_restricted":  voucher.IsRestricted,
		"updated_at":     voucher.UpdatedAt,
	})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// SoftDelete 软删除优惠券
func (r *GormVoucherRepository) SoftDelete(id uint) error {
	return r.db.Delete(&models.Voucher{}, id).Error
}

// HardDelete 物理删除优惠券，仅用于没有任何历史记录的优惠券
func (r *GormVoucherRepository) HardDelete(id uint) error {
	return r.db.Unscoped().Delete(&models.Voucher{}, id).Error
}

// List 获取优惠券列表
func (r *GormVoucherRepository) List(filter VoucherListFilter) ([]models.Voucher, int64, error) {
	var vouchers []models.Voucher
	query := r.db.Model(&models.Voucher{})
	if filter.IncludeDeleted {
		query = query.Unscoped()
	}

	if code := models.NormalizeVoucherCode(filter.Code); code != "" {
		query = query.Where("code LIKE ?", "%"+code+"%")
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.IsRestricted != nil {
		query = query.Where("is_restricted = ?", *filter.IsRestricted)
	}
	if filter.ValidOn != nil {
		query = query.Where("valid_from <= ? AND valid_to >= ?", *filter.ValidOn, *filter.ValidOn)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	if err := query.Order("id desc").Find(&vouchers).Error; err != nil {
		return nil, 0, err
	}
	return vouchers, total, nil
}

// IncrementUsedCountGuarded 原子自增使用次数。
// 设置上限时仅在 used_count < usage_limit 时生效，返回受影响行数，0 表示已用完。
func (r *GormVoucherRepository) IncrementUsedCountGuarded(id uint) (int64, error) {
	result := r.db.Model(&models.Voucher{}).
		Where("id = ?", id).
		Where("usage_limit IS NULL OR used_count < usage_limit").
		UpdateColumn("used_count", gorm.Expr("used_count + ?", 1))
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
