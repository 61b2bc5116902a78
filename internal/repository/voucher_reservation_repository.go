package repository

import (
	"context"
	"errors"
	"time"

	"github.com/dujiao-next/voucher/internal/models"

	"gorm.io/gorm"
)

// VoucherReservationRepository 优惠券预占数据访问接口
type VoucherReservationRepository interface {
	GetByID(id uint) (*models.VoucherReservation, error)
	Create(reservation *models.VoucherReservation) error
	FindLiveBySession(sessionID string, now time.Time) (*models.VoucherReservation, error)
	FindLiveByVoucherOtherSession(voucherID uint, sessionID string, now time.Time) (*models.VoucherReservation, error)
	CountByVoucher(voucherID uint) (int64, error)
	ReleaseBySession(sessionID string, now time.Time) (int64, error)
	FreeExpiredHolds(voucherID uint, now time.Time) (int64, error)
	MarkFinalized(id uint, now time.Time) (int64, error)
	WithTx(tx *gorm.DB) *GormVoucherReservationRepository
	WithContext(ctx context.Context) *GormVoucherReservationRepository
}

// GormVoucherReservationRepository GORM 实现
type GormVoucherReservationRepository struct {
	db *gorm.DB
}

// NewVoucherReservationRepository 创建预占仓库
func NewVoucherReservationRepository(db *gorm.DB) *GormVoucherReservationRepository {
	return &GormVoucherReservationRepository{db: db}
}

// WithTx 绑定事务
func (r *GormVoucherReservationRepository) WithTx(tx *gorm.DB) *GormVoucherReservationRepository {
	if tx == nil {
		return r
	}
	return &GormVoucherReservationRepository{db: tx}
}

// WithContext 绑定上下文
func (r *GormVoucherReservationRepository) WithContext(ctx context.Context) *GormVoucherReservationRepository {
	if ctx == nil {
		return r
	}
	return &GormVoucherReservationRepository{db: r.db.WithContext(ctx)}
}

// liveScope 有效预占：未释放且未过期
func liveScope(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("released_at IS NULL AND expires_at > ?", now)
	}
}

// GetByID 根据ID获取预占
func (r *GormVoucherReservationRepository) GetByID(id uint) (*models.VoucherReservation, error) {
	if id == 0 {
		return nil, nil
	}
	var reservation models.VoucherReservation
	if err := r.db.First(&reservation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

// Create 创建预占，hold_key 冲突时返回唯一约束错误
func (r *GormVoucherReservationRepository) Create(reservation *models.VoucherReservation) error {
	return r.db.Create(reservation).Error
}

// FindLiveBySession 获取会话当前有效的预占
func (r *GormVoucherReservationRepository) FindLiveBySession(sessionID string, now time.Time) (*models.VoucherReservation, error) {
	if sessionID == "" {
		return nil, nil
	}
	var reservation models.VoucherReservation
	if err := r.db.Scopes(liveScope(now)).
		Where("session_id = ?", sessionID).
		Order("id desc").
		First(&reservation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

// FindLiveByVoucherOtherSession 获取其他会话持有的有效预占
func (r *GormVoucherReservationRepository) FindLiveByVoucherOtherSession(voucherID uint, sessionID string, now time.Time) (*models.VoucherReservation, error) {
	var reservation models.VoucherReservation
	if err := r.db.Scopes(liveScope(now)).
		Where("voucher_id = ? AND session_id <> ?", voucherID, sessionID).
		Order("id desc").
		First(&reservation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

// CountByVoucher 统计引用该优惠券的全部预占（含已结束）
func (r *GormVoucherReservationRepository) CountByVoucher(voucherID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&models.VoucherReservation{}).
		Where("voucher_id = ?", voucherID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ReleaseBySession 释放会话所有未释放的预占（幂等）
func (r *GormVoucherReservationRepository) ReleaseBySession(sessionID string, now time.Time) (int64, error) {
	result := r.db.Model(&models.VoucherReservation{}).
		Where("session_id = ? AND released_at IS NULL", sessionID).
		Updates(map[string]interface{}{
			"released_at": now,
			"hold_key":    nil,
			"updated_at":  now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// FreeExpiredHolds 让出已过期预占占用的槽位；状态仍按时间推导为过期，不写 released_at。
// voucherID 为 0 时处理全部优惠券。
func (r *GormVoucherReservationRepository) FreeExpiredHolds(voucherID uint, now time.Time) (int64, error) {
	query := r.db.Model(&models.VoucherReservation{}).
		Where("hold_key IS NOT NULL AND released_at IS NULL AND expires_at <= ?", now)
	if voucherID > 0 {
		query = query.Where("voucher_id = ?", voucherID)
	}
	result := query.Updates(map[string]interface{}{
		"hold_key":   nil,
		"updated_at": now,
	})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// MarkFinalized 标记预占已核销并让出槽位
func (r *GormVoucherReservationRepository) MarkFinalized(id uint, now time.Time) (int64, error) {
	result := r.db.Model(&models.VoucherReservation{}).
		Where("id = ? AND released_at IS NULL AND finalized_at IS NULL", id).
		Updates(map[string]interface{}{
			"finalized_at": now,
			"released_at":  now,
			"hold_key":     nil,
			"updated_at":   now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
