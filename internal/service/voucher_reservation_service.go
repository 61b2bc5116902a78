package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/voucher/internal/constants"
	"github.com/dujiao-next/voucher/internal/logger"
	"github.com/dujiao-next/voucher/internal/models"
	"github.com/dujiao-next/voucher/internal/queue"
	"github.com/dujiao-next/voucher/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var errReservationConflict = errors.New("voucher reservation conflict")

// VoucherReservationService 优惠券预占服务
type VoucherReservationService struct {
	db              *gorm.DB
	evaluator       *VoucherService
	reservationRepo repository.VoucherReservationRepository
	queueClient     *queue.Client
	opts            VoucherOptions
}

// ReserveInput 预占输入
type ReserveInput struct {
	Code             string
	OrderAmount      models.Money
	SessionID        string
	UserID           uint
	SessionExpiresAt time.Time
}

// ReserveResult 预占结果；无需加锁时 Reservation 为 nil
type ReserveResult struct {
	EvaluationResult
	Reservation *models.VoucherReservation
}

// NewVoucherReservationService 创建预占服务
func NewVoucherReservationService(db *gorm.DB, evaluator *VoucherService, reservationRepo repository.VoucherReservationRepository, queueClient *queue.Client, opts VoucherOptions) *VoucherReservationService {
	return &VoucherReservationService{
		db:              db,
		evaluator:       evaluator,
		reservationRepo: reservationRepo,
		queueClient:     queueClient,
		opts:            opts.normalize(),
	}
}

// Reserve 校验优惠券，稀缺时为会话创建独占预占
func (s *VoucherReservationService) Reserve(ctx context.Context, input ReserveInput) (*ReserveResult, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidArgument
	}
	now := s.opts.now()
	expiresAt := input.SessionExpiresAt.UTC()
	if input.SessionExpiresAt.IsZero() {
		expiresAt = now.Add(s.opts.DefaultHold)
	}
	if !expiresAt.After(now) {
		return nil, ErrInvalidArgument
	}

	eval, err := s.evaluator.evaluateFresh(ctx, input.Code, input.OrderAmount, input.UserID)
	if err != nil {
		return nil, err
	}
	result := &ReserveResult{EvaluationResult: eval}
	if !eval.Valid() {
		return result, nil
	}
	voucher := eval.Voucher
	if !NeedsLock(voucher.UsageLimit, voucher.UsedCount, s.opts.LockThreshold) {
		// 会话改用充足的优惠券时，之前的预占不再有意义，需要让出
		released, err := s.reservationRepo.WithContext(ctx).ReleaseBySession(sessionID, now)
		if err != nil {
			return nil, storeError("release superseded reservation", err)
		}
		if released > 0 {
			logger.Debugw("voucher_reservation_superseded", "session_id", sessionID, "voucher_id", voucher.ID, "count", released)
		}
		return result, nil
	}

	var reservation *models.VoucherReservation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reservationRepo := s.reservationRepo.WithTx(tx)
		holder, err := reservationRepo.FindLiveByVoucherOtherSession(voucher.ID, sessionID, now)
		if err != nil {
			return err
		}
		if holder != nil {
			return errReservationConflict
		}
		if _, err := reservationRepo.ReleaseBySession(sessionID, now); err != nil {
			return err
		}
		if _, err := reservationRepo.FreeExpiredHolds(voucher.ID, now); err != nil {
			return err
		}
		holdKey := voucher.ID
		row := &models.VoucherReservation{
			VoucherID:  voucher.ID,
			SessionID:  sessionID,
			UserID:     input.UserID,
			Token:      uuid.NewString(),
			HoldKey:    &holdKey,
			ReservedAt: now,
			ExpiresAt:  expiresAt,
		}
		// 唯一索引 hold_key 是线性化点，前面的读取只用于快速失败
		if err := reservationRepo.Create(row); err != nil {
			return err
		}
		reservation = row
		return nil
	}, repository.StrictTxOptions(s.db))
	if err != nil {
		if errors.Is(err, errReservationConflict) || repository.IsUniqueViolation(err) || repository.IsSerializationFailure(err) {
			logger.Infow("voucher_reserve_conflict",
				"voucher_id", voucher.ID,
				"code", voucher.Code,
				"session_id", sessionID,
				"error", err,
			)
			return &ReserveResult{
				EvaluationResult: rejected(constants.VerdictReservationConflict, voucher),
			}, nil
		}
		logger.Errorw("voucher_reserve_failed", "voucher_id", voucher.ID, "session_id", sessionID, "error", err)
		return nil, storeError("reserve voucher", err)
	}

	result.Reservation = reservation
	logger.Debugw("voucher_reserved",
		"voucher_id", voucher.ID,
		"session_id", sessionID,
		"reservation_id", reservation.ID,
		"expires_at", reservation.ExpiresAt,
	)
	s.scheduleExpiry(reservation, now)
	return result, nil
}

// Release 释放会话的全部预占，可重复调用
func (s *VoucherReservationService) Release(ctx context.Context, sessionID string) (int64, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return 0, ErrInvalidArgument
	}
	released, err := s.reservationRepo.WithContext(ctx).ReleaseBySession(sessionID, s.opts.now())
	if err != nil {
		return 0, storeError("release voucher reservation", err)
	}
	if released > 0 {
		logger.Debugw("voucher_reservation_released", "session_id", sessionID, "count", released)
	}
	return released, nil
}

// SweepExpired 让出已过期预占的槽位，仅做清理，读路径不依赖它
func (s *VoucherReservationService) SweepExpired(ctx context.Context) (int64, error) {
	return s.sweep(ctx, 0)
}

// SweepExpiredForVoucher 清理指定优惠券的过期预占
func (s *VoucherReservationService) SweepExpiredForVoucher(ctx context.Context, voucherID uint) (int64, error) {
	if voucherID == 0 {
		return 0, ErrInvalidArgument
	}
	return s.sweep(ctx, voucherID)
}

// ExpireReservation 处理到期任务：预占已过期且仍占用槽位时让出槽位，返回是否执行了清理
func (s *VoucherReservationService) ExpireReservation(ctx context.Context, reservationID uint) (bool, error) {
	if reservationID == 0 {
		return false, ErrInvalidArgument
	}
	reservation, err := s.reservationRepo.WithContext(ctx).GetByID(reservationID)
	if err != nil {
		return false, storeError("load voucher reservation", err)
	}
	// 只处理已过期但仍占用槽位的预占
	if reservation == nil || reservation.HoldKey == nil || reservation.IsLive(s.opts.now()) {
		return false, nil
	}
	if _, err := s.sweep(ctx, reservation.VoucherID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *VoucherReservationService) sweep(ctx context.Context, voucherID uint) (int64, error) {
	freed, err := s.reservationRepo.WithContext(ctx).FreeExpiredHolds(voucherID, s.opts.now())
	if err != nil {
		return 0, storeError("sweep expired voucher reservations", err)
	}
	if freed > 0 {
		logger.Infow("voucher_reservation_sweep", "voucher_id", voucherID, "freed", freed)
	}
	return freed, nil
}

func (s *VoucherReservationService) scheduleExpiry(reservation *models.VoucherReservation, now time.Time) {
	if reservation == nil || !s.queueClient.Enabled() {
		return
	}
	payload := queue.VoucherReservationExpirePayload{
		ReservationID: reservation.ID,
		VoucherID:     reservation.VoucherID,
	}
	if err := s.queueClient.EnqueueVoucherReservationExpire(payload, reservation.ExpiresAt.Sub(now)); err != nil {
		logger.Warnw("voucher_reservation_enqueue_expire_failed",
			"reservation_id", reservation.ID,
			"voucher_id", reservation.VoucherID,
			"error", err,
		)
	}
}
