package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/voucher/internal/constants"
	"github.com/dujiao-next/voucher/internal/logger"
	"github.com/dujiao-next/voucher/internal/models"
	"github.com/dujiao-next/voucher/internal/repository"

	"gorm.io/gorm"
)

var errFinalizeRejected = errors.New("voucher finalize rejected")

// VoucherRedemptionService 优惠券核销服务
type VoucherRedemptionService struct {
	db              *gorm.DB
	catalog         *VoucherCatalog
	voucherRepo     repository.VoucherRepository
	grantRepo       repository.VoucherGrantRepository
	reservationRepo repository.VoucherReservationRepository
	redemptionRepo  repository.VoucherRedemptionRepository
	opts            VoucherOptions
}

// FinalizeInput 核销输入
// 会话存在有效预占时以预占为准；充足的优惠券不会留下预占，需要调用方提供 Code/UserID。
type FinalizeInput struct {
	SessionID   string
	Code        string
	UserID      uint
	OrderAmount models.Money
}

// FinalizeResult 核销结果
type FinalizeResult struct {
	Redeemed       bool
	Verdict        constants.Verdict
	DiscountAmount models.Money
	Voucher        *models.Voucher
	Redemption     *models.VoucherRedemption
}

// NewVoucherRedemptionService 创建核销服务
func NewVoucherRedemptionService(
	db *gorm.DB,
	catalog *VoucherCatalog,
	voucherRepo repository.VoucherRepository,
	grantRepo repository.VoucherGrantRepository,
	reservationRepo repository.VoucherReservationRepository,
	redemptionRepo repository.VoucherRedemptionRepository,
	opts VoucherOptions,
) *VoucherRedemptionService {
	return &VoucherRedemptionService{
		db:              db,
		catalog:         catalog,
		voucherRepo:     voucherRepo,
		grantRepo:       grantRepo,
		reservationRepo: reservationRepo,
		redemptionRepo:  redemptionRepo,
		opts:            opts.normalize(),
	}
}

// Finalize 在一个事务内完成条件自增、发放记录标记、核销记录写入与预占核销。
// 任一业务校验失败都会整体回滚并以 Verdict 返回。
func (s *VoucherRedemptionService) Finalize(ctx context.Context, input FinalizeInput) (*FinalizeResult, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidArgument
	}
	now := s.opts.now()
	today := s.opts.today(now)

	result := &FinalizeResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		voucherRepo := s.voucherRepo.WithTx(tx)
		grantRepo := s.grantRepo.WithTx(tx)
		reservationRepo := s.reservationRepo.WithTx(tx)
		redemptionRepo := s.redemptionRepo.WithTx(tx)

		reject := func(verdict constants.Verdict) error {
			result.Verdict = verdict
			return errFinalizeRejected
		}

		// 会话已核销过时，以核销记录对应的优惠券给出结论，不依赖调用方传入的 Code
		existing, err := redemptionRepo.GetBySession(sessionID)
		if err != nil {
			return err
		}
		if existing != nil {
			redeemed, err := voucherRepo.GetByIDUnscoped(existing.VoucherID)
			if err != nil {
				return err
			}
			result.Voucher = redeemed
			return reject(alreadyUsedVerdict(redeemed))
		}

		reservation, err := reservationRepo.FindLiveBySession(sessionID, now)
		if err != nil {
			return err
		}
		userID := input.UserID
		var voucher *models.Voucher
		if reservation != nil {
			voucher, err = voucherRepo.GetByID(reservation.VoucherID)
			if err != nil {
				return err
			}
			if voucher != nil && input.Code != "" && models.NormalizeVoucherCode(input.Code) != voucher.Code {
				return ErrInvalidArgument
			}
			userID = reservation.UserID
		} else {
			voucher, err = voucherRepo.GetByCode(input.Code)
			if err != nil {
				return err
			}
		}
		result.Voucher = voucher
		if voucher == nil {
			return reject(constants.VerdictNotFound)
		}

		grant, err := grantRepo.Get(voucher.ID, userID)
		if err != nil {
			return err
		}
		eval := EvaluateVoucher(voucher, grant, input.OrderAmount, userID, today)
		if !eval.Valid() {
			return reject(eval.Verdict)
		}

		affected, err := voucherRepo.IncrementUsedCountGuarded(voucher.ID)
		if err != nil {
			return err
		}
		if affected == 0 {
			// 校验通过后被其他核销耗尽
			return reject(constants.VerdictFinalizeGuardFailed)
		}

		if userID != 0 {
			if verdict, err := s.markGrantUsed(grantRepo, voucher, grant, userID, now); err != nil {
				return err
			} else if verdict != constants.VerdictValid {
				return reject(verdict)
			}
		}

		redemption := &models.VoucherRedemption{
			VoucherID:      voucher.ID,
			SessionID:      sessionID,
			UserID:         userID,
			OrderAmount:    input.OrderAmount,
			DiscountAmount: eval.DiscountAmount,
			RedeemedAt:     now,
		}
		if reservation != nil {
			redemption.ReservationID = &reservation.ID
		}
		if err := redemptionRepo.Create(redemption); err != nil {
			if repository.IsUniqueViolation(err) {
				return reject(alreadyUsedVerdict(voucher))
			}
			return err
		}

		if reservation != nil {
			finalized, err := reservationRepo.MarkFinalized(reservation.ID, now)
			if err != nil {
				return err
			}
			if finalized == 0 {
				// 预占在事务期间被释放
				return reject(constants.VerdictReservationConflict)
			}
		}

		result.Redeemed = true
		result.Verdict = constants.VerdictValid
		result.DiscountAmount = eval.DiscountAmount
		result.Redemption = redemption
		return nil
	})
	if err != nil {
		result.Redeemed = false
		result.DiscountAmount = models.Money{}
		result.Redemption = nil
		switch {
		case errors.Is(err, errFinalizeRejected):
			logger.Infow("voucher_finalize_rejected",
				"session_id", sessionID,
				"code", input.Code,
				"verdict", result.Verdict,
			)
			return result, nil
		case errors.Is(err, ErrInvalidArgument):
			return nil, err
		case repository.IsUniqueViolation(err) && result.Voucher != nil:
			result.Verdict = alreadyUsedVerdict(result.Voucher)
			logger.Infow("voucher_finalize_duplicate", "session_id", sessionID, "voucher_id", result.Voucher.ID)
			return result, nil
		default:
			logger.Errorw("voucher_finalize_failed", "session_id", sessionID, "code", input.Code, "error", err)
			return nil, storeError("finalize voucher", err)
		}
	}

	s.catalog.Invalidate(ctx, result.Voucher.Code)
	logger.Infow("voucher_finalized",
		"voucher_id", result.Voucher.ID,
		"session_id", sessionID,
		"redemption_id", result.Redemption.ID,
		"discount_amount", result.DiscountAmount.String(),
	)
	return result, nil
}

// markGrantUsed 定向券标记已有发放记录；公开券创建或标记去重记录
func (s *VoucherRedemptionService) markGrantUsed(grantRepo repository.VoucherGrantRepository, voucher *models.Voucher, grant *models.VoucherGrant, userID uint, now time.Time) (constants.Verdict, error) {
	if voucher.IsRestricted || grant != nil {
		marked, err := grantRepo.MarkUsed(voucher.ID, userID, now)
		if err != nil {
			return "", err
		}
		if marked == 0 {
			return alreadyUsedVerdict(voucher), nil
		}
		return constants.VerdictValid, nil
	}
	usedAt := now
	err := grantRepo.Create(&models.VoucherGrant{
		VoucherID: voucher.ID,
		UserID:    userID,
		IsUsed:    true,
		GrantedAt: now,
		UsedAt:    &usedAt,
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return constants.VerdictPublicAlreadyUsedByUser, nil
		}
		return "", err
	}
	return constants.VerdictValid, nil
}

func alreadyUsedVerdict(voucher *models.Voucher) constants.Verdict {
	if voucher != nil && voucher.IsRestricted {
		return constants.VerdictRestrictedAlreadyUsed
	}
	return constants.VerdictPublicAlreadyUsedByUser
}
