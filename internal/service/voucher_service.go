package service

import (
	"context"

	"github.com/dujiao-next/voucher/internal/models"
	"github.com/dujiao-next/voucher/internal/repository"
)

// VoucherService 优惠券校验服务（只读）
type VoucherService struct {
	catalog   *VoucherCatalog
	grantRepo repository.VoucherGrantRepository
	opts      VoucherOptions
}

// NewVoucherService 创建优惠券校验服务
func NewVoucherService(catalog *VoucherCatalog, grantRepo repository.VoucherGrantRepository, opts VoucherOptions) *VoucherService {
	return &VoucherService{
		catalog:   catalog,
		grantRepo: grantRepo,
		opts:      opts.normalize(),
	}
}

// Evaluate 校验优惠券并计算优惠金额，userID 为 0 表示身份未知
func (s *VoucherService) Evaluate(ctx context.Context, code string, orderAmount models.Money, userID uint) (EvaluationResult, error) {
	voucher, err := s.catalog.Lookup(ctx, code)
	if err != nil {
		return EvaluationResult{}, storeError("load voucher", err)
	}
	return s.evaluateLoaded(ctx, voucher, orderAmount, userID)
}

// evaluateFresh 绕过缓存校验，用于预占
func (s *VoucherService) evaluateFresh(ctx context.Context, code string, orderAmount models.Money, userID uint) (EvaluationResult, error) {
	voucher, err := s.catalog.LookupFresh(ctx, code)
	if err != nil {
		return EvaluationResult{}, storeError("load voucher", err)
	}
	return s.evaluateLoaded(ctx, voucher, orderAmount, userID)
}

func (s *VoucherService) evaluateLoaded(ctx context.Context, voucher *models.Voucher, orderAmount models.Money, userID uint) (EvaluationResult, error) {
	var grant *models.VoucherGrant
	if voucher != nil && userID != 0 {
		g, err := s.grantRepo.WithContext(ctx).Get(voucher.ID, userID)
		if err != nil {
			return EvaluationResult{}, storeError("load voucher grant", err)
		}
		grant = g
	}
	return EvaluateVoucher(voucher, grant, orderAmount, userID, s.opts.today(s.opts.now())), nil
}
