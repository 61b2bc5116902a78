package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dujiao-next/voucher/internal/cache"
	"github.com/dujiao-next/voucher/internal/constants"
	"github.com/dujiao-next/voucher/internal/models"
	"github.com/dujiao-next/voucher/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type voucherEngine struct {
	db           *gorm.DB
	clock        *testClock
	voucherRepo  *repository.GormVoucherRepository
	grantRepo    *repository.GormVoucherGrantRepository
	catalog      *VoucherCatalog
	evaluator    *VoucherService
	reservations *VoucherReservationService
	redemptions  *VoucherRedemptionService
	admin        *VoucherAdminService
}

func setupVoucherEngineTest(t *testing.T, lockThreshold int) *voucherEngine {
	t.Helper()
	_ = cache.Close()

	dsn := fmt.Sprintf("file:voucher_engine_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	// 单连接，让 sqlite 上的事务按序执行
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := models.MigrateDB(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	clock := newTestClock()
	opts := VoucherOptions{
		LockThreshold: lockThreshold,
		DefaultHold:   15 * time.Minute,
		Location:      time.UTC,
		Now:           clock.Now,
	}
	voucherRepo := repository.NewVoucherRepository(db)
	grantRepo := repository.NewVoucherGrantRepository(db)
	reservationRepo := repository.NewVoucherReservationRepository(db)
	redemptionRepo := repository.NewVoucherRedemptionRepository(db)

	catalog := NewVoucherCatalog(voucherRepo, 0)
	evaluator := NewVoucherService(catalog, grantRepo, opts)
	return &voucherEngine{
		db:           db,
		clock:        clock,
		voucherRepo:  voucherRepo,
		grantRepo:    grantRepo,
		catalog:      catalog,
		evaluator:    evaluator,
		reservations: NewVoucherReservationService(db, evaluator, reservationRepo, nil, opts),
		redemptions:  NewVoucherRedemptionService(db, catalog, voucherRepo, grantRepo, reservationRepo, redemptionRepo, opts),
		admin:        NewVoucherAdminService(db, catalog, voucherRepo, grantRepo, reservationRepo, redemptionRepo, opts),
	}
}

func intPtr(v int) *int {
	return &v
}

// createTestVoucher 创建当前有效的优惠券，limit 为 nil 表示不限量
func (e *voucherEngine) createTestVoucher(t *testing.T, code, kind, value string, limit *int, restricted bool) *models.Voucher {
	t.Helper()
	today := e.clock.Now()
	voucher, err := e.admin.Create(context.Background(), CreateVoucherInput{
		Code:          code,
		DiscountKind:  kind,
		DiscountValue: models.MustMoney(value),
		ValidFrom:     today.AddDate(0, 0, -1),
		ValidTo:       today.AddDate(0, 0, 30),
		UsageLimit:    limit,
		IsRestricted:  restricted,
	})
	if err != nil {
		t.Fatalf("create voucher %s failed: %v", code, err)
	}
	return voucher
}

func (e *voucherEngine) reload(t *testing.T, id uint) *models.Voucher {
	t.Helper()
	voucher, err := e.voucherRepo.GetByIDUnscoped(id)
	if err != nil {
		t.Fatalf("reload voucher failed: %v", err)
	}
	if voucher == nil {
		t.Fatalf("voucher %d not found", id)
	}
	return voucher
}

func (e *voucherEngine) reserve(t *testing.T, code, sessionID string, userID uint, amount string) *ReserveResult {
	t.Helper()
	result, err := e.reservations.Reserve(context.Background(), ReserveInput{
		Code:        code,
		OrderAmount: models.MustMoney(amount),
		SessionID:   sessionID,
		UserID:      userID,
	})
	if err != nil {
		t.Fatalf("reserve %s for %s failed: %v", code, sessionID, err)
	}
	return result
}

func (e *voucherEngine) finalize(t *testing.T, code, sessionID string, userID uint, amount string) *FinalizeResult {
	t.Helper()
	result, err := e.redemptions.Finalize(context.Background(), FinalizeInput{
		SessionID:   sessionID,
		Code:        code,
		UserID:      userID,
		OrderAmount: models.MustMoney(amount),
	})
	if err != nil {
		t.Fatalf("finalize %s for %s failed: %v", code, sessionID, err)
	}
	return result
}

func (e *voucherEngine) evaluate(t *testing.T, code string, userID uint, amount string) EvaluationResult {
	t.Helper()
	result, err := e.evaluator.Evaluate(context.Background(), code, models.MustMoney(amount), userID)
	if err != nil {
		t.Fatalf("evaluate %s failed: %v", code, err)
	}
	return result
}

func assertVerdict(t *testing.T, got, want constants.Verdict) {
	t.Helper()
	if got != want {
		t.Fatalf("unexpected verdict: want %s got %s", want, got)
	}
}
