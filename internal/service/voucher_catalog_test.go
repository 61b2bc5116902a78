package service

import (
	"context"
	"testing"
	"time"

	"github.com/dujiao-next/voucher/internal/cache"
	"github.com/dujiao-next/voucher/internal/constants"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestVoucherCatalogReadThroughAndInvalidate(t *testing.T) {
	e := setupVoucherEngineTest(t, constants.DefaultLockThreshold)
	mr := miniredis.RunT(t)
	cache.Use(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
	t.Cleanup(func() {
		_ = cache.Close()
	})

	catalog := NewVoucherCatalog(e.voucherRepo, time.Minute)
	evaluator := NewVoucherService(catalog, e.grantRepo, e.evaluator.opts)
	redemptions := NewVoucherRedemptionService(
		e.db, catalog, e.voucherRepo, e.grantRepo,
		e.reservations.reservationRepo, e.redemptions.redemptionRepo, e.redemptions.opts,
	)
	ctx := context.Background()

	voucher := e.createTestVoucher(t, "CACHED", constants.DiscountKindFixed, "10", intPtr(1), false)

	first, err := catalog.Lookup(ctx, " cached ")
	if err != nil || first == nil || first.ID != voucher.ID {
		t.Fatalf("lookup failed: %+v err=%v", first, err)
	}
	if !mr.Exists("test:voucher:code:CACHED") {
		t.Fatalf("expected catalog entry in redis, keys=%v", mr.Keys())
	}

	// 直接改库后缓存仍返回旧值，直到失效
	if err := e.db.Exec("UPDATE vouchers SET description = ? WHERE id = ?", "changed", voucher.ID).Error; err != nil {
		t.Fatalf("update voucher failed: %v", err)
	}
	cached, err := catalog.Lookup(ctx, "CACHED")
	if err != nil || cached.Description != "" {
		t.Fatalf("expected cached copy, got %+v err=%v", cached, err)
	}
	fresh, err := catalog.LookupFresh(ctx, "CACHED")
	if err != nil || fresh.Description != "changed" {
		t.Fatalf("expected fresh copy, got %+v err=%v", fresh, err)
	}

	result, err := redemptions.Finalize(ctx, FinalizeInput{SessionID: "s-1", Code: "CACHED", OrderAmount: fresh.DiscountValue})
	if err != nil || !result.Redeemed {
		t.Fatalf("finalize failed: %+v err=%v", result, err)
	}
	if mr.Exists("test:voucher:code:CACHED") {
		t.Fatalf("finalize should invalidate the catalog entry")
	}

	eval, err := evaluator.Evaluate(ctx, "CACHED", fresh.DiscountValue, 0)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	assertVerdict(t, eval.Verdict, constants.VerdictUsageExhausted)
}

func TestVoucherCatalogMissingCodeNotCached(t *testing.T) {
	e := setupVoucherEngineTest(t, constants.DefaultLockThreshold)
	mr := miniredis.RunT(t)
	cache.Use(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	t.Cleanup(func() {
		_ = cache.Close()
	})

	catalog := NewVoucherCatalog(e.voucherRepo, time.Minute)
	voucher, err := catalog.Lookup(context.Background(), "NOPE")
	if err != nil || voucher != nil {
		t.Fatalf("expected miss, got %+v err=%v", voucher, err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("missing codes should not be cached, keys=%v", mr.Keys())
	}
}

func TestVoucherCatalogIgnoresEntryWrittenAfterInvalidate(t *testing.T) {
	e := setupVoucherEngineTest(t, constants.DefaultLockThreshold)
	mr := miniredis.RunT(t)
	cache.Use(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	t.Cleanup(func() {
		_ = cache.Close()
	})
	ctx := context.Background()
	catalog := NewVoucherCatalog(e.voucherRepo, time.Minute)
	admin := NewVoucherAdminService(e.db, catalog, e.voucherRepo, e.grantRepo,
		e.reservations.reservationRepo, e.redemptions.redemptionRepo, e.admin.opts)

	voucher := e.createTestVoucher(t, "LATE", constants.DiscountKindFixed, "10", nil, false)

	// 慢速读取：在删除前读到版本号和旧数据
	gen, err := cache.GetInt64(ctx, voucherCatalogGenKey("LATE"))
	if err != nil {
		t.Fatalf("read gen failed: %v", err)
	}
	stale, err := catalog.LookupFresh(ctx, "LATE")
	if err != nil || stale == nil {
		t.Fatalf("fresh lookup failed: %+v err=%v", stale, err)
	}

	if err := admin.Delete(ctx, voucher.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	// 失效之后才写回缓存
	if err := cache.SetJSON(ctx, voucherCatalogKey("LATE"), catalogEntry{Gen: gen, Voucher: stale}, time.Minute); err != nil {
		t.Fatalf("write stale entry failed: %v", err)
	}

	got, err := catalog.Lookup(ctx, "LATE")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got != nil {
		t.Fatalf("stale entry must not be served after delete, got %+v", got)
	}
}
