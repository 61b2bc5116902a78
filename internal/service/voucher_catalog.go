package service

import (
	"context"
	"time"

	"github.com/dujiao-next/voucher/internal/cache"
	"github.com/dujiao-next/voucher/internal/logger"
	"github.com/dujiao-next/voucher/internal/models"
	"github.com/dujiao-next/voucher/internal/repository"
)

const (
	voucherCatalogKeyPrefix = "voucher:code:"
	voucherCatalogGenPrefix = "voucher:gen:"
)

// VoucherCatalog 优惠券目录读取
// 只读校验走 Redis 缓存，预占与核销始终直接读库，计数的正确性由核销时的条件自增保证。
// 每个优惠码维护一个版本号，Invalidate 递增版本号，版本不一致的缓存视为未命中，
// 这样在失效之后才写入的旧数据不会被读到。
type VoucherCatalog struct {
	repo repository.VoucherRepository
	ttl  time.Duration
}

type catalogEntry struct {
	Gen     int64           `json:"gen"`
	Voucher *models.Voucher `json:"voucher"`
}

// NewVoucherCatalog 创建优惠券目录
func NewVoucherCatalog(repo repository.VoucherRepository, ttl time.Duration) *VoucherCatalog {
	return &VoucherCatalog{repo: repo, ttl: ttl}
}

// Lookup 读取优惠券，优先命中缓存
func (c *VoucherCatalog) Lookup(ctx context.Context, code string) (*models.Voucher, error) {
	normalized := models.NormalizeVoucherCode(code)
	if normalized == "" {
		return nil, nil
	}
	if c.ttl <= 0 || !cache.Enabled() {
		return c.LookupFresh(ctx, normalized)
	}

	key := voucherCatalogKey(normalized)
	gen, err := cache.GetInt64(ctx, voucherCatalogGenKey(normalized))
	if err != nil {
		logger.Warnw("voucher_catalog_cache_gen_failed", "code", normalized, "error", err)
		return c.LookupFresh(ctx, normalized)
	}
	var cached catalogEntry
	hit, err := cache.GetJSON(ctx, key, &cached)
	if err != nil {
		logger.Warnw("voucher_catalog_cache_get_failed", "code", normalized, "error", err)
	} else if hit && cached.Gen == gen && cached.Voucher != nil {
		return cached.Voucher, nil
	}

	voucher, err := c.LookupFresh(ctx, normalized)
	if err != nil || voucher == nil {
		return voucher, err
	}
	if err := cache.SetJSON(ctx, key, catalogEntry{Gen: gen, Voucher: voucher}, c.ttl); err != nil {
		logger.Warnw("voucher_catalog_cache_set_failed", "code", normalized, "error", err)
	}
	return voucher, nil
}

// LookupFresh 直接读库
func (c *VoucherCatalog) LookupFresh(ctx context.Context, code string) (*models.Voucher, error) {
	return c.repo.WithContext(ctx).GetByCode(code)
}

// Invalidate 递增版本号并清除缓存，计数或配置变化后调用
func (c *VoucherCatalog) Invalidate(ctx context.Context, code string) {
	normalized := models.NormalizeVoucherCode(code)
	if normalized == "" || !cache.Enabled() {
		return
	}
	if _, err := cache.Incr(ctx, voucherCatalogGenKey(normalized)); err != nil {
		logger.Warnw("voucher_catalog_cache_gen_incr_failed", "code", normalized, "error", err)
	}
	if err := cache.Del(ctx, voucherCatalogKey(normalized)); err != nil {
		logger.Warnw("voucher_catalog_cache_del_failed", "code", normalized, "error", err)
	}
}

func voucherCatalogKey(code string) string {
	return voucherCatalogKeyPrefix + code
}

func voucherCatalogGenKey(code string) string {
	return voucherCatalogGenPrefix + code
}
