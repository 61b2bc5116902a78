//go:build integration
// +build integration

package repository

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dujiao-next/voucher/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	cleanupModels := models.AllModels()
	_ = db.Migrator().DropTable(cleanupModels...)

	if err := models.MigrateDB(db); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(cleanupModels...)
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func TestPostgresGuardedIncrementUnderConcurrency(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	limit := 3
	voucher := seedRepositoryVoucher(t, db, "PG-LIMITED", &limit)

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			affected, err := NewVoucherRepository(db).IncrementUsedCountGuarded(voucher.ID)
			if err != nil {
				t.Errorf("increment failed: %v", err)
				return
			}
			mu.Lock()
			granted += affected
			mu.Unlock()
		}()
	}
	wg.Wait()

	if granted != int64(limit) {
		t.Fatalf("expected exactly %d successful increments, got %d", limit, granted)
	}
	reloaded, err := NewVoucherRepository(db).GetByID(voucher.ID)
	if err != nil || reloaded.UsedCount != limit {
		t.Fatalf("used_count should equal the limit: %+v err=%v", reloaded, err)
	}
}

func TestPostgresHoldSlotSerializesReservations(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	limit := 1
	voucher := seedRepositoryVoucher(t, db, "PG-LAST", &limit)
	now := time.Now().UTC()

	const workers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := db.Transaction(func(tx *gorm.DB) error {
				repo := NewVoucherReservationRepository(tx)
				if _, err := repo.FreeExpiredHolds(voucher.ID, now); err != nil {
					return err
				}
				holdKey := voucher.ID
				return repo.Create(&models.VoucherReservation{
					VoucherID:  voucher.ID,
					SessionID:  "pg-session-" + string(rune('a'+n)),
					Token:      "pg-token-" + string(rune('a'+n)),
					HoldKey:    &holdKey,
					ReservedAt: now,
					ExpiresAt:  now.Add(10 * time.Minute),
				})
			}, StrictTxOptions(db))
			if err != nil {
				if !IsUniqueViolation(err) && !IsSerializationFailure(err) {
					t.Errorf("unexpected reserve error: %v", err)
				}
				return
			}
			mu.Lock()
			winners++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one live hold, got %d", winners)
	}
	count, err := NewVoucherReservationRepository(db).CountByVoucher(voucher.ID)
	if err != nil || count != 1 {
		t.Fatalf("reservation count want 1 got %d err=%v", count, err)
	}
	if opts := StrictTxOptions(db); opts == nil {
		t.Fatalf("postgres should request serializable isolation")
	}
}
