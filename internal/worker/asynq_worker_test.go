package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dujiao-next/voucher/internal/cache"
	"github.com/dujiao-next/voucher/internal/config"
	"github.com/dujiao-next/voucher/internal/constants"
	"github.com/dujiao-next/voucher/internal/models"
	"github.com/dujiao-next/voucher/internal/provider"
	"github.com/dujiao-next/voucher/internal/queue"
	"github.com/dujiao-next/voucher/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

type workerClock struct {
	now time.Time
}

func (c *workerClock) Now() time.Time { return c.now }

func setupWorkerContainer(t *testing.T) (*provider.Container, *workerClock) {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := models.MigrateDB(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	_ = cache.Close()

	clock := &workerClock{now: time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)}
	opts := service.DefaultVoucherOptions()
	opts.Location = time.UTC
	opts.Now = clock.Now
	container, err := provider.New(&config.Config{}, db, nil, opts)
	if err != nil {
		t.Fatalf("build container failed: %v", err)
	}
	return container, clock
}

func reserveLastUse(t *testing.T, c *provider.Container, clock *workerClock) *models.VoucherReservation {
	t.Helper()
	limit := 1
	voucher, err := c.VoucherAdminService.Create(context.Background(), service.CreateVoucherInput{
		Code:          "LASTONE",
		DiscountKind:  constants.DiscountKindFixed,
		DiscountValue: models.MustMoney("5"),
		ValidFrom:     clock.now,
		ValidTo:       clock.now.AddDate(0, 0, 7),
		UsageLimit:    &limit,
	})
	if err != nil {
		t.Fatalf("create voucher failed: %v", err)
	}
	result, err := c.VoucherReservationService.Reserve(context.Background(), service.ReserveInput{
		Code:             voucher.Code,
		OrderAmount:      models.MustMoney("20"),
		SessionID:        "checkout-1",
		SessionExpiresAt: clock.now.Add(5 * time.Minute),
	})
	if err != nil || result.Reservation == nil {
		t.Fatalf("reserve failed: %+v err=%v", result, err)
	}
	return result.Reservation
}

func TestHandleVoucherReservationExpireFreesSlot(t *testing.T) {
	c, clock := setupWorkerContainer(t)
	reservation := reserveLastUse(t, c, clock)
	consumer := NewConsumer(c)

	task, err := queue.NewVoucherReservationExpireTask(queue.VoucherReservationExpirePayload{
		ReservationID: reservation.ID,
		VoucherID:     reservation.VoucherID,
	})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}

	// 未到期时不应让出槽位
	if err := consumer.handleVoucherReservationExpire(context.Background(), task); err != nil {
		t.Fatalf("handle expire failed: %v", err)
	}
	reloaded, _ := c.VoucherReservationRepo.GetByID(reservation.ID)
	if reloaded.HoldKey == nil {
		t.Fatalf("hold slot should be kept before expiry")
	}

	clock.now = clock.now.Add(6 * time.Minute)
	if err := consumer.handleVoucherReservationExpire(context.Background(), task); err != nil {
		t.Fatalf("handle expire failed: %v", err)
	}
	reloaded, _ = c.VoucherReservationRepo.GetByID(reservation.ID)
	if reloaded.HoldKey != nil {
		t.Fatalf("hold slot should be freed after expiry")
	}
	if status := reloaded.Status(clock.now); status != models.VoucherReservationStatusExpired {
		t.Fatalf("expected expired status, got %s", status)
	}
}

func TestHandleVoucherReservationSweep(t *testing.T) {
	c, clock := setupWorkerContainer(t)
	reservation := reserveLastUse(t, c, clock)
	consumer := NewConsumer(c)
	clock.now = clock.now.Add(10 * time.Minute)

	task, err := queue.NewVoucherReservationSweepTask(queue.VoucherReservationSweepPayload{VoucherID: reservation.VoucherID})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleVoucherReservationSweep(context.Background(), task); err != nil {
		t.Fatalf("handle sweep failed: %v", err)
	}
	reloaded, _ := c.VoucherReservationRepo.GetByID(reservation.ID)
	if reloaded.HoldKey != nil {
		t.Fatalf("sweep should free the expired hold")
	}

	// 全量清理在没有待清理记录时同样成功
	if err := consumer.handleVoucherReservationSweep(context.Background(), asynq.NewTask(queue.TaskVoucherReservationSweep, nil)); err != nil {
		t.Fatalf("handle full sweep failed: %v", err)
	}
}

func TestHandleVoucherReservationTasksInvalidPayload(t *testing.T) {
	c, _ := setupWorkerContainer(t)
	consumer := NewConsumer(c)

	broken := asynq.NewTask(queue.TaskVoucherReservationExpire, []byte("{"))
	if err := consumer.handleVoucherReservationExpire(context.Background(), broken); err == nil {
		t.Fatalf("expected unmarshal error")
	}
	empty := asynq.NewTask(queue.TaskVoucherReservationExpire, []byte(`{"reservation_id":0}`))
	if err := consumer.handleVoucherReservationExpire(context.Background(), empty); err != nil {
		t.Fatalf("zero reservation id should be skipped, got %v", err)
	}
	missing := asynq.NewTask(queue.TaskVoucherReservationExpire, []byte(`{"reservation_id":999,"voucher_id":1}`))
	if err := consumer.handleVoucherReservationExpire(context.Background(), missing); err != nil {
		t.Fatalf("unknown reservation should be skipped, got %v", err)
	}

	var nilConsumer *Consumer
	if err := nilConsumer.handleVoucherReservationExpire(context.Background(), empty); err != nil {
		t.Fatalf("nil consumer should be a no-op, got %v", err)
	}
	if err := nilConsumer.handleVoucherReservationSweep(context.Background(), empty); err != nil {
		t.Fatalf("nil consumer should be a no-op, got %v", err)
	}
	nilConsumer.Register(asynq.NewServeMux())
}
