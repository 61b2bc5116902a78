package main

import (
	"context"
	"errors"
	"time"

	"github.com/dujiao-next/voucher/internal/config"
	"github.com/dujiao-next/voucher/internal/constants"
	"github.com/dujiao-next/voucher/internal/logger"
	"github.com/dujiao-next/voucher/internal/models"
	"github.com/dujiao-next/voucher/internal/provider"
	"github.com/dujiao-next/voucher/internal/service"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	defer logger.Sync()
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, cfg.Server.Mode, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 种子数据只写库，不投递队列
	cfg.Queue.Enabled = false
	container, err := provider.NewContainer(cfg)
	if err != nil {
		stdLog.Fatalf("Failed to build container: %v", err)
	}
	defer container.Close()

	ctx := context.Background()
	today := service.DateOnly(time.Now())
	ten := 10
	one := 1
	inactive := false

	vouchers := []service.CreateVoucherInput{
		{
			Code:          "SUMMER10",
			Description:   "夏季九折，全场可用",
			DiscountKind:  constants.DiscountKindPercent,
			DiscountValue: models.MustMoney("10"),
			ValidFrom:     today.AddDate(0, -1, 0),
			ValidTo:       today.AddDate(0, 2, 0),
		},
		{
			Code:          "WELCOME50",
			Description:   "新人立减 50，限量 10 张",
			DiscountKind:  constants.DiscountKindFixed,
			DiscountValue: models.MustMoney("50"),
			ValidFrom:     today,
			ValidTo:       today.AddDate(0, 0, 30),
			UsageLimit:    &ten,
		},
		{
			Code:          "VIP100",
			Description:   "VIP 定向券",
			DiscountKind:  constants.DiscountKindFixed,
			DiscountValue: models.MustMoney("100"),
			ValidFrom:     today,
			ValidTo:       today.AddDate(1, 0, 0),
			UsageLimit:    &one,
			IsRestricted:  true,
		},
		{
			Code:          "PAUSED20",
			Description:   "已停用示例",
			DiscountKind:  constants.DiscountKindPercent,
			DiscountValue: models.MustMoney("20"),
			ValidFrom:     today,
			ValidTo:       today.AddDate(0, 1, 0),
			IsActive:      &inactive,
		},
	}

	for _, input := range vouchers {
		voucher, err := container.VoucherAdminService.Create(ctx, input)
		switch {
		case errors.Is(err, service.ErrVoucherCodeExists):
			stdLog.Printf("Voucher already exists: %s", input.Code)
			continue
		case err != nil:
			stdLog.Printf("Failed to create voucher %s: %v", input.Code, err)
			continue
		}
		stdLog.Printf("Created voucher: %s (id=%d)", voucher.Code, voucher.ID)

		if voucher.IsRestricted {
			created, err := container.VoucherAdminService.GrantToUsers(ctx, voucher.ID, []uint{1, 2})
			if err != nil {
				stdLog.Printf("Failed to grant voucher %s: %v", voucher.Code, err)
				continue
			}
			stdLog.Printf("Granted voucher %s to %d users", voucher.Code, created)
		}
	}
	stdLog.Printf("Seed completed")
}
