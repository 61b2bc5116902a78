package provider

import (
	"errors"

	"github.com/dujiao-next/voucher/internal/cache"
	"github.com/dujiao-next/voucher/internal/config"
	"github.com/dujiao-next/voucher/internal/logger"
	"github.com/dujiao-next/voucher/internal/models"
	"github.com/dujiao-next/voucher/internal/queue"
	"github.com/dujiao-next/voucher/internal/repository"
	"github.com/dujiao-next/voucher/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	QueueClient *queue.Client
	Options     service.VoucherOptions

	// Repositories
	VoucherRepo            repository.VoucherRepository
	VoucherGrantRepo       repository.VoucherGrantRepository
	VoucherReservationRepo repository.VoucherReservationRepository
	VoucherRedemptionRepo  repository.VoucherRedemptionRepository

	// Services
	VoucherCatalog            *service.VoucherCatalog
	VoucherService            *service.VoucherService
	VoucherReservationService *service.VoucherReservationService
	VoucherRedemptionService  *service.VoucherRedemptionService
	VoucherAdminService       *service.VoucherAdminService
}

// NewContainer 初始化容器，使用全局数据库连接
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient = nil
	}

	opts, err := VoucherOptionsFromConfig(cfg.Voucher)
	if err != nil {
		return nil, err
	}
	return New(cfg, models.DB, queueClient, opts)
}

// New 按给定依赖组装容器
func New(cfg *config.Config, db *gorm.DB, queueClient *queue.Client, opts service.VoucherOptions) (*Container, error) {
	if db == nil {
		return nil, errors.New("database not initialized")
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	c := &Container{
		Config:      cfg,
		DB:          db,
		QueueClient: queueClient,
		Options:     opts,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c, nil
}

// VoucherOptionsFromConfig 由配置生成引擎参数
func VoucherOptionsFromConfig(cfg config.VoucherConfig) (service.VoucherOptions, error) {
	opts := service.DefaultVoucherOptions()
	loc, err := cfg.Location()
	if err != nil {
		return opts, err
	}
	opts.LockThreshold = cfg.LockThreshold
	opts.DefaultHold = cfg.HoldDuration()
	opts.Location = loc
	return opts, nil
}

func (c *Container) initRepositories() {
	c.VoucherRepo = repository.NewVoucherRepository(c.DB)
	c.VoucherGrantRepo = repository.NewVoucherGrantRepository(c.DB)
	c.VoucherReservationRepo = repository.NewVoucherReservationRepository(c.DB)
	c.VoucherRedemptionRepo = repository.NewVoucherRedemptionRepository(c.DB)
}

func (c *Container) initServices() {
	c.VoucherCatalog = service.NewVoucherCatalog(c.VoucherRepo, c.Config.Voucher.CacheTTL())
	c.VoucherService = service.NewVoucherService(c.VoucherCatalog, c.VoucherGrantRepo, c.Options)
	c.VoucherReservationService = service.NewVoucherReservationService(
		c.DB,
		c.VoucherService,
		c.VoucherReservationRepo,
		c.QueueClient,
		c.Options,
	)
	c.VoucherRedemptionService = service.NewVoucherRedemptionService(
		c.DB,
		c.VoucherCatalog,
		c.VoucherRepo,
		c.VoucherGrantRepo,
		c.VoucherReservationRepo,
		c.VoucherRedemptionRepo,
		c.Options,
	)
	c.VoucherAdminService = service.NewVoucherAdminService(
		c.DB,
		c.VoucherCatalog,
		c.VoucherRepo,
		c.VoucherGrantRepo,
		c.VoucherReservationRepo,
		c.VoucherRedemptionRepo,
		c.Options,
	)
}

// Close 释放队列与缓存连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_client_failed", "error", err)
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
