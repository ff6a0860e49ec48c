package app

import (
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qs3c/cake_billing_server/config"
	"github.com/qs3c/cake_billing_server/internal/api"
	"github.com/qs3c/cake_billing_server/internal/api/handler"
	"github.com/qs3c/cake_billing_server/internal/billing"
	"github.com/qs3c/cake_billing_server/internal/database"
	"github.com/qs3c/cake_billing_server/internal/pkg/aur"
	"github.com/qs3c/cake_billing_server/internal/pkg/cron"
	"github.com/qs3c/cake_billing_server/internal/pkg/email"
	"github.com/qs3c/cake_billing_server/internal/pkg/lock"
	"github.com/qs3c/cake_billing_server/internal/pkg/metrics"
	"github.com/qs3c/cake_billing_server/internal/pkg/queue"
	"github.com/qs3c/cake_billing_server/internal/pkg/session"
	"github.com/qs3c/cake_billing_server/internal/repository"
	"github.com/qs3c/cake_billing_server/internal/service"
	"github.com/qs3c/cake_billing_server/internal/worker"
)

// App 三个进程共用的依赖装配
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Registry *prometheus.Registry
	Log      logrus.FieldLogger

	Queue *queue.Queue

	Subscriptions *service.SubscriptionService
	Payments      *service.PaymentService
	Webhooks      *service.WebhookService
	Billing       *service.BillingService
	Admin         *service.AdminService
}

// New 连接 MySQL 与 Redis 并装配所有服务
func New(cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Info("database connected")

	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info("redis connected")

	return Wire(cfg, db, rdb, aur.NewClient(cfg.Aur, log), log), nil
}

// Wire 使用已建立的连接装配服务，gateway 可替换
func Wire(cfg *config.Config, db *gorm.DB, rdb *redis.Client, gateway service.Gateway, log logrus.FieldLogger) *App {
	cfg.Billing = cfg.Billing.Defaults()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	notifier := email.NewService(&cfg.Email)

	companies := repository.NewCompanyRepository(db)
	payments := repository.NewPaymentRepository(db)
	logs := repository.NewPaymentLogRepository(db)
	admins := repository.NewAdminRepository(db)
	transactor := repository.NewTransactor(db)

	var q *queue.Queue
	if cfg.Queue.WebhookQueue != "" {
		q = queue.NewQueue(rdb, cfg.Queue.WebhookQueue)
	}

	reconciler := service.NewReconciler(transactor, payments, gateway, billing.NewPolicy(cfg.Billing), notifier, m, log)
	pollAfter := time.Duration(cfg.Billing.PollAfterMinutes) * time.Minute

	return &App{
		Config:        cfg,
		DB:            db,
		Redis:         rdb,
		Registry:      registry,
		Log:           log,
		Queue:         q,
		Subscriptions: service.NewSubscriptionService(companies, payments, transactor, reconciler, notifier, cfg, log),
		Payments:      service.NewPaymentService(payments, reconciler, gateway, pollAfter, m, log),
		Webhooks:      service.NewWebhookService(payments, reconciler, q, rdb, cfg.Aur.WebhookSecret, m, log),
		Billing:       service.NewBillingService(companies, payments, reconciler, lock.NewLocker(rdb), rdb, cfg.Billing, m, log),
		Admin:         service.NewAdminService(admins, payments, logs, transactor, reconciler, session.NewStore(rdb, cfg.Admin.SessionTTL()), log),
	}
}

// Migrate 建表并确保初始管理员存在
func (a *App) Migrate() error {
	if err := database.Migrate(a.DB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := a.Admin.EnsureBootstrapAdmin(a.Config.Admin.BootstrapUsername, a.Config.Admin.BootstrapHash); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	return nil
}

func (a *App) Router() *api.Router {
	return api.NewRouter(
		handler.NewSubscriptionHandler(a.Subscriptions),
		handler.NewPaymentHandler(a.Payments),
		handler.NewWebhookHandler(a.Webhooks),
		handler.NewBillingHandler(a.Billing),
		handler.NewAdminHandler(a.Admin, a.Subscriptions, a.Webhooks),
		a.Admin,
		a.Registry,
		a.Log,
		a.Config,
	)
}

func (a *App) Scheduler() *cron.Service {
	return cron.NewService(a.Billing, a.Payments, a.Config.Billing, a.Log)
}

// Consumer 未配置回调队列时返回 nil
func (a *App) Consumer() *worker.Consumer {
	if a.Queue == nil {
		return nil
	}
	return worker.NewConsumer(a.Queue, a.Webhooks, a.Config.Queue.MaxWorkers, a.Log)
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
