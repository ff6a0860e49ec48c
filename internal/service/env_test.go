package service

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/qs3c/cake_billing_server/config"
	"github.com/qs3c/cake_billing_server/internal/billing"
	"github.com/qs3c/cake_billing_server/internal/pkg/email"
	"github.com/qs3c/cake_billing_server/internal/pkg/logger"
	"github.com/qs3c/cake_billing_server/internal/pkg/session"
	"github.com/qs3c/cake_billing_server/internal/repository"
	"github.com/qs3c/cake_billing_server/internal/testutil"
)

// testClock 可手动推进的时钟
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
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

type testEnv struct {
	db      *gorm.DB
	rdb     *redis.Client
	gateway *testutil.FakeGateway
	clock   *testClock

	companies *repository.CompanyRepository
	payments  *repository.PaymentRepository
	logs      *repository.PaymentLogRepository

	reconciler    *Reconciler
	subscriptions *SubscriptionService
	paymentSvc    *PaymentService
	webhooks      *WebhookService
	billingSvc    *BillingService
	admin         *AdminService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
		testutil.CleanupTestDB(t, db)
	})

	cfg := &config.Config{
		Billing: config.BillingConfig{}.Defaults(),
		Bank: config.BankConfig{
			BankName:      "Test Bank",
			AccountName:   "Cake Co",
			AccountNumber: "000123456",
		},
	}
	log := logger.Discard()
	clock := newTestClock()
	gateway := testutil.NewFakeGateway()
	notifier := email.NewService(nil)

	env := &testEnv{
		db:        db,
		rdb:       rdb,
		gateway:   gateway,
		clock:     clock,
		companies: repository.NewCompanyRepository(db),
		payments:  repository.NewPaymentRepository(db),
		logs:      repository.NewPaymentLogRepository(db),
	}
	transactor := repository.NewTransactor(db)

	env.reconciler = NewReconciler(transactor, env.payments, gateway, billing.NewPolicy(cfg.Billing), notifier, nil, log)
	env.reconciler.SetClock(clock.Now)

	env.subscriptions = NewSubscriptionService(env.companies, env.payments, transactor, env.reconciler, notifier, cfg, log)
	env.subscriptions.SetClock(clock.Now)

	env.paymentSvc = NewPaymentService(env.payments, env.reconciler, gateway, 15*time.Minute, nil, log)
	env.paymentSvc.SetClock(clock.Now)

	env.webhooks = NewWebhookService(env.payments, env.reconciler, nil, rdb, "", nil, log)
	env.webhooks.now = clock.Now

	env.billingSvc = NewBillingService(env.companies, env.payments, env.reconciler, nil, nil, cfg.Billing, nil, log)
	env.billingSvc.SetClock(clock.Now)

	env.admin = NewAdminService(
		repository.NewAdminRepository(db),
		env.payments,
		env.logs,
		transactor,
		env.reconciler,
		session.NewStore(rdb, time.Hour),
		log,
	)
	env.admin.now = clock.Now

	return env
}
