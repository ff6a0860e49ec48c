package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/qs3c/cake_billing_server/config"
	"github.com/qs3c/cake_billing_server/internal/billing"
	"github.com/qs3c/cake_billing_server/internal/model"
	"github.com/qs3c/cake_billing_server/internal/model/dto"
	"github.com/qs3c/cake_billing_server/internal/pkg/apperror"
	"github.com/qs3c/cake_billing_server/internal/pkg/lock"
	"github.com/qs3c/cake_billing_server/internal/pkg/metrics"
	"github.com/qs3c/cake_billing_server/internal/repository"
)

const (
	sweepLockKey   = "billing:sweep:lock"
	sweepLockTTL   = 30 * time.Minute
	lastSweepKey   = "billing:sweep:last"
	sweepBatchSize = 1000
)

// 单个公司在一次扫描中的结果
const (
	sweepBilled    = "billed"
	sweepRetried   = "retried"
	sweepFailed    = "failed"
	sweepSuspended = "suspended"
	sweepSkipped   = "skipped"
	sweepError     = "error"
)

type SweepOptions struct {
	DryRun bool
}

// BillingService 周期扣款扫描
type BillingService struct {
	companies  *repository.CompanyRepository
	payments   *repository.PaymentRepository
	reconciler *Reconciler
	locker     *lock.Locker
	rdb        *redis.Client
	cfg        config.BillingConfig
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
	now        func() time.Time

	mu        sync.Mutex
	lastSweep *dto.SweepSummary
}

// NewBillingService locker 与 rdb 可以为空：单实例部署时不加分布式锁，最近一次结果保存在内存
func NewBillingService(
	companies *repository.CompanyRepository,
	payments *repository.PaymentRepository,
	reconciler *Reconciler,
	locker *lock.Locker,
	rdb *redis.Client,
	cfg config.BillingConfig,
	m *metrics.Metrics,
	log logrus.FieldLogger,
) *BillingService {
	return &BillingService{
		companies:  companies,
		payments:   payments,
		reconciler: reconciler,
		locker:     locker,
		rdb:        rdb,
		cfg:        cfg.Defaults(),
		metrics:    m,
		log:        log,
		now:        defaultNow,
	}
}

// SetClock 测试用
func (s *BillingService) SetClock(now func() time.Time) {
	s.now = now
}

// Sweep 对所有到期的 active 公司发起续费扣款。
// 同一公司同一计费周期只会有一笔支付，重复或并发执行不会重复扣款。
func (s *BillingService) Sweep(ctx context.Context, opts SweepOptions) (*dto.SweepSummary, error) {
	started := time.Now()
	now := s.now()

	if s.locker != nil && !opts.DryRun {
		lk, err := s.locker.Acquire(ctx, sweepLockKey, sweepLockTTL)
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, apperror.Conflict("扣款扫描正在进行中")
		}
		if err != nil {
			return nil, apperror.Internal(err, "获取扫描锁失败")
		}
		defer func() {
			if err := lk.Release(context.Background()); err != nil {
				s.log.WithError(err).Warn("failed to release sweep lock")
			}
		}()
	}

	due, err := s.companies.ListDue(now, sweepBatchSize)
	if err != nil {
		return nil, dbError(err, "")
	}

	summary := &dto.SweepSummary{
		StartedAt: now.Format(dateTimeLayout),
		DryRun:    opts.DryRun,
	}

	if opts.DryRun {
		summary.Due = make([]int64, 0, len(due))
		for _, c := range due {
			summary.Due = append(summary.Due, c.ID)
		}
		summary.Duration = time.Since(started).String()
		return summary, nil
	}

	var mu sync.Mutex
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.SweepConcurrency)

	for _, company := range due {
		company := company
		eg.Go(func() error {
			outcome := s.processCompany(gctx, company, now)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case sweepBilled:
				summary.Billed++
			case sweepRetried:
				summary.Retried++
			case sweepFailed:
				summary.Failed++
			case sweepSuspended:
				summary.Suspended++
			case sweepSkipped:
				summary.Skipped++
			default:
				summary.Errors++
			}
			return nil
		})
	}
	_ = eg.Wait()

	elapsed := time.Since(started)
	summary.Duration = elapsed.String()

	s.metrics.ObserveSweep(elapsed)
	s.metrics.IncSweepOutcome(sweepBilled, summary.Billed)
	s.metrics.IncSweepOutcome(sweepRetried, summary.Retried)
	s.metrics.IncSweepOutcome(sweepFailed, summary.Failed)
	s.metrics.IncSweepOutcome(sweepSuspended, summary.Suspended)
	s.metrics.IncSweepOutcome(sweepSkipped, summary.Skipped)
	s.metrics.IncSweepOutcome(sweepError, summary.Errors)

	s.storeLastSweep(ctx, summary)

	s.log.WithFields(logrus.Fields{
		"due":       len(due),
		"billed":    summary.Billed,
		"retried":   summary.Retried,
		"failed":    summary.Failed,
		"suspended": summary.Suspended,
		"skipped":   summary.Skipped,
		"errors":    summary.Errors,
		"duration":  summary.Duration,
	}).Info("billing sweep finished")

	return summary, nil
}

// processCompany 以公司当前 nextBillingDate 作为本期起点：
// 本期没有支付则新建并扣款；本期支付失败且到了重试时间则重试；其余情况跳过。
func (s *BillingService) processCompany(ctx context.Context, company *model.Company, now time.Time) string {
	logger := s.log.WithField("company_id", company.ID)
	policy := s.reconciler.Policy()

	// 列表加载之后公司可能已被回调续期或被取消
	fresh, err := s.companies.GetByID(company.ID)
	if err != nil {
		logger.WithError(err).Error("failed to reload company")
		return sweepError
	}
	if !billing.IsDue(*fresh, now) {
		return sweepSkipped
	}
	company = fresh

	existing, err := s.payments.ListByCompanyPeriod(company.ID, company.NextBillingDate)
	if err != nil {
		logger.WithError(err).Error("failed to load period payments")
		return sweepError
	}

	if len(existing) == 0 {
		payment := &model.Payment{
			OrderID:            billing.GenerateOrderID(now),
			CompanyID:          company.ID,
			Amount:             company.MonthlyCost,
			Description:        s.cfg.ChargeDescription,
			Status:             model.PaymentPending,
			PaymentMethod:      model.MethodAur,
			BillingPeriodStart: company.NextBillingDate,
			BillingPeriodEnd:   company.NextBillingDate.Add(policy.Period),
		}
		if err := s.payments.Create(payment); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// 另一个扫描刚创建了本期支付
				return sweepSkipped
			}
			logger.WithError(err).Error("failed to create recurring payment")
			return sweepError
		}
		out, err := s.reconciler.Initiate(ctx, company, payment)
		return classifyCharge(logger, out, err, sweepBilled)
	}

	latest := existing[0]
	if latest.Status != model.PaymentFailed {
		return sweepSkipped
	}

	if latest.NextRetryDate == nil {
		if policy.RetryExhausted(*latest) {
			out, err := s.reconciler.SuspendExhausted(company.ID)
			if err != nil {
				logger.WithError(err).Error("failed to suspend company")
				return sweepError
			}
			if out.Suspended {
				return sweepSuspended
			}
			return sweepSkipped
		}
	} else if latest.NextRetryDate.After(now) {
		return sweepSkipped
	}

	out, err := s.reconciler.Retry(ctx, company, latest)
	if errors.Is(err, errRetrySuperseded) {
		return sweepSkipped
	}
	return classifyCharge(logger, out, err, sweepRetried)
}

func classifyCharge(logger logrus.FieldLogger, out *Outcome, err error, success string) string {
	if err == nil {
		return success
	}
	if out == nil {
		logger.WithError(err).Error("charge failed")
		return sweepError
	}
	if out.Suspended {
		return sweepSuspended
	}
	return sweepFailed
}

// Stats 计费统计与最近一次扫描结果
func (s *BillingService) Stats(ctx context.Context) (*dto.BillingStats, error) {
	stats := &dto.BillingStats{}
	var err error

	if stats.ActiveCompanies, err = s.companies.CountByStatus(model.SubscriptionActive); err != nil {
		return nil, dbError(err, "")
	}
	if stats.SuspendedCompanies, err = s.companies.CountByStatus(model.SubscriptionSuspended); err != nil {
		return nil, dbError(err, "")
	}
	if stats.DueCompanies, err = s.companies.CountDue(s.now()); err != nil {
		return nil, dbError(err, "")
	}
	if stats.PendingPayments, err = s.payments.CountByStatus(model.PaymentPending, model.PaymentProcessing); err != nil {
		return nil, dbError(err, "")
	}
	if stats.RetryingPayments, err = s.payments.CountRetrying(); err != nil {
		return nil, dbError(err, "")
	}

	stats.LastSweep = s.loadLastSweep(ctx)
	return stats, nil
}

func (s *BillingService) storeLastSweep(ctx context.Context, summary *dto.SweepSummary) {
	if s.rdb == nil {
		s.mu.Lock()
		copied := *summary
		s.lastSweep = &copied
		s.mu.Unlock()
		return
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, lastSweepKey, data, 0).Err(); err != nil {
		s.log.WithError(err).Warn("failed to store sweep summary")
	}
}

func (s *BillingService) loadLastSweep(ctx context.Context) *dto.SweepSummary {
	if s.rdb == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.lastSweep
	}

	data, err := s.rdb.Get(ctx, lastSweepKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.WithError(err).Warn("failed to load sweep summary")
		}
		return nil
	}
	var summary dto.SweepSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil
	}
	return &summary
}
