package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/cake_billing_server/internal/billing"
	"github.com/qs3c/cake_billing_server/internal/model"
	"github.com/qs3c/cake_billing_server/internal/pkg/apperror"
	"github.com/qs3c/cake_billing_server/internal/pkg/aur"
	"github.com/qs3c/cake_billing_server/internal/pkg/metrics"
	"github.com/qs3c/cake_billing_server/internal/repository"
)

// Outcome 一次状态落库的结果
type Outcome struct {
	Payment        *model.Payment
	Company        *model.Company
	Changed        bool
	Completed      bool // 本次变为 completed
	Activated      bool // 公司本次进入 active
	Failed         bool // 本次记录了一次扣款失败
	RetryScheduled bool
	Exhausted      bool
	Suspended      bool
}

// Reconciler 把网关结果落到支付与公司上。
// webhook、轮询、周期扣款、首次订阅都经过这里，共用同一套幂等与状态迁移规则。
type Reconciler struct {
	transactor *repository.Transactor
	payments   *repository.PaymentRepository
	gateway    Gateway
	policy     billing.Policy
	notifier   Notifier
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
	now        func() time.Time
}

func NewReconciler(
	transactor *repository.Transactor,
	payments *repository.PaymentRepository,
	gateway Gateway,
	policy billing.Policy,
	notifier Notifier,
	m *metrics.Metrics,
	log logrus.FieldLogger,
) *Reconciler {
	return &Reconciler{
		transactor: transactor,
		payments:   payments,
		gateway:    gateway,
		policy:     policy,
		notifier:   notifier,
		metrics:    m,
		log:        log,
		now:        defaultNow,
	}
}

// SetClock 测试用
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

func (r *Reconciler) Policy() billing.Policy {
	return r.policy
}

// Initiate 向网关发起扣款。
// 网关受理时支付进入 processing；网关拒绝或不可达时记为一次失败并返回 GatewayError。
func (r *Reconciler) Initiate(ctx context.Context, company *model.Company, payment *model.Payment) (*Outcome, error) {
	logger := r.log.WithFields(logrus.Fields{
		"order_id":   payment.OrderID,
		"company_id": company.ID,
	})

	result, err := r.gateway.CreateCharge(ctx, aur.ChargeRequest{
		OrderID:     payment.OrderID,
		Phone:       company.Phone,
		Amount:      payment.Amount,
		Description: payment.Description,
	})
	if err != nil {
		kind := "error"
		switch {
		case errors.Is(err, aur.ErrTimeout):
			kind = "timeout"
		case aur.IsRetryable(err):
			kind = "unavailable"
		}
		r.metrics.IncGatewayCall("create_charge", kind)
		logger.WithError(err).Warn("charge initiation failed")

		out, ferr := r.RecordChargeFailure(payment.ID, fmt.Sprintf("gateway unavailable: %v", err))
		if ferr != nil {
			return nil, ferr
		}
		return out, apperror.Gateway(err, "支付网关暂时不可用")
	}

	if !result.Success {
		r.metrics.IncGatewayCall("create_charge", "rejected")
		logger.WithField("reason", result.Error).Warn("charge rejected by gateway")

		reason := result.Error
		if reason == "" {
			reason = "charge rejected by gateway"
		}
		out, ferr := r.RecordChargeFailure(payment.ID, reason)
		if ferr != nil {
			return nil, ferr
		}
		return out, apperror.Gateway(nil, "支付网关拒绝了扣款: "+reason)
	}

	r.metrics.IncGatewayCall("create_charge", "ok")

	var out Outcome
	err = r.transactor.Do(func(tx *repository.Tx) error {
		current, err := tx.Payments.GetByID(payment.ID)
		if err != nil {
			return err
		}
		updated, changed := billing.MarkChargeInitiated(*current, result.Token)
		out.Payment = &updated
		if !changed {
			out.Payment = current
			return nil
		}
		if result.Raw != "" {
			updated.AurResponse = result.Raw
		}
		applied, err := tx.Payments.SaveUnlessCompleted(&updated)
		if err != nil {
			return err
		}
		out.Changed = applied
		return nil
	})
	if err != nil {
		return nil, dbError(err, "支付记录不存在")
	}

	out.Company = company
	logger.WithField("token", result.Token).Info("charge initiated")
	return &out, nil
}

// errRetrySuperseded 支付在发起重试前已被其他路径改变
var errRetrySuperseded = errors.New("payment is no longer awaiting retry")

// Retry 以新的订单号对失败的周期支付重新发起扣款。
// 上一次尝试的回调按未知订单处理，不会再计入失败次数。
func (r *Reconciler) Retry(ctx context.Context, company *model.Company, payment *model.Payment) (*Outcome, error) {
	now := r.now()
	var next *model.Payment

	err := r.transactor.Do(func(tx *repository.Tx) error {
		current, err := tx.Payments.GetByID(payment.ID)
		if err != nil {
			return err
		}
		updated, ok := billing.BeginRetryAttempt(*current, billing.GenerateOrderID(now))
		if !ok {
			return nil
		}
		applied, err := tx.Payments.SaveUnlessCompleted(&updated)
		if err != nil {
			return err
		}
		if applied {
			next = &updated
		}
		return nil
	})
	if err != nil {
		return nil, dbError(err, "支付记录不存在")
	}
	if next == nil {
		return &Outcome{Payment: payment, Company: company}, errRetrySuperseded
	}

	r.log.WithFields(logrus.Fields{
		"order_id":          next.OrderID,
		"previous_order_id": payment.OrderID,
		"company_id":        company.ID,
		"retry_count":       next.RetryCount,
	}).Info("retrying recurring charge")
	return r.Initiate(ctx, company, next)
}

// ApplyResult 应用网关返回的状态（webhook 或轮询）
func (r *Reconciler) ApplyResult(paymentID int64, result billing.GatewayResult) (*Outcome, error) {
	now := r.now()
	var out Outcome

	err := r.transactor.Do(func(tx *repository.Tx) error {
		current, err := tx.Payments.GetByID(paymentID)
		if err != nil {
			return err
		}
		out.Payment = current

		updated, changed := billing.ApplyGatewayResult(*current, result, now)
		if !changed {
			return nil
		}

		company, err := tx.Companies.GetByID(current.CompanyID)
		if err != nil {
			return err
		}
		out.Company = company

		newFailure := updated.Status == model.PaymentFailed && current.Status != model.PaymentFailed
		if newFailure {
			out.Failed = true
			updated = r.scheduleRetry(updated, company, now, &out)
		}

		applied, err := tx.Payments.SaveUnlessCompleted(&updated)
		if err != nil {
			return err
		}
		if !applied {
			// 并发写入已经把支付置为 completed
			out = Outcome{Payment: current, Company: company}
			return nil
		}
		out.Changed = true
		out.Payment = &updated

		if updated.Status == model.PaymentCompleted && current.Status != model.PaymentCompleted {
			out.Completed = true
			return r.activate(tx, company, updated, now, &out)
		}
		if out.Exhausted {
			return r.suspend(tx, company, now, &out)
		}
		return nil
	})
	if err != nil {
		return nil, dbError(err, "支付记录不存在")
	}

	r.after(&out)
	return &out, nil
}

// RecordChargeFailure 扣款请求本身失败：记录原因，周期扣款按策略安排重试
func (r *Reconciler) RecordChargeFailure(paymentID int64, reason string) (*Outcome, error) {
	now := r.now()
	var out Outcome

	err := r.transactor.Do(func(tx *repository.Tx) error {
		current, err := tx.Payments.GetByID(paymentID)
		if err != nil {
			return err
		}
		out.Payment = current

		updated, changed := billing.MarkChargeFailed(*current, reason)
		if !changed {
			return nil
		}

		company, err := tx.Companies.GetByID(current.CompanyID)
		if err != nil {
			return err
		}
		out.Company = company
		out.Failed = true
		updated = r.scheduleRetry(updated, company, now, &out)

		applied, err := tx.Payments.SaveUnlessCompleted(&updated)
		if err != nil {
			return err
		}
		if !applied {
			out = Outcome{Payment: current, Company: company}
			return nil
		}
		out.Changed = true
		out.Payment = &updated

		if out.Exhausted {
			return r.suspend(tx, company, now, &out)
		}
		return nil
	})
	if err != nil {
		return nil, dbError(err, "支付记录不存在")
	}

	r.after(&out)
	return &out, nil
}

// ConfirmManually 人工确认到账，在调用方事务内执行
func (r *Reconciler) ConfirmManually(tx *repository.Tx, payment *model.Payment, company *model.Company) (*Outcome, error) {
	now := r.now()
	out := Outcome{Payment: payment, Company: company}

	updated := *payment
	updated.Status = model.PaymentCompleted
	if updated.CompletedAt == nil {
		completedAt := now
		updated.CompletedAt = &completedAt
	}
	updated.FailureReason = ""
	updated.NextRetryDate = nil

	applied, err := tx.Payments.SaveUnlessCompleted(&updated)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, apperror.Conflict("该订单已确认")
	}
	out.Changed = true
	out.Completed = true
	out.Payment = &updated

	if err := r.activate(tx, company, updated, now, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SuspendExhausted 重试已用尽但公司仍为 active 时补做暂停
func (r *Reconciler) SuspendExhausted(companyID int64) (*Outcome, error) {
	now := r.now()
	var out Outcome

	err := r.transactor.Do(func(tx *repository.Tx) error {
		company, err := tx.Companies.GetByID(companyID)
		if err != nil {
			return err
		}
		out.Company = company
		return r.suspend(tx, company, now, &out)
	})
	if err != nil {
		return nil, dbError(err, "公司不存在")
	}

	if out.Suspended && r.notifier != nil {
		if err := r.notifier.SendSubscriptionSuspended(*out.Company); err != nil {
			r.log.WithError(err).WithField("company_id", companyID).Warn("failed to send notification")
		}
	}
	return &out, nil
}

// scheduleRetry 首次订阅的扣款失败不自动重试，由用户重新发起
func (r *Reconciler) scheduleRetry(p model.Payment, company *model.Company, now time.Time, out *Outcome) model.Payment {
	if company.PaymentDate == nil {
		return p
	}
	p, exhausted := r.policy.ScheduleRetry(p, now)
	out.Exhausted = exhausted
	out.RetryScheduled = !exhausted
	return p
}

func (r *Reconciler) activate(tx *repository.Tx, company *model.Company, payment model.Payment, now time.Time, out *Outcome) error {
	if company.SubscriptionStatus == model.SubscriptionCancelled {
		r.log.WithFields(logrus.Fields{
			"order_id":   payment.OrderID,
			"company_id": company.ID,
		}).Warn("payment completed for cancelled company")
		return nil
	}

	before := company.SubscriptionStatus
	updated, err := r.policy.ApplySuccessfulCharge(*company, payment, now)
	if err != nil {
		return apperror.Conflict("%v", err)
	}
	if err := tx.Companies.Update(&updated); err != nil {
		return err
	}
	*company = updated
	out.Company = company
	out.Activated = before != model.SubscriptionActive
	return nil
}

func (r *Reconciler) suspend(tx *repository.Tx, company *model.Company, now time.Time, out *Outcome) error {
	if !billing.CanTransition(company.SubscriptionStatus, model.SubscriptionSuspended) {
		return nil
	}
	updated, err := r.policy.TransitionStatus(*company, model.SubscriptionSuspended, now)
	if err != nil {
		return err
	}
	if err := tx.Companies.Update(&updated); err != nil {
		return err
	}
	*company = updated
	out.Company = company
	out.Suspended = true
	return nil
}

// after 事务提交后的通知与计数
func (r *Reconciler) after(out *Outcome) {
	if !out.Changed || out.Payment == nil {
		return
	}
	r.metrics.IncPaymentStatus(string(out.Payment.Status), string(out.Payment.PaymentMethod))

	if r.notifier == nil || out.Company == nil {
		return
	}
	logger := r.log.WithFields(logrus.Fields{
		"order_id":   out.Payment.OrderID,
		"company_id": out.Company.ID,
	})

	var err error
	switch {
	case out.Completed:
		err = r.notifier.SendPaymentConfirmed(*out.Company, *out.Payment)
	case out.Suspended:
		err = r.notifier.SendSubscriptionSuspended(*out.Company)
	case out.Failed && (out.RetryScheduled || out.Exhausted):
		err = r.notifier.SendChargeFailed(*out.Company, *out.Payment)
	}
	if err != nil {
		logger.WithError(err).Warn("failed to send notification")
	}
}
