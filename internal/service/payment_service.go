package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/cake_billing_server/internal/billing"
	"github.com/qs3c/cake_billing_server/internal/model"
	"github.com/qs3c/cake_billing_server/internal/model/dto"
	"github.com/qs3c/cake_billing_server/internal/pkg/apperror"
	"github.com/qs3c/cake_billing_server/internal/pkg/metrics"
	"github.com/qs3c/cake_billing_server/internal/repository"
)

const pollBatchSize = 100

type PaymentService struct {
	payments   *repository.PaymentRepository
	reconciler *Reconciler
	gateway    Gateway
	pollAfter  time.Duration
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
	now        func() time.Time
}

func NewPaymentService(
	payments *repository.PaymentRepository,
	reconciler *Reconciler,
	gateway Gateway,
	pollAfter time.Duration,
	m *metrics.Metrics,
	log logrus.FieldLogger,
) *PaymentService {
	return &PaymentService{
		payments:   payments,
		reconciler: reconciler,
		gateway:    gateway,
		pollAfter:  pollAfter,
		metrics:    m,
		log:        log,
		now:        defaultNow,
	}
}

// SetClock 测试用
func (s *PaymentService) SetClock(now func() time.Time) {
	s.now = now
}

// GetStatus 按订单号或网关 token 查询支付，refresh 时向网关轮询一次最新状态
func (s *PaymentService) GetStatus(ctx context.Context, orderID, token string, refresh bool) (*dto.PaymentSummary, error) {
	var (
		payment *model.Payment
		err     error
	)
	switch {
	case orderID != "":
		payment, err = s.payments.GetByOrderID(orderID)
	case token != "":
		payment, err = s.payments.GetByToken(token)
	default:
		return nil, apperror.Validation("需要提供 orderId 或 token")
	}
	if err != nil {
		return nil, dbError(err, "支付记录不存在")
	}

	if refresh && pollable(payment) {
		if refreshed, err := s.refresh(ctx, payment); err != nil {
			// 轮询失败不影响查询，返回库里的状态
			s.log.WithError(err).WithField("order_id", payment.OrderID).Warn("payment status refresh failed")
		} else {
			payment = refreshed
		}
	}

	return toPaymentSummary(payment), nil
}

// PollStale 轮询长时间停留在 processing 的支付，作为 webhook 丢失时的兜底
func (s *PaymentService) PollStale(ctx context.Context) (int, error) {
	before := s.now().Add(-s.pollAfter)
	stale, err := s.payments.ListStaleProcessing(before, pollBatchSize)
	if err != nil {
		return 0, dbError(err, "")
	}

	updated := 0
	for _, payment := range stale {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		refreshed, err := s.refresh(ctx, payment)
		if err != nil {
			s.log.WithError(err).WithField("order_id", payment.OrderID).Warn("poll failed")
			continue
		}
		if refreshed.Status != payment.Status || refreshed.AurStatus != payment.AurStatus {
			updated++
		}
	}

	if len(stale) > 0 {
		s.log.WithFields(logrus.Fields{
			"checked": len(stale),
			"updated": updated,
		}).Info("stale payment poll finished")
	}
	return updated, nil
}

func (s *PaymentService) refresh(ctx context.Context, payment *model.Payment) (*model.Payment, error) {
	status, err := s.gateway.CheckTransactionStatus(ctx, payment.AurToken)
	if err != nil {
		s.metrics.IncGatewayCall("check_status", "error")
		return nil, apperror.Gateway(err, "查询网关状态失败")
	}
	s.metrics.IncGatewayCall("check_status", "ok")

	out, err := s.reconciler.ApplyResult(payment.ID, status.Result())
	if err != nil {
		return nil, err
	}
	return out.Payment, nil
}

func pollable(p *model.Payment) bool {
	return p.PaymentMethod == model.MethodAur && p.AurToken != "" && billing.IsPending(*p)
}
