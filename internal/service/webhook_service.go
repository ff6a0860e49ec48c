package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qs3c/cake_billing_server/internal/model"
	"github.com/qs3c/cake_billing_server/internal/model/dto"
	"github.com/qs3c/cake_billing_server/internal/pkg/aur"
	"github.com/qs3c/cake_billing_server/internal/pkg/metrics"
	"github.com/qs3c/cake_billing_server/internal/pkg/queue"
	"github.com/qs3c/cake_billing_server/internal/repository"
)

// 回调处理结果
const (
	OutcomeApplied          = "applied"
	OutcomeUnchanged        = "unchanged"
	OutcomeUnknownOrder     = "unknown_order"
	OutcomeMalformed        = "malformed"
	OutcomeInvalidSignature = "invalid_signature"
	OutcomeQueued           = "queued"
	OutcomeError            = "error"
)

const (
	webhookResultsKey = "webhook:results"
	webhookResultsMax = 200
)

type WebhookService struct {
	payments   *repository.PaymentRepository
	reconciler *Reconciler
	queue      *queue.Queue
	rdb        *redis.Client
	secret     string
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
	now        func() time.Time
}

// NewWebhookService queue 为空时回调在请求内同步处理；rdb 为空时不保存处理结果
func NewWebhookService(
	payments *repository.PaymentRepository,
	reconciler *Reconciler,
	q *queue.Queue,
	rdb *redis.Client,
	secret string,
	m *metrics.Metrics,
	log logrus.FieldLogger,
) *WebhookService {
	return &WebhookService{
		payments:   payments,
		reconciler: reconciler,
		queue:      q,
		rdb:        rdb,
		secret:     secret,
		metrics:    m,
		log:        log,
		now:        defaultNow,
	}
}

// Receive 接收网关回调。外层确认始终成功；内层处理结果单独返回，只用于日志与统计。
func (s *WebhookService) Receive(ctx context.Context, body []byte, signature string) (dto.WebhookAck, dto.WebhookResult) {
	ack := dto.WebhookAck{Received: true}
	result := dto.WebhookResult{ReceivedAt: s.now().Format(dateTimeLayout)}

	if !aur.VerifySignature(body, signature, s.secret) {
		result.Outcome = OutcomeInvalidSignature
		s.record(ctx, result)
		return ack, result
	}

	event := aur.ParseWebhook(body)
	result.OrderID = event.OrderID
	result.Token = event.Token
	result.Status = event.Status
	if event.Err != nil {
		result.Outcome = OutcomeMalformed
		result.Error = event.Err.Error()
		s.record(ctx, result)
		return ack, result
	}

	if s.queue != nil {
		err := s.queue.Push(ctx, &queue.WebhookMessage{
			OrderID:       event.OrderID,
			Token:         event.Token,
			Status:        event.Status,
			TransactionID: event.TransactionID,
			Message:       event.Message,
			Raw:           event.Raw,
			ReceivedAt:    s.now(),
		})
		if err == nil {
			result.Outcome = OutcomeQueued
			s.record(ctx, result)
			return ack, result
		}
		s.log.WithError(err).WithField("order_id", event.OrderID).Warn("webhook enqueue failed, processing inline")
	}

	return ack, s.Process(ctx, event)
}

// Process 处理一条已归一化的回调，错误只记录不外抛
func (s *WebhookService) Process(ctx context.Context, event aur.Event) dto.WebhookResult {
	result := dto.WebhookResult{
		OrderID:    event.OrderID,
		Token:      event.Token,
		Status:     event.Status,
		ReceivedAt: s.now().Format(dateTimeLayout),
	}

	payment, err := s.lookup(event)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		result.Outcome = OutcomeUnknownOrder
	case err != nil:
		result.Outcome = OutcomeError
		result.Error = err.Error()
	default:
		out, err := s.reconciler.ApplyResult(payment.ID, event.Result())
		switch {
		case err != nil:
			result.Outcome = OutcomeError
			result.Error = err.Error()
		case out.Changed:
			result.Outcome = OutcomeApplied
			result.OrderID = out.Payment.OrderID
		default:
			result.Outcome = OutcomeUnchanged
			result.OrderID = out.Payment.OrderID
		}
	}

	s.record(ctx, result)
	return result
}

// ProcessMessage 队列消费入口
func (s *WebhookService) ProcessMessage(ctx context.Context, msg *queue.WebhookMessage) dto.WebhookResult {
	return s.Process(ctx, aur.Event{
		OrderID:       msg.OrderID,
		Token:         msg.Token,
		Status:        msg.Status,
		TransactionID: msg.TransactionID,
		Message:       msg.Message,
		Raw:           msg.Raw,
	})
}

// RecentResults 最近的回调处理结果，最新在前
func (s *WebhookService) RecentResults(ctx context.Context, limit int) ([]dto.WebhookResult, error) {
	if s.rdb == nil {
		return []dto.WebhookResult{}, nil
	}
	if limit <= 0 || limit > webhookResultsMax {
		limit = 50
	}

	items, err := s.rdb.LRange(ctx, webhookResultsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	results := make([]dto.WebhookResult, 0, len(items))
	for _, item := range items {
		var r dto.WebhookResult
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

// lookup 订单号优先，其次网关 token
func (s *WebhookService) lookup(event aur.Event) (*model.Payment, error) {
	if event.OrderID != "" {
		payment, err := s.payments.GetByOrderID(event.OrderID)
		if err == nil || !errors.Is(err, gorm.ErrRecordNotFound) || event.Token == "" {
			return payment, err
		}
	}
	if event.Token == "" {
		return nil, gorm.ErrRecordNotFound
	}
	return s.payments.GetByToken(event.Token)
}

func (s *WebhookService) record(ctx context.Context, result dto.WebhookResult) {
	s.metrics.IncWebhook(result.Outcome)

	logger := s.log.WithFields(logrus.Fields{
		"order_id": result.OrderID,
		"token":    result.Token,
		"status":   result.Status,
		"outcome":  result.Outcome,
	})
	switch result.Outcome {
	case OutcomeError:
		logger.WithField("error", result.Error).Error("webhook processing failed")
	case OutcomeMalformed, OutcomeInvalidSignature, OutcomeUnknownOrder:
		logger.Warn("webhook ignored")
	default:
		logger.Info("webhook handled")
	}

	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, webhookResultsKey, data)
	pipe.LTrim(ctx, webhookResultsKey, 0, webhookResultsMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.WithError(err).Warn("failed to store webhook result")
	}
}
