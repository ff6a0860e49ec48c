package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/cake_billing_server/internal/model/dto"
	"github.com/qs3c/cake_billing_server/internal/pkg/queue"
)

const (
	defaultPopTimeout  = 5 * time.Second
	defaultMaxAttempts = 3
)

// Source 回调队列，处理出错的消息重新入队
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.WebhookMessage, error)
	Push(ctx context.Context, msg *queue.WebhookMessage) error
}

// Processor 处理单条回调
type Processor interface {
	ProcessMessage(ctx context.Context, msg *queue.WebhookMessage) dto.WebhookResult
}

// Consumer 从 Redis 队列消费网关回调
type Consumer struct {
	source      Source
	processor   Processor
	workers     int
	popTimeout  time.Duration
	maxAttempts int
	log         logrus.FieldLogger
}

func NewConsumer(source Source, processor Processor, workers int, log logrus.FieldLogger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		source:      source,
		processor:   processor,
		workers:     workers,
		popTimeout:  defaultPopTimeout,
		maxAttempts: defaultMaxAttempts,
		log:         log,
	}
}

// WithPopTimeout 调整阻塞等待时长
func (c *Consumer) WithPopTimeout(d time.Duration) *Consumer {
	if d > 0 {
		c.popTimeout = d
	}
	return c
}

// WithMaxAttempts 单条消息最多处理几次
func (c *Consumer) WithMaxAttempts(n int) *Consumer {
	if n > 0 {
		c.maxAttempts = n
	}
	return c
}

// Run 阻塞直到 ctx 取消且所有 worker 退出
func (c *Consumer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.loop(ctx, workerID)
		}(i)
	}
	c.log.WithField("workers", c.workers).Info("webhook consumer started")

	wg.Wait()
	c.log.Info("webhook consumer stopped")
}

func (c *Consumer) loop(ctx context.Context, workerID int) {
	logger := c.log.WithField("worker", workerID)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := c.source.Pop(ctx, c.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Warn("failed to pop webhook")
			// 避免 Redis 故障时空转
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if msg == nil {
			continue
		}

		result := c.processor.ProcessMessage(ctx, msg)
		entry := logger.WithFields(logrus.Fields{
			"order_id": result.OrderID,
			"status":   result.Status,
			"outcome":  result.Outcome,
		})
		if result.Error == "" {
			entry.Debug("webhook processed")
			continue
		}
		c.retry(ctx, entry.WithField("error", result.Error), msg)
	}
}

// retry 处理出错（如数据库暂时不可用）的消息放回队尾，超过次数后丢弃，由轮询兜底
func (c *Consumer) retry(ctx context.Context, logger logrus.FieldLogger, msg *queue.WebhookMessage) {
	msg.Attempts++
	logger = logger.WithField("attempts", msg.Attempts)
	if msg.Attempts >= c.maxAttempts {
		logger.Error("webhook dropped after repeated failures")
		return
	}
	if err := c.source.Push(ctx, msg); err != nil {
		logger.WithError(err).Error("failed to requeue webhook")
		return
	}
	logger.Warn("webhook requeued")
}
