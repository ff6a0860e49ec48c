package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Queue struct {
	client    *redis.Client
	queueName string
}

// WebhookMessage 已确认收到、等待处理的网关回调
type WebhookMessage struct {
	OrderID       string    `json:"order_id"`
	Token         string    `json:"token"`
	Status        string    `json:"status"`
	TransactionID string    `json:"transaction_id"`
	Message       string    `json:"message,omitempty"`
	Raw           string    `json:"raw"`
	ReceivedAt    time.Time `json:"received_at"`
	Attempts      int       `json:"attempts,omitempty"` // 已处理失败的次数
}

func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:    client,
		queueName: queueName,
	}
}

// Push 将回调加入队列
func (q *Queue) Push(ctx context.Context, msg *WebhookMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.client.LPush(ctx, q.queueName, data).Err()
}

// Pop 从队列获取回调（阻塞）
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*WebhookMessage, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 超时，无消息
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var msg WebhookMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

// Length 获取队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}
