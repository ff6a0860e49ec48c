package billing

import (
	"time"

	"github.com/qs3c/cake_billing_server/config"
)

// Policy 计费周期与重试策略
type Policy struct {
	Period      time.Duration
	MaxRetries  int
	BackoffDays []int
}

func NewPolicy(cfg config.BillingConfig) Policy {
	cfg = cfg.Defaults()
	return Policy{
		Period:      cfg.Period(),
		MaxRetries:  cfg.MaxRetries,
		BackoffDays: cfg.RetryBackoffDays,
	}
}

// DefaultPolicy 30 天周期，最多 3 次重试，退避 1/3/7 天
func DefaultPolicy() Policy {
	return NewPolicy(config.BillingConfig{})
}

// backoff 第 n 次重试（从 1 开始）的等待时间，超出表长度时取最后一项
func (p Policy) backoff(retry int) time.Duration {
	if len(p.BackoffDays) == 0 || retry <= 0 {
		return 24 * time.Hour
	}
	idx := retry - 1
	if idx >= len(p.BackoffDays) {
		idx = len(p.BackoffDays) - 1
	}
	return time.Duration(p.BackoffDays[idx]) * 24 * time.Hour
}
