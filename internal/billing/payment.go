package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/qs3c/cake_billing_server/internal/model"
)

// 网关状态码
const (
	ProviderPaid       = "PAID"
	ProviderCancelled  = "CANCELLED"
	ProviderFailed     = "FAILED"
	ProviderExpired    = "EXPIRED"
	ProviderRejected   = "REJECTED"
	ProviderPending    = "PENDING"
	ProviderCreated    = "CREATED"
	ProviderProcessing = "PROCESSING"
)

// GatewayResult 网关返回（webhook 或轮询）的归一化结果
type GatewayResult struct {
	Status        string
	Token         string // 为空时不校验所属的扣款尝试
	TransactionID string
	Message       string
	Raw           string
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func IsTerminalSuccess(code string) bool {
	return normalizeCode(code) == ProviderPaid
}

// IsTerminalFailure 失败或取消类终态
func IsTerminalFailure(code string) bool {
	switch normalizeCode(code) {
	case ProviderCancelled, ProviderFailed, ProviderExpired, ProviderRejected:
		return true
	}
	return false
}

func IsTerminal(code string) bool {
	return IsTerminalSuccess(code) || IsTerminalFailure(code)
}

// sticky 这些状态一旦写入，网关结果不再改变它们
func sticky(status model.PaymentStatus) bool {
	switch status {
	case model.PaymentCompleted, model.PaymentCancelled, model.PaymentRefunded:
		return true
	}
	return false
}

// ApplyGatewayResult 把网关状态映射到支付记录上，返回新副本以及是否有变化。
// 对同一终态重复调用不会再改变 completedAt 或 status。
func ApplyGatewayResult(p model.Payment, r GatewayResult, now time.Time) (model.Payment, bool) {
	if sticky(p.Status) {
		return p, false
	}
	// 旧扣款尝试的结果
	if r.Token != "" && p.AurToken != "" && r.Token != p.AurToken {
		return p, false
	}

	code := normalizeCode(r.Status)
	switch {
	case IsTerminalSuccess(code):
		p.Status = model.PaymentCompleted
		if p.CompletedAt == nil {
			completedAt := now
			p.CompletedAt = &completedAt
		}
		p.AurStatus = code
		p.FailureReason = ""
		p.NextRetryDate = nil
		if r.TransactionID != "" {
			p.AurTransactionID = r.TransactionID
		}
		if r.Raw != "" {
			p.AurResponse = r.Raw
		}
		return p, true

	case IsTerminalFailure(code):
		if p.Status == model.PaymentFailed && p.AurStatus == code {
			return p, false
		}
		p.Status = model.PaymentFailed
		p.AurStatus = code
		p.FailureReason = r.Message
		if p.FailureReason == "" {
			p.FailureReason = fmt.Sprintf("gateway reported %s", code)
		}
		if r.TransactionID != "" {
			p.AurTransactionID = r.TransactionID
		}
		if r.Raw != "" {
			p.AurResponse = r.Raw
		}
		return p, true

	default:
		if code == "" || p.AurStatus == code {
			return p, false
		}
		p.AurStatus = code
		if r.Raw != "" {
			p.AurResponse = r.Raw
		}
		return p, true
	}
}

// MarkChargeFailed 发起扣款本身失败（网关错误或超时）
func MarkChargeFailed(p model.Payment, reason string) (model.Payment, bool) {
	if sticky(p.Status) {
		return p, false
	}
	p.Status = model.PaymentFailed
	p.FailureReason = reason
	return p, true
}

// MarkChargeInitiated 网关已受理扣款请求，等待回调
func MarkChargeInitiated(p model.Payment, token string) (model.Payment, bool) {
	if sticky(p.Status) {
		return p, false
	}
	p.Status = model.PaymentProcessing
	p.AurToken = token
	p.AurStatus = ""
	p.FailureReason = ""
	p.NextRetryDate = nil
	return p, true
}

// BeginRetryAttempt 为失败的支付开启新一次扣款尝试。
// 新尝试使用新的订单号，并清空上一次尝试的网关字段，之后到达的旧回调查不到这条支付。
func BeginRetryAttempt(p model.Payment, orderID string) (model.Payment, bool) {
	if p.Status != model.PaymentFailed || orderID == "" {
		return p, false
	}
	p.OrderID = orderID
	p.AurToken = ""
	p.AurStatus = ""
	p.AurTransactionID = ""
	p.NextRetryDate = nil
	return p, true
}

// ScheduleRetry 记录一次扣款失败并安排下一次重试。
// 使 retryCount 达到上限的那次失败为终态：不再安排重试，exhausted 返回 true。
// 默认策略下第三次失败即终态，退避表的第三项只在 MaxRetries 大于 3 时用到。
func (pol Policy) ScheduleRetry(p model.Payment, now time.Time) (model.Payment, bool) {
	if p.RetryCount >= pol.MaxRetries {
		p.NextRetryDate = nil
		return p, true
	}

	p.RetryCount++
	if p.RetryCount >= pol.MaxRetries {
		p.NextRetryDate = nil
		return p, true
	}

	next := now.Add(pol.backoff(p.RetryCount))
	p.NextRetryDate = &next
	return p, false
}

// RetryExhausted 是否已经用完重试次数
func (pol Policy) RetryExhausted(p model.Payment) bool {
	return p.RetryCount >= pol.MaxRetries
}

// IsSuccessful 已完成且网关确认支付；人工确认的银行转账没有网关状态
func IsSuccessful(p model.Payment) bool {
	if p.Status != model.PaymentCompleted {
		return false
	}
	if p.PaymentMethod == model.MethodBankTransfer {
		return true
	}
	return IsTerminalSuccess(p.AurStatus)
}

func IsFailed(p model.Payment) bool {
	if p.Status == model.PaymentFailed || p.Status == model.PaymentCancelled {
		return true
	}
	return IsTerminalFailure(p.AurStatus)
}

func IsPending(p model.Payment) bool {
	if p.Status != model.PaymentPending && p.Status != model.PaymentProcessing {
		return false
	}
	return !IsTerminal(p.AurStatus)
}
