package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/cake_billing_server/internal/model"
)

func TestApplyGatewayResult_Success(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := model.Payment{Status: model.PaymentProcessing, PaymentMethod: model.MethodAur}

	got, changed := ApplyGatewayResult(p, GatewayResult{Status: "paid", TransactionID: "TX1", Raw: `{"a":1}`}, now)
	assert.True(t, changed)
	assert.Equal(t, model.PaymentCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, now, *got.CompletedAt)
	assert.Equal(t, ProviderPaid, got.AurStatus)
	assert.Equal(t, "TX1", got.AurTransactionID)
	assert.True(t, IsSuccessful(got))
}

func TestApplyGatewayResult_Idempotent(t *testing.T) {
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := model.Payment{Status: model.PaymentProcessing, PaymentMethod: model.MethodAur}
	result := GatewayResult{Status: ProviderPaid, TransactionID: "TX1"}

	once, _ := ApplyGatewayResult(p, result, first)
	twice, changed := ApplyGatewayResult(once, result, first.Add(time.Hour))

	assert.False(t, changed)
	assert.Equal(t, once.Status, twice.Status)
	assert.Equal(t, *once.CompletedAt, *twice.CompletedAt)
}

func TestApplyGatewayResult_CompletedIsSticky(t *testing.T) {
	now := time.Now()
	p := model.Payment{Status: model.PaymentProcessing, PaymentMethod: model.MethodAur}
	p, _ = ApplyGatewayResult(p, GatewayResult{Status: ProviderPaid}, now)

	got, changed := ApplyGatewayResult(p, GatewayResult{Status: ProviderCancelled, Raw: "late"}, now)
	assert.False(t, changed)
	assert.Equal(t, model.PaymentCompleted, got.Status)
	assert.Equal(t, ProviderPaid, got.AurStatus)
}

func TestApplyGatewayResult_Failure(t *testing.T) {
	p := model.Payment{Status: model.PaymentProcessing}

	got, changed := ApplyGatewayResult(p, GatewayResult{Status: ProviderCancelled}, time.Now())
	assert.True(t, changed)
	assert.Equal(t, model.PaymentFailed, got.Status)
	assert.NotEmpty(t, got.FailureReason)
	assert.Nil(t, got.CompletedAt)
	assert.True(t, IsFailed(got))

	_, changed = ApplyGatewayResult(got, GatewayResult{Status: ProviderCancelled}, time.Now())
	assert.False(t, changed)
}

func TestApplyGatewayResult_NonTerminal(t *testing.T) {
	p := model.Payment{Status: model.PaymentPending}

	got, changed := ApplyGatewayResult(p, GatewayResult{Status: "WAITING_FOR_USER"}, time.Now())
	assert.True(t, changed)
	assert.Equal(t, model.PaymentPending, got.Status)
	assert.Equal(t, "WAITING_FOR_USER", got.AurStatus)

	_, changed = ApplyGatewayResult(got, GatewayResult{Status: "WAITING_FOR_USER"}, time.Now())
	assert.False(t, changed)
}

func TestApplyGatewayResult_RecoversFailedPayment(t *testing.T) {
	next := time.Now().Add(24 * time.Hour)
	p := model.Payment{Status: model.PaymentFailed, RetryCount: 1, NextRetryDate: &next, PaymentMethod: model.MethodAur}

	got, changed := ApplyGatewayResult(p, GatewayResult{Status: ProviderPaid}, time.Now())
	assert.True(t, changed)
	assert.Equal(t, model.PaymentCompleted, got.Status)
	assert.Nil(t, got.NextRetryDate)
}

func TestScheduleRetry(t *testing.T) {
	pol := DefaultPolicy()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := model.Payment{Status: model.PaymentFailed}

	p, exhausted := pol.ScheduleRetry(p, now)
	assert.False(t, exhausted)
	assert.Equal(t, 1, p.RetryCount)
	require.NotNil(t, p.NextRetryDate)
	assert.Equal(t, now.AddDate(0, 0, 1), *p.NextRetryDate)

	p, exhausted = pol.ScheduleRetry(p, now)
	assert.False(t, exhausted)
	assert.Equal(t, 2, p.RetryCount)
	assert.Equal(t, now.AddDate(0, 0, 3), *p.NextRetryDate)

	p, exhausted = pol.ScheduleRetry(p, now)
	assert.True(t, exhausted)
	assert.Equal(t, 3, p.RetryCount)
	assert.Nil(t, p.NextRetryDate)

	// 超过上限不再累加
	p, exhausted = pol.ScheduleRetry(p, now)
	assert.True(t, exhausted)
	assert.Equal(t, 3, p.RetryCount)
	assert.Nil(t, p.NextRetryDate)
}

func TestScheduleRetry_LongerPolicyUsesBackoffTable(t *testing.T) {
	pol := Policy{Period: 30 * 24 * time.Hour, MaxRetries: 5, BackoffDays: []int{1, 3, 7}}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := model.Payment{}

	var want = []int{1, 3, 7, 7}
	for _, days := range want {
		var exhausted bool
		p, exhausted = pol.ScheduleRetry(p, now)
		require.False(t, exhausted)
		assert.Equal(t, now.AddDate(0, 0, days), *p.NextRetryDate)
	}
	_, exhausted := pol.ScheduleRetry(p, now)
	assert.True(t, exhausted)
}

func TestMarkChargeInitiated(t *testing.T) {
	p := model.Payment{Status: model.PaymentPending}
	got, changed := MarkChargeInitiated(p, "tok")
	assert.True(t, changed)
	assert.Equal(t, model.PaymentProcessing, got.Status)
	assert.Equal(t, "tok", got.AurToken)

	done := model.Payment{Status: model.PaymentCompleted}
	_, changed = MarkChargeInitiated(done, "tok")
	assert.False(t, changed)
	_, changed = MarkChargeFailed(done, "timeout")
	assert.False(t, changed)
}

// 从初始状态出发，枚举所有可达的支付状态，验证三个谓词两两互斥
func TestPredicates_MutuallyExclusive(t *testing.T) {
	pol := DefaultPolicy()
	now := time.Now()

	codes := []string{ProviderPaid, ProviderCancelled, ProviderFailed, ProviderExpired, ProviderRejected, ProviderPending, ProviderCreated, "OTHER", ""}
	steps := []func(model.Payment) model.Payment{
		func(p model.Payment) model.Payment { p, _ = MarkChargeInitiated(p, "tok"); return p },
		func(p model.Payment) model.Payment { p, _ = MarkChargeFailed(p, "timeout"); return p },
		func(p model.Payment) model.Payment { p, _ = pol.ScheduleRetry(p, now); return p },
	}
	for _, code := range codes {
		code := code
		steps = append(steps, func(p model.Payment) model.Payment {
			p, _ = ApplyGatewayResult(p, GatewayResult{Status: code}, now)
			return p
		})
	}

	starts := []model.Payment{
		{Status: model.PaymentPending, PaymentMethod: model.MethodAur},
		{Status: model.PaymentPending, PaymentMethod: model.MethodBankTransfer},
		{Status: model.PaymentCancelled, PaymentMethod: model.MethodAur},
	}

	seen := 0
	frontier := starts
	for depth := 0; depth < 3; depth++ {
		var next []model.Payment
		for _, p := range frontier {
			checkExclusive(t, p)
			seen++
			for _, step := range steps {
				next = append(next, step(p))
			}
		}
		frontier = next
	}
	for _, p := range frontier {
		checkExclusive(t, p)
		seen++
	}
	assert.Greater(t, seen, 100)
}

func checkExclusive(t *testing.T, p model.Payment) {
	t.Helper()
	count := 0
	for _, v := range []bool{IsSuccessful(p), IsFailed(p), IsPending(p)} {
		if v {
			count++
		}
	}
	assert.LessOrEqual(t, count, 1, "predicates overlap for status=%s aur=%s", p.Status, p.AurStatus)
}

func TestApplyGatewayResult_IgnoresOtherAttempt(t *testing.T) {
	p := model.Payment{Status: model.PaymentProcessing, AurToken: "tok-2", RetryCount: 1}

	got, changed := ApplyGatewayResult(p, GatewayResult{Status: ProviderFailed, Token: "tok-1"}, time.Now())
	assert.False(t, changed)
	assert.Equal(t, model.PaymentProcessing, got.Status)

	got, changed = ApplyGatewayResult(p, GatewayResult{Status: ProviderFailed, Token: "tok-2"}, time.Now())
	assert.True(t, changed)
	assert.Equal(t, model.PaymentFailed, got.Status)
}

func TestBeginRetryAttempt(t *testing.T) {
	retryAt := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	p := model.Payment{
		OrderID:          "ORD-1",
		Status:           model.PaymentFailed,
		AurToken:         "tok-1",
		AurStatus:        ProviderFailed,
		AurTransactionID: "tx-1",
		RetryCount:       1,
		NextRetryDate:    &retryAt,
	}

	got, ok := BeginRetryAttempt(p, "ORD-2")
	require.True(t, ok)
	assert.Equal(t, "ORD-2", got.OrderID)
	assert.Empty(t, got.AurToken)
	assert.Empty(t, got.AurStatus)
	assert.Empty(t, got.AurTransactionID)
	assert.Nil(t, got.NextRetryDate)
	assert.Equal(t, 1, got.RetryCount)

	for _, status := range []model.PaymentStatus{model.PaymentProcessing, model.PaymentCompleted, model.PaymentCancelled} {
		p.Status = status
		_, ok = BeginRetryAttempt(p, "ORD-3")
		assert.False(t, ok, status)
	}
}
