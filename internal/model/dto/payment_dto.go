package dto

type PaymentSummary struct {
	OrderID            string `json:"orderId"`
	CompanyID          int64  `json:"companyId"`
	Amount             int64  `json:"amount"`
	Status             string `json:"status"`
	PaymentMethod      string `json:"paymentMethod"`
	AurStatus          string `json:"aurStatus,omitempty"`
	AurTransactionID   string `json:"aurTransactionId,omitempty"`
	FailureReason      string `json:"failureReason,omitempty"`
	BillingPeriodStart string `json:"billingPeriodStart"`
	BillingPeriodEnd   string `json:"billingPeriodEnd"`
	RetryCount         int    `json:"retryCount"`
	NextRetryDate      string `json:"nextRetryDate,omitempty"`
	CompletedAt        string `json:"completedAt,omitempty"`
	IsSuccessful       bool   `json:"isSuccessful"`
	IsFailed           bool   `json:"isFailed"`
	IsPending          bool   `json:"isPending"`
}

// SweepSummary 周期扣款批处理结果
type SweepSummary struct {
	Billed    int     `json:"billed"`
	Failed    int     `json:"failed"`
	Retried   int     `json:"retried"`
	Suspended int     `json:"suspended"`
	Skipped   int     `json:"skipped"`
	Errors    int     `json:"errors"`
	DryRun    bool    `json:"dryRun,omitempty"`
	Due       []int64 `json:"due,omitempty"` // dry-run 时列出到期公司
	StartedAt string  `json:"startedAt"`
	Duration  string  `json:"duration"`
}

// BillingStats GET /billing/process 返回的统计
type BillingStats struct {
	ActiveCompanies    int64         `json:"activeCompanies"`
	SuspendedCompanies int64         `json:"suspendedCompanies"`
	DueCompanies       int64         `json:"dueCompanies"`
	PendingPayments    int64         `json:"pendingPayments"`
	RetryingPayments   int64         `json:"retryingPayments"`
	LastSweep          *SweepSummary `json:"lastSweep,omitempty"`
}

// WebhookAck 回调外层确认，始终成功
type WebhookAck struct {
	Received bool `json:"received"`
}

// WebhookResult 回调内层处理结果，只记录不返回给网关
type WebhookResult struct {
	OrderID    string `json:"orderId,omitempty"`
	Token      string `json:"token,omitempty"`
	Status     string `json:"status,omitempty"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	ReceivedAt string `json:"receivedAt"`
}
