package model

import (
	"time"
)

type Payment struct {
	ID                 int64         `gorm:"primaryKey" json:"id"`
	OrderID            string        `gorm:"size:64;uniqueIndex;not null" json:"order_id"`
	CompanyID          int64         `gorm:"not null;uniqueIndex:idx_payment_company_period,priority:1" json:"company_id"`
	Amount             int64         `gorm:"not null" json:"amount"`
	Description        string        `gorm:"size:255" json:"description,omitempty"`
	Status             PaymentStatus `gorm:"size:20;default:pending;index" json:"status"`
	PaymentMethod      PaymentMethod `gorm:"size:20;default:aur" json:"payment_method"`
	AurToken           string        `gorm:"size:128;index" json:"aur_token,omitempty"`
	AurTransactionID   string        `gorm:"size:128" json:"aur_transaction_id,omitempty"`
	AurStatus          string        `gorm:"size:32" json:"aur_status,omitempty"`
	AurResponse        string        `gorm:"type:text" json:"-"` // 网关原始响应
	FailureReason      string        `gorm:"type:text" json:"failure_reason,omitempty"`
	BillingPeriodStart time.Time     `gorm:"uniqueIndex:idx_payment_company_period,priority:2" json:"billing_period_start"` // 每个公司每个周期只有一笔支付
	BillingPeriodEnd   time.Time     `json:"billing_period_end"`
	RetryCount         int           `gorm:"default:0" json:"retry_count"`
	NextRetryDate      *time.Time    `gorm:"index" json:"next_retry_date,omitempty"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
	CreatedAt          time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}
