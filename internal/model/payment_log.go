package model

import (
	"time"
)

// PaymentLog 人工确认银行转账的审计记录，只追加
type PaymentLog struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	OrderID     string    `gorm:"size:64;uniqueIndex;not null" json:"order_id"`
	CompanyID   int64     `gorm:"not null;index" json:"company_id"`
	ConfirmedBy string    `gorm:"size:50;not null;index" json:"confirmed_by"`
	Amount      int64     `json:"amount"`
	Notes       string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

func (PaymentLog) TableName() string {
	return "payment_logs"
}
