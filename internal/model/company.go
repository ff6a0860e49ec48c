package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Employee 受益员工，归属于公司，没有独立身份
type Employee struct {
	Name     string    `json:"name"`
	Birthday time.Time `json:"birthday"` // 只使用月、日
	CakeType string    `json:"cake_type"`
	CakeSize CakeSize  `json:"cake_size"`
	Notes    string    `json:"notes,omitempty"`
}

// EmployeeList 以 JSON 列存储员工名单
type EmployeeList []Employee

func (l EmployeeList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *EmployeeList) Scan(value interface{}) error {
	if value == nil {
		*l = EmployeeList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported employee list type %T", value)
	}
	return json.Unmarshal(data, l)
}

type Company struct {
	ID                 int64              `gorm:"primaryKey" json:"id"`
	Name               string             `gorm:"size:200;uniqueIndex;not null" json:"name"`
	Email              string             `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Phone              string             `gorm:"size:7;uniqueIndex;not null" json:"phone"`
	Employees          EmployeeList       `gorm:"type:json" json:"employees"`
	SubscriptionStatus SubscriptionStatus `gorm:"size:20;default:pending_payment;index" json:"subscription_status"`
	SubscriptionTier   Tier               `gorm:"size:20" json:"subscription_tier"`
	MonthlyCost        int64              `json:"monthly_cost"`
	NextBillingDate    time.Time          `gorm:"index" json:"next_billing_date"`
	PaymentDate        *time.Time         `json:"payment_date,omitempty"`
	LastPaymentDate    *time.Time         `json:"last_payment_date,omitempty"`
	OrderID            *string            `gorm:"size:64;uniqueIndex" json:"order_id,omitempty"` // 发起支付后才分配
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func (Company) TableName() string {
	return "companies"
}
