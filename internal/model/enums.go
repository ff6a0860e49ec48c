package model

import "fmt"

// SubscriptionStatus 公司订阅状态
type SubscriptionStatus string

const (
	SubscriptionPendingPayment SubscriptionStatus = "pending_payment"
	SubscriptionActive         SubscriptionStatus = "active"
	SubscriptionSuspended      SubscriptionStatus = "suspended"
	SubscriptionCancelled      SubscriptionStatus = "cancelled"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionPendingPayment, SubscriptionActive, SubscriptionSuspended, SubscriptionCancelled:
		return true
	}
	return false
}

// Tier 订阅档位，由员工人数决定
type Tier string

const (
	TierSmall      Tier = "small"
	TierMedium     Tier = "medium"
	TierLarge      Tier = "large"
	TierEnterprise Tier = "enterprise"
)

func (t Tier) Valid() bool {
	switch t {
	case TierSmall, TierMedium, TierLarge, TierEnterprise:
		return true
	}
	return false
}

// CakeSize 蛋糕尺寸
type CakeSize string

const (
	CakeSmall      CakeSize = "small"
	CakeMedium     CakeSize = "medium"
	CakeLarge      CakeSize = "large"
	CakeExtraLarge CakeSize = "extra-large"
)

func (c CakeSize) Valid() bool {
	switch c {
	case CakeSmall, CakeMedium, CakeLarge, CakeExtraLarge:
		return true
	}
	return false
}

func ParseCakeSize(s string) (CakeSize, error) {
	size := CakeSize(s)
	if !size.Valid() {
		return "", fmt.Errorf("unknown cake size %q", s)
	}
	return size, nil
}

// PaymentStatus 支付记录状态
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentRefunded   PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed, PaymentCancelled, PaymentRefunded:
		return true
	}
	return false
}

// PaymentMethod 支付方式
type PaymentMethod string

const (
	MethodAur          PaymentMethod = "aur"
	MethodStripe       PaymentMethod = "stripe"
	MethodPaypal       PaymentMethod = "paypal"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodAur, MethodStripe, MethodPaypal, MethodBankTransfer:
		return true
	}
	return false
}
