package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/qs3c/cake_billing_server/internal/model"
)

var ErrInvalidTransition = errors.New("invalid subscription status transition")

// CanTransition 订阅状态迁移表
func CanTransition(from, to model.SubscriptionStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if to == model.SubscriptionCancelled {
		return true
	}
	switch from {
	case model.SubscriptionPendingPayment:
		return to == model.SubscriptionActive || to == model.SubscriptionSuspended
	case model.SubscriptionActive:
		return to == model.SubscriptionSuspended
	case model.SubscriptionSuspended:
		return to == model.SubscriptionActive
	case model.SubscriptionCancelled:
		return false
	}
	return false
}

// TransitionStatus 返回迁移后的公司副本。
// 进入 active 时记录付款时间，并把下次扣款日设为 now + 一个周期。
func (p Policy) TransitionStatus(c model.Company, to model.SubscriptionStatus, now time.Time) (model.Company, error) {
	if !CanTransition(c.SubscriptionStatus, to) {
		return c, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.SubscriptionStatus, to)
	}

	switch to {
	case model.SubscriptionActive:
		paidAt := now
		if c.PaymentDate == nil {
			c.PaymentDate = &paidAt
		}
		c.LastPaymentDate = &paidAt
		c.NextBillingDate = now.Add(p.Period)
	case model.SubscriptionCancelled:
		cancelledAt := now
		c.CancelledAt = &cancelledAt
	case model.SubscriptionPendingPayment, model.SubscriptionSuspended:
	}

	c.SubscriptionStatus = to
	return c, nil
}

// RecomputeSubscription 根据当前员工数重新计算档位与月费，并把下次扣款日推到 now + 一个周期。
// 修改员工名单后需要显式调用。
func (p Policy) RecomputeSubscription(c model.Company, now time.Time) model.Company {
	tier, cost, _ := ClassifyTier(len(c.Employees))
	c.SubscriptionTier = tier
	c.MonthlyCost = cost
	c.NextBillingDate = now.Add(p.Period)
	return c
}

// ApplySuccessfulCharge 把一次成功扣款反映到公司上：
// 非 active 时迁移到 active，下次扣款日取该笔支付覆盖周期的结束时间。
func (p Policy) ApplySuccessfulCharge(c model.Company, pay model.Payment, now time.Time) (model.Company, error) {
	if c.SubscriptionStatus != model.SubscriptionActive {
		var err error
		c, err = p.TransitionStatus(c, model.SubscriptionActive, now)
		if err != nil {
			return c, err
		}
	} else {
		paidAt := now
		c.LastPaymentDate = &paidAt
	}

	if !pay.BillingPeriodEnd.IsZero() {
		c.NextBillingDate = pay.BillingPeriodEnd
	}
	return c, nil
}

// IsActive 订阅是否处于可服务状态
func IsActive(c model.Company) bool {
	return c.SubscriptionStatus == model.SubscriptionActive
}

// IsDue 公司是否到了下一次扣款日
func IsDue(c model.Company, now time.Time) bool {
	return IsActive(c) && !c.NextBillingDate.After(now)
}
