package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/cake_billing_server/internal/billing"
	"github.com/qs3c/cake_billing_server/internal/model"
	"github.com/qs3c/cake_billing_server/internal/model/dto"
	"github.com/qs3c/cake_billing_server/internal/pkg/apperror"
	"github.com/qs3c/cake_billing_server/internal/pkg/aur"
	"github.com/qs3c/cake_billing_server/internal/pkg/email"
)

// Gateway 支付网关
type Gateway interface {
	CreateCharge(ctx context.Context, req aur.ChargeRequest) (*aur.ChargeResult, error)
	CheckTransactionStatus(ctx context.Context, token string) (*aur.StatusResult, error)
}

// Notifier 通知发送，失败只记录日志
type Notifier interface {
	SendSubscriptionCreated(company model.Company, payment model.Payment) error
	SendBankTransferInstructions(company model.Company, bank email.BankInstructions) error
	SendPaymentConfirmed(company model.Company, payment model.Payment) error
	SendChargeFailed(company model.Company, payment model.Payment) error
	SendSubscriptionSuspended(company model.Company) error
}

const dateTimeLayout = time.RFC3339

// defaultNow 统一使用 UTC 并截断到秒，保证时间写入数据库后可以精确比较
func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// dbError 把持久层错误归类
func dbError(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound("%s", notFoundMsg)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperror.Conflict("记录已存在")
	}
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Internal(err, "数据库操作失败")
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeLayout)
}

func toCompanySummary(c *model.Company) *dto.CompanySummary {
	return &dto.CompanySummary{
		ID:                 c.ID,
		Name:               c.Name,
		Email:              c.Email,
		Phone:              c.Phone,
		EmployeeCount:      len(c.Employees),
		SubscriptionStatus: string(c.SubscriptionStatus),
		SubscriptionTier:   string(c.SubscriptionTier),
		MonthlyCost:        c.MonthlyCost,
		NextBillingDate:    formatTime(&c.NextBillingDate),
		LastPaymentDate:    formatTime(c.LastPaymentDate),
		IsActive:           billing.IsActive(*c),
	}
}

func toPaymentSummary(p *model.Payment) *dto.PaymentSummary {
	return &dto.PaymentSummary{
		OrderID:            p.OrderID,
		CompanyID:          p.CompanyID,
		Amount:             p.Amount,
		Status:             string(p.Status),
		PaymentMethod:      string(p.PaymentMethod),
		AurStatus:          p.AurStatus,
		AurTransactionID:   p.AurTransactionID,
		FailureReason:      p.FailureReason,
		BillingPeriodStart: formatTime(&p.BillingPeriodStart),
		BillingPeriodEnd:   formatTime(&p.BillingPeriodEnd),
		RetryCount:         p.RetryCount,
		NextRetryDate:      formatTime(p.NextRetryDate),
		CompletedAt:        formatTime(p.CompletedAt),
		IsSuccessful:       billing.IsSuccessful(*p),
		IsFailed:           billing.IsFailed(*p),
		IsPending:          billing.IsPending(*p),
	}
}

func toPaymentLogItem(l *model.PaymentLog) dto.PaymentLogItem {
	return dto.PaymentLogItem{
		ID:          l.ID,
		OrderID:     l.OrderID,
		CompanyID:   l.CompanyID,
		ConfirmedBy: l.ConfirmedBy,
		Amount:      l.Amount,
		Notes:       l.Notes,
		CreatedAt:   formatTime(&l.CreatedAt),
	}
}
