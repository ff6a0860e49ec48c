package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/cake_billing_server/internal/billing"
	"github.com/qs3c/cake_billing_server/internal/model"
)

var seq int64

func nextSeq() int64 {
	return atomic.AddInt64(&seq, 1)
}

// Employees 生成 n 个测试员工
func Employees(n int) model.EmployeeList {
	list := make(model.EmployeeList, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, model.Employee{
			Name:     fmt.Sprintf("Employee %d", i+1),
			Birthday: time.Date(1990, time.Month(i%12+1), i%28+1, 0, 0, 0, 0, time.UTC),
			CakeType: "chocolate",
			CakeSize: model.CakeMedium,
		})
	}
	return list
}

// TestCompany 创建测试公司，默认 3 名员工、pending_payment
func TestCompany(t *testing.T, db *gorm.DB, opts ...func(*model.Company)) *model.Company {
	t.Helper()

	n := nextSeq()
	now := time.Now().UTC().Truncate(time.Second)
	company := &model.Company{
		Name:               fmt.Sprintf("Company %d", n),
		Email:              fmt.Sprintf("company_%d@example.com", n),
		Phone:              fmt.Sprintf("%07d", n),
		Employees:          Employees(3),
		SubscriptionStatus: model.SubscriptionPendingPayment,
		NextBillingDate:    now.Add(30 * 24 * time.Hour),
	}
	company.SubscriptionTier, company.MonthlyCost, _ = billing.ClassifyTier(len(company.Employees))

	for _, opt := range opts {
		opt(company)
	}

	if err := db.Create(company).Error; err != nil {
		t.Fatalf("Failed to create test company: %v", err)
	}

	return company
}

// WithCompanyEmail 设置邮箱
func WithCompanyEmail(email string) func(*model.Company) {
	return func(c *model.Company) {
		c.Email = email
	}
}

// WithPhone 设置电话
func WithPhone(phone string) func(*model.Company) {
	return func(c *model.Company) {
		c.Phone = phone
	}
}

// WithEmployeeCount 设置员工人数并重新定价
func WithEmployeeCount(count int) func(*model.Company) {
	return func(c *model.Company) {
		c.Employees = Employees(count)
		c.SubscriptionTier, c.MonthlyCost, _ = billing.ClassifyTier(count)
	}
}

// WithSubscriptionStatus 设置订阅状态
func WithSubscriptionStatus(status model.SubscriptionStatus) func(*model.Company) {
	return func(c *model.Company) {
		c.SubscriptionStatus = status
	}
}

// WithNextBillingDate 设置下次扣款日
func WithNextBillingDate(at time.Time) func(*model.Company) {
	return func(c *model.Company) {
		c.NextBillingDate = at
	}
}

// WithCompanyOrderID 设置公司订单号
func WithCompanyOrderID(orderID string) func(*model.Company) {
	return func(c *model.Company) {
		c.OrderID = &orderID
	}
}

// WithPaidAt 标记为已付过首期款，周期扣款失败才会安排重试
func WithPaidAt(at time.Time) func(*model.Company) {
	return func(c *model.Company) {
		c.PaymentDate = &at
		c.LastPaymentDate = &at
	}
}

// TestPayment 创建测试支付，默认 pending、金额取公司月费
func TestPayment(t *testing.T, db *gorm.DB, company *model.Company, opts ...func(*model.Payment)) *model.Payment {
	t.Helper()

	start := company.CreatedAt.UTC().Truncate(time.Second)
	payment := &model.Payment{
		OrderID:            fmt.Sprintf("ORD-TEST-%06d", nextSeq()),
		CompanyID:          company.ID,
		Amount:             company.MonthlyCost,
		Description:        "Birthday cake subscription",
		Status:             model.PaymentPending,
		PaymentMethod:      model.MethodAur,
		BillingPeriodStart: start,
		BillingPeriodEnd:   start.Add(30 * 24 * time.Hour),
	}

	for _, opt := range opts {
		opt(payment)
	}

	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("Failed to create test payment: %v", err)
	}

	return payment
}

// WithOrderID 设置订单号
func WithOrderID(orderID string) func(*model.Payment) {
	return func(p *model.Payment) {
		p.OrderID = orderID
	}
}

// WithPaymentStatus 设置支付状态
func WithPaymentStatus(status model.PaymentStatus) func(*model.Payment) {
	return func(p *model.Payment) {
		p.Status = status
	}
}

// WithPaymentMethod 设置支付方式
func WithPaymentMethod(method model.PaymentMethod) func(*model.Payment) {
	return func(p *model.Payment) {
		p.PaymentMethod = method
	}
}

// WithToken 设置网关 token
func WithToken(token string) func(*model.Payment) {
	return func(p *model.Payment) {
		p.AurToken = token
	}
}

// WithPeriod 设置计费周期
func WithPeriod(start, end time.Time) func(*model.Payment) {
	return func(p *model.Payment) {
		p.BillingPeriodStart = start
		p.BillingPeriodEnd = end
	}
}

// WithRetry 设置重试次数和下次重试时间
func WithRetry(count int, next *time.Time) func(*model.Payment) {
	return func(p *model.Payment) {
		p.RetryCount = count
		p.NextRetryDate = next
	}
}

// WithUpdatedAt 设置更新时间
func WithUpdatedAt(at time.Time) func(*model.Payment) {
	return func(p *model.Payment) {
		p.UpdatedAt = at
	}
}

// TestAdmin 创建测试管理员
func TestAdmin(t *testing.T, db *gorm.DB, username, password string) *model.Admin {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	admin := &model.Admin{
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := db.Create(admin).Error; err != nil {
		t.Fatalf("Failed to create test admin: %v", err)
	}

	return admin
}
