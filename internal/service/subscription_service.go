package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qs3c/cake_billing_server/config"
	"github.com/qs3c/cake_billing_server/internal/billing"
	"github.com/qs3c/cake_billing_server/internal/model"
	"github.com/qs3c/cake_billing_server/internal/model/dto"
	"github.com/qs3c/cake_billing_server/internal/pkg/apperror"
	"github.com/qs3c/cake_billing_server/internal/pkg/email"
	"github.com/qs3c/cake_billing_server/internal/repository"
)

type SubscriptionService struct {
	companies  *repository.CompanyRepository
	payments   *repository.PaymentRepository
	transactor *repository.Transactor
	reconciler *Reconciler
	notifier   Notifier
	cfg        *config.Config
	log        logrus.FieldLogger
	now        func() time.Time
}

func NewSubscriptionService(
	companies *repository.CompanyRepository,
	payments *repository.PaymentRepository,
	transactor *repository.Transactor,
	reconciler *Reconciler,
	notifier Notifier,
	cfg *config.Config,
	log logrus.FieldLogger,
) *SubscriptionService {
	return &SubscriptionService{
		companies:  companies,
		payments:   payments,
		transactor: transactor,
		reconciler: reconciler,
		notifier:   notifier,
		cfg:        cfg,
		log:        log,
		now:        defaultNow,
	}
}

// SetClock 测试用
func (s *SubscriptionService) SetClock(now func() time.Time) {
	s.now = now
}

// Subscribe 创建公司与首笔支付，并向网关发起扣款
func (s *SubscriptionService) Subscribe(ctx context.Context, req *dto.SubscribeRequest) (*dto.SubscribeResponse, error) {
	in, err := validateSubscribe(req)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnique(in); err != nil {
		return nil, err
	}

	company, payment, err := s.create(in, model.MethodAur)
	if err != nil {
		return nil, err
	}

	out, err := s.reconciler.Initiate(ctx, company, payment)
	if err != nil {
		// 网关失败时仍返回订单号，便于用户重新发起
		if out != nil && out.Payment != nil {
			return subscribeResponse(company, out.Payment), err
		}
		return nil, err
	}

	if err := s.notifier.SendSubscriptionCreated(*company, *out.Payment); err != nil {
		s.log.WithError(err).WithField("order_id", payment.OrderID).Warn("failed to send subscription email")
	}

	return subscribeResponse(company, out.Payment), nil
}

func subscribeResponse(company *model.Company, payment *model.Payment) *dto.SubscribeResponse {
	return &dto.SubscribeResponse{
		CompanyID:          company.ID,
		OrderID:            payment.OrderID,
		Status:             string(payment.Status),
		SubscriptionStatus: string(company.SubscriptionStatus),
		GatewayToken:       payment.AurToken,
		Tier:               string(company.SubscriptionTier),
		MonthlyCost:        company.MonthlyCost,
	}
}

// SubscribeBankTransfer 创建公司与待确认的银行转账支付，不调用网关
func (s *SubscriptionService) SubscribeBankTransfer(ctx context.Context, req *dto.SubscribeRequest) (*dto.BankTransferResponse, error) {
	in, err := validateSubscribe(req)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnique(in); err != nil {
		return nil, err
	}

	company, payment, err := s.create(in, model.MethodBankTransfer)
	if err != nil {
		return nil, err
	}

	bank := dto.BankDetails{
		BankName:      s.cfg.Bank.BankName,
		AccountName:   s.cfg.Bank.AccountName,
		AccountNumber: s.cfg.Bank.AccountNumber,
		IBAN:          s.cfg.Bank.IBAN,
		Reference:     payment.OrderID,
		Amount:        payment.Amount,
	}

	if err := s.notifier.SendBankTransferInstructions(*company, email.BankInstructions{
		BankName:      bank.BankName,
		AccountName:   bank.AccountName,
		AccountNumber: bank.AccountNumber,
		IBAN:          bank.IBAN,
		Reference:     bank.Reference,
		Amount:        bank.Amount,
	}); err != nil {
		s.log.WithError(err).WithField("order_id", payment.OrderID).Warn("failed to send bank transfer email")
	}

	s.log.WithFields(logrus.Fields{
		"order_id":   payment.OrderID,
		"company_id": company.ID,
	}).Info("bank transfer subscription created")

	return &dto.BankTransferResponse{
		CompanyID:   company.ID,
		OrderID:     payment.OrderID,
		Status:      string(payment.Status),
		Tier:        string(company.SubscriptionTier),
		MonthlyCost: company.MonthlyCost,
		Bank:        bank,
	}, nil
}

// RetryInitialCharge 首次扣款失败后由用户重新发起，生成新的订单
func (s *SubscriptionService) RetryInitialCharge(ctx context.Context, orderID string) (*dto.SubscribeResponse, error) {
	previous, err := s.payments.GetByOrderID(orderID)
	if err != nil {
		return nil, dbError(err, "订单不存在")
	}
	company, err := s.companies.GetByID(previous.CompanyID)
	if err != nil {
		return nil, dbError(err, "公司不存在")
	}

	if company.SubscriptionStatus != model.SubscriptionPendingPayment || company.PaymentDate != nil {
		return nil, apperror.Conflict("订阅已生效，无需重新支付")
	}
	if previous.PaymentMethod != model.MethodAur || !billing.IsFailed(*previous) {
		return nil, apperror.Conflict("当前订单不可重新支付")
	}
	latest, err := s.payments.GetLatestByCompany(company.ID)
	if err != nil {
		return nil, dbError(err, "订单不存在")
	}
	if latest.ID != previous.ID {
		return nil, apperror.Conflict("请使用最新的订单号 %s", latest.OrderID)
	}

	now := s.now()
	payment := &model.Payment{
		OrderID:            billing.GenerateOrderID(now),
		CompanyID:          company.ID,
		Amount:             company.MonthlyCost,
		Description:        s.cfg.Billing.ChargeDescription,
		Status:             model.PaymentPending,
		PaymentMethod:      model.MethodAur,
		BillingPeriodStart: now,
		BillingPeriodEnd:   now.Add(s.reconciler.Policy().Period),
	}

	err = s.transactor.Do(func(tx *repository.Tx) error {
		if err := tx.Payments.Create(payment); err != nil {
			return err
		}
		company.OrderID = &payment.OrderID
		return tx.Companies.Update(company)
	})
	if err != nil {
		return nil, dbError(err, "公司不存在")
	}

	out, err := s.reconciler.Initiate(ctx, company, payment)
	if err != nil {
		if out != nil && out.Payment != nil {
			return subscribeResponse(company, out.Payment), err
		}
		return nil, err
	}

	return subscribeResponse(company, out.Payment), nil
}

// GetStatus 按订单号或公司 ID 查询订阅状态与最近一笔支付
func (s *SubscriptionService) GetStatus(orderID string, companyID int64) (*dto.SubscriptionStatusResponse, error) {
	company, err := s.resolveCompany(orderID, companyID)
	if err != nil {
		return nil, err
	}

	resp := &dto.SubscriptionStatusResponse{Company: toCompanySummary(company)}

	latest, err := s.payments.GetLatestByCompany(company.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dbError(err, "")
	}
	if latest != nil {
		resp.LatestPayment = toPaymentSummary(latest)
	}
	return resp, nil
}

// UpdateEmployees 替换员工名单并重新定价
func (s *SubscriptionService) UpdateEmployees(companyID int64, inputs []dto.EmployeeInput) (*dto.CompanySummary, error) {
	employees, err := validateEmployees(inputs)
	if err != nil {
		return nil, err
	}

	company, err := s.companies.GetByID(companyID)
	if err != nil {
		return nil, dbError(err, "公司不存在")
	}
	if company.SubscriptionStatus == model.SubscriptionCancelled {
		return nil, apperror.Conflict("订阅已取消")
	}

	company.Employees = employees
	updated := s.reconciler.Policy().RecomputeSubscription(*company, s.now())
	if err := s.companies.Update(&updated); err != nil {
		return nil, dbError(err, "公司不存在")
	}

	s.log.WithFields(logrus.Fields{
		"company_id": companyID,
		"employees":  len(employees),
		"tier":       updated.SubscriptionTier,
	}).Info("employee roster updated")

	return toCompanySummary(&updated), nil
}

// Cancel 终止订阅并取消所有未完成的支付
func (s *SubscriptionService) Cancel(companyID int64) (*dto.CompanySummary, error) {
	var result model.Company

	err := s.transactor.Do(func(tx *repository.Tx) error {
		company, err := tx.Companies.GetByID(companyID)
		if err != nil {
			return err
		}
		if company.SubscriptionStatus == model.SubscriptionCancelled {
			return apperror.Conflict("订阅已取消")
		}
		updated, err := s.reconciler.Policy().TransitionStatus(*company, model.SubscriptionCancelled, s.now())
		if err != nil {
			return apperror.Conflict("订阅已取消")
		}
		if err := tx.Companies.Update(&updated); err != nil {
			return err
		}
		if _, err := tx.Payments.CancelOpenByCompany(companyID); err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, dbError(err, "公司不存在")
	}

	s.log.WithField("company_id", companyID).Info("subscription cancelled")
	return toCompanySummary(&result), nil
}

func (s *SubscriptionService) resolveCompany(orderID string, companyID int64) (*model.Company, error) {
	switch {
	case orderID != "":
		payment, err := s.payments.GetByOrderID(orderID)
		if err == nil {
			company, err := s.companies.GetByID(payment.CompanyID)
			return company, dbError(err, "公司不存在")
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, dbError(err, "")
		}
		company, err := s.companies.GetByOrderID(orderID)
		return company, dbError(err, "订单不存在")
	case companyID > 0:
		company, err := s.companies.GetByID(companyID)
		return company, dbError(err, "公司不存在")
	default:
		return nil, apperror.Validation("需要提供 orderId 或 companyId")
	}
}

func (s *SubscriptionService) checkUnique(in *companyInput) error {
	exists, err := s.companies.ExistsByEmail(in.Email)
	if err != nil {
		return dbError(err, "")
	}
	if exists {
		return apperror.Conflict("该邮箱已订阅")
	}

	exists, err = s.companies.ExistsByPhone(in.Phone)
	if err != nil {
		return dbError(err, "")
	}
	if exists {
		return apperror.Conflict("该电话号码已订阅")
	}

	exists, err = s.companies.ExistsByName(in.Name)
	if err != nil {
		return dbError(err, "")
	}
	if exists {
		return apperror.Conflict("该公司名称已订阅")
	}
	return nil
}

// create 在一个事务里写入公司与首笔支付，首个计费周期从创建时刻开始
func (s *SubscriptionService) create(in *companyInput, method model.PaymentMethod) (*model.Company, *model.Payment, error) {
	now := s.now()
	policy := s.reconciler.Policy()
	tier, cost, _ := billing.ClassifyTier(len(in.Employees))
	orderID := billing.GenerateOrderID(now)

	company := &model.Company{
		Name:               in.Name,
		Email:              in.Email,
		Phone:              in.Phone,
		Employees:          in.Employees,
		SubscriptionStatus: model.SubscriptionPendingPayment,
		SubscriptionTier:   tier,
		MonthlyCost:        cost,
		NextBillingDate:    now.Add(policy.Period),
		OrderID:            &orderID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	payment := &model.Payment{
		OrderID:            orderID,
		Amount:             cost,
		Description:        s.cfg.Billing.ChargeDescription,
		Status:             model.PaymentPending,
		PaymentMethod:      method,
		BillingPeriodStart: now,
		BillingPeriodEnd:   now.Add(policy.Period),
	}

	err := s.transactor.Do(func(tx *repository.Tx) error {
		if err := tx.Companies.Create(company); err != nil {
			return err
		}
		payment.CompanyID = company.ID
		return tx.Payments.Create(payment)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, nil, apperror.Conflict("公司信息已被使用")
		}
		return nil, nil, dbError(err, "")
	}

	s.log.WithFields(logrus.Fields{
		"order_id":   orderID,
		"company_id": company.ID,
		"tier":       tier,
		"method":     method,
	}).Info("subscription created")

	return company, payment, nil
}
