package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/cake_billing_server/internal/model"
	"github.com/qs3c/cake_billing_server/internal/model/dto"
	"github.com/qs3c/cake_billing_server/internal/pkg/apperror"
	"github.com/qs3c/cake_billing_server/internal/pkg/session"
	"github.com/qs3c/cake_billing_server/internal/repository"
)

var ErrInvalidCredentials = apperror.Validation("用户名或密码错误")

type AdminService struct {
	admins     *repository.AdminRepository
	payments   *repository.PaymentRepository
	logs       *repository.PaymentLogRepository
	transactor *repository.Transactor
	reconciler *Reconciler
	sessions   *session.Store
	log        logrus.FieldLogger
	now        func() time.Time
}

func NewAdminService(
	admins *repository.AdminRepository,
	payments *repository.PaymentRepository,
	logs *repository.PaymentLogRepository,
	transactor *repository.Transactor,
	reconciler *Reconciler,
	sessions *session.Store,
	log logrus.FieldLogger,
) *AdminService {
	return &AdminService{
		admins:     admins,
		payments:   payments,
		logs:       logs,
		transactor: transactor,
		reconciler: reconciler,
		sessions:   sessions,
		log:        log,
		now:        defaultNow,
	}
}

// EnsureBootstrapAdmin 管理员不存在时按配置创建，passwordHash 为 bcrypt 哈希
func (s *AdminService) EnsureBootstrapAdmin(username, passwordHash string) error {
	if username == "" || passwordHash == "" {
		return nil
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return apperror.Validation("管理员密码哈希无效")
	}

	exists, err := s.admins.ExistsByUsername(username)
	if err != nil {
		return dbError(err, "")
	}
	if exists {
		return nil
	}

	admin := &model.Admin{Username: username, PasswordHash: passwordHash}
	if err := s.admins.Create(admin); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return dbError(err, "")
	}
	s.log.WithField("username", username).Info("bootstrap admin created")
	return nil
}

// Login 校验密码并创建会话
func (s *AdminService) Login(ctx context.Context, req *dto.AdminLoginRequest) (*dto.AdminLoginResponse, error) {
	admin, err := s.admins.GetByUsername(req.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, dbError(err, "")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	sess, err := s.sessions.Create(ctx, admin.ID, admin.Username)
	if err != nil {
		return nil, apperror.Internal(err, "创建会话失败")
	}

	if err := s.admins.UpdateLastLogin(admin.ID, s.now()); err != nil {
		s.log.WithError(err).WithField("username", admin.Username).Warn("failed to update last login")
	}

	return &dto.AdminLoginResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt.UTC().Format(dateTimeLayout),
	}, nil
}

func (s *AdminService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Delete(ctx, token); err != nil {
		return apperror.Internal(err, "注销失败")
	}
	return nil
}

// Authenticate 校验会话 token，过期或不存在返回 nil
func (s *AdminService) Authenticate(ctx context.Context, token string) (*session.Session, error) {
	if token == "" {
		return nil, nil
	}
	sess, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, apperror.Internal(err, "读取会话失败")
	}
	return sess, nil
}

// ConfirmPayment 人工确认银行转账到账：支付置为 completed，公司激活，追加审计记录
func (s *AdminService) ConfirmPayment(ctx context.Context, confirmedBy string, req *dto.ConfirmPaymentRequest) (*dto.ConfirmPaymentResponse, error) {
	var out *Outcome

	err := s.transactor.Do(func(tx *repository.Tx) error {
		payment, err := tx.Payments.GetByOrderID(req.OrderID)
		if err != nil {
			return dbError(err, "订单不存在")
		}
		if payment.PaymentMethod != model.MethodBankTransfer {
			return apperror.Validation("只有银行转账订单可以人工确认")
		}

		company, err := tx.Companies.GetByID(payment.CompanyID)
		if err != nil {
			return dbError(err, "公司不存在")
		}

		switch {
		case company.SubscriptionStatus == model.SubscriptionActive,
			payment.Status == model.PaymentCompleted:
			return apperror.Conflict("该订单已确认")
		case company.SubscriptionStatus == model.SubscriptionCancelled:
			return apperror.Conflict("订阅已取消")
		case payment.Status == model.PaymentCancelled || payment.Status == model.PaymentRefunded:
			return apperror.Conflict("订单已关闭")
		}

		logged, err := tx.PaymentLogs.ExistsByOrderID(payment.OrderID)
		if err != nil {
			return err
		}
		if logged {
			return apperror.Conflict("该订单已确认")
		}

		out, err = s.reconciler.ConfirmManually(tx, payment, company)
		if err != nil {
			return err
		}

		err = tx.PaymentLogs.Append(&model.PaymentLog{
			OrderID:     payment.OrderID,
			CompanyID:   company.ID,
			ConfirmedBy: confirmedBy,
			Amount:      payment.Amount,
			Notes:       req.Notes,
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperror.Conflict("该订单已确认")
		}
		return err
	})
	if err != nil {
		return nil, dbError(err, "订单不存在")
	}

	s.reconciler.after(out)

	s.log.WithFields(logrus.Fields{
		"order_id":     out.Payment.OrderID,
		"company_id":   out.Company.ID,
		"confirmed_by": confirmedBy,
	}).Info("bank transfer confirmed")

	return &dto.ConfirmPaymentResponse{
		OrderID:     out.Payment.OrderID,
		CompanyID:   out.Company.ID,
		Status:      string(out.Payment.Status),
		ConfirmedBy: confirmedBy,
	}, nil
}

// ListPaymentLogs 审计记录查询
func (s *AdminService) ListPaymentLogs(filter repository.PaymentLogFilter) ([]dto.PaymentLogItem, error) {
	logs, err := s.logs.List(filter)
	if err != nil {
		return nil, dbError(err, "")
	}
	items := make([]dto.PaymentLogItem, 0, len(logs))
	for _, l := range logs {
		items = append(items, toPaymentLogItem(l))
	}
	return items, nil
}
