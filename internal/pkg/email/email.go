package email

import (
	"fmt"
	"html"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/qs3c/cake_billing_server/config"
	"github.com/qs3c/cake_billing_server/internal/model"
)

// BankInstructions 银行转账说明
type BankInstructions struct {
	BankName      string
	AccountName   string
	AccountNumber string
	IBAN          string
	Reference     string
	Amount        int64
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type Service struct {
	from   string
	dialer dialer
}

// NewService 未配置 SMTP 时返回的 Service 不发送任何邮件
func NewService(cfg *config.EmailConfig) *Service {
	if cfg == nil || cfg.SMTPHost == "" {
		return &Service{}
	}
	return &Service{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password),
	}
}

func (s *Service) Enabled() bool {
	return s.dialer != nil
}

// SendSubscriptionCreated 订阅已创建，等待手机端确认扣款
func (s *Service) SendSubscriptionCreated(company model.Company, payment model.Payment) error {
	subject := "订阅已创建 - 生日蛋糕订阅"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #db2777;">订阅已创建</h2>
        <p>%s，您好：</p>
        <p>我们已为 %d 位员工创建生日蛋糕订阅（档位：%s），月费 %d。</p>
        <p>订单号：<strong>%s</strong></p>
        <p>请在手机上确认支付，确认后订阅将立即生效。</p>
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由系统自动发送，请勿回复。</p>
    </div>
</body>
</html>
`, html.EscapeString(company.Name), len(company.Employees), company.SubscriptionTier, payment.Amount, payment.OrderID)

	return s.sendHTML(company.Email, subject, body)
}

// SendBankTransferInstructions 银行转账付款说明
func (s *Service) SendBankTransferInstructions(company model.Company, bank BankInstructions) error {
	subject := "银行转账付款说明 - 生日蛋糕订阅"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #db2777;">银行转账付款说明</h2>
        <p>%s，您好：</p>
        <p>请向以下账户转账 <strong>%d</strong>，并在附言中填写订单号，我们确认到账后会开通订阅。</p>
        <table style="background-color: #f3f4f6; padding: 15px; margin: 20px 0;">
            <tr><td>开户行</td><td>%s</td></tr>
            <tr><td>户名</td><td>%s</td></tr>
            <tr><td>账号</td><td>%s</td></tr>
            <tr><td>IBAN</td><td>%s</td></tr>
            <tr><td>附言</td><td><strong>%s</strong></td></tr>
        </table>
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由系统自动发送，请勿回复。</p>
    </div>
</body>
</html>
`, html.EscapeString(company.Name), bank.Amount,
		html.EscapeString(bank.BankName), html.EscapeString(bank.AccountName),
		html.EscapeString(bank.AccountNumber), html.EscapeString(bank.IBAN), bank.Reference)

	return s.sendHTML(company.Email, subject, body)
}

// SendPaymentConfirmed 付款成功
func (s *Service) SendPaymentConfirmed(company model.Company, payment model.Payment) error {
	subject := "付款成功 - 生日蛋糕订阅"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #16a34a;">付款成功</h2>
        <p>%s，您好：</p>
        <p>订单 <strong>%s</strong> 已收到付款 %d，订阅处于生效状态。</p>
        <p>%s 为下次扣款日期。</p>
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由系统自动发送，请勿回复。</p>
    </div>
</body>
</html>
`, html.EscapeString(company.Name), payment.OrderID, payment.Amount, company.NextBillingDate.Format("2006-01-02"))

	return s.sendHTML(company.Email, subject, body)
}

// SendChargeFailed 续费扣款失败
func (s *Service) SendChargeFailed(company model.Company, payment model.Payment) error {
	retry := "我们不会再自动重试，请联系客服。"
	if payment.NextRetryDate != nil {
		retry = fmt.Sprintf("我们将于 %s 自动重试。", payment.NextRetryDate.Format("2006-01-02"))
	}

	subject := "续费扣款失败 - 生日蛋糕订阅"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #dc2626;">续费扣款失败</h2>
        <p>%s，您好：</p>
        <p>订单 <strong>%s</strong> 扣款失败：%s</p>
        <p>%s</p>
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由系统自动发送，请勿回复。</p>
    </div>
</body>
</html>
`, html.EscapeString(company.Name), payment.OrderID, html.EscapeString(payment.FailureReason), retry)

	return s.sendHTML(company.Email, subject, body)
}

// SendSubscriptionSuspended 订阅已暂停
func (s *Service) SendSubscriptionSuspended(company model.Company) error {
	subject := "订阅已暂停 - 生日蛋糕订阅"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #dc2626;">订阅已暂停</h2>
        <p>%s，您好：</p>
        <p>由于多次扣款失败，您的订阅已于 %s 暂停，员工生日蛋糕配送将停止。</p>
        <p>完成付款后订阅会自动恢复。</p>
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由系统自动发送，请勿回复。</p>
    </div>
</body>
</html>
`, html.EscapeString(company.Name), time.Now().UTC().Format("2006-01-02"))

	return s.sendHTML(company.Email, subject, body)
}

// sendHTML 发送 HTML 邮件
func (s *Service) sendHTML(to, subject, body string) error {
	if s.dialer == nil {
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	return s.dialer.DialAndSend(m)
}
