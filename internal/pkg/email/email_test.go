package email

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/qs3c/cake_billing_server/config"
	"github.com/qs3c/cake_billing_server/internal/model"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func newTestService() (*Service, *fakeDialer) {
	d := &fakeDialer{}
	return &Service{from: "billing@cake.test", dialer: d}, d
}

func messageBody(t *testing.T, m *gomail.Message) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func testCompany() model.Company {
	return model.Company{
		Name:             "Acme <Bakers>",
		Email:            "hr@acme.test",
		SubscriptionTier: model.TierMedium,
		NextBillingDate:  time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		Employees:        make(model.EmployeeList, 8),
	}
}

func TestNewService_Disabled(t *testing.T) {
	svc := NewService(&config.EmailConfig{})
	assert.False(t, svc.Enabled())
	assert.NoError(t, svc.SendSubscriptionSuspended(testCompany()))

	assert.False(t, NewService(nil).Enabled())
}

func TestNewService_Enabled(t *testing.T) {
	svc := NewService(&config.EmailConfig{SMTPHost: "smtp.test", SMTPPort: 587, From: "a@b.c"})
	assert.True(t, svc.Enabled())
}

func TestSendSubscriptionCreated(t *testing.T) {
	svc, d := newTestService()

	err := svc.SendSubscriptionCreated(testCompany(), model.Payment{OrderID: "ORD-1", Amount: 5000})
	require.NoError(t, err)
	require.Len(t, d.sent, 1)

	m := d.sent[0]
	assert.Equal(t, []string{"hr@acme.test"}, m.GetHeader("To"))
	assert.Equal(t, []string{"billing@cake.test"}, m.GetHeader("From"))

	body := messageBody(t, m)
	assert.Contains(t, body, "ORD-1")
	assert.Contains(t, body, "Acme &lt;Bakers&gt;")
}

func TestSendBankTransferInstructions(t *testing.T) {
	svc, d := newTestService()

	err := svc.SendBankTransferInstructions(testCompany(), BankInstructions{
		BankName:      "Cake Bank",
		AccountName:   "Cake Co",
		AccountNumber: "000111",
		IBAN:          "XX00CAKE",
		Reference:     "ORD-2",
		Amount:        3000,
	})
	require.NoError(t, err)
	require.Len(t, d.sent, 1)

	body := messageBody(t, d.sent[0])
	assert.Contains(t, body, "Cake Bank")
	assert.Contains(t, body, "ORD-2")
}

func TestSendChargeFailed(t *testing.T) {
	svc, d := newTestService()
	next := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

	require.NoError(t, svc.SendChargeFailed(testCompany(), model.Payment{OrderID: "ORD-3", FailureReason: "declined", NextRetryDate: &next}))
	require.NoError(t, svc.SendChargeFailed(testCompany(), model.Payment{OrderID: "ORD-4", FailureReason: "declined"}))

	require.Len(t, d.sent, 2)
	assert.Contains(t, messageBody(t, d.sent[0]), "2026-05-04")
}

func TestSendPaymentConfirmed(t *testing.T) {
	svc, d := newTestService()

	require.NoError(t, svc.SendPaymentConfirmed(testCompany(), model.Payment{OrderID: "ORD-5", Amount: 5000}))
	require.Len(t, d.sent, 1)
	assert.Contains(t, messageBody(t, d.sent[0]), "2026-05-01")
}

func TestSend_DialError(t *testing.T) {
	svc, d := newTestService()
	d.err = errors.New("connection refused")

	err := svc.SendSubscriptionSuspended(testCompany())
	assert.Error(t, err)
}
