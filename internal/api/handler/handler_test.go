package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/cake_billing_server/config"
	"github.com/qs3c/cake_billing_server/internal/api/middleware"
	"github.com/qs3c/cake_billing_server/internal/billing"
	"github.com/qs3c/cake_billing_server/internal/model/dto"
	"github.com/qs3c/cake_billing_server/internal/pkg/email"
	"github.com/qs3c/cake_billing_server/internal/pkg/logger"
	"github.com/qs3c/cake_billing_server/internal/pkg/response"
	"github.com/qs3c/cake_billing_server/internal/pkg/session"
	"github.com/qs3c/cake_billing_server/internal/repository"
	"github.com/qs3c/cake_billing_server/internal/service"
	"github.com/qs3c/cake_billing_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testContext struct {
	DB      *gorm.DB
	Gateway *testutil.FakeGateway
	Router  *gin.Engine

	Admin *service.AdminService
}

// setupHandlers 组装与线上一致的路由，网关替换为 FakeGateway
func setupHandlers(t *testing.T) *testContext {
	t.Helper()

	db := testutil.SetupTestDB(t)
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
		testutil.CleanupTestDB(t, db)
	})

	cfg := &config.Config{
		Billing: config.BillingConfig{}.Defaults(),
		Bank:    config.BankConfig{BankName: "Test Bank", AccountName: "Cake Co", AccountNumber: "000123456"},
	}
	log := logger.Discard()
	gateway := testutil.NewFakeGateway()
	notifier := email.NewService(nil)

	companies := repository.NewCompanyRepository(db)
	payments := repository.NewPaymentRepository(db)
	logs := repository.NewPaymentLogRepository(db)
	transactor := repository.NewTransactor(db)

	reconciler := service.NewReconciler(transactor, payments, gateway, billing.NewPolicy(cfg.Billing), notifier, nil, log)
	subscriptions := service.NewSubscriptionService(companies, payments, transactor, reconciler, notifier, cfg, log)
	paymentSvc := service.NewPaymentService(payments, reconciler, gateway, 15*time.Minute, nil, log)
	webhooks := service.NewWebhookService(payments, reconciler, nil, rdb, "", nil, log)
	billingSvc := service.NewBillingService(companies, payments, reconciler, nil, nil, cfg.Billing, nil, log)
	admin := service.NewAdminService(
		repository.NewAdminRepository(db), payments, logs, transactor, reconciler,
		session.NewStore(rdb, time.Hour), log,
	)

	subH := NewSubscriptionHandler(subscriptions)
	payH := NewPaymentHandler(paymentSvc)
	hookH := NewWebhookHandler(webhooks)
	billH := NewBillingHandler(billingSvc)
	adminH := NewAdminHandler(admin, subscriptions, webhooks)

	router := gin.New()
	router.POST("/subscribe", subH.Subscribe)
	router.POST("/subscribe/bank-transfer", subH.SubscribeBankTransfer)
	router.POST("/subscribe/retry", subH.Retry)
	router.GET("/subscription-status", subH.Status)
	router.GET("/payment-status", payH.Status)
	router.POST("/webhook", hookH.Receive)
	router.POST("/admin/login", adminH.Login)

	protected := router.Group("")
	protected.Use(middleware.AdminAuth(admin))
	protected.POST("/billing/process", billH.Process)
	protected.GET("/billing/process", billH.Stats)
	protected.POST("/admin/logout", adminH.Logout)
	protected.POST("/admin/confirm-payment", adminH.ConfirmPayment)
	protected.GET("/admin/payment-logs", adminH.ListPaymentLogs)
	protected.PUT("/admin/companies/:id/employees", adminH.UpdateEmployees)
	protected.POST("/admin/companies/:id/cancel", adminH.Cancel)
	protected.GET("/admin/webhook-results", adminH.WebhookResults)

	return &testContext{DB: db, Gateway: gateway, Router: router, Admin: admin}
}

func performRequest(router *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	switch b := body.(type) {
	case nil:
		buf = &bytes.Buffer{}
	case []byte:
		buf = bytes.NewBuffer(b)
	case string:
		buf = bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		buf = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err, "body: %s", w.Body.String())
	return resp
}

func dataMap(t *testing.T, resp response.Response) map[string]interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return data
}

func subscribeBody(name, email, phone string, employees int) dto.SubscribeRequest {
	req := dto.SubscribeRequest{CompanyName: name, CompanyEmail: email, Phone: phone}
	for i := 0; i < employees; i++ {
		req.Employees = append(req.Employees, dto.EmployeeInput{
			Name:     fmt.Sprintf("Employee %d", i+1),
			Birthday: fmt.Sprintf("1991-%02d-10", i%12+1),
			CakeType: "vanilla",
			CakeSize: "small",
		})
	}
	return req
}

// loginAdmin 创建管理员并返回会话 token
func loginAdmin(t *testing.T, ctx *testContext) string {
	t.Helper()
	testutil.TestAdmin(t, ctx.DB, "ops", "secret-pass")

	w := performRequest(ctx.Router, http.MethodPost, "/admin/login", dto.AdminLoginRequest{Username: "ops", Password: "secret-pass"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token, _ := dataMap(t, parseResponse(t, w))["token"].(string)
	require.NotEmpty(t, token)
	return token
}
