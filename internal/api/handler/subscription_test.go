package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/cake_billing_server/internal/model"
	"github.com/qs3c/cake_billing_server/internal/pkg/response"
	"github.com/qs3c/cake_billing_server/internal/testutil"
)

func TestSubscriptionHandler_Subscribe_Success(t *testing.T) {
	ctx := setupHandlers(t)

	w := performRequest(ctx.Router, http.MethodPost, "/subscribe", subscribeBody("Acme", "hr@acme.com", "5551234", 8), "")

	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data := dataMap(t, resp)
	assert.Equal(t, "medium", data["tier"])
	assert.Equal(t, float64(5000), data["monthlyCost"])
	assert.Equal(t, "pending_payment", data["subscriptionStatus"])
	assert.NotEmpty(t, data["orderId"])
	assert.Equal(t, 1, ctx.Gateway.ChargeCount())
}

func TestSubscriptionHandler_Subscribe_Validation(t *testing.T) {
	ctx := setupHandlers(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"invalid json", "{not json"},
		{"missing name", subscribeBody("", "hr@acme.com", "5551234", 3)},
		{"bad email", subscribeBody("Acme", "not-an-email", "5551234", 3)},
		{"bad phone", subscribeBody("Acme", "hr@acme.com", "12345", 3)},
		{"no employees", subscribeBody("Acme", "hr@acme.com", "5551234", 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(ctx.Router, http.MethodPost, "/subscribe", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
		})
	}
	assert.Equal(t, 0, ctx.Gateway.ChargeCount())
}

func TestSubscriptionHandler_Subscribe_FieldErrors(t *testing.T) {
	ctx := setupHandlers(t)

	body := subscribeBody("Acme", "not-an-email", "12345", 2)
	w := performRequest(ctx.Router, http.MethodPost, "/subscribe", body, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	data := dataMap(t, parseResponse(t, w))
	assert.Equal(t, "邮箱格式不正确", data["companyEmail"])
	assert.Equal(t, "长度必须为 7", data["phone"])
	assert.NotContains(t, data, "companyName")
}

func TestSubscriptionHandler_Subscribe_Duplicate(t *testing.T) {
	ctx := setupHandlers(t)

	w := performRequest(ctx.Router, http.MethodPost, "/subscribe", subscribeBody("Acme", "hr@acme.com", "5551234", 3), "")
	require.Equal(t, http.StatusOK, w.Code)

	w = performRequest(ctx.Router, http.MethodPost, "/subscribe", subscribeBody("Other", "hr@acme.com", "5559999", 3), "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.CodeConflict, parseResponse(t, w).Code)
}

func TestSubscriptionHandler_Subscribe_GatewayFailure(t *testing.T) {
	ctx := setupHandlers(t)
	ctx.Gateway.FailCharges(errors.New("connection refused"))

	w := performRequest(ctx.Router, http.MethodPost, "/subscribe", subscribeBody("Acme", "hr@acme.com", "5551234", 3), "")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeGatewayError, resp.Code)
	data := dataMap(t, resp)
	assert.NotEmpty(t, data["orderId"])
	assert.Equal(t, "failed", data["status"])
}

func TestSubscriptionHandler_Retry(t *testing.T) {
	ctx := setupHandlers(t)
	ctx.Gateway.RejectCharges("insufficient funds")

	w := performRequest(ctx.Router, http.MethodPost, "/subscribe", subscribeBody("Acme", "hr@acme.com", "5551234", 3), "")
	require.Equal(t, http.StatusBadGateway, w.Code)
	orderID := dataMap(t, parseResponse(t, w))["orderId"].(string)

	ctx.Gateway.ChargeFunc = nil
	w = performRequest(ctx.Router, http.MethodPost, "/subscribe/retry", map[string]string{"orderId": orderID}, "")
	assert.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, parseResponse(t, w))
	assert.NotEqual(t, orderID, data["orderId"])
	assert.Equal(t, "processing", data["status"])

	w = performRequest(ctx.Router, http.MethodPost, "/subscribe/retry", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscriptionHandler_BankTransfer(t *testing.T) {
	ctx := setupHandlers(t)

	w := performRequest(ctx.Router, http.MethodPost, "/subscribe/bank-transfer", subscribeBody("Acme", "hr@acme.com", "5551234", 2), "")

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, parseResponse(t, w))
	assert.Equal(t, "small", data["tier"])
	bank, ok := data["bank"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Test Bank", bank["bankName"])
	assert.Equal(t, data["orderId"], bank["reference"])
	assert.Equal(t, 0, ctx.Gateway.ChargeCount())
}

func TestSubscriptionHandler_Status(t *testing.T) {
	ctx := setupHandlers(t)
	company := testutil.TestCompany(t, ctx.DB, testutil.WithSubscriptionStatus(model.SubscriptionActive))
	payment := testutil.TestPayment(t, ctx.DB, company, testutil.WithPaymentStatus(model.PaymentCompleted))

	t.Run("by order id", func(t *testing.T) {
		w := performRequest(ctx.Router, http.MethodGet, "/subscription-status?orderId="+payment.OrderID, nil, "")
		assert.Equal(t, http.StatusOK, w.Code)
		data := dataMap(t, parseResponse(t, w))
		c := data["company"].(map[string]interface{})
		assert.Equal(t, "active", c["subscriptionStatus"])
		assert.Equal(t, true, c["isActive"])
	})

	t.Run("by company id", func(t *testing.T) {
		w := performRequest(ctx.Router, http.MethodGet, fmt.Sprintf("/subscription-status?companyId=%d", company.ID), nil, "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown order", func(t *testing.T) {
		w := performRequest(ctx.Router, http.MethodGet, "/subscription-status?orderId=ORD-NOPE", nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad company id", func(t *testing.T) {
		w := performRequest(ctx.Router, http.MethodGet, "/subscription-status?companyId=abc", nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPaymentHandler_Status(t *testing.T) {
	ctx := setupHandlers(t)
	company := testutil.TestCompany(t, ctx.DB)
	payment := testutil.TestPayment(t, ctx.DB, company,
		testutil.WithPaymentStatus(model.PaymentProcessing),
		testutil.WithToken("TOKEN-1"),
	)

	w := performRequest(ctx.Router, http.MethodGet, "/payment-status?token=TOKEN-1", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, parseResponse(t, w))
	assert.Equal(t, payment.OrderID, data["orderId"])
	assert.Equal(t, true, data["isPending"])
	assert.Empty(t, ctx.Gateway.StatusChecks)

	ctx.Gateway.SetStatus("PAID")
	w = performRequest(ctx.Router, http.MethodGet, "/payment-status?orderId="+payment.OrderID+"&refresh=true", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	data = dataMap(t, parseResponse(t, w))
	assert.Equal(t, "completed", data["status"])

	w = performRequest(ctx.Router, http.MethodGet, "/payment-status?orderId=ORD-NOPE", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
