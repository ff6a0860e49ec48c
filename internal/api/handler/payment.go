package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/cake_billing_server/internal/pkg/response"
	"github.com/qs3c/cake_billing_server/internal/service"
)

type PaymentHandler struct {
	paymentService *service.PaymentService
}

func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// Status 查询支付状态，refresh=true 时先向网关查询一次
// GET /api/v1/payment-status?orderId=...|token=...
func (h *PaymentHandler) Status(c *gin.Context) {
	refresh := c.Query("refresh") == "true" || c.Query("refresh") == "1"

	resp, err := h.paymentService.GetStatus(c.Request.Context(), c.Query("orderId"), c.Query("token"), refresh)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, resp)
}
