package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/cake_billing_server/internal/model/dto"
	"github.com/qs3c/cake_billing_server/internal/pkg/apperror"
	"github.com/qs3c/cake_billing_server/internal/pkg/response"
	"github.com/qs3c/cake_billing_server/internal/service"
)

type SubscriptionHandler struct {
	subscriptionService *service.SubscriptionService
}

func NewSubscriptionHandler(subscriptionService *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
	}
}

// Subscribe 创建订阅并发起首次扣款
// POST /api/v1/subscribe
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	var req dto.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "请求格式错误")
		return
	}

	resp, err := h.subscriptionService.Subscribe(c.Request.Context(), &req)
	if err != nil {
		writeChargeError(c, err, resp)
		return
	}

	response.SuccessWithMessage(c, "订阅已创建，请在手机上确认支付", resp)
}

// SubscribeBankTransfer 创建银行转账订阅
// POST /api/v1/subscribe/bank-transfer
func (h *SubscriptionHandler) SubscribeBankTransfer(c *gin.Context) {
	var req dto.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "请求格式错误")
		return
	}

	resp, err := h.subscriptionService.SubscribeBankTransfer(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "订阅已创建，请按说明完成银行转账", resp)
}

// Retry 首次扣款失败后重新发起
// POST /api/v1/subscribe/retry
func (h *SubscriptionHandler) Retry(c *gin.Context) {
	var req dto.RetrySubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "缺少 orderId")
		return
	}

	resp, err := h.subscriptionService.RetryInitialCharge(c.Request.Context(), req.OrderID)
	if err != nil {
		writeChargeError(c, err, resp)
		return
	}

	response.Success(c, resp)
}

// Status 查询订阅状态
// GET /api/v1/subscription-status?orderId=...|companyId=...
func (h *SubscriptionHandler) Status(c *gin.Context) {
	var companyID int64
	if raw := c.Query("companyId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			response.ParamError(c, "无效的公司 ID")
			return
		}
		companyID = id
	}

	resp, err := h.subscriptionService.GetStatus(c.Query("orderId"), companyID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, resp)
}

// writeChargeError 网关失败时仍带回订单号，其他错误按分类输出
func writeChargeError(c *gin.Context, err error, resp *dto.SubscribeResponse) {
	if resp != nil && apperror.KindOf(err) == apperror.KindGateway {
		response.ErrorWithData(c, response.CodeGatewayError, apperror.MessageOf(err), resp)
		return
	}
	response.FromError(c, err)
}
