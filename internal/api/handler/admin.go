package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/cake_billing_server/internal/api/middleware"
	"github.com/qs3c/cake_billing_server/internal/model/dto"
	"github.com/qs3c/cake_billing_server/internal/pkg/response"
	"github.com/qs3c/cake_billing_server/internal/repository"
	"github.com/qs3c/cake_billing_server/internal/service"
)

type AdminHandler struct {
	adminService        *service.AdminService
	subscriptionService *service.SubscriptionService
	webhookService      *service.WebhookService
}

func NewAdminHandler(
	adminService *service.AdminService,
	subscriptionService *service.SubscriptionService,
	webhookService *service.WebhookService,
) *AdminHandler {
	return &AdminHandler{
		adminService:        adminService,
		subscriptionService: subscriptionService,
		webhookService:      webhookService,
	}
}

// Login 管理员登录
// POST /api/v1/admin/login
func (h *AdminHandler) Login(c *gin.Context) {
	var req dto.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "请输入用户名和密码")
		return
	}

	resp, err := h.adminService.Login(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.AuthError(c, "用户名或密码错误")
			return
		}
		response.FromError(c, err)
		return
	}

	response.Success(c, resp)
}

// Logout 注销当前会话
// POST /api/v1/admin/logout
func (h *AdminHandler) Logout(c *gin.Context) {
	if err := h.adminService.Logout(c.Request.Context(), c.GetString(middleware.SessionTokenKey)); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "已注销", nil)
}

// ConfirmPayment 人工确认银行转账
// POST /api/v1/admin/confirm-payment
func (h *AdminHandler) ConfirmPayment(c *gin.Context) {
	admin, ok := middleware.GetAdmin(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "缺少 orderId")
		return
	}

	resp, err := h.adminService.ConfirmPayment(c.Request.Context(), admin.Username, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "已确认到账", resp)
}

// ListPaymentLogs 人工确认审计记录
// GET /api/v1/admin/payment-logs?companyId=&orderId=&confirmedBy=&limit=
func (h *AdminHandler) ListPaymentLogs(c *gin.Context) {
	filter := repository.PaymentLogFilter{
		OrderID:     c.Query("orderId"),
		ConfirmedBy: c.Query("confirmedBy"),
	}
	if raw := c.Query("companyId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.ParamError(c, "无效的公司 ID")
			return
		}
		filter.CompanyID = id
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			response.ParamError(c, "无效的 limit")
			return
		}
		filter.Limit = limit
	}

	items, err := h.adminService.ListPaymentLogs(filter)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, items)
}

// UpdateEmployees 替换员工名单并重新定价
// PUT /api/v1/admin/companies/:id/employees
func (h *AdminHandler) UpdateEmployees(c *gin.Context) {
	companyID, ok := companyIDParam(c)
	if !ok {
		return
	}

	var req dto.UpdateEmployeesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "请求格式错误")
		return
	}

	summary, err := h.subscriptionService.UpdateEmployees(companyID, req.Employees)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, summary)
}

// Cancel 取消订阅
// POST /api/v1/admin/companies/:id/cancel
func (h *AdminHandler) Cancel(c *gin.Context) {
	companyID, ok := companyIDParam(c)
	if !ok {
		return
	}

	summary, err := h.subscriptionService.Cancel(companyID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "订阅已取消", summary)
}

// WebhookResults 最近的回调处理结果
// GET /api/v1/admin/webhook-results?limit=
func (h *AdminHandler) WebhookResults(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	results, err := h.webhookService.RecentResults(c.Request.Context(), limit)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, results)
}

func companyIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "无效的公司 ID")
		return 0, false
	}
	return id, true
}
