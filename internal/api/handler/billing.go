package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/cake_billing_server/internal/pkg/response"
	"github.com/qs3c/cake_billing_server/internal/service"
)

type BillingHandler struct {
	billingService *service.BillingService
}

func NewBillingHandler(billingService *service.BillingService) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
	}
}

// Process 触发一次周期扣款扫描，dryRun=true 只列出到期公司
// POST /api/v1/billing/process
func (h *BillingHandler) Process(c *gin.Context) {
	dryRun := c.Query("dryRun") == "true"

	summary, err := h.billingService.Sweep(c.Request.Context(), service.SweepOptions{DryRun: dryRun})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, summary)
}

// Stats 计费统计
// GET /api/v1/billing/process
func (h *BillingHandler) Stats(c *gin.Context) {
	stats, err := h.billingService.Stats(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, stats)
}
