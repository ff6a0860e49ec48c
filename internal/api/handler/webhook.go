package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/cake_billing_server/internal/model/dto"
	"github.com/qs3c/cake_billing_server/internal/pkg/aur"
	"github.com/qs3c/cake_billing_server/internal/pkg/response"
	"github.com/qs3c/cake_billing_server/internal/service"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	webhookService *service.WebhookService
}

func NewWebhookHandler(webhookService *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
	}
}

// Receive 网关回调，无论处理结果如何都返回 200
// POST /api/v1/webhook
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Success(c, dto.WebhookAck{Received: true})
		return
	}

	ack, _ := h.webhookService.Receive(c.Request.Context(), body, c.GetHeader(aur.SignatureHeader))
	response.Success(c, ack)
}
