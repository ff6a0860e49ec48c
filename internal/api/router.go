package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/cake_billing_server/config"
	"github.com/qs3c/cake_billing_server/internal/api/handler"
	"github.com/qs3c/cake_billing_server/internal/api/middleware"
)

type Router struct {
	subscriptionHandler *handler.SubscriptionHandler
	paymentHandler      *handler.PaymentHandler
	webhookHandler      *handler.WebhookHandler
	billingHandler      *handler.BillingHandler
	adminHandler        *handler.AdminHandler
	auth                middleware.Authenticator
	gatherer            prometheus.Gatherer
	log                 logrus.FieldLogger
	cfg                 *config.Config
}

// NewRouter gatherer 为空时不暴露 /metrics
func NewRouter(
	subscriptionHandler *handler.SubscriptionHandler,
	paymentHandler *handler.PaymentHandler,
	webhookHandler *handler.WebhookHandler,
	billingHandler *handler.BillingHandler,
	adminHandler *handler.AdminHandler,
	auth middleware.Authenticator,
	gatherer prometheus.Gatherer,
	log logrus.FieldLogger,
	cfg *config.Config,
) *Router {
	return &Router{
		subscriptionHandler: subscriptionHandler,
		paymentHandler:      paymentHandler,
		webhookHandler:      webhookHandler,
		billingHandler:      billingHandler,
		adminHandler:        adminHandler,
		auth:                auth,
		gatherer:            gatherer,
		log:                 log,
		cfg:                 cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(r.log))
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if r.gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}

	api := engine.Group("/api/v1")
	{
		// 公开接口 - 订阅
		api.POST("/subscribe", r.subscriptionHandler.Subscribe)
		api.POST("/subscribe/bank-transfer", r.subscriptionHandler.SubscribeBankTransfer)
		api.POST("/subscribe/retry", r.subscriptionHandler.Retry)
		api.GET("/subscription-status", r.subscriptionHandler.Status)
		api.GET("/payment-status", r.paymentHandler.Status)

		// 网关回调
		api.POST("/webhook", r.webhookHandler.Receive)

		api.POST("/admin/login", r.adminHandler.Login)

		// 需要管理员会话
		admin := api.Group("")
		admin.Use(middleware.AdminAuth(r.auth))
		{
			admin.POST("/billing/process", r.billingHandler.Process)
			admin.GET("/billing/process", r.billingHandler.Stats)

			admin.POST("/admin/logout", r.adminHandler.Logout)
			admin.POST("/admin/confirm-payment", r.adminHandler.ConfirmPayment)
			admin.GET("/admin/payment-logs", r.adminHandler.ListPaymentLogs)
			admin.GET("/admin/webhook-results", r.adminHandler.WebhookResults)
			admin.PUT("/admin/companies/:id/employees", r.adminHandler.UpdateEmployees)
			admin.POST("/admin/companies/:id/cancel", r.adminHandler.Cancel)
		}
	}

	return engine
}
