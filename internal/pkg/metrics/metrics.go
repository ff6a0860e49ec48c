package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 计费相关指标。nil 接收者上的方法都是空操作。
type Metrics struct {
	SweepOutcomes  *prometheus.CounterVec
	SweepDuration  prometheus.Histogram
	WebhookEvents  *prometheus.CounterVec
	GatewayCalls   *prometheus.CounterVec
	PaymentsStatus *prometheus.CounterVec
}

func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		SweepOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cake_billing_sweep_outcomes_total",
				Help: "Recurring billing sweep results per company",
			},
			[]string{"outcome"},
		),
		SweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cake_billing_sweep_duration_seconds",
				Help:    "Duration of a full billing sweep",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 6),
			},
		),
		WebhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cake_billing_webhook_events_total",
				Help: "Gateway webhook events by processing outcome",
			},
			[]string{"outcome"},
		),
		GatewayCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cake_billing_gateway_calls_total",
				Help: "Outbound gateway calls by operation and result",
			},
			[]string{"operation", "result"},
		),
		PaymentsStatus: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cake_billing_payments_status_total",
				Help: "Payment status transitions",
			},
			[]string{"status", "method"},
		),
	}
}

func (m *Metrics) IncSweepOutcome(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SweepOutcomes.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
}

func (m *Metrics) IncWebhook(outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncGatewayCall(operation, result string) {
	if m == nil {
		return
	}
	m.GatewayCalls.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) IncPaymentStatus(status, method string) {
	if m == nil {
		return
	}
	m.PaymentsStatus.WithLabelValues(status, method).Inc()
}
