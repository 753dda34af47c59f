package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is a no-op then.
type Metrics struct {
	registry *prometheus.Registry

	TradesSettled     *prometheus.CounterVec
	SettlementErrors  *prometheus.CounterVec
	SettlementLatency *prometheus.HistogramVec
	WebhookEvents     *prometheus.CounterVec
	CheckoutSessions  *prometheus.CounterVec
	Refunds           prometheus.Counter
	SplitsApplied     *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		TradesSettled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharehouse_trades_settled_total",
				Help: "Share transfers committed by settlement.",
			},
			[]string{"path"},
		),
		SettlementErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharehouse_settlement_errors_total",
				Help: "Settlement attempts rejected, by error code.",
			},
			[]string{"path", "code"},
		),
		SettlementLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sharehouse_settlement_latency_seconds",
				Help:    "Settlement transaction latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		WebhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharehouse_webhook_events_total",
				Help: "Payment webhook events by type and outcome.",
			},
			[]string{"type", "outcome"},
		),
		CheckoutSessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharehouse_checkout_sessions_total",
				Help: "Checkout session creations by outcome.",
			},
			[]string{"outcome"},
		),
		Refunds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sharehouse_refunds_issued_total",
				Help: "Refunds issued because shares ran out before confirmation.",
			},
		),
		SplitsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharehouse_splits_applied_total",
				Help: "Share splits applied, by mode.",
			},
			[]string{"mode"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharehouse_trade_notifications_total",
				Help: "Trade-settled notifications by outcome.",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(m.TradesSettled, m.SettlementErrors, m.SettlementLatency,
		m.WebhookEvents, m.CheckoutSessions, m.Refunds, m.SplitsApplied, m.Notifications)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	if m == nil {
		return func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNotFound) }
	}
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func (m *Metrics) ObserveSettlement(path string, duration time.Duration, code string) {
	if m == nil {
		return
	}
	m.SettlementLatency.WithLabelValues(path).Observe(duration.Seconds())
	if code == "" {
		m.TradesSettled.WithLabelValues(path).Inc()
		return
	}
	m.SettlementErrors.WithLabelValues(path, code).Inc()
}

func (m *Metrics) ObserveWebhook(eventType, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) ObserveCheckout(outcome string) {
	if m == nil {
		return
	}
	m.CheckoutSessions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncRefund() {
	if m == nil {
		return
	}
	m.Refunds.Inc()
}

func (m *Metrics) IncSplit(mode string) {
	if m == nil {
		return
	}
	m.SplitsApplied.WithLabelValues(mode).Inc()
}

func (m *Metrics) IncNotification(outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(outcome).Inc()
}
