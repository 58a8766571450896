// Package telemetry holds Prometheus metrics for payment observability.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PaymentMetrics holds Prometheus metrics for payment-level observability.
type PaymentMetrics struct {
	// Payment creation
	PaymentsCreated *prometheus.CounterVec
	PaymentsFailed  *prometheus.CounterVec
	PaymentAmount   *prometheus.HistogramVec

	// Request gating
	CaptchaRejections   prometheus.Counter
	RateLimitRejections prometheus.Counter

	// Pricing pipeline
	CouponValidations *prometheus.CounterVec
	TaxCalculations   *prometheus.CounterVec
	FeeRecoveryAmount *prometheus.HistogramVec

	// Subscription reconciliation
	SubscriptionReplacements prometheus.Counter
	InvoiceVoidFailures      prometheus.Counter
	PaymentMethodUpdates     *prometheus.CounterVec

	// External API performance
	StripeAPILatency *prometheus.HistogramVec
}

// NewPaymentMetrics creates and registers all payment metrics
func NewPaymentMetrics(namespace string) *PaymentMetrics {
	if namespace == "" {
		namespace = "payform"
	}

	subsystem := "payments"

	m := &PaymentMetrics{
		PaymentsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "created_total",
				Help:      "Total payments created by object kind",
			},
			[]string{"kind"}, // kind: checkout_session, payment_intent, subscription
		),
		PaymentsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "failed_total",
				Help:      "Total payment creation failures",
			},
			[]string{"kind", "reason"},
		),
		PaymentAmount: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "amount_cents",
				Help:      "Final charge amount distribution in the smallest currency unit",
				Buckets:   []float64{100, 500, 1000, 2500, 5000, 10000, 25000, 50000, 100000},
			},
			[]string{"kind", "currency"},
		),

		CaptchaRejections: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "captcha_rejections_total",
				Help:      "Total requests rejected by CAPTCHA verification",
			},
		),
		RateLimitRejections: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rate_limit_rejections_total",
				Help:      "Total requests rejected by the rate limiter",
			},
		),

		CouponValidations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "coupon_validations_total",
				Help:      "Total coupon validations by outcome",
			},
			[]string{"outcome"}, // outcome: accepted, rejected
		),
		TaxCalculations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "tax_calculations_total",
				Help:      "Total Stripe Tax calculations by outcome",
			},
			[]string{"outcome"}, // outcome: ok, error
		),
		FeeRecoveryAmount: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "fee_recovery_cents",
				Help:      "Fee recovery surcharge distribution",
				Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500},
			},
			[]string{"currency"},
		),

		SubscriptionReplacements: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "subscription_replacements_total",
				Help:      "Total subscriptions recreated during price updates",
			},
		),
		InvoiceVoidFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "invoice_void_failures_total",
				Help:      "Total failures voiding the superseded subscription's invoice",
			},
		),
		PaymentMethodUpdates: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_method_updates_total",
				Help:      "Total default payment method updates by outcome",
			},
			[]string{"outcome"}, // outcome: ok, unauthorized, error
		),

		StripeAPILatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "stripe_api_duration_seconds",
				Help:      "Stripe API call duration (helps differentiate app slowness from Stripe issues)",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
	}

	return m
}

// ObserveStripeCall matches billing.ObserveFunc and records one Stripe API
// call's latency.
func (m *PaymentMetrics) ObserveStripeCall(op string, d time.Duration) {
	m.StripeAPILatency.WithLabelValues(op).Observe(d.Seconds())
}

// Global instance for easy access from handlers
var Payment *PaymentMetrics

// InitPaymentMetrics initializes the global payment metrics instance
func InitPaymentMetrics(namespace string) *PaymentMetrics {
	Payment = NewPaymentMetrics(namespace)
	return Payment
}
