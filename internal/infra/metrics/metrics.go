// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	receiptVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iap_receipt_verifications_total",
			Help: "Receipt verification attempts per platform and result.",
		},
		[]string{"platform", "result"},
	)

	vendorAPIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iap_vendor_api_errors_total",
			Help: "Non-200 vendor API answers per platform.",
		},
		[]string{"platform"},
	)

	subscriptionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_created_total",
			Help: "Subscriptions created per platform.",
		},
		[]string{"platform"},
	)

	subscriptionsTerminated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_terminated_total",
			Help: "Subscriptions terminated, by source (reconcile/webhook).",
		},
		[]string{"source"},
	)

	duplicatePurchases = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "duplicate_purchases_total",
			Help: "Purchase submissions rejected as duplicates.",
		},
	)

	webhookNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apple_webhook_notifications_total",
			Help: "Apple server notifications per notification type.",
		},
		[]string{"type"},
	)

	reconcilePassSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconcile_pass_seconds",
			Help:    "Duration of one full reconcile pass.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			receiptVerifications, vendorAPIErrors,
			subscriptionsCreated, subscriptionsTerminated,
			duplicatePurchases, webhookNotifications,
			reconcilePassSeconds,
		)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// -------- Purchase helpers --------

func IncReceiptVerification(platform, result string) {
	receiptVerifications.WithLabelValues(norm(platform), norm(result)).Inc()
}

func IncVendorAPIError(platform string) {
	vendorAPIErrors.WithLabelValues(norm(platform)).Inc()
}

func IncSubscriptionCreated(platform string) {
	subscriptionsCreated.WithLabelValues(norm(platform)).Inc()
}

func IncDuplicatePurchase() {
	duplicatePurchases.Inc()
}

// -------- Lifecycle helpers --------

func IncSubscriptionsTerminated(source string, n int) {
	subscriptionsTerminated.WithLabelValues(norm(source)).Add(float64(n))
}

func IncWebhookNotification(typ string) {
	webhookNotifications.WithLabelValues(norm(typ)).Inc()
}

func ObserveReconcilePass(seconds float64) {
	reconcilePassSeconds.Observe(seconds)
}
