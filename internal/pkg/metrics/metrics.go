package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pixelchat"

var (
	// WebhookRequestsTotal 按事件类型和 HTTP 状态统计 webhook 请求
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total billing webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Billing webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// ReconcileOutcomes outcome: applied, lookup_miss, stale, notified, error
	ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "reconcile_outcomes_total",
		Help:      "Reconciled billing events by event type and outcome.",
	}, []string{"event", "outcome"})

	QuotaRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "quota_rejections_total",
		Help:      "Chat sends rejected because the daily allowance is used up.",
	}, []string{"class"})

	PromoRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "promo",
		Name:      "promo_redemptions_total",
		Help:      "Promo code redemption attempts by result.",
	}, []string{"result"})
)

var NoticeDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "notice",
	Name:      "deliveries_total",
	Help:      "Billing notice email deliveries by notice type and result.",
}, []string{"type", "result"})
