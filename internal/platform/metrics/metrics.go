package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the Prometheus collectors used across the service.
type Metrics struct {
	WebhookEventsTotal    *prometheus.CounterVec
	WebhookRejectedTotal  prometheus.Counter
	DirectorySearchTotal  *prometheus.CounterVec
	LiteRegistrationTotal *prometheus.CounterVec
	KeyCacheHitsTotal     *prometheus.CounterVec
}

// New registers and returns the service metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WebhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cdcam_webhook_events_total",
			Help: "Webhook events received, by event type.",
		}, []string{"type"}),
		WebhookRejectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdcam_webhook_rejected_total",
			Help: "Webhook envelopes rejected by signature verification.",
		}),
		DirectorySearchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cdcam_directory_search_total",
			Help: "Directory account searches, by tenant and result.",
		}, []string{"tenant", "result"}),
		LiteRegistrationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cdcam_lite_registration_total",
			Help: "Lite registration outcomes, by status.",
		}, []string{"status"}),
		KeyCacheHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cdcam_key_cache_requests_total",
			Help: "Verification key cache lookups, by outcome.",
		}, []string{"outcome"}),
	}
}
