package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yapper_sessions_issued_total",
			Help: "Total number of sessions issued at login",
		},
	)

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yapper_auth_failures_total",
			Help: "Total number of rejected logins and session validations",
		},
		[]string{"reason"},
	)

	AutoCommentItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yapper_autocomment_items_total",
			Help: "Auto-comment items by outcome and failure reason",
		},
		[]string{"outcome", "reason"},
	)

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yapper_upstream_requests_total",
			Help: "Third-party API calls by upstream and HTTP status",
		},
		[]string{"upstream", "code"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yapper_upstream_request_duration_seconds",
			Help:    "Duration of third-party API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"upstream"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yapper_http_requests_total",
			Help: "HTTP requests served by method and status",
		},
		[]string{"method", "status"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
