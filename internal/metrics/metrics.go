package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicketsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mm_tickets_submitted_total",
			Help: "Matchmaking ticket submissions",
		},
		[]string{"result"}, // success|failure
	)

	MatchEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mm_match_events_total",
			Help: "Match lifecycle events processed by the orchestrator",
		},
		[]string{"event", "result"}, // found|running|dropped, handled|dropped|failed
	)

	MatchesProvisioned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mm_matches_provisioned_total",
			Help: "Compute provisioning attempts for found matches",
		},
		[]string{"result"}, // success|failure|compensated
	)

	EventDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mm_match_event_duration_seconds",
			Help:    "Duration of orchestrator event handling",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	NotifyFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mm_notify_failures_total",
			Help: "Per-recipient push delivery failures",
		},
	)
)

func init() {
	prometheus.MustRegister(TicketsSubmitted)
	prometheus.MustRegister(MatchEvents)
	prometheus.MustRegister(MatchesProvisioned)
	prometheus.MustRegister(EventDuration)
	prometheus.MustRegister(NotifyFailures)
}

func Register(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}
