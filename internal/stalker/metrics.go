package stalker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stalkerkit",
			Name:      "portal_requests_total",
			Help:      "Portal API requests by action and outcome (ok, http_error, net_error, decode_error).",
		},
		[]string{"action", "outcome"},
	)

	reauthTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stalkerkit",
			Name:      "reauthorizations_total",
			Help:      "Reauthorizations by trigger and result; shared marks callers that joined an in-flight one.",
		},
		[]string{"trigger", "result", "shared"},
	)

	retryOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stalkerkit",
			Name:      "retry_outcomes_total",
			Help:      "Final retry state of calls that failed at least once.",
		},
		[]string{"action", "state"},
	)

	epgCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stalkerkit",
		Name:      "short_epg_cache_hits_total",
		Help:      "Short EPG lookups answered from cache.",
	})
)

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
