package refresh

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/snapetech/stalkerkit/internal/stalker"
)

var (
	sessionsByLabel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "stalkerkit",
		Name:      "sessions",
		Help:      "Sessions by status label after the last check-all run.",
	}, []string{"label"})

	lastRunSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "stalkerkit",
		Name:      "check_all_duration_seconds",
		Help:      "Wall time of the last check-all run.",
	})

	runErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stalkerkit",
		Name:      "check_all_errors_total",
		Help:      "Sessions whose refresh stopped early, summed over check-all runs.",
	})
)

var allLabels = []stalker.Label{
	stalker.LabelActive, stalker.LabelNotActive, stalker.LabelBlocked, stalker.LabelExpired, stalker.LabelUnknown,
}

func recordRun(s Summary) {
	for _, l := range allLabels {
		sessionsByLabel.WithLabelValues(string(l)).Set(float64(s.Counts[l]))
	}
	lastRunSeconds.Set(s.Took.Seconds())
	runErrors.Add(float64(s.Errors))
}
