package hitcount

import "github.com/prometheus/client_golang/prometheus"

var (
	verdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hitcount",
		Name:      "verdicts_total",
		Help:      "Admission decisions by reason.",
	}, []string{"reason"})

	sweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hitcount",
		Name:      "swept_hits_total",
		Help:      "Hits removed by the retention sweeper.",
	})

	evaluateSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hitcount",
		Name:      "evaluate_duration_seconds",
		Help:      "Latency of admission decisions, storage included.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(verdictsTotal, sweptTotal, evaluateSeconds)
}
