package syncer

import "github.com/prometheus/client_golang/prometheus"

var (
	uploadedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "greenmiles",
		Subsystem: "sync",
		Name:      "activities_uploaded_total",
		Help:      "Number of activity records successfully uploaded to the remote store.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "greenmiles",
		Subsystem: "sync",
		Name:      "upload_failures_total",
		Help:      "Number of upload attempts that failed and were left for retry.",
	})

	deadLetteredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "greenmiles",
		Subsystem: "sync",
		Name:      "dead_letter_skips_total",
		Help:      "Number of records skipped because they exhausted the retry budget.",
	})

	droppedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "greenmiles",
		Subsystem: "sync",
		Name:      "passes_dropped_total",
		Help:      "Number of sync triggers dropped because a pass was already running.",
	})

	passDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "greenmiles",
		Subsystem: "sync",
		Name:      "pass_duration_seconds",
		Help:      "Time spent draining the local queue in one pass.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(uploadedCounter, failedCounter, deadLetteredCounter, droppedCounter, passDuration)
}
