// Package observability holds process-wide gauges shared across components.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "greenmiles",
		Subsystem: "queue",
		Name:      "pending_activities",
		Help:      "Number of activity records in the local queue awaiting upload.",
	})
	lastSyncedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "greenmiles",
		Subsystem: "sync",
		Name:      "last_activity_synced_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity confirmed by the remote store.",
	})
)

func init() {
	prometheus.MustRegister(pendingGauge, lastSyncedGauge)
}

// SetPendingActivities updates the local-queue depth gauge.
func SetPendingActivities(n int) {
	pendingGauge.Set(float64(n))
}

// RecordActivitySynced updates the synced watermark gauge.
func RecordActivitySynced(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSyncedGauge.Set(float64(ts.Unix()))
}
