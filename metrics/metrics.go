package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SyncMetrics holds the Prometheus metrics for the survey API.
type SyncMetrics struct {
	ProjectSaves        *prometheus.CounterVec
	Conversions         prometheus.Counter
	SnapshotsDelivered  *prometheus.CounterVec
	SubscriptionErrors  *prometheus.CounterVec
	ActiveSubscriptions prometheus.Gauge
	LockedWriteRejects  prometheus.Counter
}

var instance *SyncMetrics

// Get returns the process-wide metrics, registering them on first use.
func Get() *SyncMetrics {
	if instance == nil {
		instance = newSyncMetrics()
	}
	return instance
}

func newSyncMetrics() *SyncMetrics {
	return &SyncMetrics{
		ProjectSaves: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surveyor",
			Subsystem: "projects",
			Name:      "saves_total",
			Help:      "Total number of project writes by kind.",
		}, []string{"kind"}), // kind: create, update, delete
		Conversions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "surveyor",
			Subsystem: "projects",
			Name:      "conversions_total",
			Help:      "Total number of quotations converted to locked projects.",
		}),
		SnapshotsDelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surveyor",
			Subsystem: "stream",
			Name:      "snapshots_delivered_total",
			Help:      "Total number of full snapshots pushed to subscribers by query kind.",
		}, []string{"kind"}),
		SubscriptionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surveyor",
			Subsystem: "stream",
			Name:      "subscription_errors_total",
			Help:      "Total number of subscription delivery failures by query kind.",
		}, []string{"kind"}),
		ActiveSubscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "surveyor",
			Subsystem: "stream",
			Name:      "active_subscriptions_gauge",
			Help:      "Number of live subscriptions currently held by the hub.",
		}),
		LockedWriteRejects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "surveyor",
			Subsystem: "projects",
			Name:      "locked_write_rejects_total",
			Help:      "Total number of content writes rejected by the locked-project guard.",
		}),
	}
}
