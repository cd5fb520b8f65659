package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/workitems/internal/detector"
	"github.com/notifyhub/workitems/internal/domain"
	"github.com/notifyhub/workitems/internal/worker"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	ChangesDetected     *prometheus.CounterVec
	JobsEnqueued        *prometheus.CounterVec
	JobsDropped         *prometheus.CounterVec
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	NotificationsDead   *prometheus.CounterVec
	NotificationLatency *prometheus.HistogramVec
	QueueDepth          prometheus.Gauge
}

// New registers all instruments with the given registerer. A private
// registry keeps tests isolated from global state.
func New(reg prometheus.Registerer) *Metrics {
	byKind := []string{"kind"}
	m := &Metrics{
		ChangesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "status_changes_detected_total",
			Help: "Status transitions observed on committed writes.",
		}, byKind),

		JobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_jobs_enqueued_total",
			Help: "Notification jobs accepted by the queue.",
		}, byKind),

		JobsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_jobs_dropped_total",
			Help: "Notification jobs lost because the queue was unavailable.",
		}, byKind),

		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notifications accepted by the mail transport.",
		}, byKind),

		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Delivery attempts that failed, retried or not.",
		}, byKind),

		NotificationsDead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_dead_lettered_total",
			Help: "Notifications that exhausted their attempts.",
		}, byKind),

		NotificationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notification_processing_seconds",
			Help:    "Processing latency from dequeue to transport ack.",
			Buckets: prometheus.DefBuckets,
		}, byKind),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_queue_depth",
			Help: "Jobs waiting in the notification queue.",
		}),
	}

	reg.MustRegister(
		m.ChangesDetected,
		m.JobsEnqueued,
		m.JobsDropped,
		m.NotificationsSent,
		m.NotificationsFailed,
		m.NotificationsDead,
		m.NotificationLatency,
		m.QueueDepth,
	)

	return m
}

// DetectorHooks returns the callbacks expected by detector.New.
func (m *Metrics) DetectorHooks() detector.Hooks {
	return detector.Hooks{
		OnDetected: func(k domain.Kind) { m.ChangesDetected.WithLabelValues(string(k)).Inc() },
		OnEnqueued: func(k domain.Kind) { m.JobsEnqueued.WithLabelValues(string(k)).Inc() },
		OnDropped:  func(k domain.Kind) { m.JobsDropped.WithLabelValues(string(k)).Inc() },
	}
}

// WorkerHooks returns the callbacks expected by worker.MetricHooks.
// Keeps the prometheus calls out of the worker package.
func (m *Metrics) WorkerHooks() worker.MetricHooks {
	return worker.MetricHooks{
		OnSent: func(k domain.Kind, latency time.Duration) {
			m.NotificationsSent.WithLabelValues(string(k)).Inc()
			m.NotificationLatency.WithLabelValues(string(k)).Observe(latency.Seconds())
		},
		OnFailed: func(k domain.Kind) {
			m.NotificationsFailed.WithLabelValues(string(k)).Inc()
		},
		OnDeadLettered: func(k domain.Kind) {
			m.NotificationsDead.WithLabelValues(string(k)).Inc()
		},
	}
}

// WatchQueueDepth samples depth every interval into the QueueDepth gauge
// until ctx is cancelled.
func (m *Metrics) WatchQueueDepth(ctx context.Context, depth func(context.Context) (int, error), interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := depth(ctx); err == nil {
				m.QueueDepth.Set(float64(n))
			}
		}
	}
}
