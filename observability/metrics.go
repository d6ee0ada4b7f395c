package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RPCMetrics records JSON-RPC activity on the node's public surface.
type RPCMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// EventMetrics counts committed core events by type.
type EventMetrics struct {
	committed *prometheus.CounterVec
}

// KeeperMetrics wraps collectors tracking keeper loop health.
type KeeperMetrics struct {
	executions   *prometheus.CounterVec
	latency      prometheus.Histogram
	dueBatches   prometheus.Gauge
	activeRules  prometheus.Gauge
	errors       *prometheus.CounterVec
	pauseEngaged prometheus.Gauge
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *RPCMetrics

	eventMetricsOnce sync.Once
	eventRegistry    *EventMetrics

	keeperMetricsOnce sync.Once
	keeperRegistry    *KeeperMetrics
)

// RPC returns the lazily-initialised registry used to record JSON-RPC
// requests.
func RPC() *RPCMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mrt",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mrt",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "mrt",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mrt",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected before dispatch, by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records a dispatched request. code is the JSON-RPC error code, or
// zero for success.
func (m *RPCMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the pre-dispatch rejection counter. Reasons
// should be stable strings such as "rate_limit" or "body_too_large" so
// dashboards stay consistent.
func (m *RPCMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// Events returns the registry counting committed core events.
func Events() *EventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &EventMetrics{
			committed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mrt",
				Subsystem: "events",
				Name:      "committed_total",
				Help:      "Count of committed core events segmented by event type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.committed)
	})
	return eventRegistry
}

// RecordEvent increments the committed counter for an event type.
func (m *EventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.committed.WithLabelValues(normalized).Inc()
}

// Keeper exposes the metrics registry for keeperd.
func Keeper() *KeeperMetrics {
	keeperMetricsOnce.Do(func() {
		keeperRegistry = &KeeperMetrics{
			executions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mrt",
				Subsystem: "keeperd",
				Name:      "executions_total",
				Help:      "Count of settlement execution attempts segmented by outcome.",
			}, []string{"outcome"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "mrt",
				Subsystem: "keeperd",
				Name:      "execution_duration_seconds",
				Help:      "Latency distribution for settlement execution submissions.",
				Buckets:   prometheus.DefBuckets,
			}),
			dueBatches: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "mrt",
				Subsystem: "keeperd",
				Name:      "due_batches",
				Help:      "Number of executable batches reported by the last scan.",
			}),
			activeRules: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "mrt",
				Subsystem: "keeperd",
				Name:      "active_rules",
				Help:      "Number of active automation rules reported by the last scan.",
			}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mrt",
				Subsystem: "keeperd",
				Name:      "errors_total",
				Help:      "Count of keeper failures segmented by stage.",
			}, []string{"stage"}),
			pauseEngaged: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "mrt",
				Subsystem: "keeperd",
				Name:      "pause_engaged",
				Help:      "Indicates whether the keeper pause guard is active (1) or not (0).",
			}),
		}
		prometheus.MustRegister(
			keeperRegistry.executions,
			keeperRegistry.latency,
			keeperRegistry.dueBatches,
			keeperRegistry.activeRules,
			keeperRegistry.errors,
			keeperRegistry.pauseEngaged,
		)
	})
	return keeperRegistry
}

// RecordExecution counts one execution attempt and its latency. Outcomes
// should be stable strings such as "executed", "failed" or "skipped".
func (m *KeeperMetrics) RecordExecution(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.executions.WithLabelValues(outcome).Inc()
	if outcome != "skipped" {
		m.latency.Observe(d.Seconds())
	}
}

// RecordScan updates the work-discovery gauges after a poll.
func (m *KeeperMetrics) RecordScan(due, rules int) {
	if m == nil {
		return
	}
	m.dueBatches.Set(float64(due))
	m.activeRules.Set(float64(rules))
}

// RecordError counts a keeper failure by pipeline stage.
func (m *KeeperMetrics) RecordError(stage string) {
	if m == nil {
		return
	}
	if stage == "" {
		stage = "unspecified"
	}
	m.errors.WithLabelValues(stage).Inc()
}

// SetPause reflects the pause guard state on the gauge.
func (m *KeeperMetrics) SetPause(engaged bool) {
	if m == nil {
		return
	}
	if engaged {
		m.pauseEngaged.Set(1)
		return
	}
	m.pauseEngaged.Set(0)
}
