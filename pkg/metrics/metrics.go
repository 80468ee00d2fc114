// Package metrics exposes the platform's Prometheus surface. Each service
// binary mounts Handler() at /metrics; the gauges/counters/histograms below
// are shared across services so dashboards don't need per-service variants
// of the same query.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingestor metrics.
	LivestreamSessionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamrelay_livestream_sessions_active",
			Help: "Number of live ingestor sessions by tenant",
		},
		[]string{"tenant"},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrelay_events_published_total",
			Help: "Total number of normalized events appended to the broker, by tenant and event kind",
		},
		[]string{"tenant", "event_kind"},
	)

	// Rule engine metrics.
	EventsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrelay_events_consumed_total",
			Help: "Total number of broker events read by the rule consumer, by tenant",
		},
		[]string{"tenant"},
	)

	RulesMatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrelay_rules_matched_total",
			Help: "Total number of rule evaluations that matched their conditions",
		},
		[]string{"tenant"},
	)

	RuleExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrelay_rule_executions_total",
			Help: "Total number of rule executions by terminal status",
		},
		[]string{"status"},
	)

	RuleExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamrelay_rule_execution_duration_seconds",
			Help:    "Time taken to run a rule's ordered actions, in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Device command router metrics.
	DeviceCommandsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrelay_device_commands_dispatched_total",
			Help: "Total number of device commands dispatched, by initial delivery outcome",
		},
		[]string{"outcome"},
	)

	DeviceCommandsTerminalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrelay_device_commands_terminal_total",
			Help: "Total number of device commands that reached a terminal status",
		},
		[]string{"status"},
	)

	DeviceAgentsConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamrelay_device_agents_connected",
			Help: "Number of currently connected device/host-client agents, by kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		LivestreamSessionsActive,
		EventsPublishedTotal,
		EventsConsumedTotal,
		RulesMatchedTotal,
		RuleExecutionsTotal,
		RuleExecutionDuration,
		DeviceCommandsDispatchedTotal,
		DeviceCommandsTerminalTotal,
		DeviceAgentsConnected,
	)
}

// Handler returns the HTTP handler every service mounts at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a small helper for timing an operation and recording its
// duration to a histogram when it completes.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}
