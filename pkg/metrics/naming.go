package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NamingMetrics provides observability for the naming server: RPC requests,
// lock waits, registered storage nodes, and connection lifecycle.
//
// The interface is optional; passing the value returned by NewNamingMetrics
// when metrics are disabled yields a no-op implementation.
type NamingMetrics interface {
	// RecordRequest records a completed RPC request with its procedure name,
	// duration, and outcome.
	RecordRequest(procedure string, duration time.Duration, err error)

	// RecordRequestStart and RecordRequestEnd bracket in-flight requests.
	RecordRequestStart(procedure string)
	RecordRequestEnd(procedure string)

	// RecordLockWait records how long a lock request waited before grant,
	// cancellation, or failure.
	RecordLockWait(duration time.Duration)

	// SetRegisteredNodes updates the count of known storage nodes.
	SetRegisteredNodes(count int)

	// RecordDirective records an outbound create/delete call to a storage
	// node and its outcome.
	RecordDirective(kind string, duration time.Duration, err error)

	// Connection lifecycle counters.
	SetActiveConnections(count int32)
	RecordConnectionAccepted()
	RecordConnectionClosed()
}

type namingMetrics struct {
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	requestsInFlight  *prometheus.GaugeVec
	lockWaitDuration  prometheus.Histogram
	registeredNodes   prometheus.Gauge
	directivesTotal   *prometheus.CounterVec
	directiveDuration *prometheus.HistogramVec
	activeConnections prometheus.Gauge
	connsAccepted     prometheus.Counter
	connsClosed       prometheus.Counter
}

// NewNamingMetrics creates a Prometheus-backed NamingMetrics instance, or a
// no-op implementation when metrics are disabled.
func NewNamingMetrics() NamingMetrics {
	if !IsEnabled() {
		return noopNamingMetrics{}
	}

	reg := GetRegistry()
	durationBuckets := []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

	return &namingMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "namingd_requests_total",
				Help: "Total number of naming RPC requests by procedure and status",
			},
			[]string{"procedure", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "namingd_request_duration_seconds",
				Help:    "Duration of naming RPC requests in seconds",
				Buckets: durationBuckets,
			},
			[]string{"procedure"},
		),
		requestsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "namingd_requests_in_flight",
				Help: "Current number of naming RPC requests being processed",
			},
			[]string{"procedure"},
		),
		lockWaitDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "namingd_lock_wait_duration_seconds",
				Help:    "Time spent waiting in the lock queue before grant or failure",
				Buckets: durationBuckets,
			},
		),
		registeredNodes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "namingd_registered_storage_nodes",
				Help: "Number of storage nodes registered with the naming server",
			},
		),
		directivesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "namingd_storage_directives_total",
				Help: "Total outbound create/delete directives by kind and status",
			},
			[]string{"kind", "status"},
		),
		directiveDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "namingd_storage_directive_duration_seconds",
				Help:    "Duration of outbound storage directives in seconds",
				Buckets: durationBuckets,
			},
			[]string{"kind"},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "namingd_active_connections",
				Help: "Current number of active client connections",
			},
		),
		connsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "namingd_connections_accepted_total",
				Help: "Total number of connections accepted",
			},
		),
		connsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "namingd_connections_closed_total",
				Help: "Total number of connections closed",
			},
		),
	}
}

func (m *namingMetrics) RecordRequest(procedure string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.requestsTotal.WithLabelValues(procedure, status).Inc()
	m.requestDuration.WithLabelValues(procedure).Observe(duration.Seconds())
}

func (m *namingMetrics) RecordRequestStart(procedure string) {
	m.requestsInFlight.WithLabelValues(procedure).Inc()
}

func (m *namingMetrics) RecordRequestEnd(procedure string) {
	m.requestsInFlight.WithLabelValues(procedure).Dec()
}

func (m *namingMetrics) RecordLockWait(duration time.Duration) {
	m.lockWaitDuration.Observe(duration.Seconds())
}

func (m *namingMetrics) SetRegisteredNodes(count int) {
	m.registeredNodes.Set(float64(count))
}

func (m *namingMetrics) RecordDirective(kind string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.directivesTotal.WithLabelValues(kind, status).Inc()
	m.directiveDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *namingMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *namingMetrics) RecordConnectionAccepted() {
	m.connsAccepted.Inc()
}

func (m *namingMetrics) RecordConnectionClosed() {
	m.connsClosed.Inc()
}

// noopNamingMetrics is the zero-overhead implementation used when metrics
// are disabled.
type noopNamingMetrics struct{}

func (noopNamingMetrics) RecordRequest(string, time.Duration, error)   {}
func (noopNamingMetrics) RecordRequestStart(string)                    {}
func (noopNamingMetrics) RecordRequestEnd(string)                      {}
func (noopNamingMetrics) RecordLockWait(time.Duration)                 {}
func (noopNamingMetrics) SetRegisteredNodes(int)                       {}
func (noopNamingMetrics) RecordDirective(string, time.Duration, error) {}
func (noopNamingMetrics) SetActiveConnections(int32)                   {}
func (noopNamingMetrics) RecordConnectionAccepted()                    {}
func (noopNamingMetrics) RecordConnectionClosed()                      {}
