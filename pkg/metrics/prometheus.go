// Package metrics provides Prometheus metrics for the roll-call service and client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the roll-call binaries.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Roll-call business metrics
	callsCommitted prometheus.Counter
	callsRejected  prometheus.Counter
	callReplays    prometheus.Counter
	rosterSize     prometheus.Gauge
	historySize    prometheus.Gauge
	imports        *prometheus.CounterVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByComponent   *prometheus.CounterVec

	// Live feed metrics
	queueSize           prometheus.Gauge
	queueCapacity       prometheus.Gauge
	liveEventsPublished prometheus.Counter
	liveEventsDropped   prometheus.Counter
	liveSubscribers     prometheus.Gauge

	// Animator metrics
	animatorCycles        *prometheus.CounterVec
	animatorTicks         prometheus.Counter
	animatorCommitLatency prometheus.Histogram

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rollcall",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		constLabels:      make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.callsCommitted = m.counter("calls_committed_total", "Total number of committed roll calls")
	m.callsRejected = m.counter("calls_rejected_total", "Total number of roll calls rejected (empty roster)")
	m.callReplays = m.counter("call_replays_total", "Total number of roll calls answered from the idempotency cache")
	m.rosterSize = m.gauge("roster_size", "Current number of students on the roster")
	m.historySize = m.gauge("history_size", "Current number of call history records")
	m.imports = m.counterVec("imports_total", "Roster imports by result", "result")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_request_duration_milliseconds",
			Help:        "HTTP request duration in milliseconds",
			Buckets:     []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by HTTP endpoint",
		"endpoint", "method", "error_type")
	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component",
		"component", "error_type")

	m.queueSize = m.gauge("live_queue_size", "Current number of live events waiting for dispatch")
	m.queueCapacity = m.gauge("live_queue_capacity", "Capacity of the live event queue")
	m.liveEventsPublished = m.counter("live_events_published_total", "Live events delivered to the hub")
	m.liveEventsDropped = m.counter("live_events_dropped_total", "Live events dropped due to backpressure")
	m.liveSubscribers = m.gauge("live_subscribers", "Currently connected live feed subscribers")

	m.animatorCycles = m.counterVec("animator_cycles_total", "Roll-call animation cycles by outcome", "outcome")
	m.animatorTicks = m.counter("animator_ticks_total", "Roster reads performed by the animator")
	m.animatorCommitLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "animator_commit_latency_milliseconds",
		Help:        "Latency of the authoritative pick request in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordCallCommitted increments the committed calls counter.
func RecordCallCommitted() {
	if globalManager.enabled {
		globalManager.callsCommitted.Inc()
	}
}

// RecordCallRejected increments the rejected calls counter.
func RecordCallRejected() {
	if globalManager.enabled {
		globalManager.callsRejected.Inc()
	}
}

// RecordCallReplay increments the idempotent replay counter.
func RecordCallReplay() {
	if globalManager.enabled {
		globalManager.callReplays.Inc()
	}
}

// UpdateRosterSize sets the roster size gauge.
func UpdateRosterSize(size int) {
	if globalManager.enabled {
		globalManager.rosterSize.Set(float64(size))
	}
}

// UpdateHistorySize sets the history size gauge.
func UpdateHistorySize(size int) {
	if globalManager.enabled {
		globalManager.historySize.Set(float64(size))
	}
}

// RecordImport counts a roster import by result ("ok" or an error kind).
func RecordImport(result string) {
	if globalManager.enabled {
		globalManager.imports.WithLabelValues(result).Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByEndpoint records an error for a specific endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if globalManager.enabled {
		globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// RecordErrorByComponent records an error for a specific component.
func RecordErrorByComponent(component, errorType string) {
	if globalManager.enabled {
		globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// UpdateQueueSize sets the live queue size gauge.
func UpdateQueueSize(size int) {
	if globalManager.enabled {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the live queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	if globalManager.enabled {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// RecordLiveEventPublished counts an event handed to the live hub.
func RecordLiveEventPublished() {
	if globalManager.enabled {
		globalManager.liveEventsPublished.Inc()
	}
}

// RecordLiveEventDropped counts an event dropped before reaching subscribers.
func RecordLiveEventDropped() {
	if globalManager.enabled {
		globalManager.liveEventsDropped.Inc()
	}
}

// UpdateLiveSubscribers sets the live subscribers gauge.
func UpdateLiveSubscribers(count int) {
	if globalManager.enabled {
		globalManager.liveSubscribers.Set(float64(count))
	}
}

// RecordAnimatorCycle counts a finished animation cycle by outcome.
func RecordAnimatorCycle(outcome string) {
	if globalManager.enabled {
		globalManager.animatorCycles.WithLabelValues(outcome).Inc()
	}
}

// RecordAnimatorTick counts one roster read of the animator.
func RecordAnimatorTick() {
	if globalManager.enabled {
		globalManager.animatorTicks.Inc()
	}
}

// RecordCommitLatency records the authoritative pick latency in milliseconds.
func RecordCommitLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.animatorCommitLatency.Observe(latencyMs)
	}
}

// UpdateSystemMemoryUsage updates the system memory usage.
func UpdateSystemMemoryUsage(bytes uint64) {
	if globalManager.enabled {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount updates the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	if globalManager.enabled {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// GetRegistry returns the custom Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
