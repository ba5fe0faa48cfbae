// Package metrics provides Prometheus metrics for the circle game server.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the game server.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Game metrics
	gesturesScored       prometheus.Counter
	scoreDistribution    prometheus.Histogram
	pathSamples          prometheus.Histogram
	degeneratePaths      prometheus.Counter
	duplicateSubmissions prometheus.Counter
	gesturesAbandoned    prometheus.Counter

	// Session metrics
	activeSessions   prometheus.Gauge
	expiredSessions  prometheus.Counter
	liveGestures     prometheus.Gauge
	wsConnections    prometheus.Gauge
	wsFramesReceived *prometheus.CounterVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager. Without WithPrometheusRegistry
// the metrics register on prometheus.DefaultRegisterer.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "circle",
		subsystem:        "game",
		histogramBuckets: prometheus.DefBuckets,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// variableLabels are the label names set per observation by some metric.
// Constant labels must not reuse them.
var variableLabels = map[string]struct{}{ //nolint:gochecknoglobals // fixed lookup table
	"type": {}, "endpoint": {}, "method": {}, "status_code": {},
	"component": {}, "error_type": {}, "severity": {},
}

// Init replaces the process-wide manager with one built from opts on a
// fresh custom registry. It must run before metrics are served or recorded
// concurrently.
func Init(opts ...Option) (*Manager, error) {
	var check Manager
	for _, opt := range opts {
		opt(&check)
	}
	for name := range check.customLabels {
		if _, taken := variableLabels[name]; taken {
			return nil, fmt.Errorf("%w: constant label %q is a variable label", ErrInvalidOption, name)
		}
	}

	registry := prometheus.NewRegistry()
	m := NewManager(append(append([]Option(nil), opts...), WithPrometheusRegistry(registry))...)
	customRegistry = registry
	globalManager = m
	return m, nil
}

// name applies the configured metric prefix.
func (m *Manager) name(base string) string {
	if m.metricPrefix == "" {
		return base
	}
	return m.metricPrefix + "_" + base
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	m.gesturesScored = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("gestures_scored_total"),
		Help:        "Total number of gestures scored and recorded",
		ConstLabels: labels,
	})

	m.scoreDistribution = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("score"),
		Help:        "Distribution of circularity scores",
		Buckets:     prometheus.LinearBuckets(0, 10, 11),
		ConstLabels: labels,
	})

	m.pathSamples = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("path_samples"),
		Help:        "Number of sampled points per scored path",
		Buckets:     prometheus.ExponentialBuckets(1, 2, 14),
		ConstLabels: labels,
	})

	m.degeneratePaths = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("degenerate_paths_total"),
		Help:        "Paths with too few samples to judge (scored zero)",
		ConstLabels: labels,
	})

	m.duplicateSubmissions = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("duplicate_submissions_total"),
		Help:        "Path submissions ignored because their gesture id was already recorded",
		ConstLabels: labels,
	})

	m.gesturesAbandoned = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("gestures_abandoned_total"),
		Help:        "Gestures discarded because a new gesture started before they ended",
		ConstLabels: labels,
	})

	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("active_sessions"),
		Help:        "Number of live browsing sessions",
		ConstLabels: labels,
	})

	m.expiredSessions = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("expired_sessions_total"),
		Help:        "Total number of sessions removed after their idle TTL",
		ConstLabels: labels,
	})

	m.liveGestures = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("live_gesture_trackers"),
		Help:        "Number of sessions holding gesture tracker state",
		ConstLabels: labels,
	})

	m.wsConnections = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("websocket_connections"),
		Help:        "Open gesture stream connections",
		ConstLabels: labels,
	})

	m.wsFramesReceived = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("websocket_frames_total"),
			Help:        "Gesture stream frames received by type",
			ConstLabels: labels,
		},
		[]string{"type"},
	)

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_requests_total"),
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_request_duration_milliseconds"),
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_component_total"),
			Help:        "Errors by component and error type",
			ConstLabels: labels,
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_type_total"),
			Help:        "Errors by type and severity",
			ConstLabels: labels,
		},
		[]string{"error_type", "severity"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_endpoint_total"),
			Help:        "Errors by HTTP endpoint, method and error type",
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_memory_usage_bytes"),
		Help:        "System memory usage in bytes",
		ConstLabels: labels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_goroutine_count"),
		Help:        "Number of goroutines",
		ConstLabels: labels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_gc_pause_time_milliseconds"),
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: labels,
	})
}

// Default returns the process-wide manager behind the package functions.
func Default() *Manager { return globalManager }

// RefreshInterval is how often gauges fed by pollers should be refreshed.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// Game Metrics Functions.

// RecordGestureScored records one scored gesture and its path length.
func RecordGestureScored(score, samples int) {
	globalManager.gesturesScored.Inc()
	globalManager.scoreDistribution.Observe(float64(score))
	globalManager.pathSamples.Observe(float64(samples))
}

// RecordDegeneratePath counts a path too short to judge.
func RecordDegeneratePath() {
	globalManager.degeneratePaths.Inc()
}

// RecordDuplicateSubmission counts a retried submission that was ignored.
func RecordDuplicateSubmission() {
	globalManager.duplicateSubmissions.Inc()
}

// RecordGestureAbandoned counts a gesture replaced before it ended.
func RecordGestureAbandoned() {
	globalManager.gesturesAbandoned.Inc()
}

// Session Metrics Functions.

// UpdateActiveSessions sets the number of live sessions.
func UpdateActiveSessions(count int) {
	globalManager.activeSessions.Set(float64(count))
}

// RecordSessionExpired counts a session removed after its TTL.
func RecordSessionExpired() {
	globalManager.expiredSessions.Inc()
}

// UpdateLiveGestures sets the number of sessions holding tracker state.
func UpdateLiveGestures(count int) {
	globalManager.liveGestures.Set(float64(count))
}

// WebsocketOpened increments the open gesture stream gauge.
func WebsocketOpened() {
	globalManager.wsConnections.Inc()
}

// WebsocketClosed decrements the open gesture stream gauge.
func WebsocketClosed() {
	globalManager.wsConnections.Dec()
}

// RecordWebsocketFrame counts a received gesture stream frame.
func RecordWebsocketFrame(frameType string) {
	globalManager.wsFramesReceived.WithLabelValues(frameType).Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
