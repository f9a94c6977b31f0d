package metrics

import (
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultRefreshInterval = 15 * time.Second

// defaultLatencyBuckets are in milliseconds, matching every latency histogram.
var defaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000}

// aqiBuckets follow the index band edges.
var aqiBuckets = []float64{50, 100, 150, 200, 300, 400, 500}

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace       string
	subsystem       string
	latencyBuckets  []float64
	enabled         bool
	refreshInterval time.Duration
	customLabels    map[string]string
	metricPrefix    string
	registry        prometheus.Registerer

	// Prediction pipeline
	predictions         prometheus.Counter
	validationFailures  prometheus.Counter
	computationFailures *prometheus.CounterVec
	inferenceLatency    prometheus.Histogram
	aqiValue            prometheus.Histogram
	aqiCategory         *prometheus.CounterVec
	concentration       *prometheus.GaugeVec

	// Batch pool
	batchSize     prometheus.Histogram
	batchInFlight prometheus.Gauge

	// Location lookup
	locationLookups *prometheus.CounterVec
	locationLatency prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram

	gcMu   sync.Mutex
	lastGC uint32

	intervalMu sync.RWMutex
}

var (
	customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process wide registry
	globalManager  *Manager                   //nolint:gochecknoglobals // process wide manager
)

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "aqicast",
		subsystem:       "service",
		latencyBuckets:  defaultLatencyBuckets,
		enabled:         true,
		refreshInterval: defaultRefreshInterval,
		customLabels:    map[string]string{},
		registry:        prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return strings.TrimSuffix(m.metricPrefix, "_") + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts(m.counterOpts(name, help))
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
		Buckets:     buckets,
	}
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.predictions = auto.NewCounter(m.counterOpts("predictions_total",
		"Total number of successful concentration predictions"))
	m.validationFailures = auto.NewCounter(m.counterOpts("validation_failures_total",
		"Total number of readings rejected for missing or invalid features"))
	m.computationFailures = auto.NewCounterVec(m.counterOpts("computation_failures_total",
		"Total number of model failures by pipeline stage"), []string{"stage"})
	m.inferenceLatency = auto.NewHistogram(m.histogramOpts("inference_latency_milliseconds",
		"Estimator latency in milliseconds", m.latencyBuckets))
	m.aqiValue = auto.NewHistogram(m.histogramOpts("aqi_value",
		"Distribution of computed overall AQI values", aqiBuckets))
	m.aqiCategory = auto.NewCounterVec(m.counterOpts("aqi_category_total",
		"Computed AQI values by health category"), []string{"category"})
	m.concentration = auto.NewGaugeVec(m.gaugeOpts("pollutant_concentration",
		"Most recent predicted concentration per pollutant"), []string{"pollutant"})

	m.batchSize = auto.NewHistogram(m.histogramOpts("batch_size",
		"Number of readings per batch request", []float64{1, 2, 5, 10, 25, 50, 100, 250}))
	m.batchInFlight = auto.NewGauge(m.gaugeOpts("batch_in_flight",
		"Readings currently being processed by the batch pool"))

	m.locationLookups = auto.NewCounterVec(m.counterOpts("location_lookups_total",
		"Location lookups by outcome (hit, miss, error)"), []string{"result"})
	m.locationLatency = auto.NewHistogram(m.histogramOpts("location_fetch_latency_milliseconds",
		"Upstream location fetch latency in milliseconds", m.latencyBuckets))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.latencyBuckets),
		[]string{"endpoint", "method", "status_code"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"Total number of error responses by endpoint"),
		[]string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes",
		"Heap memory in use in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count",
		"Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds",
		"GC pause time in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// Enabled reports whether observations are recorded.
func (m *Manager) Enabled() bool { return m.enabled }

// RefreshInterval is how often system gauges should be refreshed.
func (m *Manager) RefreshInterval() time.Duration {
	m.intervalMu.RLock()
	defer m.intervalMu.RUnlock()
	return m.refreshInterval
}

// SetRefreshInterval changes the system gauge refresh period. Non-positive
// values are ignored. Schedulers read the interval when they are built.
func (m *Manager) SetRefreshInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	m.intervalMu.Lock()
	m.refreshInterval = d
	m.intervalMu.Unlock()
}

// RecordPrediction counts a successful prediction and its latency.
func (m *Manager) RecordPrediction(latency time.Duration) {
	if !m.enabled {
		return
	}
	m.predictions.Inc()
	m.inferenceLatency.Observe(float64(latency) / float64(time.Millisecond))
}

// RecordValidationFailure counts a rejected reading.
func (m *Manager) RecordValidationFailure() {
	if m.enabled {
		m.validationFailures.Inc()
	}
}

// RecordComputationFailure counts a model failure at stage.
func (m *Manager) RecordComputationFailure(stage string) {
	if m.enabled {
		m.computationFailures.WithLabelValues(stage).Inc()
	}
}

// RecordAQI observes an overall AQI value and its category.
func (m *Manager) RecordAQI(value float64, category string) {
	if !m.enabled {
		return
	}
	m.aqiValue.Observe(value)
	m.aqiCategory.WithLabelValues(category).Inc()
}

// UpdateConcentration sets the latest concentration for a pollutant.
func (m *Manager) UpdateConcentration(pollutant string, value float64) {
	if m.enabled {
		m.concentration.WithLabelValues(pollutant).Set(value)
	}
}

// RecordBatchSize observes the number of readings in a batch.
func (m *Manager) RecordBatchSize(n int) {
	if m.enabled {
		m.batchSize.Observe(float64(n))
	}
}

// AddBatchInFlight moves the in-flight gauge by delta.
func (m *Manager) AddBatchInFlight(delta int) {
	if m.enabled {
		m.batchInFlight.Add(float64(delta))
	}
}

// RecordLocationLookup counts a lookup outcome: hit, miss or error.
func (m *Manager) RecordLocationLookup(result string) {
	if m.enabled {
		m.locationLookups.WithLabelValues(result).Inc()
	}
}

// RecordLocationLatency observes an upstream fetch.
func (m *Manager) RecordLocationLatency(latency time.Duration) {
	if m.enabled {
		m.locationLatency.Observe(float64(latency) / float64(time.Millisecond))
	}
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByEndpoint counts an error response.
func (m *Manager) RecordErrorByEndpoint(endpoint, method, errorType string) {
	if m.enabled {
		m.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// RefreshSystem samples runtime memory, goroutine and GC statistics.
func (m *Manager) RefreshSystem() {
	if !m.enabled {
		return
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.systemMemoryUsage.Set(float64(ms.HeapAlloc))
	m.systemGoroutineCount.Set(float64(runtime.NumGoroutine()))

	m.gcMu.Lock()
	defer m.gcMu.Unlock()

	// PauseNs is a ring buffer of the most recent 256 pauses
	from := m.lastGC
	if ms.NumGC-from > uint32(len(ms.PauseNs)) {
		from = ms.NumGC - uint32(len(ms.PauseNs))
	}
	for i := from; i < ms.NumGC; i++ {
		pause := ms.PauseNs[i%uint32(len(ms.PauseNs))]
		m.systemGCPauseTime.Observe(float64(pause) / float64(time.Millisecond))
	}
	m.lastGC = ms.NumGC
}

// Default returns the process wide manager.
func Default() *Manager { return globalManager }

// GetRegistry returns the registry the process wide manager registers on.
func GetRegistry() *prometheus.Registry { return customRegistry }

// Package level shortcuts on the process wide manager.

func RecordPrediction(latency time.Duration)   { globalManager.RecordPrediction(latency) }
func RecordValidationFailure()                 { globalManager.RecordValidationFailure() }
func RecordComputationFailure(stage string)    { globalManager.RecordComputationFailure(stage) }
func RecordAQI(value float64, category string) { globalManager.RecordAQI(value, category) }
func UpdateConcentration(p string, v float64)  { globalManager.UpdateConcentration(p, v) }
func RecordBatchSize(n int)                    { globalManager.RecordBatchSize(n) }
func AddBatchInFlight(delta int)               { globalManager.AddBatchInFlight(delta) }
func RecordLocationLookup(result string)       { globalManager.RecordLocationLookup(result) }
func RecordLocationLatency(d time.Duration)    { globalManager.RecordLocationLatency(d) }
func RefreshSystem()                           { globalManager.RefreshSystem() }
func SetRefreshInterval(d time.Duration)       { globalManager.SetRefreshInterval(d) }

// RecordHTTPRequest records one completed HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode, durationMs)
}

// RecordErrorByEndpoint counts an error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.RecordErrorByEndpoint(endpoint, method, errorType)
}
