package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the ghost relay.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Reading pipeline metrics
	readingsProcessed    prometheus.Counter
	readingsRejected     *prometheus.CounterVec
	stageLatency         *prometheus.HistogramVec
	gridReadings         *prometheus.CounterVec
	healthScore          prometheus.Histogram
	integrationTriggered prometheus.Counter
	deviceRegistrations  prometheus.Counter
	replayGuardSize      prometheus.Gauge

	// Credit cache metrics
	cacheHits              prometheus.Counter
	cacheMisses            prometheus.Counter
	cacheHydrationLatency  prometheus.Histogram
	cacheRollbacks         prometheus.Counter
	cacheInvalidations     prometheus.Counter
	cacheEntries           prometheus.Gauge
	cacheEntriesPerShard   *prometheus.GaugeVec
	cacheShardCount        prometheus.Gauge
	deviceLockWaitDuration prometheus.Histogram

	// Backend collaborator metrics
	backendLatency *prometheus.HistogramVec
	backendErrors  *prometheus.CounterVec

	// Notifier metrics
	notificationsPublished *prometheus.CounterVec
	notificationsDropped   prometheus.Counter

	// Queue metrics
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

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
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager. Without WithPrometheusRegistry the
// metrics register on prometheus.DefaultRegisterer.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ghostrelay",
		subsystem:        "relay",
		histogramBuckets: prometheus.DefBuckets,
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

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
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

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
		Buckets:     buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
		Buckets:     buckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of metric definitions
	latencyMs := []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

	// Reading pipeline
	m.readingsProcessed = m.counter("readings_processed_total",
		"Total number of readings committed to the ledger")
	m.readingsRejected = m.counterVec("readings_rejected_total",
		"Total number of rejected readings by reason", "reason")
	m.stageLatency = m.histogramVec("pipeline_stage_latency_milliseconds",
		"Latency of each reading pipeline stage in milliseconds", latencyMs, "stage")
	m.gridReadings = m.counterVec("grid_readings_total",
		"Readings credited per grid status", "status")
	m.healthScore = m.histogram("health_score",
		"Distribution of computed ghost health", prometheus.LinearBuckets(0, 10, 11))
	m.integrationTriggered = m.counter("integration_triggered_total",
		"Number of committed readings for which an integration recalculation was due")
	m.deviceRegistrations = m.counter("device_registrations_total",
		"Number of device key registrations")
	m.replayGuardSize = m.gauge("replay_guard_entries",
		"Number of reading signatures remembered by the replay guard")

	// Credit cache
	m.cacheHits = m.counter("cache_hits_total", "Credit cache hits")
	m.cacheMisses = m.counter("cache_misses_total", "Credit cache misses")
	m.cacheHydrationLatency = m.histogram("cache_hydration_latency_milliseconds",
		"Latency of hydrating a credit entry from the ledger in milliseconds", latencyMs)
	m.cacheRollbacks = m.counter("cache_rollbacks_total",
		"Credit increments reverted after a failed commit")
	m.cacheInvalidations = m.counter("cache_invalidations_total",
		"Credit entries dropped from the cache")
	m.cacheEntries = m.gauge("cache_entries", "Total credit entries held in the cache")
	m.cacheEntriesPerShard = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "cache_entries_per_shard",
		Help:        "Credit entries held per cache shard",
		ConstLabels: m.constLabels,
	}, []string{"shard"})
	m.cacheShardCount = m.gauge("cache_shard_count", "Number of credit cache shards")
	m.deviceLockWaitDuration = m.histogram("device_lock_wait_milliseconds",
		"Time spent waiting for the per-device lock in milliseconds", latencyMs)

	// Backend collaborators
	m.backendLatency = m.histogramVec("backend_call_latency_milliseconds",
		"Latency of ledger and oracle calls in milliseconds", latencyMs, "call")
	m.backendErrors = m.counterVec("backend_call_errors_total",
		"Failed ledger and oracle calls", "call")

	// Notifier
	m.notificationsPublished = m.counterVec("notifications_published_total",
		"Committed-reading notifications published", "publisher")
	m.notificationsDropped = m.counter("notifications_dropped_total",
		"Committed-reading notifications dropped because the queue was full or closed")

	// Queue
	m.queueSize = m.gauge("queue_size", "Current notification queue size")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum notification queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (0.0 to 1.0)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of enqueue operations")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of dequeue operations")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds",
		"Time an event spends in the queue in milliseconds", latencyMs)

	// Workers
	m.workerCount = m.gauge("worker_count", "Number of notifier workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of workers publishing an event")
	m.workerIdleCount = m.gauge("worker_idle_count", "Number of idle workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Worker publish latency in milliseconds", latencyMs)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker publish errors")

	// HTTP
	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_seconds",
		"HTTP request duration in seconds", m.histogramBuckets, "endpoint", "method", "status_code")

	// Errors
	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total",
		"Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Errors by endpoint, method and type", "endpoint", "method", "error_type")

	// System
	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds",
		"GC pause time in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Reading pipeline.

// RecordReadingProcessed increments the committed readings counter.
func RecordReadingProcessed() {
	globalManager.readingsProcessed.Inc()
}

// RecordReadingRejected counts a rejected reading under its reason string.
func RecordReadingRejected(reason string) {
	globalManager.readingsRejected.WithLabelValues(reason).Inc()
}

// RecordStageLatency records the latency of a named pipeline stage.
func RecordStageLatency(stage string, latencyMs float64) {
	globalManager.stageLatency.WithLabelValues(stage).Observe(latencyMs)
}

// RecordGridReading counts a credit applied under the given grid status.
func RecordGridReading(status string) {
	globalManager.gridReadings.WithLabelValues(status).Inc()
}

// RecordHealth observes a computed health value.
func RecordHealth(health int) {
	globalManager.healthScore.Observe(float64(health))
}

// RecordIntegrationTriggered increments the integration counter.
func RecordIntegrationTriggered() {
	globalManager.integrationTriggered.Inc()
}

// RecordDeviceRegistration increments the device registration counter.
func RecordDeviceRegistration() {
	globalManager.deviceRegistrations.Inc()
}

// UpdateReplayGuardSize sets the number of remembered signatures.
func UpdateReplayGuardSize(n int) {
	globalManager.replayGuardSize.Set(float64(n))
}

// Credit cache.

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// RecordCacheHydrationLatency records how long a ledger hydration took.
func RecordCacheHydrationLatency(latencyMs float64) {
	globalManager.cacheHydrationLatency.Observe(latencyMs)
}

// RecordCacheRollback increments the rollback counter.
func RecordCacheRollback() {
	globalManager.cacheRollbacks.Inc()
}

// RecordCacheInvalidation increments the invalidation counter.
func RecordCacheInvalidation() {
	globalManager.cacheInvalidations.Inc()
}

// UpdateCacheEntries sets the total number of cached credit entries.
func UpdateCacheEntries(count int) {
	globalManager.cacheEntries.Set(float64(count))
}

// UpdateCacheEntriesPerShard sets the number of entries held by one shard.
func UpdateCacheEntriesPerShard(shardID string, count int) {
	globalManager.cacheEntriesPerShard.WithLabelValues(shardID).Set(float64(count))
}

// UpdateCacheShardCount sets the number of cache shards.
func UpdateCacheShardCount(count int) {
	globalManager.cacheShardCount.Set(float64(count))
}

// RecordDeviceLockWait records time spent acquiring a device lock.
func RecordDeviceLockWait(latencyMs float64) {
	globalManager.deviceLockWaitDuration.Observe(latencyMs)
}

// Backend.

// RecordBackendLatency records the latency of a ledger or oracle call.
func RecordBackendLatency(call string, latencyMs float64) {
	globalManager.backendLatency.WithLabelValues(call).Observe(latencyMs)
}

// RecordBackendError counts a failed ledger or oracle call.
func RecordBackendError(call string) {
	globalManager.backendErrors.WithLabelValues(call).Inc()
}

// Notifier.

// RecordNotificationPublished counts a published committed-reading event.
func RecordNotificationPublished(publisher string) {
	globalManager.notificationsPublished.WithLabelValues(publisher).Inc()
}

// RecordNotificationDropped counts an event dropped under backpressure.
func RecordNotificationDropped() {
	globalManager.notificationsDropped.Inc()
}

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Workers.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in seconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

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

// System.

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
