// Package metrics provides Prometheus metrics for the civicflow report service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Lifecycle
	transitions       *prometheus.CounterVec
	rejectedActions   *prometheus.CounterVec
	classifyMerges    prometheus.Counter
	upvoteToggles     *prometheus.CounterVec
	rewardsApplied    prometheus.Counter
	pointsAwarded     prometheus.Counter
	monthlyResetUsers prometheus.Counter

	// Side-effect task pool
	taskQueueSize     prometheus.Gauge
	taskQueueCapacity prometheus.Gauge
	tasks             *prometheus.CounterVec
	taskLatency       *prometheus.HistogramVec
	taskDeduplicated  *prometheus.CounterVec
	workerCount       prometheus.Gauge

	// Downstream collaborators
	ledgerRecords      *prometheus.CounterVec
	ledgerLatency      prometheus.Histogram
	classifyEnqueues   *prometheus.CounterVec
	notificationsSaved prometheus.Counter
	pushes             *prometheus.CounterVec
	subscribers        prometheus.Gauge
	broadcastDropped   prometheus.Counter
	broadcastEmitted   *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // custom registry without Go runtime collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "civicflow",
		subsystem:        "reports",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.transitions = m.counterVec("transitions_total", "Committed report status transitions by target status", "status")
	m.rejectedActions = m.counterVec("rejected_actions_total", "Lifecycle actions rejected by the store, by action and reason", "action", "reason")
	m.classifyMerges = m.counter("classification_merges_total", "Classification results merged into reports")
	m.upvoteToggles = m.counterVec("upvote_toggles_total", "Upvote toggles by direction", "direction")
	m.rewardsApplied = m.counter("rewards_applied_total", "Resolution reward batches applied")
	m.pointsAwarded = m.counter("points_awarded_total", "Lifetime points credited to citizens")
	m.monthlyResetUsers = m.counter("monthly_reset_users_total", "Users whose monthly points were zeroed by a reset")

	m.taskQueueSize = m.gauge("task_queue_size", "Side-effect tasks waiting for a worker")
	m.taskQueueCapacity = m.gauge("task_queue_capacity", "Maximum side-effect task backlog")
	m.tasks = m.counterVec("tasks_total", "Side-effect task outcomes by task name", "task", "outcome")
	m.taskLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "task_duration_milliseconds",
		Help:      "Side-effect task run time in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"task"})
	m.taskDeduplicated = m.counterVec("tasks_deduplicated_total", "Side-effect tasks skipped because their key already ran", "task")
	m.workerCount = m.gauge("worker_count", "Side-effect workers running")

	m.ledgerRecords = m.counterVec("ledger_records_total", "Ledger milestone records by kind and outcome", "kind", "outcome")
	m.ledgerLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ledger_latency_milliseconds",
		Help:      "Ledger submit-and-confirm latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})
	m.classifyEnqueues = m.counterVec("classification_enqueues_total", "Classification job enqueue attempts by outcome", "outcome")
	m.notificationsSaved = m.counter("notifications_saved_total", "Notification rows written to inboxes")
	m.pushes = m.counterVec("push_total", "Push delivery attempts by outcome", "outcome")
	m.subscribers = m.gauge("broadcast_subscribers", "Live subscribers currently connected")
	m.broadcastDropped = m.counter("broadcast_dropped_total", "Broadcast frames dropped for slow subscribers")
	m.broadcastEmitted = m.counterVec("broadcast_emitted_total", "Broadcast events emitted by topic", "topic")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// Lifecycle.

// RecordTransition counts a committed status transition.
func RecordTransition(status string) {
	globalManager.transitions.WithLabelValues(status).Inc()
}

// RecordRejectedAction counts a lifecycle action refused by the store.
func RecordRejectedAction(action, reason string) {
	globalManager.rejectedActions.WithLabelValues(action, reason).Inc()
}

// RecordClassificationMerge counts a merged classification result.
func RecordClassificationMerge() {
	globalManager.classifyMerges.Inc()
}

// RecordUpvoteToggle counts an upvote toggle; direction is "up" or "down".
func RecordUpvoteToggle(direction string) {
	globalManager.upvoteToggles.WithLabelValues(direction).Inc()
}

// RecordRewardsApplied counts one resolution reward batch and its lifetime points.
func RecordRewardsApplied(points int) {
	globalManager.rewardsApplied.Inc()
	globalManager.pointsAwarded.Add(float64(points))
}

// RecordMonthlyReset counts users zeroed by a monthly reset.
func RecordMonthlyReset(users int) {
	globalManager.monthlyResetUsers.Add(float64(users))
}

// Task pool.

// UpdateTaskQueueSize sets the current side-effect backlog.
func UpdateTaskQueueSize(size int) {
	globalManager.taskQueueSize.Set(float64(size))
}

// UpdateTaskQueueCapacity sets the side-effect backlog bound.
func UpdateTaskQueueCapacity(capacity int) {
	globalManager.taskQueueCapacity.Set(float64(capacity))
}

// RecordTask records a finished task with its outcome (ok, error, panic, dropped).
func RecordTask(task, outcome string, latencyMs float64) {
	globalManager.tasks.WithLabelValues(task, outcome).Inc()
	if outcome != "dropped" {
		globalManager.taskLatency.WithLabelValues(task).Observe(latencyMs)
	}
}

// RecordTaskDeduplicated counts a task skipped because its key already ran.
func RecordTaskDeduplicated(task string) {
	globalManager.taskDeduplicated.WithLabelValues(task).Inc()
}

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// Downstream.

// RecordLedger records a ledger record outcome (confirmed or synthetic).
func RecordLedger(kind, outcome string, latencyMs float64) {
	globalManager.ledgerRecords.WithLabelValues(kind, outcome).Inc()
	globalManager.ledgerLatency.Observe(latencyMs)
}

// RecordClassificationEnqueue records a classification enqueue outcome.
func RecordClassificationEnqueue(outcome string) {
	globalManager.classifyEnqueues.WithLabelValues(outcome).Inc()
}

// RecordNotificationSaved counts a durable inbox write.
func RecordNotificationSaved() {
	globalManager.notificationsSaved.Inc()
}

// RecordPush records a push attempt outcome (sent, failed, skipped).
func RecordPush(outcome string) {
	globalManager.pushes.WithLabelValues(outcome).Inc()
}

// UpdateSubscribers sets the number of connected live subscribers.
func UpdateSubscribers(count int) {
	globalManager.subscribers.Set(float64(count))
}

// RecordBroadcast counts an emitted broadcast event.
func RecordBroadcast(topic string) {
	globalManager.broadcastEmitted.WithLabelValues(topic).Inc()
}

// RecordBroadcastDropped counts a frame dropped for a slow subscriber.
func RecordBroadcastDropped() {
	globalManager.broadcastDropped.Inc()
}

// HTTP.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
