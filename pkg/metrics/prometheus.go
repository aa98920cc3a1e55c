// Package metrics provides Prometheus metrics for the matchmaking and
// rating core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Match formation
	matchesFormed   prometheus.Counter
	matchesDegraded prometheus.Counter
	formationErrors prometheus.Counter
	balanceDuration prometheus.Histogram
	balancePoolSize prometheus.Gauge

	// Rating engine
	ratingApplies     prometheus.Counter
	ratingCorrections prometheus.Counter
	ratingNoops       prometheus.Counter
	ratingChangeRows  prometheus.Counter

	// Participant pool
	poolSize        prometheus.Gauge
	poolCapacity    prometheus.Gauge
	poolUtilization prometheus.Gauge
	poolJoins       prometheus.Counter
	poolLeaves      prometheus.Counter
	poolRejections  prometheus.Counter

	// Repository
	participantsTracked prometheus.Gauge
	matchesRecorded     prometheus.Gauge
	storeUpdateLatency  prometheus.Histogram
	storeQueryLatency   prometheus.Histogram

	// Error tracking
	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry so the default Go collectors stay out of the scrape.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // singleton registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "owbot",
		subsystem:        "matchmaking",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// initializeMetrics registers every metric on the configured registry.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.matchesFormed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "matches_formed_total",
		Help:      "Total number of matches formed from the pool",
	})

	m.matchesDegraded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "matches_degraded_total",
		Help:      "Matches formed without role enforcement after a feasibility fallback",
	})

	m.formationErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "formation_errors_total",
		Help:      "Match formation attempts that failed",
	})

	m.balanceDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "balance_duration_milliseconds",
		Help:      "Duration of the combinatorial balance search in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.balancePoolSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "balance_pool_size",
		Help:      "Pool size handed to the most recent balance search",
	})

	m.ratingApplies = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rating_applies_total",
		Help:      "Match results applied to the rating ledger",
	})

	m.ratingCorrections = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rating_corrections_total",
		Help:      "Retroactive rating corrections after an overturned result",
	})

	m.ratingNoops = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rating_noops_total",
		Help:      "Idempotent no-op apply/correct calls",
	})

	m.ratingChangeRows = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rating_change_rows_total",
		Help:      "Rating change ledger rows written",
	})

	m.poolSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pool_size",
		Help:      "Participants currently waiting in the pool",
	})

	m.poolCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pool_capacity",
		Help:      "Maximum pool capacity",
	})

	m.poolUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pool_utilization_ratio",
		Help:      "Pool utilization ratio (waiting / capacity)",
	})

	m.poolJoins = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pool_joins_total",
		Help:      "Successful pool joins",
	})

	m.poolLeaves = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pool_leaves_total",
		Help:      "Participants removed from the pool (leave or consumption)",
	})

	m.poolRejections = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pool_rejections_total",
		Help:      "Pool joins rejected (duplicate or capacity)",
	})

	m.participantsTracked = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "participants_tracked",
		Help:      "Participants tracked by the rating store",
	})

	m.matchesRecorded = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "matches_recorded",
		Help:      "Match records held by the store",
	})

	m.storeUpdateLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_update_latency_milliseconds",
		Help:      "Store write operation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_query_latency_milliseconds",
		Help:      "Store read operation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.errorsByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Errors by component and kind",
		},
		[]string{"component", "kind"},
	)
}

// RecordMatchFormed increments the formed-matches counter.
func RecordMatchFormed() {
	globalManager.matchesFormed.Inc()
}

// RecordMatchDegraded counts a match formed after the role fallback.
func RecordMatchDegraded() {
	globalManager.matchesDegraded.Inc()
}

// RecordFormationError counts a failed match formation attempt.
func RecordFormationError() {
	globalManager.formationErrors.Inc()
}

// RecordBalanceDuration observes one balance search duration.
func RecordBalanceDuration(latencyMs float64) {
	globalManager.balanceDuration.Observe(latencyMs)
}

// UpdateBalancePoolSize records the pool size of the latest search.
func UpdateBalancePoolSize(n int) {
	globalManager.balancePoolSize.Set(float64(n))
}

// RecordRatingApply counts a completed ledger apply.
func RecordRatingApply() {
	globalManager.ratingApplies.Inc()
}

// RecordRatingCorrection counts a completed retroactive correction.
func RecordRatingCorrection() {
	globalManager.ratingCorrections.Inc()
}

// RecordRatingNoop counts an idempotent apply/correct no-op.
func RecordRatingNoop() {
	globalManager.ratingNoops.Inc()
}

// AddRatingChangeRows counts ledger rows written.
func AddRatingChangeRows(n int) {
	globalManager.ratingChangeRows.Add(float64(n))
}

// UpdatePoolSize sets the current pool size gauge.
func UpdatePoolSize(size int) {
	globalManager.poolSize.Set(float64(size))
}

// UpdatePoolCapacity sets the pool capacity gauge.
func UpdatePoolCapacity(capacity int) {
	globalManager.poolCapacity.Set(float64(capacity))
}

// UpdatePoolUtilization sets the pool utilization ratio gauge.
func UpdatePoolUtilization(utilization float64) {
	globalManager.poolUtilization.Set(utilization)
}

// RecordPoolJoin counts a successful join.
func RecordPoolJoin() {
	globalManager.poolJoins.Inc()
}

// RecordPoolLeave counts a removal from the pool.
func RecordPoolLeave() {
	globalManager.poolLeaves.Inc()
}

// RecordPoolRejection counts a rejected join.
func RecordPoolRejection() {
	globalManager.poolRejections.Inc()
}

// UpdateParticipantsTracked sets the tracked-participants gauge.
func UpdateParticipantsTracked(count int) {
	globalManager.participantsTracked.Set(float64(count))
}

// UpdateMatchesRecorded sets the recorded-matches gauge.
func UpdateMatchesRecorded(count int) {
	globalManager.matchesRecorded.Set(float64(count))
}

// RecordStoreUpdateLatency observes one store write latency.
func RecordStoreUpdateLatency(latencyMs float64) {
	globalManager.storeUpdateLatency.Observe(latencyMs)
}

// RecordStoreQueryLatency observes one store read latency.
func RecordStoreQueryLatency(latencyMs float64) {
	globalManager.storeQueryLatency.Observe(latencyMs)
}

// RecordErrorByComponent counts an error for a component/kind pair.
func RecordErrorByComponent(component, kind string) {
	globalManager.errorsByComponent.WithLabelValues(component, kind).Inc()
}

// GetRegistry returns the custom Prometheus registry for serving /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
