package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Lookup metrics
	LookupsTotal          *prometheus.CounterVec
	LookupDurationSeconds *prometheus.HistogramVec
	StrategyAttemptsTotal *prometheus.CounterVec
	SuggestionsTotal      *prometheus.CounterVec

	// HTTP metrics
	HTTPErrorsTotal *prometheus.CounterVec

	// Rate limiter metrics
	RateLimiterDropped *prometheus.CounterVec
	RateLimiterKeys    *prometheus.GaugeVec

	// Catalog metrics
	CatalogRecords      *prometheus.GaugeVec
	CatalogImportsTotal *prometheus.CounterVec
	CatalogRejected     *prometheus.CounterVec
	CatalogImportSecs   prometheus.Histogram
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// Lookup metrics
		LookupsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_course_lookups_total",
				Help: "Total number of course lookups by outcome and winning strategy",
			},
			[]string{"outcome", "strategy"}, // outcome: found, not_found, error; strategy: object_id, paper_number, slug, none
		),

		LookupDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "academy_course_lookup_duration_seconds",
				Help:    "Course lookup duration in seconds by outcome",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"outcome"},
		),

		StrategyAttemptsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_course_lookup_strategy_attempts_total",
				Help: "Total number of lookup strategy attempts by strategy and result",
			},
			[]string{"strategy", "result"}, // result: hit, miss, error
		),

		SuggestionsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_course_suggestions_total",
				Help: "Total number of suggestion requests by whether any suggestion was returned",
			},
			[]string{"result"}, // result: served, empty, error
		),

		// HTTP metrics
		HTTPErrorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_http_errors_total",
				Help: "Total HTTP errors by type and module",
			},
			[]string{"error_type", "module"}, // error_type: not_found, invalid_input, internal, rate_limit, etc.
		),

		// Rate limiter metrics
		RateLimiterDropped: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_rate_limiter_dropped_total",
				Help: "Total number of requests dropped by rate limiter",
			},
			[]string{"limiter_type"}, // limiter_type: api
		),

		RateLimiterKeys: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "academy_rate_limiter_active_keys",
				Help: "Number of clients currently tracked by the rate limiter",
			},
			[]string{"limiter_type"},
		),

		// Catalog metrics
		CatalogRecords: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "academy_catalog_records",
				Help: "Number of catalog records currently stored by kind",
			},
			[]string{"kind"}, // kind: faculties, courses
		),

		CatalogImportsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_catalog_imports_total",
				Help: "Total number of catalog imports by trigger and status",
			},
			[]string{"trigger", "status"}, // trigger: startup, admin, cli; status: success, error
		),

		CatalogRejected: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_catalog_rejected_records_total",
				Help: "Total number of catalog records rejected during import by kind",
			},
			[]string{"kind"},
		),

		CatalogImportSecs: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "academy_catalog_import_duration_seconds",
				Help:    "Duration of catalog imports",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
	}

	return m
}

// RecordLookup records a finished lookup with its winning strategy.
func (m *Metrics) RecordLookup(outcome, strategy string, duration float64) {
	if strategy == "" {
		strategy = "none"
	}
	m.LookupsTotal.WithLabelValues(outcome, strategy).Inc()
	m.LookupDurationSeconds.WithLabelValues(outcome).Observe(duration)
}

// RecordStrategyAttempt records one strategy run
func (m *Metrics) RecordStrategyAttempt(strategy, result string) {
	m.StrategyAttemptsTotal.WithLabelValues(strategy, result).Inc()
}

// RecordSuggestions records a suggestion request
func (m *Metrics) RecordSuggestions(result string) {
	m.SuggestionsTotal.WithLabelValues(result).Inc()
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(errorType, module string) {
	m.HTTPErrorsTotal.WithLabelValues(errorType, module).Inc()
}

// RecordRateLimiterDrop records a request dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}

// SetRateLimiterKeys updates the tracked client count
func (m *Metrics) SetRateLimiterKeys(limiterType string, count int) {
	m.RateLimiterKeys.WithLabelValues(limiterType).Set(float64(count))
}

// SetCatalogSize updates the stored record gauges
func (m *Metrics) SetCatalogSize(faculties, courses int) {
	m.CatalogRecords.WithLabelValues("faculties").Set(float64(faculties))
	m.CatalogRecords.WithLabelValues("courses").Set(float64(courses))
}

// RecordCatalogImport records a catalog import run
func (m *Metrics) RecordCatalogImport(trigger, status string, duration float64) {
	m.CatalogImportsTotal.WithLabelValues(trigger, status).Inc()
	m.CatalogImportSecs.Observe(duration)
}

// RecordCatalogRejected records records dropped by import validation
func (m *Metrics) RecordCatalogRejected(kind string, count int) {
	if count <= 0 {
		return
	}
	m.CatalogRejected.WithLabelValues(kind).Add(float64(count))
}
