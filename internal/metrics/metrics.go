package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolution outcomes
const (
	OutcomeResolved = "resolved"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

var (
	// ResolutionsTotal counts keyword resolutions by outcome and action
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gotab_resolutions_total",
		Help: "Total number of keyword resolutions",
	}, []string{"outcome", "action"})

	// MutationsTotal counts changes to the mapping set
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gotab_mutations_total",
		Help: "Total number of mapping set mutations",
	}, []string{"op"}) // "add", "delete" or "import"

	// ValidationFailuresTotal counts rejected writes by error code
	ValidationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gotab_validation_failures_total",
		Help: "Total number of writes rejected by validation",
	}, []string{"code"})

	// StorageErrorsTotal counts failed storage round trips
	StorageErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gotab_storage_errors_total",
		Help: "Total number of failed mapping storage operations",
	}, []string{"op"})

	// ImportedEntriesTotal counts entries applied by imports
	ImportedEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gotab_imported_entries_total",
		Help: "Total number of mapping entries applied by imports",
	})

	// MappingSetSize tracks the size of the mapping set after the last read
	MappingSetSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gotab_mapping_set_size",
		Help: "Number of keyword mappings in the set as of the last operation",
	})

	// OperationDuration tracks store round-trip latency
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gotab_operation_duration_seconds",
		Help:    "Mapping operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

// RecordResolution records one resolution
func RecordResolution(outcome, action string) {
	ResolutionsTotal.WithLabelValues(outcome, action).Inc()
}

// RecordMutation records one successful mutation
func RecordMutation(op string) {
	MutationsTotal.WithLabelValues(op).Inc()
}

// RecordValidationFailure records a rejected write
func RecordValidationFailure(code string) {
	ValidationFailuresTotal.WithLabelValues(code).Inc()
}

// RecordStorageError records a failed storage operation
func RecordStorageError(op string) {
	StorageErrorsTotal.WithLabelValues(op).Inc()
}

// RecordDuration records how long an operation took
func RecordDuration(op string, seconds float64) {
	OperationDuration.WithLabelValues(op).Observe(seconds)
}
