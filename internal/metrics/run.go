package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run-level metrics
var (
	// ErrorsTotal tracks failures by error kind
	ErrorsTotal *prometheus.CounterVec

	// OperandsTotal tracks command-line operands by outcome
	OperandsTotal *prometheus.CounterVec

	// FilesystemWarningsTotal tracks operands on filesystems where overwrite is unreliable
	FilesystemWarningsTotal *prometheus.CounterVec

	// LastRunTimestamp records Unix timestamp of the last run
	LastRunTimestamp prometheus.Gauge

	// LastRunFailedOperands records how many operands failed in the last run
	LastRunFailedOperands prometheus.Gauge

	// WorkersActive tracks operands currently being processed
	WorkersActive prometheus.Gauge
)

// initRunMetrics initializes all run-level metrics
func initRunMetrics() {
	ErrorsTotal = NewCounterVec(
		"errors_total",
		"Total number of failures by error kind.",
		"kind",
	)

	OperandsTotal = NewCounterVec(
		"operands_total",
		"Total number of operands processed by outcome.",
		"status",
	)

	FilesystemWarningsTotal = NewCounterVec(
		"filesystem_warnings_total",
		"Operands on filesystems where in-place overwrite is not guaranteed.",
		"fstype",
	)

	LastRunTimestamp = NewGauge(
		"last_run_timestamp",
		"Timestamp of the last run (Unix epoch seconds).",
	)

	LastRunFailedOperands = NewGauge(
		"last_run_failed_operands",
		"Number of operands that failed in the last run.",
	)

	WorkersActive = NewGauge(
		"workers_active",
		"Number of operands currently being processed.",
	)
}

// registerRunMetrics registers all run-level metrics with Prometheus
func registerRunMetrics() {
	prometheus.MustRegister(ErrorsTotal)
	prometheus.MustRegister(OperandsTotal)
	prometheus.MustRegister(FilesystemWarningsTotal)
	prometheus.MustRegister(LastRunTimestamp)
	prometheus.MustRegister(LastRunFailedOperands)
	prometheus.MustRegister(WorkersActive)
}

// RecordError counts one failure of the given kind
func RecordError(kind string) {
	ErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordOperand counts one operand outcome
func RecordOperand(failed bool) {
	status := "success"
	if failed {
		status = "failed"
	}
	OperandsTotal.WithLabelValues(status).Inc()
}

// RecordFilesystemWarning counts one operand on an unreliable filesystem
func RecordFilesystemWarning(fstype string) {
	FilesystemWarningsTotal.WithLabelValues(fstype).Inc()
}

// RecordRun updates the last run gauges
func RecordRun(failedOperands int) {
	LastRunTimestamp.Set(float64(time.Now().Unix()))
	LastRunFailedOperands.Set(float64(failedOperands))
}
