package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Shred subsystem metrics
var (
	// FilesShreddedTotal tracks files that completed the full protocol
	FilesShreddedTotal prometheus.Counter

	// BytesOverwrittenTotal counts bytes written across all passes
	BytesOverwrittenTotal prometheus.Counter

	// DirsRemovedTotal tracks directories removed after their contents
	DirsRemovedTotal prometheus.Counter

	// SpecialUnlinkedTotal tracks symlinks and device nodes removed without overwrite
	SpecialUnlinkedTotal prometheus.Counter

	// ShredDuration tracks how long one file takes end to end
	ShredDuration prometheus.Histogram

	// ShredFileSize tracks the length of shredded files
	ShredFileSize prometheus.Histogram
)

// initShredMetrics initializes all shred subsystem metrics
func initShredMetrics() {
	FilesShreddedTotal = NewCounter(
		"files_shredded_total",
		"Total number of files overwritten and removed.",
	)

	BytesOverwrittenTotal = NewCounter(
		"bytes_overwritten_total",
		"Total bytes of random data written across all passes.",
	)

	DirsRemovedTotal = NewCounter(
		"directories_removed_total",
		"Total number of directories removed.",
	)

	SpecialUnlinkedTotal = NewCounter(
		"special_unlinked_total",
		"Total number of symlinks and special nodes unlinked without overwrite.",
	)

	ShredDuration = NewDurationHistogram(
		"file_duration_seconds",
		"Duration of shredding a single file in seconds.",
	)

	ShredFileSize = NewBytesHistogram(
		"file_size_bytes",
		"Length of shredded files in bytes.",
	)
}

// registerShredMetrics registers all shred metrics with Prometheus
func registerShredMetrics() {
	prometheus.MustRegister(FilesShreddedTotal)
	prometheus.MustRegister(BytesOverwrittenTotal)
	prometheus.MustRegister(DirsRemovedTotal)
	prometheus.MustRegister(SpecialUnlinkedTotal)
	prometheus.MustRegister(ShredDuration)
	prometheus.MustRegister(ShredFileSize)
}

// RecordShred records one completed file
func RecordShred(size int64, passes int, elapsed time.Duration) {
	FilesShreddedTotal.Inc()
	BytesOverwrittenTotal.Add(float64(size) * float64(passes))
	ShredDuration.Observe(elapsed.Seconds())
	ShredFileSize.Observe(float64(size))
}
