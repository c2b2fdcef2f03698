package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once
)

// Init initializes all metrics subsystems and registers them with Prometheus
// This function is safe to call multiple times (uses sync.Once)
func Init() {
	initOnce.Do(func() {
		initShredMetrics()
		initRunMetrics()

		registerShredMetrics()
		registerRunMetrics()

		// Present in the textfile even when a run shreds nothing
		LastRunTimestamp.Set(0)
		LastRunFailedOperands.Set(0)
	})
}

// WriteTextfile writes every registered metric to path in the node_exporter
// textfile format. The file is written to a temporary name and renamed.
func WriteTextfile(path string) error {
	Init()
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}
