package pcache

import "github.com/siisee11/pmdfc-go/internal/pmetrics"

// Re-export the metrics types for the public API.
type (
	Metrics         = pmetrics.Metrics
	MetricsSnapshot = pmetrics.Snapshot
	Observer        = pmetrics.Observer
	NoOpObserver    = pmetrics.NoOpObserver
	MetricsObserver = pmetrics.MetricsObserver
)

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics { return pmetrics.New() }
