package dataagent

import "time"

// Metric is an opaque per-operation record handed to a MetricCollector
// after each core operation. Purely observational; the core never blocks
// on or depends on the collector.
type Metric struct {
	Operation  string
	InputRows  int
	OutputRows int
	Duration   time.Duration
	CacheHit   bool
}

// MetricCollector receives operation records. Implementations must not
// block; the core calls Record synchronously on the request path.
type MetricCollector interface {
	Record(Metric)
}

// nopCollector discards all metrics. Used when no collector is wired.
type nopCollector struct{}

func (nopCollector) Record(Metric) {}
