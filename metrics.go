package meshdata

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/meshdata/boundary"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    packHits   prometheus.Counter
//	    packBuilds prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordPack(kind string, hit bool, nvars int, d time.Duration) {
//	    if hit {
//	        p.packHits.Inc()
//	        return
//	    }
//	    p.packBuilds.Observe(d.Seconds())
//	}
type MetricsCollector interface {
	// RecordPack is called after each pack request. kind is "variables",
	// "coarse" or "fluxes", hit reports whether the cache served it, nvars
	// is the number of packed variables and duration the time taken.
	RecordPack(kind string, hit bool, nvars int, duration time.Duration)

	// RecordAllocate is called after each sparse allocation. bytes is the
	// storage acquired, err is nil if successful.
	RecordAllocate(label string, bytes int64, err error)

	// RecordExchange is called after each boundary exchange step.
	RecordExchange(op string, status boundary.TaskStatus, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPack(string, bool, int, time.Duration)               {}
func (NoopMetricsCollector) RecordAllocate(string, int64, error)                       {}
func (NoopMetricsCollector) RecordExchange(string, boundary.TaskStatus, time.Duration) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	PackCount          atomic.Int64
	PackHits           atomic.Int64
	PackBuildNanos     atomic.Int64
	AllocateCount      atomic.Int64
	AllocateErrors     atomic.Int64
	AllocatedBytes     atomic.Int64
	ExchangeCount      atomic.Int64
	ExchangeIncomplete atomic.Int64
	ExchangeFailures   atomic.Int64
	ExchangeTotalNanos atomic.Int64
}

// RecordPack implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPack(kind string, hit bool, nvars int, duration time.Duration) {
	b.PackCount.Add(1)
	if hit {
		b.PackHits.Add(1)
		return
	}
	b.PackBuildNanos.Add(duration.Nanoseconds())
}

// RecordAllocate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAllocate(label string, bytes int64, err error) {
	b.AllocateCount.Add(1)
	if err != nil {
		b.AllocateErrors.Add(1)
		return
	}
	b.AllocatedBytes.Add(bytes)
}

// RecordExchange implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExchange(op string, status boundary.TaskStatus, duration time.Duration) {
	b.ExchangeCount.Add(1)
	b.ExchangeTotalNanos.Add(duration.Nanoseconds())
	switch status {
	case boundary.Incomplete:
		b.ExchangeIncomplete.Add(1)
	case boundary.Fail:
		b.ExchangeFailures.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		PackCount:          b.PackCount.Load(),
		PackHits:           b.PackHits.Load(),
		PackBuildAvgNanos:  b.getAvgBuildNanos(),
		AllocateCount:      b.AllocateCount.Load(),
		AllocateErrors:     b.AllocateErrors.Load(),
		AllocatedBytes:     b.AllocatedBytes.Load(),
		ExchangeCount:      b.ExchangeCount.Load(),
		ExchangeIncomplete: b.ExchangeIncomplete.Load(),
		ExchangeFailures:   b.ExchangeFailures.Load(),
		ExchangeAvgNanos:   b.getAvgExchangeNanos(),
	}
}

func (b *BasicMetricsCollector) getAvgBuildNanos() int64 {
	builds := b.PackCount.Load() - b.PackHits.Load()
	if builds <= 0 {
		return 0
	}
	return b.PackBuildNanos.Load() / builds
}

func (b *BasicMetricsCollector) getAvgExchangeNanos() int64 {
	count := b.ExchangeCount.Load()
	if count == 0 {
		return 0
	}
	return b.ExchangeTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	PackCount          int64
	PackHits           int64
	PackBuildAvgNanos  int64
	AllocateCount      int64
	AllocateErrors     int64
	AllocatedBytes     int64
	ExchangeCount      int64
	ExchangeIncomplete int64
	ExchangeFailures   int64
	ExchangeAvgNanos   int64
}
