package bufcache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    hits   prometheus.Counter
//	    writes prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordHit() {
//	    p.hits.Inc()
//	}
type MetricsCollector interface {
	// RecordHit is called when Get finds the block resident.
	RecordHit()

	// RecordMiss is called when Get has to recycle a slot.
	RecordMiss()

	// RecordEviction is called when a resident slot is recycled.
	// dirty reports whether its content was discarded unwritten.
	RecordEviction(dirty bool)

	// RecordRead is called after each device read of one or more blocks.
	RecordRead(duration time.Duration, err error)

	// RecordWrite is called after each write-back run.
	// blocks is the number of blocks the run attempted.
	RecordWrite(blocks int, duration time.Duration, err error)

	// RecordSecondLevel is called after each second-level fetch.
	RecordSecondLevel(hit bool)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordHit()                            {}
func (NoopMetricsCollector) RecordMiss()                           {}
func (NoopMetricsCollector) RecordEviction(bool)                   {}
func (NoopMetricsCollector) RecordRead(time.Duration, error)       {}
func (NoopMetricsCollector) RecordWrite(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSecondLevel(bool)                {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	Hits              atomic.Int64
	Misses            atomic.Int64
	Evictions         atomic.Int64
	DirtyDiscards     atomic.Int64
	ReadCount         atomic.Int64
	ReadErrors        atomic.Int64
	ReadTotalNanos    atomic.Int64
	WriteCount        atomic.Int64
	WriteBlocks       atomic.Int64
	WriteErrors       atomic.Int64
	WriteTotalNanos   atomic.Int64
	SecondLevelHits   atomic.Int64
	SecondLevelMisses atomic.Int64
}

// RecordHit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordHit() { b.Hits.Add(1) }

// RecordMiss implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMiss() { b.Misses.Add(1) }

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(dirty bool) {
	b.Evictions.Add(1)
	if dirty {
		b.DirtyDiscards.Add(1)
	}
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(duration time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

// RecordWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWrite(blocks int, duration time.Duration, err error) {
	b.WriteCount.Add(1)
	b.WriteBlocks.Add(int64(blocks))
	b.WriteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.WriteErrors.Add(1)
	}
}

// RecordSecondLevel implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSecondLevel(hit bool) {
	if hit {
		b.SecondLevelHits.Add(1)
	} else {
		b.SecondLevelMisses.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		Hits:              b.Hits.Load(),
		Misses:            b.Misses.Load(),
		Evictions:         b.Evictions.Load(),
		DirtyDiscards:     b.DirtyDiscards.Load(),
		ReadCount:         b.ReadCount.Load(),
		ReadErrors:        b.ReadErrors.Load(),
		ReadAvgNanos:      avg(b.ReadTotalNanos.Load(), b.ReadCount.Load()),
		WriteCount:        b.WriteCount.Load(),
		WriteBlocks:       b.WriteBlocks.Load(),
		WriteErrors:       b.WriteErrors.Load(),
		WriteAvgNanos:     avg(b.WriteTotalNanos.Load(), b.WriteCount.Load()),
		SecondLevelHits:   b.SecondLevelHits.Load(),
		SecondLevelMisses: b.SecondLevelMisses.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	Hits              int64
	Misses            int64
	Evictions         int64
	DirtyDiscards     int64
	ReadCount         int64
	ReadErrors        int64
	ReadAvgNanos      int64
	WriteCount        int64
	WriteBlocks       int64
	WriteErrors       int64
	WriteAvgNanos     int64
	SecondLevelHits   int64
	SecondLevelMisses int64
}
