package spikego

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
//	    computeCounter   prometheus.Counter
//	    computeHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordCompute(extension string, duration time.Duration, err error) {
//	    p.computeCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordCompute is called after each extension computation.
	// duration is the total time taken, err is nil if successful.
	RecordCompute(extension string, duration time.Duration, err error)

	// RecordSort is called after each sorter run.
	// units is the number of detected units, err is nil if successful.
	RecordSort(sorter string, units int, duration time.Duration, err error)

	// RecordComparison is called after each ground truth comparison.
	RecordComparison(duration time.Duration, err error)

	// RecordSave is called after each analyzer save.
	RecordSave(duration time.Duration, err error)

	// RecordLoad is called after each analyzer load.
	RecordLoad(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCompute(string, time.Duration, error)   {}
func (NoopMetricsCollector) RecordSort(string, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordComparison(time.Duration, error)        {}
func (NoopMetricsCollector) RecordSave(time.Duration, error)              {}
func (NoopMetricsCollector) RecordLoad(time.Duration, error)              {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ComputeCount      atomic.Int64
	ComputeErrors     atomic.Int64
	ComputeTotalNanos atomic.Int64
	SortCount         atomic.Int64
	SortErrors        atomic.Int64
	SortUnits         atomic.Int64
	ComparisonCount   atomic.Int64
	ComparisonErrors  atomic.Int64
	SaveCount         atomic.Int64
	SaveErrors        atomic.Int64
	LoadCount         atomic.Int64
	LoadErrors        atomic.Int64
}

// RecordCompute implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCompute(extension string, duration time.Duration, err error) {
	b.ComputeCount.Add(1)
	b.ComputeTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ComputeErrors.Add(1)
	}
}

// RecordSort implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSort(sorter string, units int, duration time.Duration, err error) {
	b.SortCount.Add(1)
	b.SortUnits.Add(int64(units))
	if err != nil {
		b.SortErrors.Add(1)
	}
}

// RecordComparison implements MetricsCollector.
func (b *BasicMetricsCollector) RecordComparison(duration time.Duration, err error) {
	b.ComparisonCount.Add(1)
	if err != nil {
		b.ComparisonErrors.Add(1)
	}
}

// RecordSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSave(duration time.Duration, err error) {
	b.SaveCount.Add(1)
	if err != nil {
		b.SaveErrors.Add(1)
	}
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(duration time.Duration, err error) {
	b.LoadCount.Add(1)
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ComputeCount:     b.ComputeCount.Load(),
		ComputeErrors:    b.ComputeErrors.Load(),
		ComputeAvgNanos:  b.getAvgComputeNanos(),
		SortCount:        b.SortCount.Load(),
		SortErrors:       b.SortErrors.Load(),
		SortUnits:        b.SortUnits.Load(),
		ComparisonCount:  b.ComparisonCount.Load(),
		ComparisonErrors: b.ComparisonErrors.Load(),
		SaveCount:        b.SaveCount.Load(),
		SaveErrors:       b.SaveErrors.Load(),
		LoadCount:        b.LoadCount.Load(),
		LoadErrors:       b.LoadErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgComputeNanos() int64 {
	count := b.ComputeCount.Load()
	if count == 0 {
		return 0
	}
	return b.ComputeTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ComputeCount     int64
	ComputeErrors    int64
	ComputeAvgNanos  int64
	SortCount        int64
	SortErrors       int64
	SortUnits        int64
	ComparisonCount  int64
	ComparisonErrors int64
	SaveCount        int64
	SaveErrors       int64
	LoadCount        int64
	LoadErrors       int64
}
