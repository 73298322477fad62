package metrics

import (
	"context"

	"codeberg.org/kawashima/loadlog/internal/profiler"
)

// Collector mirrors the profiling log into persistent storage.
type Collector interface {
	// RecordRun stores the run header and opens a new run.
	RecordRun(ctx context.Context, hdr *profiler.Header) error
	// RecordSample stores one sample against the current run.
	RecordSample(ctx context.Context, sample *profiler.Sample) error
	Close() error
}

// Repository defines the interface for sample data storage.
type Repository interface {
	InsertRun(hdr *profiler.Header) (int64, error)
	InsertSample(runID int64, sample *profiler.Sample) error
	Close() error
}
