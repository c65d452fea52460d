// Package pipeline executes per-spike computations over a recording in
// chunks. A PeakSource selects the spikes of each chunk, nodes compute one
// row per spike, and a gatherer accumulates rows in spike order.
//
// The pipeline owns all parallelism in this module: callers describe the
// job with Options and the runner fans chunks out over a bounded worker
// group.
package pipeline

import (
	"log/slog"
	"runtime"
	"time"
)

// Options controls how a pipeline job is distributed. The zero value is
// valid; Normalize fills in defaults.
type Options struct {
	// NumWorkers is the number of concurrent chunk workers.
	// 0 means 1; negative means all CPUs.
	NumWorkers int

	// ChunkSize is the chunk length in frames. When 0, ChunkDuration is
	// used instead.
	ChunkSize int64

	// ChunkDuration is the chunk length as wall-clock recording time.
	// Used only when ChunkSize is 0. Defaults to 1s.
	ChunkDuration time.Duration

	// Progress enables per-chunk progress logging.
	Progress bool

	// Controller optionally bounds memory and IO for this job.
	Controller *Controller

	// Logger receives job lifecycle and progress records.
	// Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultOptions are the job defaults applied by Normalize.
var DefaultOptions = Options{
	NumWorkers:    1,
	ChunkDuration: time.Second,
}

// Normalize returns a copy of o with defaults filled in and values
// clamped to sane ranges. The receiver is not modified.
func (o Options) Normalize() Options {
	if o.NumWorkers == 0 {
		o.NumWorkers = DefaultOptions.NumWorkers
	}
	if o.NumWorkers < 0 || o.NumWorkers > runtime.NumCPU() {
		o.NumWorkers = runtime.NumCPU()
	}
	if o.ChunkSize < 0 {
		o.ChunkSize = 0
	}
	if o.ChunkSize == 0 && o.ChunkDuration <= 0 {
		o.ChunkDuration = DefaultOptions.ChunkDuration
	}
	return o
}

// ChunkFrames resolves the chunk length in frames for a recording sampled
// at the given frequency.
func (o Options) ChunkFrames(frequency float64) int64 {
	if o.ChunkSize > 0 {
		return o.ChunkSize
	}
	frames := int64(o.ChunkDuration.Seconds() * frequency)
	if frames < 1 {
		frames = 1
	}
	return frames
}
