package pipeline

import (
	"context"

	"github.com/hupe1980/spikego/core"
)

// Chunk is one unit of pipeline work: the frame range [Start, End) of a
// single segment.
type Chunk struct {
	Index   int
	Segment int
	Start   int64
	End     int64
}

// PeakSource selects the spikes belonging to a chunk. Implementations may
// refine each spike's channel assignment using the chunk traces.
//
// traces covers [offset, offset+len(traces)) of the chunk's segment and
// includes the margin requested by the job's nodes.
type PeakSource interface {
	// Retrieve returns the spikes whose peak sample lies in
	// [chunk.Start, chunk.End), in spike-vector order.
	Retrieve(chunk Chunk, traces [][]float32, offset int64) ([]core.Spike, error)
}

// Node computes one row of type T per spike of a chunk. Nodes run in
// order; the last node's rows are gathered as the job output.
//
// Nodes must be safe for concurrent Compute calls: one job invokes the
// same node from multiple chunk workers.
type Node[T any] interface {
	// Name identifies the node in logs.
	Name() string

	// Margin returns the trace margin (frames before and after the chunk
	// bounds) this node needs around each spike.
	Margin() (before, after int64)

	// Compute returns exactly one row per spike, in the given order.
	Compute(ctx context.Context, chunk Chunk, traces [][]float32, offset int64, spikes []core.Spike) ([]T, error)
}
