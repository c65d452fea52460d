package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/spikego/core"
)

// PlanChunks splits every segment of a recording into chunks of the job's
// chunk length, in (segment, start) order.
func PlanChunks(recording core.Recording, opts Options) ([]Chunk, error) {
	frames := opts.ChunkFrames(recording.SamplingFrequency())
	var chunks []Chunk
	for seg := 0; seg < recording.NumSegments(); seg++ {
		numSamples, err := recording.NumSamples(seg)
		if err != nil {
			return nil, err
		}
		for start := int64(0); start < numSamples; start += frames {
			end := start + frames
			if end > numSamples {
				end = numSamples
			}
			chunks = append(chunks, Chunk{
				Index:   len(chunks),
				Segment: seg,
				Start:   start,
				End:     end,
			})
		}
	}
	return chunks, nil
}

// Run executes nodes over every chunk of the recording and returns the
// last node's rows gathered in spike-vector order.
//
// Chunk workers run concurrently, bounded by the job's NumWorkers; errors
// from any worker cancel the job and propagate unchanged. The runner
// takes no lock around the gathered output beyond what the gatherer
// provides: concurrent Run calls sharing one gatherer must be serialized
// by the caller.
func Run[T any](ctx context.Context, recording core.Recording, source PeakSource, nodes []Node[T], opts Options, jobName string, gatherer Gatherer[T]) ([]T, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("job %q: no nodes", jobName)
	}
	opts = opts.Normalize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	chunks, err := PlanChunks(recording, opts)
	if err != nil {
		return nil, err
	}

	var before, after int64
	for _, node := range nodes {
		b, a := node.Margin()
		if b > before {
			before = b
		}
		if a > after {
			after = a
		}
	}

	logger.Debug("pipeline started",
		"job", jobName,
		"chunks", len(chunks),
		"workers", opts.NumWorkers,
	)

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.NumWorkers)

	for _, chunk := range chunks {
		g.Go(func() error {
			numSamples, err := recording.NumSamples(chunk.Segment)
			if err != nil {
				return err
			}
			start := chunk.Start - before
			if start < 0 {
				start = 0
			}
			end := chunk.End + after
			if end > numSamples {
				end = numSamples
			}

			traceBytes := (end - start) * int64(recording.NumChannels()) * 4
			if err := opts.Controller.AcquireMemory(gctx, traceBytes); err != nil {
				return err
			}
			defer opts.Controller.ReleaseMemory(traceBytes)

			traces, err := recording.Traces(chunk.Segment, start, end)
			if err != nil {
				return err
			}
			spikes, err := source.Retrieve(chunk, traces, start)
			if err != nil {
				return err
			}

			var rows []T
			for _, node := range nodes {
				rows, err = node.Compute(gctx, chunk, traces, start, spikes)
				if err != nil {
					return fmt.Errorf("job %q node %q chunk %d: %w", jobName, node.Name(), chunk.Index, err)
				}
				if len(rows) != len(spikes) {
					return fmt.Errorf("job %q node %q chunk %d: got %d rows for %d spikes", jobName, node.Name(), chunk.Index, len(rows), len(spikes))
				}
			}

			if err := gatherer.Collect(gctx, chunk, rows); err != nil {
				return err
			}

			if opts.Progress {
				logger.Info("pipeline progress",
					"job", jobName,
					"done", done.Add(1),
					"total", len(chunks),
				)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return gatherer.Finalize(ctx)
}
