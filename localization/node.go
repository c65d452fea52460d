package localization

import (
	"context"
	"fmt"
	"math"

	"github.com/hupe1980/spikego/core"
	"github.com/hupe1980/spikego/internal/floats32"
	"github.com/hupe1980/spikego/pipeline"
)

// localizeNode extracts a waveform snippet around each spike and runs the
// configured localizer on it. The localizer is stateless, so a single node
// serves all chunk workers.
type localizeNode struct {
	localizer Localizer
	locations []core.Position
	neighbors [][]int32 // per channel, within the localizer radius, self included
	before    int64
	after     int64
}

var _ pipeline.Node[Location] = (*localizeNode)(nil)

// Nodes builds the processing nodes of a spike-localization job: a single
// node computing one Location per spike. msBefore and msAfter bound the
// snippet around each spike peak, in milliseconds.
func Nodes(recording core.Recording, method Method, msBefore, msAfter float64, kwargs Kwargs) ([]pipeline.Node[Location], error) {
	if msBefore <= 0 || msAfter <= 0 {
		return nil, fmt.Errorf("snippet window must be positive, got ms_before=%g ms_after=%g", msBefore, msAfter)
	}
	localizer, err := New(method, kwargs)
	if err != nil {
		return nil, err
	}

	frequency := recording.SamplingFrequency()
	locations := recording.ChannelLocations()
	node := &localizeNode{
		localizer: localizer,
		locations: locations,
		neighbors: radiusNeighborhoods(locations, localizer.RadiusUm()),
		before:    int64(math.Ceil(msBefore * frequency / 1000)),
		after:     int64(math.Ceil(msAfter * frequency / 1000)),
	}
	return []pipeline.Node[Location]{node}, nil
}

func (n *localizeNode) Name() string {
	return "localize_" + string(n.localizer.Name())
}

func (n *localizeNode) Margin() (before, after int64) {
	return n.before, n.after
}

func (n *localizeNode) Compute(ctx context.Context, chunk pipeline.Chunk, traces [][]float32, offset int64, spikes []core.Spike) ([]Location, error) {
	rows := make([]Location, len(spikes))
	snippet := &Snippet{}
	for i, s := range spikes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := n.fill(snippet, traces, offset, s); err != nil {
			return nil, fmt.Errorf("spike at sample %d: %w", s.Sample, err)
		}
		loc, err := n.localizer.Localize(snippet)
		if err != nil {
			return nil, fmt.Errorf("spike at sample %d: %w", s.Sample, err)
		}
		rows[i] = loc
	}
	return rows, nil
}

// fill rebuilds the snippet in place around one spike. The window is
// clamped to the available traces, so snippets at segment edges may be
// shorter than the configured window.
func (n *localizeNode) fill(s *Snippet, traces [][]float32, offset int64, spike core.Spike) error {
	frame := spike.Sample - offset
	if frame < 0 || frame >= int64(len(traces)) {
		return fmt.Errorf("sample outside chunk traces")
	}

	channel := spike.Channel
	if channel < 0 {
		channel = int32(floats32.ArgAbsMax(traces[frame]))
	}
	channels := n.neighbors[channel]

	start := frame - n.before
	if start < 0 {
		start = 0
	}
	end := frame + n.after + 1
	if end > int64(len(traces)) {
		end = int64(len(traces))
	}

	s.PeakIndex = int(frame - start)
	s.Channels = channels
	s.Positions = s.Positions[:0]
	if cap(s.Wave) < int(end-start) {
		s.Wave = make([][]float32, end-start)
	}
	s.Wave = s.Wave[:end-start]
	s.CenterIndex = -1
	for j, ch := range channels {
		if ch == channel {
			s.CenterIndex = j
		}
		s.Positions = append(s.Positions, n.locations[ch])
	}
	if s.CenterIndex < 0 {
		return fmt.Errorf("channel %d missing from its own neighborhood", channel)
	}
	for t := start; t < end; t++ {
		row := s.Wave[t-start]
		if cap(row) < len(channels) {
			row = make([]float32, len(channels))
		}
		row = row[:len(channels)]
		for j, ch := range channels {
			row[j] = traces[t][ch]
		}
		s.Wave[t-start] = row
	}
	return nil
}

// radiusNeighborhoods returns, for every channel, the channels within
// radius micrometers including the channel itself.
func radiusNeighborhoods(locations []core.Position, radiusUm float64) [][]int32 {
	r2 := float32(radiusUm * radiusUm)
	neighbors := make([][]int32, len(locations))
	for i, pi := range locations {
		for j, pj := range locations {
			if floats32.SquaredL2(pi[:], pj[:]) <= r2 {
				neighbors[i] = append(neighbors[i], int32(j))
			}
		}
	}
	return neighbors
}
