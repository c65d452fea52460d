package pipeline

import (
	"fmt"

	"github.com/hupe1980/spikego/core"
	"github.com/hupe1980/spikego/internal/floats32"
)

// SpikeRetrieverConfig controls how the retriever assigns a channel to
// each spike.
type SpikeRetrieverConfig struct {
	// ChannelFromTemplate keeps the extremum channel baked into the spike
	// vector. When false the channel is re-estimated per spike from the
	// traces, which is slower but more accurate.
	ChannelFromTemplate bool

	// RadiusUm is the search radius around the template channel when
	// ChannelFromTemplate is false.
	RadiusUm float64

	// PeakSign selects the polarity used for per-spike re-estimation.
	PeakSign core.PeakSign
}

// SpikeRetriever is the peak source for sorted data: it serves the spikes
// of a chunk from an immutable spike vector instead of detecting peaks.
type SpikeRetriever struct {
	spikes    core.SpikeVector
	cfg       SpikeRetrieverConfig
	neighbors [][]int32 // per channel: channel indices within RadiusUm
}

var _ PeakSource = (*SpikeRetriever)(nil)

// NewSpikeRetriever creates a retriever over an already-built spike
// vector. The spike vector's channel assignments must come from the same
// extremum mapping the caller configured.
func NewSpikeRetriever(recording core.Recording, spikes core.SpikeVector, cfg SpikeRetrieverConfig) (*SpikeRetriever, error) {
	if !cfg.PeakSign.Valid() {
		return nil, fmt.Errorf("invalid peak sign %q", cfg.PeakSign)
	}
	r := &SpikeRetriever{spikes: spikes, cfg: cfg}
	if !cfg.ChannelFromTemplate {
		r.neighbors = channelNeighbors(recording.ChannelLocations(), cfg.RadiusUm)
	}
	return r, nil
}

// Retrieve implements PeakSource.
func (r *SpikeRetriever) Retrieve(chunk Chunk, traces [][]float32, offset int64) ([]core.Spike, error) {
	lo, hi := r.spikes.FrameRange(chunk.Segment, chunk.Start, chunk.End)
	spikes := r.spikes[lo:hi]
	if r.cfg.ChannelFromTemplate {
		return spikes, nil
	}

	// Re-estimate the channel at every spike within the radius.
	refined := make([]core.Spike, len(spikes))
	copy(refined, spikes)
	for i := range refined {
		s := &refined[i]
		frame := s.Sample - offset
		if frame < 0 || frame >= int64(len(traces)) || s.Channel < 0 {
			continue
		}
		row := traces[frame]
		best := s.Channel
		bestScore := peakScore(row[s.Channel], r.cfg.PeakSign)
		for _, ch := range r.neighbors[s.Channel] {
			if score := peakScore(row[ch], r.cfg.PeakSign); score > bestScore {
				best, bestScore = ch, score
			}
		}
		s.Channel = best
	}
	return refined, nil
}

func peakScore(v float32, sign core.PeakSign) float32 {
	switch sign {
	case core.PeakSignNeg:
		return -v
	case core.PeakSignPos:
		return v
	default:
		if v < 0 {
			return -v
		}
		return v
	}
}

// channelNeighbors precomputes, for every channel, the channels within
// radius micrometers (the channel itself excluded).
func channelNeighbors(locations []core.Position, radiusUm float64) [][]int32 {
	r2 := float32(radiusUm * radiusUm)
	neighbors := make([][]int32, len(locations))
	for i, pi := range locations {
		for j, pj := range locations {
			if i == j {
				continue
			}
			if floats32.SquaredL2(pi[:], pj[:]) <= r2 {
				neighbors[i] = append(neighbors[i], int32(j))
			}
		}
	}
	return neighbors
}
