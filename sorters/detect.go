package sorters

import (
	"cmp"
	"context"
	"slices"

	"github.com/hupe1980/spikego/core"
	"github.com/hupe1980/spikego/internal/floats32"
)

// peak is one detected negative threshold crossing.
type peak struct {
	sample  int64
	channel int
	value   float32 // trace value at the peak, negative
}

// channelColumn copies one channel out of a frames x channels matrix.
func channelColumn(traces [][]float32, channel int) []float32 {
	col := make([]float32, len(traces))
	for r, row := range traces {
		col[r] = row[channel]
	}
	return col
}

// detectOnChannel finds local minima below -threshold, at least minGap
// samples apart. Of two detections closer than minGap, the deeper one
// wins.
func detectOnChannel(col []float32, threshold float32, minGap int64) []peak {
	var peaks []peak
	for i := 1; i < len(col)-1; i++ {
		v := col[i]
		if v >= -threshold || v > col[i-1] || v > col[i+1] {
			continue
		}
		if n := len(peaks); n > 0 && int64(i)-peaks[n-1].sample < minGap {
			if v < peaks[n-1].value {
				peaks[n-1].sample = int64(i)
				peaks[n-1].value = v
			}
			continue
		}
		peaks = append(peaks, peak{sample: int64(i), value: v})
	}
	return peaks
}

// detectSegment runs MAD-thresholded detection on every channel of one
// segment. Thresholds are thresholdMads noise estimates per channel.
func detectSegment(ctx context.Context, recording core.Recording, segment int, thresholdMads float64, minGap int64) ([]peak, error) {
	numSamples, err := recording.NumSamples(segment)
	if err != nil {
		return nil, err
	}
	traces, err := recording.Traces(segment, 0, numSamples)
	if err != nil {
		return nil, err
	}

	var peaks []peak
	for channel := 0; channel < recording.NumChannels(); channel++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		col := channelColumn(traces, channel)
		threshold := float32(thresholdMads) * floats32.MAD(col)
		if threshold <= 0 {
			continue
		}
		for _, p := range detectOnChannel(col, threshold, minGap) {
			p.channel = channel
			peaks = append(peaks, p)
		}
	}
	return peaks, nil
}

// dedupe merges peaks across channels: within minGap samples only the
// deepest detection survives. Input order is arbitrary; output is sorted
// by sample.
func dedupe(peaks []peak, minGap int64) []peak {
	sortPeaks(peaks)
	var out []peak
	for _, p := range peaks {
		if n := len(out); n > 0 && p.sample-out[n-1].sample < minGap {
			if p.value < out[n-1].value {
				out[n-1] = p
			}
			continue
		}
		out = append(out, p)
	}
	return out
}

func sortPeaks(peaks []peak) {
	slices.SortStableFunc(peaks, func(a, b peak) int {
		return cmp.Compare(a.sample, b.sample)
	})
}
