// Package extractors creates Recording and Sorting instances from
// sources: a seeded synthetic ground-truth generator and raw binary
// trace files.
package extractors

import (
	"fmt"
	"math"

	"github.com/hupe1980/spikego/core"
	"github.com/hupe1980/spikego/testutil"
)

// ToyOptions configure the synthetic ground-truth generator.
type ToyOptions struct {
	// NumChannels is the probe size; channels sit on a line 40 um apart.
	NumChannels int
	// NumUnits is the number of ground truth units. Each unit's template
	// peaks on its own channel (units beyond the channel count wrap).
	NumUnits int
	// NumSegments splits the recording into equal segments.
	NumSegments int
	// DurationSec is the length of each segment, in seconds.
	DurationSec float64
	// SamplingFrequency is the rate in Hz.
	SamplingFrequency float64
	// FiringRateHz is the mean rate of each unit's Poisson train.
	FiringRateHz float64
	// NoiseLevel is the standard deviation of the additive gaussian
	// noise, in the same units as the template amplitudes.
	NoiseLevel float64
	// Seed makes the generated data reproducible.
	Seed int64
}

// DefaultToyOptions returns the generator defaults: a 4-channel,
// single-segment, 10 second recording.
func DefaultToyOptions() ToyOptions {
	return ToyOptions{
		NumChannels:       4,
		NumUnits:          4,
		NumSegments:       1,
		DurationSec:       10,
		SamplingFrequency: 30_000,
		FiringRateHz:      5,
		NoiseLevel:        1,
		Seed:              42,
	}
}

// ToyOption overrides one generator default.
type ToyOption func(*ToyOptions)

// WithToyChannels sets the channel count.
func WithToyChannels(n int) ToyOption {
	return func(o *ToyOptions) { o.NumChannels = n }
}

// WithToyUnits sets the unit count.
func WithToyUnits(n int) ToyOption {
	return func(o *ToyOptions) { o.NumUnits = n }
}

// WithToySegments sets the segment count.
func WithToySegments(n int) ToyOption {
	return func(o *ToyOptions) { o.NumSegments = n }
}

// WithToyDuration sets the per-segment duration in seconds.
func WithToyDuration(seconds float64) ToyOption {
	return func(o *ToyOptions) { o.DurationSec = seconds }
}

// WithToySamplingFrequency sets the rate in Hz.
func WithToySamplingFrequency(hz float64) ToyOption {
	return func(o *ToyOptions) { o.SamplingFrequency = hz }
}

// WithToyFiringRate sets the mean unit firing rate in Hz.
func WithToyFiringRate(hz float64) ToyOption {
	return func(o *ToyOptions) { o.FiringRateHz = hz }
}

// WithToyNoise sets the gaussian noise level.
func WithToyNoise(sigma float64) ToyOption {
	return func(o *ToyOptions) { o.NoiseLevel = sigma }
}

// WithToySeed sets the generator seed.
func WithToySeed(seed int64) ToyOption {
	return func(o *ToyOptions) { o.Seed = seed }
}

// toyShape is the unit-amplitude spike waveform: a sharp negative lobe
// followed by a smaller positive rebound.
var toyShape = []float32{0, -0.35, -1, -0.6, 0.1, 0.35, 0.25, 0.12, 0.05, 0}

// toyPeakOffset is the index of the negative peak within toyShape.
const toyPeakOffset = 2

// ToyExample generates a synthetic recording with a known ground truth
// sorting. Spike trains are Poisson with a 3 ms refractory period;
// templates decay spatially from each unit's home channel; gaussian noise
// is added on top. Same options, same data.
func ToyExample(opts ...ToyOption) (*core.TracesRecording, *core.MemorySorting, error) {
	o := DefaultToyOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.NumChannels <= 0 || o.NumUnits <= 0 || o.NumSegments <= 0 {
		return nil, nil, fmt.Errorf("channel, unit and segment counts must be positive")
	}
	if o.DurationSec <= 0 || o.SamplingFrequency <= 0 || o.FiringRateHz <= 0 {
		return nil, nil, fmt.Errorf("duration, sampling frequency and firing rate must be positive")
	}

	rng := testutil.NewRNG(o.Seed)
	numSamples := int64(o.DurationSec * o.SamplingFrequency)
	refractory := int64(0.003 * o.SamplingFrequency)

	channelIDs := make([]string, o.NumChannels)
	locations := make([]core.Position, o.NumChannels)
	for c := range channelIDs {
		channelIDs[c] = fmt.Sprintf("ch%d", c)
		locations[c] = core.Position{0, float32(c) * 40}
	}

	unitIDs := make([]string, o.NumUnits)
	amplitudes := make([]float32, o.NumUnits)
	homeChannels := make([]int, o.NumUnits)
	for u := range unitIDs {
		unitIDs[u] = fmt.Sprintf("%d", u)
		amplitudes[u] = float32(10 + 2*(u%5))
		homeChannels[u] = u % o.NumChannels
	}

	segments := make([][][]float32, o.NumSegments)
	trains := make([]map[string][]int64, o.NumSegments)
	for segment := range segments {
		traces := make([][]float32, numSamples)
		for r := range traces {
			row := make([]float32, o.NumChannels)
			for c := range row {
				row[c] = float32(rng.NormFloat64()) * float32(o.NoiseLevel)
			}
			traces[r] = row
		}

		trains[segment] = make(map[string][]int64, o.NumUnits)
		for u, unitID := range unitIDs {
			train := poissonTrain(rng, numSamples, o.SamplingFrequency, o.FiringRateHz, refractory)
			trains[segment][unitID] = train
			for _, sample := range train {
				addSpike(traces, sample, homeChannels[u], amplitudes[u], locations)
			}
		}
		segments[segment] = traces
	}

	recording, err := core.NewTracesRecording(segments, o.SamplingFrequency, channelIDs, locations)
	if err != nil {
		return nil, nil, err
	}
	sorting, err := core.NewMemorySorting(unitIDs, o.SamplingFrequency, trains)
	if err != nil {
		return nil, nil, err
	}

	return recording, sorting, nil
}

// poissonTrain draws spike samples with exponential inter-spike intervals
// plus a hard refractory period. Samples too close to the segment borders
// for a full waveform are excluded.
func poissonTrain(rng *testutil.RNG, numSamples int64, frequency, rateHz float64, refractory int64) []int64 {
	margin := int64(len(toyShape))
	var train []int64
	sample := margin
	for {
		isi := refractory + int64(rng.ExpFloat64()/rateHz*frequency)
		sample += isi
		if sample >= numSamples-margin {
			return train
		}
		train = append(train, sample)
	}
}

// addSpike stamps a unit's template onto the traces around one spike.
// The amplitude decays with channel distance from the home channel.
func addSpike(traces [][]float32, sample int64, home int, amplitude float32, locations []core.Position) {
	for c := range traces[0] {
		dy := float64(locations[c][1] - locations[home][1])
		dx := float64(locations[c][0] - locations[home][0])
		decay := float32(math.Exp(-math.Sqrt(dx*dx+dy*dy) / 40))
		if decay < 0.01 {
			continue
		}
		for t, v := range toyShape {
			frame := sample + int64(t-toyPeakOffset)
			if frame < 0 || frame >= int64(len(traces)) {
				continue
			}
			traces[frame][c] += v * amplitude * decay
		}
	}
}
