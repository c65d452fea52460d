package core

import (
	"fmt"
)

// PeakSign selects which polarity of a template counts as its peak.
type PeakSign string

const (
	// PeakSignNeg uses the most negative sample. Extracellular spikes are
	// negative-going on the closest channel, so this is the default.
	PeakSignNeg PeakSign = "neg"
	// PeakSignPos uses the most positive sample.
	PeakSignPos PeakSign = "pos"
	// PeakSignBoth uses the sample with the largest absolute value.
	PeakSignBoth PeakSign = "both"
)

// Valid reports whether s is a known peak sign.
func (s PeakSign) Valid() bool {
	switch s {
	case PeakSignNeg, PeakSignPos, PeakSignBoth:
		return true
	}
	return false
}

// Templates holds per-unit average waveforms. Data is indexed
// [unit][sample][channel]; all units share the same window.
type Templates struct {
	// Data holds one samples x channels matrix per unit, in unit-index
	// order of the originating sorting.
	Data [][][]float32
	// BeforePeak is the number of samples before the alignment peak.
	BeforePeak int
	// SamplingFrequency is the rate of the originating recording, in Hz.
	SamplingFrequency float64
}

// NumUnits returns the number of units covered by the templates.
func (t *Templates) NumUnits() int { return len(t.Data) }

// ExtremumChannels returns the channel index with the largest template
// amplitude for every unit, keyed by unit index. The amplitude is taken
// per sign on the full template window.
func (t *Templates) ExtremumChannels(sign PeakSign) (map[int]int, error) {
	if !sign.Valid() {
		return nil, fmt.Errorf("invalid peak sign %q", sign)
	}
	out := make(map[int]int, len(t.Data))
	for unit, tpl := range t.Data {
		if len(tpl) == 0 || len(tpl[0]) == 0 {
			return nil, fmt.Errorf("unit index %d has an empty template", unit)
		}
		numChannels := len(tpl[0])
		best, bestScore := 0, float32(0)
		for ch := 0; ch < numChannels; ch++ {
			var score float32
			for _, row := range tpl {
				v := row[ch]
				switch sign {
				case PeakSignNeg:
					if -v > score {
						score = -v
					}
				case PeakSignPos:
					if v > score {
						score = v
					}
				case PeakSignBoth:
					if v < 0 {
						v = -v
					}
					if v > score {
						score = v
					}
				}
			}
			if score > bestScore {
				best, bestScore = ch, score
			}
		}
		out[unit] = best
	}
	return out, nil
}
