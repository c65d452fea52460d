package localization

import (
	"github.com/hupe1980/spikego/core"
	"github.com/hupe1980/spikego/internal/floats32"
)

// Snippet is the waveform of one spike on its neighborhood channels.
type Snippet struct {
	// Wave is frames x len(Channels), a window around the spike peak.
	Wave [][]float32
	// PeakIndex is the row of the spike peak within Wave.
	PeakIndex int
	// Channels are the probe channel indices of the Wave columns, the
	// spike's own channel included.
	Channels []int32
	// CenterIndex is the position of the spike's own channel in Channels.
	CenterIndex int
	// Positions are the probe locations of Channels, same order.
	Positions []core.Position
}

// ptps returns the peak-to-peak amplitude of every snippet channel.
func (s *Snippet) ptps() []float32 {
	amps := make([]float32, len(s.Channels))
	col := make([]float32, len(s.Wave))
	for c := range s.Channels {
		for r, row := range s.Wave {
			col[r] = row[c]
		}
		amps[c] = floats32.Ptp(col)
	}
	return amps
}

// column copies one channel's samples out of the snippet.
func (s *Snippet) column(c int) []float32 {
	col := make([]float32, len(s.Wave))
	for r, row := range s.Wave {
		col[r] = row[c]
	}
	return col
}
