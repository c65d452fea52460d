package localization

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/spikego/core"
	"github.com/hupe1980/spikego/pipeline"
)

func TestRegistry(t *testing.T) {
	t.Run("known methods", func(t *testing.T) {
		assert.Equal(t, []Method{CenterOfMass, GridConvolution, MonopolarTriangulation}, Methods())
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := New("banana", nil)
		require.Error(t, err)

		var unknown *ErrUnknownMethod
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, Method("banana"), unknown.Method)
	})

	t.Run("unknown kwarg rejected", func(t *testing.T) {
		_, err := New(CenterOfMass, Kwargs{"radius_um": 60.0, "bogus": 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bogus")
	})

	t.Run("kwargs not mutated", func(t *testing.T) {
		kwargs := Kwargs{"radius_um": 60.0}
		_, err := New(CenterOfMass, kwargs)
		require.NoError(t, err)
		assert.Len(t, kwargs, 1)
	})
}

// squareSnippet builds a snippet over a 2x2 probe with a biphasic wave on
// each channel, scaled by the given per-channel amplitudes.
func squareSnippet(amps []float32) *Snippet {
	wave := make([][]float32, 5)
	shape := []float32{0, -1, 0.4, 0.1, 0}
	for r := range wave {
		row := make([]float32, 4)
		for c := range row {
			row[c] = shape[r] * amps[c]
		}
		wave[r] = row
	}
	return &Snippet{
		Wave:        wave,
		PeakIndex:   1,
		Channels:    []int32{0, 1, 2, 3},
		CenterIndex: 0,
		Positions: []core.Position{
			{0, 0}, {40, 0}, {0, 40}, {40, 40},
		},
	}
}

func TestCenterOfMass(t *testing.T) {
	localizer, err := New(CenterOfMass, nil)
	require.NoError(t, err)
	assert.Equal(t, CenterOfMass, localizer.Name())
	assert.Equal(t, 75.0, localizer.RadiusUm())

	t.Run("uniform amplitudes hit the centroid", func(t *testing.T) {
		loc, err := localizer.Localize(squareSnippet([]float32{1, 1, 1, 1}))
		require.NoError(t, err)
		assert.InDelta(t, 20, loc.X, 1e-4)
		assert.InDelta(t, 20, loc.Y, 1e-4)
	})

	t.Run("skewed amplitudes pull toward the loud channel", func(t *testing.T) {
		loc, err := localizer.Localize(squareSnippet([]float32{3, 1, 1, 1}))
		require.NoError(t, err)
		assert.Less(t, loc.X, float32(20))
		assert.Less(t, loc.Y, float32(20))
	})

	t.Run("flat snippet falls back to the spike channel", func(t *testing.T) {
		s := squareSnippet([]float32{0, 0, 0, 0})
		s.CenterIndex = 2
		loc, err := localizer.Localize(s)
		require.NoError(t, err)
		assert.Equal(t, float32(0), loc.X)
		assert.Equal(t, float32(40), loc.Y)
	})
}

func TestMonopolarTriangulation(t *testing.T) {
	localizer, err := New(MonopolarTriangulation, nil)
	require.NoError(t, err)

	// Synthesize amplitudes from a true monopolar source and check the
	// fit recovers its lateral position.
	trueX, trueY, trueZ, alpha := 25.0, 12.0, 20.0, 800.0
	positions := []core.Position{{0, 0}, {40, 0}, {0, 40}, {40, 40}}
	amps := make([]float32, len(positions))
	for i, p := range positions {
		dx := trueX - float64(p[0])
		dy := trueY - float64(p[1])
		amps[i] = float32(alpha / math.Sqrt(dx*dx+dy*dy+trueZ*trueZ))
	}

	loc, err := localizer.Localize(squareSnippet(amps))
	require.NoError(t, err)
	assert.InDelta(t, trueX, loc.X, 3)
	assert.InDelta(t, trueY, loc.Y, 3)
	assert.Greater(t, loc.Alpha, float32(0))
}

func TestGridConvolution(t *testing.T) {
	localizer, err := New(GridConvolution, Kwargs{"upsampling_um": 2.0})
	require.NoError(t, err)

	loc, err := localizer.Localize(squareSnippet([]float32{4, 2, 2, 1}))
	require.NoError(t, err)
	assert.Less(t, loc.X, float32(20))
	assert.Less(t, loc.Y, float32(20))
	assert.Greater(t, loc.Alpha, float32(0))
}

func TestNodes(t *testing.T) {
	segment := make([][]float32, 100)
	for r := range segment {
		segment[r] = make([]float32, 2)
	}
	recording, err := core.NewTracesRecording(
		[][][]float32{segment},
		10_000,
		[]string{"ch0", "ch1"},
		[]core.Position{{0, 0}, {20, 0}},
	)
	require.NoError(t, err)

	t.Run("invalid window", func(t *testing.T) {
		_, err := Nodes(recording, CenterOfMass, 0, 0.5, nil)
		require.Error(t, err)
	})

	t.Run("unknown method fails at build time", func(t *testing.T) {
		_, err := Nodes(recording, "banana", 0.5, 0.5, nil)
		var unknown *ErrUnknownMethod
		require.ErrorAs(t, err, &unknown)
	})

	t.Run("margin from window", func(t *testing.T) {
		nodes, err := Nodes(recording, CenterOfMass, 0.5, 1.0, nil)
		require.NoError(t, err)
		require.Len(t, nodes, 1)

		before, after := nodes[0].Margin()
		assert.Equal(t, int64(5), before)
		assert.Equal(t, int64(10), after)
	})

	t.Run("one location per spike", func(t *testing.T) {
		nodes, err := Nodes(recording, CenterOfMass, 0.5, 0.5, nil)
		require.NoError(t, err)

		traces := make([][]float32, 40)
		for r := range traces {
			traces[r] = make([]float32, 2)
		}
		// Spike on channel 1 at sample 20.
		traces[20][1] = -4
		traces[21][1] = 1

		spikes := []core.Spike{
			{Sample: 10, Segment: 0, Unit: 0, Channel: 0},
			{Sample: 20, Segment: 0, Unit: 1, Channel: 1},
		}
		chunk := pipeline.Chunk{Segment: 0, Start: 0, End: 40}
		rows, err := nodes[0].Compute(context.Background(), chunk, traces, 0, spikes)
		require.NoError(t, err)
		require.Len(t, rows, 2)

		// The second spike's energy sits on channel 1 at x=20.
		assert.Greater(t, rows[1].X, rows[0].X)
	})

	t.Run("negative channel resolved from traces", func(t *testing.T) {
		nodes, err := Nodes(recording, CenterOfMass, 0.5, 0.5, nil)
		require.NoError(t, err)

		traces := make([][]float32, 40)
		for r := range traces {
			traces[r] = make([]float32, 2)
		}
		traces[20][1] = -4

		spikes := []core.Spike{{Sample: 20, Segment: 0, Unit: 0, Channel: -1}}
		chunk := pipeline.Chunk{Segment: 0, Start: 0, End: 40}
		rows, err := nodes[0].Compute(context.Background(), chunk, traces, 0, spikes)
		require.NoError(t, err)
		require.Len(t, rows, 1)
	})
}
