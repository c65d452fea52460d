package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecording(t *testing.T) *TracesRecording {
	t.Helper()

	segment := make([][]float32, 50)
	for r := range segment {
		segment[r] = make([]float32, 3)
	}
	recording, err := NewTracesRecording(
		[][][]float32{segment},
		10_000,
		[]string{"a", "b", "c"},
		[]Position{{0, 0}, {0, 20}, {0, 40}},
	)
	require.NoError(t, err)

	return recording
}

func TestTracesRecording(t *testing.T) {
	recording := testRecording(t)

	assert.Equal(t, 1, recording.NumSegments())
	assert.Equal(t, 3, recording.NumChannels())
	assert.Equal(t, 10_000.0, recording.SamplingFrequency())

	n, err := recording.NumSamples(0)
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)

	t.Run("segment out of range", func(t *testing.T) {
		_, err := recording.NumSamples(1)
		var segErr *ErrSegmentOutOfRange
		require.ErrorAs(t, err, &segErr)
		assert.Equal(t, 1, segErr.Segment)

		_, err = recording.Traces(-1, 0, 10)
		require.ErrorAs(t, err, &segErr)
	})

	t.Run("frame range out of range", func(t *testing.T) {
		_, err := recording.Traces(0, 10, 60)
		var frameErr *ErrFrameOutOfRange
		require.ErrorAs(t, err, &frameErr)
		assert.Equal(t, int64(50), frameErr.NumSamples)
	})

	t.Run("traces window", func(t *testing.T) {
		traces, err := recording.Traces(0, 10, 20)
		require.NoError(t, err)
		assert.Len(t, traces, 10)
		assert.Len(t, traces[0], 3)
	})

	t.Run("channel count validated", func(t *testing.T) {
		_, err := NewTracesRecording(
			[][][]float32{{{1, 2}}},
			10_000,
			[]string{"a", "b", "c"},
			[]Position{{0, 0}, {0, 20}, {0, 40}},
		)
		require.Error(t, err)
	})
}

func testSorting(t *testing.T) *MemorySorting {
	t.Helper()

	sorting, err := NewMemorySorting(
		[]string{"u0", "u1", "u2"},
		10_000,
		[]map[string][]int64{{
			"u0": {10, 30, 45},
			"u1": {5, 25},
			"u2": {12},
		}},
	)
	require.NoError(t, err)

	return sorting
}

func TestMemorySorting(t *testing.T) {
	sorting := testSorting(t)

	assert.Equal(t, []string{"u0", "u1", "u2"}, sorting.UnitIDs())
	assert.Equal(t, 1, sorting.NumSegments())

	train, err := sorting.SpikeTrain(0, "u0")
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 30, 45}, train)

	t.Run("unknown unit", func(t *testing.T) {
		_, err := sorting.SpikeTrain(0, "nope")
		var unitErr *ErrUnknownUnit
		require.ErrorAs(t, err, &unitErr)
		assert.Equal(t, "nope", unitErr.UnitID)
	})

	t.Run("total spikes", func(t *testing.T) {
		total, err := TotalSpikes(sorting)
		require.NoError(t, err)
		assert.Equal(t, 6, total)
	})

	t.Run("select units preserves order", func(t *testing.T) {
		sub, err := sorting.SelectUnits([]string{"u2", "u0"})
		require.NoError(t, err)
		assert.Equal(t, []string{"u0", "u2"}, sub.UnitIDs())

		train, err := sub.SpikeTrain(0, "u2")
		require.NoError(t, err)
		assert.Equal(t, []int64{12}, train)

		_, err = sub.SpikeTrain(0, "u1")
		require.Error(t, err)
	})

	t.Run("select unknown unit", func(t *testing.T) {
		_, err := sorting.SelectUnits([]string{"u0", "ghost"})
		var unitErr *ErrUnknownUnit
		require.ErrorAs(t, err, &unitErr)
	})
}

func TestSpikeVector(t *testing.T) {
	sorting := testSorting(t)

	t.Run("sorted by segment then sample", func(t *testing.T) {
		spikes, err := NewSpikeVector(sorting, map[int]int{0: 2, 1: 0, 2: 1})
		require.NoError(t, err)
		require.Len(t, spikes, 6)

		for i := 1; i < len(spikes); i++ {
			prev, cur := spikes[i-1], spikes[i]
			if prev.Segment == cur.Segment {
				assert.LessOrEqual(t, prev.Sample, cur.Sample)
			} else {
				assert.Less(t, prev.Segment, cur.Segment)
			}
		}

		assert.Equal(t, int64(5), spikes[0].Sample)
		assert.Equal(t, int32(1), spikes[0].Unit)
		assert.Equal(t, int32(0), spikes[0].Channel)
	})

	t.Run("nil mapping leaves channel unset", func(t *testing.T) {
		spikes, err := NewSpikeVector(sorting, nil)
		require.NoError(t, err)
		for _, s := range spikes {
			assert.Equal(t, int32(-1), s.Channel)
		}
	})

	t.Run("frame range", func(t *testing.T) {
		spikes, err := NewSpikeVector(sorting, nil)
		require.NoError(t, err)

		lo, hi := spikes.FrameRange(0, 10, 30)
		assert.Equal(t, 3, hi-lo) // samples 10, 12, 25
		for _, s := range spikes[lo:hi] {
			assert.GreaterOrEqual(t, s.Sample, int64(10))
			assert.Less(t, s.Sample, int64(30))
		}

		lo, hi = spikes.SegmentRange(0)
		assert.Equal(t, 0, lo)
		assert.Equal(t, 6, hi)
	})
}

func TestTemplatesExtremumChannels(t *testing.T) {
	// unit 0 peaks negative on channel 1, unit 1 positive on channel 0
	templates := &Templates{
		Data: [][][]float32{
			{{0, -1, 0}, {0, -5, -1}, {0, 1, 0}},
			{{2, 0, 0}, {7, 1, 0}, {1, 0, 0}},
		},
		BeforePeak:        1,
		SamplingFrequency: 10_000,
	}

	t.Run("neg", func(t *testing.T) {
		channels, err := templates.ExtremumChannels(PeakSignNeg)
		require.NoError(t, err)
		assert.Equal(t, 1, channels[0])
	})

	t.Run("pos", func(t *testing.T) {
		channels, err := templates.ExtremumChannels(PeakSignPos)
		require.NoError(t, err)
		assert.Equal(t, 0, channels[1])
	})

	t.Run("both", func(t *testing.T) {
		channels, err := templates.ExtremumChannels(PeakSignBoth)
		require.NoError(t, err)
		assert.Equal(t, 1, channels[0])
		assert.Equal(t, 0, channels[1])
	})

	t.Run("invalid sign", func(t *testing.T) {
		_, err := templates.ExtremumChannels("sideways")
		require.Error(t, err)
	})
}
