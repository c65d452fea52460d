package extractors

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/spikego/core"
)

func TestToyExample(t *testing.T) {
	opts := []ToyOption{
		WithToySamplingFrequency(10000),
		WithToyDuration(1),
		WithToyChannels(4),
		WithToyUnits(4),
	}

	recording, sorting, err := ToyExample(opts...)
	require.NoError(t, err)

	t.Run("shapes", func(t *testing.T) {
		assert.Equal(t, 1, recording.NumSegments())
		assert.Equal(t, 4, recording.NumChannels())
		assert.Equal(t, float64(10000), recording.SamplingFrequency())

		n, err := recording.NumSamples(0)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), n)

		assert.Equal(t, []string{"ch0", "ch1", "ch2", "ch3"}, recording.ChannelIDs())
		assert.Equal(t, []string{"0", "1", "2", "3"}, sorting.UnitIDs())
	})

	t.Run("every unit fires", func(t *testing.T) {
		for _, unitID := range sorting.UnitIDs() {
			train, err := sorting.SpikeTrain(0, unitID)
			require.NoError(t, err)
			assert.NotEmpty(t, train, "unit %s", unitID)
		}
	})

	t.Run("spike peaks are negative on the home channel", func(t *testing.T) {
		train, err := sorting.SpikeTrain(0, "2")
		require.NoError(t, err)
		require.NotEmpty(t, train)

		for _, sample := range train[:3] {
			traces, err := recording.Traces(0, sample, sample+1)
			require.NoError(t, err)
			assert.Less(t, traces[0][2], float32(-5))
		}
	})

	t.Run("same seed, same data", func(t *testing.T) {
		recording2, sorting2, err := ToyExample(opts...)
		require.NoError(t, err)

		train1, err := sorting.SpikeTrain(0, "0")
		require.NoError(t, err)
		train2, err := sorting2.SpikeTrain(0, "0")
		require.NoError(t, err)
		assert.Equal(t, train1, train2)

		t1, err := recording.Traces(0, 0, 100)
		require.NoError(t, err)
		t2, err := recording2.Traces(0, 0, 100)
		require.NoError(t, err)
		assert.Equal(t, t1, t2)
	})

	t.Run("different seed, different trains", func(t *testing.T) {
		_, sorting3, err := ToyExample(append(opts, WithToySeed(7))...)
		require.NoError(t, err)

		train1, err := sorting.SpikeTrain(0, "0")
		require.NoError(t, err)
		train3, err := sorting3.SpikeTrain(0, "0")
		require.NoError(t, err)
		assert.NotEqual(t, train1, train3)
	})

	t.Run("invalid options", func(t *testing.T) {
		_, _, err := ToyExample(WithToyChannels(0))
		require.Error(t, err)
		_, _, err = ToyExample(WithToyDuration(-1))
		require.Error(t, err)
	})
}

func TestBinaryRecording(t *testing.T) {
	recording, _, err := ToyExample(
		WithToySamplingFrequency(10000),
		WithToyDuration(0.2),
		WithToyChannels(3),
	)
	require.NoError(t, err)

	traces, err := recording.Traces(0, 0, 2000)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "traces.raw")
	require.NoError(t, WriteBinary(path, traces))

	t.Run("round trip", func(t *testing.T) {
		bin, err := OpenBinary([]string{path}, 10000, recording.ChannelIDs(), recording.ChannelLocations())
		require.NoError(t, err)
		defer bin.Close()

		n, err := bin.NumSamples(0)
		require.NoError(t, err)
		assert.Equal(t, int64(2000), n)
		assert.Equal(t, 3, bin.NumChannels())

		got, err := bin.Traces(0, 100, 200)
		require.NoError(t, err)
		assert.Equal(t, traces[100:200], got)
	})

	t.Run("out of range", func(t *testing.T) {
		bin, err := OpenBinary([]string{path}, 10000, recording.ChannelIDs(), recording.ChannelLocations())
		require.NoError(t, err)
		defer bin.Close()

		_, err = bin.Traces(0, 1990, 2010)
		var frameErr *core.ErrFrameOutOfRange
		require.ErrorAs(t, err, &frameErr)

		_, err = bin.Traces(1, 0, 10)
		var segErr *core.ErrSegmentOutOfRange
		require.ErrorAs(t, err, &segErr)
	})

	t.Run("truncated file", func(t *testing.T) {
		short := filepath.Join(dir, "short.raw")
		require.NoError(t, WriteBinary(short, traces[:10]))

		// Four channels over a three-channel file cannot line up.
		_, err := OpenBinary([]string{short}, 10000, []string{"a", "b", "c", "d"},
			[]core.Position{{0, 0}, {0, 40}, {0, 80}, {0, 120}})
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := OpenBinary([]string{filepath.Join(dir, "nope.raw")}, 10000, recording.ChannelIDs(), recording.ChannelLocations())
		require.Error(t, err)
	})
}
