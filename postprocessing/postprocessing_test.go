package postprocessing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/spikego/analyzer"
	"github.com/hupe1980/spikego/codec"
	"github.com/hupe1980/spikego/core"
	"github.com/hupe1980/spikego/extractors"
	"github.com/hupe1980/spikego/localization"
	"github.com/hupe1980/spikego/pipeline"
)

func toyAnalyzer(t *testing.T) *analyzer.SortingAnalyzer {
	t.Helper()

	recording, sorting, err := extractors.ToyExample(
		extractors.WithToySamplingFrequency(10000),
		extractors.WithToyDuration(2),
		extractors.WithToyChannels(3),
		extractors.WithToyUnits(3),
	)
	require.NoError(t, err)

	a, err := analyzer.New(recording, sorting)
	require.NoError(t, err)
	return a
}

func TestDefaultRegistration(t *testing.T) {
	names := analyzer.DefaultRegistry.Names()
	assert.Contains(t, names, TemplatesName)
	assert.Contains(t, names, SpikeLocationsName)
}

func TestTemplatesSetParams(t *testing.T) {
	e := NewTemplates(nil)

	t.Run("nil keeps defaults", func(t *testing.T) {
		require.NoError(t, e.SetParams(nil))
		p := e.Params().(TemplatesParams)
		assert.Equal(t, DefaultTemplatesParams(), p)
	})

	t.Run("options merge onto defaults", func(t *testing.T) {
		require.NoError(t, e.SetParams([]TemplatesOption{WithMaxSpikesPerUnit(100)}))
		p := e.Params().(TemplatesParams)
		assert.Equal(t, 100, p.MaxSpikesPerUnit)
		assert.Equal(t, 1.0, p.MsBefore)
		assert.Equal(t, 2.0, p.MsAfter)
	})

	t.Run("partial map keeps untouched defaults", func(t *testing.T) {
		require.NoError(t, e.SetParams(map[string]any{"ms_before": 0.7}))
		p := e.Params().(TemplatesParams)
		assert.Equal(t, 0.7, p.MsBefore)
		assert.Equal(t, 2.0, p.MsAfter)
		assert.Equal(t, 500, p.MaxSpikesPerUnit)
	})

	t.Run("typed struct replaces defaults", func(t *testing.T) {
		require.NoError(t, e.SetParams(TemplatesParams{MsBefore: 0.5, MsAfter: 0.5, MaxSpikesPerUnit: 10}))
		p := e.Params().(TemplatesParams)
		assert.Equal(t, 10, p.MaxSpikesPerUnit)
	})

	t.Run("invalid window", func(t *testing.T) {
		require.Error(t, e.SetParams(TemplatesParams{MsBefore: 0, MsAfter: 1, MaxSpikesPerUnit: 10}))
	})

	t.Run("invalid spike bound", func(t *testing.T) {
		require.Error(t, e.SetParams(map[string]any{"max_spikes_per_unit": -1}))
	})
}

func TestTemplatesRun(t *testing.T) {
	ctx := context.Background()
	a := toyAnalyzer(t)

	ext, err := ComputeTemplates(ctx, a, pipeline.Options{NumWorkers: 2})
	require.NoError(t, err)

	templates := ext.Get()
	require.NotNil(t, templates)
	require.Equal(t, 3, templates.NumUnits())
	assert.Equal(t, 10, templates.BeforePeak)
	assert.Equal(t, float64(10000), templates.SamplingFrequency)

	// Window is ms_before + ms_after at the recording rate.
	for _, tpl := range templates.Data {
		require.Len(t, tpl, 30)
		require.Len(t, tpl[0], 3)
	}

	t.Run("peak lands on the home channel", func(t *testing.T) {
		extremum, err := templates.ExtremumChannels(core.PeakSignNeg)
		require.NoError(t, err)
		for unit := 0; unit < 3; unit++ {
			assert.Equal(t, unit, extremum[unit], "unit %d", unit)
			assert.Less(t, templates.Data[unit][10][unit], float32(-5))
		}
	})

	t.Run("analyzer can hand the templates back", func(t *testing.T) {
		got, err := TemplatesOf(a)
		require.NoError(t, err)
		assert.Same(t, templates, got)
	})

	t.Run("select units keeps unit order", func(t *testing.T) {
		data, err := ext.SelectUnits([]string{"2", "0"})
		require.NoError(t, err)

		sub := data["templates"].(*core.Templates)
		require.Equal(t, 2, sub.NumUnits())
		assert.Equal(t, templates.Data[0], sub.Data[0])
		assert.Equal(t, templates.Data[2], sub.Data[1])
		assert.Equal(t, templates.BeforePeak, sub.BeforePeak)
	})

	t.Run("select skips unknown units", func(t *testing.T) {
		data, err := ext.SelectUnits([]string{"0", "nope"})
		require.NoError(t, err)

		sub := data["templates"].(*core.Templates)
		require.Equal(t, 1, sub.NumUnits())
		assert.Equal(t, templates.Data[0], sub.Data[0])
	})

	t.Run("select only unknown units yields empty data", func(t *testing.T) {
		data, err := ext.SelectUnits([]string{"nope", "nada"})
		require.NoError(t, err)

		sub := data["templates"].(*core.Templates)
		assert.Equal(t, 0, sub.NumUnits())
		assert.NotNil(t, sub.Data)
	})
}

func TestTemplatesOfMissing(t *testing.T) {
	a := toyAnalyzer(t)

	_, err := TemplatesOf(a)
	var missing *analyzer.ErrMissingExtension
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, TemplatesName, missing.Name)
}

func TestSpikeLocationsSetParams(t *testing.T) {
	e := NewSpikeLocations(nil)

	t.Run("nil keeps defaults", func(t *testing.T) {
		require.NoError(t, e.SetParams(nil))
		p := e.Params().(SpikeLocationsParams)
		assert.Equal(t, DefaultSpikeLocationsParams(), p)
	})

	t.Run("options merge onto defaults", func(t *testing.T) {
		require.NoError(t, e.SetParams([]ParamOption{
			WithMethod(localization.MonopolarTriangulation),
			WithRadiusUm(75),
		}))
		p := e.Params().(SpikeLocationsParams)
		assert.Equal(t, localization.MonopolarTriangulation, p.Method)
		assert.Equal(t, float64(75), p.Retriever.RadiusUm)
		assert.Equal(t, 0.5, p.MsBefore)
		assert.True(t, p.Retriever.ChannelFromTemplate)
	})

	t.Run("partial map keeps untouched defaults", func(t *testing.T) {
		require.NoError(t, e.SetParams(map[string]any{"ms_after": 1.5}))
		p := e.Params().(SpikeLocationsParams)
		assert.Equal(t, 1.5, p.MsAfter)
		assert.Equal(t, 0.5, p.MsBefore)
		assert.Equal(t, localization.CenterOfMass, p.Method)
	})

	t.Run("unknown method fails before any run", func(t *testing.T) {
		err := e.SetParams([]ParamOption{WithMethod("nope")})
		var unknown *localization.ErrUnknownMethod
		require.ErrorAs(t, err, &unknown)
	})

	t.Run("unknown method kwarg fails before any run", func(t *testing.T) {
		err := e.SetParams([]ParamOption{WithMethodKwargs(localization.Kwargs{"bogus": 1})})
		require.Error(t, err)
	})

	t.Run("invalid window", func(t *testing.T) {
		require.Error(t, e.SetParams([]ParamOption{WithWindow(0, 0.5)}))
	})

	t.Run("invalid peak sign", func(t *testing.T) {
		require.Error(t, e.SetParams([]ParamOption{WithPeakSign(core.PeakSign("sideways"))}))
	})
}

func TestSpikeLocationsRun(t *testing.T) {
	ctx := context.Background()
	a := toyAnalyzer(t)

	t.Run("requires templates", func(t *testing.T) {
		_, err := ComputeSpikeLocations(ctx, a, pipeline.Options{})
		var missing *analyzer.ErrMissingExtension
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "templates|fast_templates", missing.Needs)
	})

	_, err := ComputeTemplates(ctx, a, pipeline.Options{})
	require.NoError(t, err)

	ext, err := ComputeSpikeLocations(ctx, a, pipeline.Options{NumWorkers: 2})
	require.NoError(t, err)

	spikes := ext.Spikes()
	locations := ext.Locations()

	totalSpikes := 0
	for _, unitID := range a.UnitIDs() {
		train, err := a.Sorting().SpikeTrain(0, unitID)
		require.NoError(t, err)
		totalSpikes += len(train)
	}

	t.Run("one location per spike", func(t *testing.T) {
		require.NotEmpty(t, locations)
		assert.Len(t, spikes, totalSpikes)
		assert.Len(t, locations, totalSpikes)
	})

	t.Run("locations track the home channels", func(t *testing.T) {
		// Toy channels sit at y = 0, 40, 80; unit u lives on channel u.
		// The center of mass of each unit's spikes must keep that order.
		meanY := make([]float64, 3)
		counts := make([]int, 3)
		for i, s := range spikes {
			meanY[s.Unit] += float64(locations[i].Y)
			counts[s.Unit]++
		}
		for u := range meanY {
			require.Positive(t, counts[u])
			meanY[u] /= float64(counts[u])
		}
		assert.Less(t, meanY[0], meanY[1])
		assert.Less(t, meanY[1], meanY[2])
	})

	t.Run("select units filters spike-wise", func(t *testing.T) {
		data, err := ext.SelectUnits([]string{"1"})
		require.NoError(t, err)

		kept := data["spike_locations"].([]localization.Location)
		train, err := a.Sorting().SpikeTrain(0, "1")
		require.NoError(t, err)
		assert.Len(t, kept, len(train))
	})

	t.Run("empty selection is empty, not nil", func(t *testing.T) {
		data, err := ext.SelectUnits(nil)
		require.NoError(t, err)

		kept := data["spike_locations"].([]localization.Location)
		assert.NotNil(t, kept)
		assert.Empty(t, kept)
	})

	t.Run("mismatched unit ids yield empty output", func(t *testing.T) {
		data, err := ext.SelectUnits([]string{"not-a-unit"})
		require.NoError(t, err)

		kept := data["spike_locations"].([]localization.Location)
		assert.NotNil(t, kept)
		assert.Empty(t, kept)
	})

	t.Run("decoded data still selects units", func(t *testing.T) {
		raw, err := ext.EncodeData(codec.Default)
		require.NoError(t, err)

		restored := NewSpikeLocations(a)
		require.NoError(t, restored.SetParams(nil))
		require.NoError(t, restored.DecodeData(codec.Default, raw))

		data, err := restored.SelectUnits([]string{"0"})
		require.NoError(t, err)
		kept := data["spike_locations"].([]localization.Location)
		train, err := a.Sorting().SpikeTrain(0, "0")
		require.NoError(t, err)
		assert.Len(t, kept, len(train))
	})
}
