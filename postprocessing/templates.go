// Package postprocessing provides the extension computations that attach
// to a SortingAnalyzer: average unit templates and per-spike source
// locations. Extensions register themselves into analyzer.DefaultRegistry
// at init time.
package postprocessing

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/spikego/analyzer"
	"github.com/hupe1980/spikego/codec"
	"github.com/hupe1980/spikego/core"
	"github.com/hupe1980/spikego/pipeline"
)

// TemplatesName is the analyzer slot of the templates extension.
const TemplatesName = "templates"

func init() {
	analyzer.MustRegister(TemplatesName, func(a *analyzer.SortingAnalyzer) (analyzer.Extension, error) {
		return NewTemplates(a), nil
	})
}

// TemplatesParams configures the templates extension.
type TemplatesParams struct {
	// MsBefore is the window before the spike peak, in milliseconds.
	MsBefore float64 `json:"ms_before"`
	// MsAfter is the window after the spike peak, in milliseconds.
	MsAfter float64 `json:"ms_after"`
	// MaxSpikesPerUnit bounds the number of spikes averaged per unit.
	// Spikes beyond the bound are subsampled at a fixed stride, keeping
	// the estimate deterministic.
	MaxSpikesPerUnit int `json:"max_spikes_per_unit"`
}

// DefaultTemplatesParams returns the extension defaults.
func DefaultTemplatesParams() TemplatesParams {
	return TemplatesParams{
		MsBefore:         1.0,
		MsAfter:          2.0,
		MaxSpikesPerUnit: 500,
	}
}

// TemplatesOption overrides one field of the default params.
type TemplatesOption func(*TemplatesParams)

// WithTemplateWindow sets the ms_before / ms_after extraction window.
func WithTemplateWindow(msBefore, msAfter float64) TemplatesOption {
	return func(p *TemplatesParams) {
		p.MsBefore = msBefore
		p.MsAfter = msAfter
	}
}

// WithMaxSpikesPerUnit bounds the per-unit spike sample.
func WithMaxSpikesPerUnit(n int) TemplatesOption {
	return func(p *TemplatesParams) {
		p.MaxSpikesPerUnit = n
	}
}

// Templates computes the average waveform of every unit on all channels.
// Other extensions derive each unit's extremum channel from it.
type Templates struct {
	analyzer *analyzer.SortingAnalyzer
	params   TemplatesParams

	mu        sync.RWMutex
	templates *core.Templates
}

var (
	_ analyzer.Extension = (*Templates)(nil)
	_ analyzer.DataCodec = (*Templates)(nil)
)

// NewTemplates creates an unconfigured templates extension bound to a.
func NewTemplates(a *analyzer.SortingAnalyzer) *Templates {
	return &Templates{analyzer: a, params: DefaultTemplatesParams()}
}

// Name implements analyzer.Extension.
func (e *Templates) Name() string { return TemplatesName }

// DependsOn implements analyzer.Extension.
func (e *Templates) DependsOn() []string { return nil }

// SetParams accepts nil, TemplatesParams, []TemplatesOption or a generic
// map, merged onto the defaults.
func (e *Templates) SetParams(params any) error {
	p := DefaultTemplatesParams()
	switch v := params.(type) {
	case nil:
	case TemplatesParams:
		p = v
	case []TemplatesOption:
		for _, opt := range v {
			opt(&p)
		}
	default:
		decoded, err := decodeOnto(p, params)
		if err != nil {
			return err
		}
		p = decoded
	}

	if p.MsBefore <= 0 || p.MsAfter <= 0 {
		return fmt.Errorf("template window must be positive, got ms_before=%g ms_after=%g", p.MsBefore, p.MsAfter)
	}
	if p.MaxSpikesPerUnit <= 0 {
		return fmt.Errorf("max_spikes_per_unit must be positive, got %d", p.MaxSpikesPerUnit)
	}
	e.params = p

	return nil
}

// Params implements analyzer.Extension.
func (e *Templates) Params() any { return e.params }

// Data implements analyzer.Extension.
func (e *Templates) Data() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.templates == nil {
		return map[string]any{}
	}

	return map[string]any{"templates": e.templates}
}

// Get returns the computed templates.
func (e *Templates) Get() *core.Templates {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.templates
}

// Run averages per-unit waveforms, units in parallel across the job's
// workers. Spikes whose window crosses a segment border are skipped.
func (e *Templates) Run(ctx context.Context, opts pipeline.Options) error {
	opts = opts.Normalize()
	recording := e.analyzer.Recording()
	sorting := e.analyzer.Sorting()
	unitIDs := sorting.UnitIDs()

	frequency := recording.SamplingFrequency()
	before := int(math.Ceil(e.params.MsBefore * frequency / 1000))
	after := int(math.Ceil(e.params.MsAfter * frequency / 1000))
	window := before + after
	channels := recording.NumChannels()

	data := make([][][]float32, len(unitIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.NumWorkers)
	for unit, unitID := range unitIDs {
		g.Go(func() error {
			template, err := e.unitTemplate(gctx, recording, sorting, unitID, before, window, channels)
			if err != nil {
				return fmt.Errorf("unit %q: %w", unitID, err)
			}
			data[unit] = template
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	e.mu.Lock()
	e.templates = &core.Templates{
		Data:              data,
		BeforePeak:        before,
		SamplingFrequency: frequency,
	}
	e.mu.Unlock()

	return nil
}

func (e *Templates) unitTemplate(ctx context.Context, recording core.Recording, sorting core.Sorting, unitID string, before, window, channels int) ([][]float32, error) {
	type event struct {
		segment int
		sample  int64
	}

	var events []event
	for segment := 0; segment < sorting.NumSegments(); segment++ {
		numSamples, err := recording.NumSamples(segment)
		if err != nil {
			return nil, err
		}
		train, err := sorting.SpikeTrain(segment, unitID)
		if err != nil {
			return nil, err
		}
		for _, sample := range train {
			if sample-int64(before) < 0 || sample+int64(window-before) > numSamples {
				continue
			}
			events = append(events, event{segment: segment, sample: sample})
		}
	}

	// Fixed-stride subsample above the bound.
	if len(events) > e.params.MaxSpikesPerUnit {
		stride := float64(len(events)) / float64(e.params.MaxSpikesPerUnit)
		sampled := make([]event, 0, e.params.MaxSpikesPerUnit)
		for i := 0; i < e.params.MaxSpikesPerUnit; i++ {
			sampled = append(sampled, events[int(float64(i)*stride)])
		}
		events = sampled
	}

	sum := make([][]float64, window)
	for r := range sum {
		sum[r] = make([]float64, channels)
	}
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := ev.sample - int64(before)
		traces, err := recording.Traces(ev.segment, start, start+int64(window))
		if err != nil {
			return nil, err
		}
		for r, row := range traces {
			for c, v := range row {
				sum[r][c] += float64(v)
			}
		}
	}

	template := make([][]float32, window)
	n := float64(len(events))
	for r := range template {
		template[r] = make([]float32, channels)
		if n == 0 {
			continue
		}
		for c := range template[r] {
			template[r][c] = float32(sum[r][c] / n)
		}
	}

	return template, nil
}

// SelectUnits keeps the template rows of the given units, in the
// sorting's original unit order. Unknown unit IDs are skipped.
func (e *Templates) SelectUnits(unitIDs []string) (map[string]any, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.templates == nil {
		return nil, fmt.Errorf("extension %q not computed", TemplatesName)
	}

	mask := unitMask(e.analyzer.Sorting().UnitIDs(), unitIDs)

	data := make([][][]float32, 0)
	for unit := range e.templates.Data {
		if mask.Contains(uint32(unit)) {
			data = append(data, e.templates.Data[unit])
		}
	}

	return map[string]any{"templates": &core.Templates{
		Data:              data,
		BeforePeak:        e.templates.BeforePeak,
		SamplingFrequency: e.templates.SamplingFrequency,
	}}, nil
}

// EncodeData implements analyzer.DataCodec.
func (e *Templates) EncodeData(c codec.Codec) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return c.Marshal(e.templates)
}

// DecodeData implements analyzer.DataCodec.
func (e *Templates) DecodeData(c codec.Codec, data []byte) error {
	var templates core.Templates
	if err := c.Unmarshal(data, &templates); err != nil {
		return err
	}

	e.mu.Lock()
	e.templates = &templates
	e.mu.Unlock()

	return nil
}

// TemplatesOf returns the templates stored on the analyzer, whether they
// came from a run, a load or a unit selection.
func TemplatesOf(a *analyzer.SortingAnalyzer) (*core.Templates, error) {
	ext, ok := a.Extension(TemplatesName)
	if !ok {
		return nil, &analyzer.ErrMissingExtension{Name: TemplatesName, Needs: TemplatesName}
	}
	templates, ok := ext.Data()["templates"].(*core.Templates)
	if !ok || templates == nil {
		return nil, fmt.Errorf("extension %q has no computed data", TemplatesName)
	}

	return templates, nil
}

// ComputeTemplates runs the templates extension on the analyzer and
// returns the stored instance.
func ComputeTemplates(ctx context.Context, a *analyzer.SortingAnalyzer, opts pipeline.Options, params ...TemplatesOption) (*Templates, error) {
	ext, err := a.Compute(ctx, TemplatesName, params, opts)
	if err != nil {
		return nil, err
	}

	return ext.(*Templates), nil
}

// unitMask builds a bitmap over unit indices of the sorting's unit order.
// IDs not present in the sorting are skipped, so a mismatched selection
// yields an empty mask rather than an error.
func unitMask(all, selected []string) *roaring.Bitmap {
	index := make(map[string]uint32, len(all))
	for i, id := range all {
		index[id] = uint32(i)
	}

	mask := roaring.New()
	for _, id := range selected {
		if i, ok := index[id]; ok {
			mask.Add(i)
		}
	}

	return mask
}

// decodeOnto merges a loosely typed params value onto defaults via a
// codec round trip: fields absent from the value keep their defaults.
func decodeOnto[T any](defaults T, params any) (T, error) {
	raw, err := codec.Default.Marshal(params)
	if err != nil {
		return defaults, fmt.Errorf("encode params: %w", err)
	}
	if err := codec.Default.Unmarshal(raw, &defaults); err != nil {
		return defaults, fmt.Errorf("decode params: %w", err)
	}

	return defaults, nil
}
