package postprocessing

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/spikego/analyzer"
	"github.com/hupe1980/spikego/codec"
	"github.com/hupe1980/spikego/core"
	"github.com/hupe1980/spikego/localization"
	"github.com/hupe1980/spikego/pipeline"
)

// SpikeLocationsName is the analyzer slot of the spike locations
// extension.
const SpikeLocationsName = "spike_locations"

func init() {
	analyzer.MustRegister(SpikeLocationsName, func(a *analyzer.SortingAnalyzer) (analyzer.Extension, error) {
		return NewSpikeLocations(a), nil
	})
}

// RetrieverParams configures how the spike retriever assigns a channel to
// each spike before localization.
type RetrieverParams struct {
	// ChannelFromTemplate keeps the unit's template extremum channel for
	// every spike. When false the channel is re-estimated per spike.
	ChannelFromTemplate bool `json:"channel_from_template"`
	// RadiusUm is the per-spike re-estimation search radius.
	RadiusUm float64 `json:"radius_um"`
	// PeakSign is the polarity of the spike peaks.
	PeakSign core.PeakSign `json:"peak_sign"`
}

// SpikeLocationsParams configures the spike locations extension.
type SpikeLocationsParams struct {
	// MsBefore and MsAfter bound the waveform snippet around each spike
	// peak, in milliseconds.
	MsBefore float64 `json:"ms_before"`
	MsAfter  float64 `json:"ms_after"`
	// Method selects the localization strategy.
	Method localization.Method `json:"method"`
	// MethodKwargs is forwarded verbatim to the method factory.
	MethodKwargs localization.Kwargs `json:"method_kwargs,omitempty"`
	// Retriever configures the spike retriever.
	Retriever RetrieverParams `json:"spike_retriever_kwargs"`
}

// DefaultSpikeLocationsParams returns the extension defaults.
func DefaultSpikeLocationsParams() SpikeLocationsParams {
	return SpikeLocationsParams{
		MsBefore: 0.5,
		MsAfter:  0.5,
		Method:   localization.CenterOfMass,
		Retriever: RetrieverParams{
			ChannelFromTemplate: true,
			RadiusUm:            50,
			PeakSign:            core.PeakSignNeg,
		},
	}
}

// ParamOption overrides one field of the default params; fields not
// touched by any option keep their defaults.
type ParamOption func(*SpikeLocationsParams)

// WithWindow sets the ms_before / ms_after snippet window.
func WithWindow(msBefore, msAfter float64) ParamOption {
	return func(p *SpikeLocationsParams) {
		p.MsBefore = msBefore
		p.MsAfter = msAfter
	}
}

// WithMethod selects the localization method.
func WithMethod(method localization.Method) ParamOption {
	return func(p *SpikeLocationsParams) {
		p.Method = method
	}
}

// WithMethodKwargs forwards method-specific options to the factory.
func WithMethodKwargs(kwargs localization.Kwargs) ParamOption {
	return func(p *SpikeLocationsParams) {
		p.MethodKwargs = kwargs
	}
}

// WithChannelFromTemplate toggles per-spike channel re-estimation.
func WithChannelFromTemplate(fromTemplate bool) ParamOption {
	return func(p *SpikeLocationsParams) {
		p.Retriever.ChannelFromTemplate = fromTemplate
	}
}

// WithRadiusUm sets the retriever's re-estimation radius.
func WithRadiusUm(radiusUm float64) ParamOption {
	return func(p *SpikeLocationsParams) {
		p.Retriever.RadiusUm = radiusUm
	}
}

// WithPeakSign sets the spike peak polarity.
func WithPeakSign(sign core.PeakSign) ParamOption {
	return func(p *SpikeLocationsParams) {
		p.Retriever.PeakSign = sign
	}
}

// SpikeLocations estimates the physical source position of every spike in
// the sorting. It depends on templates for the extremum channel of each
// unit.
type SpikeLocations struct {
	analyzer *analyzer.SortingAnalyzer
	params   SpikeLocationsParams

	mu        sync.RWMutex
	spikes    core.SpikeVector
	locations []localization.Location
}

var (
	_ analyzer.Extension = (*SpikeLocations)(nil)
	_ analyzer.DataCodec = (*SpikeLocations)(nil)
)

// NewSpikeLocations creates an unconfigured extension bound to a.
func NewSpikeLocations(a *analyzer.SortingAnalyzer) *SpikeLocations {
	return &SpikeLocations{analyzer: a, params: DefaultSpikeLocationsParams()}
}

// Name implements analyzer.Extension.
func (e *SpikeLocations) Name() string { return SpikeLocationsName }

// DependsOn implements analyzer.Extension.
func (e *SpikeLocations) DependsOn() []string { return []string{"templates|fast_templates"} }

// SetParams accepts nil, SpikeLocationsParams, []ParamOption or a generic
// map, merged onto the defaults. The method is validated here, before any
// run: an unknown method or kwarg never reaches the pipeline.
func (e *SpikeLocations) SetParams(params any) error {
	p := DefaultSpikeLocationsParams()
	switch v := params.(type) {
	case nil:
	case SpikeLocationsParams:
		p = v
	case []ParamOption:
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
		return fmt.Errorf("snippet window must be positive, got ms_before=%g ms_after=%g", p.MsBefore, p.MsAfter)
	}
	if !p.Retriever.PeakSign.Valid() {
		return fmt.Errorf("invalid peak sign %q", p.Retriever.PeakSign)
	}
	if _, err := localization.New(p.Method, p.MethodKwargs); err != nil {
		return err
	}
	e.params = p

	return nil
}

// Params implements analyzer.Extension.
func (e *SpikeLocations) Params() any { return e.params }

// Data implements analyzer.Extension.
func (e *SpikeLocations) Data() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.locations == nil {
		return map[string]any{}
	}

	return map[string]any{"spike_locations": e.locations}
}

// Locations returns one location per spike, in spike-vector order.
func (e *SpikeLocations) Locations() []localization.Location {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.locations
}

// Spikes returns the spike vector the locations were computed over, in
// the same order.
func (e *SpikeLocations) Spikes() core.SpikeVector {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.spikes
}

// Run builds the spike vector from the templates' extremum channels, then
// localizes every spike through the chunked pipeline. The output has
// exactly one location per spike, in spike-vector order. Failures
// propagate unchanged; a failed run stores nothing.
func (e *SpikeLocations) Run(ctx context.Context, opts pipeline.Options) error {
	opts = opts.Normalize()
	recording := e.analyzer.Recording()
	sorting := e.analyzer.Sorting()

	templates, err := TemplatesOf(e.analyzer)
	if err != nil {
		return err
	}
	if templates.NumUnits() != len(sorting.UnitIDs()) {
		return fmt.Errorf("templates cover %d units, sorting has %d", templates.NumUnits(), len(sorting.UnitIDs()))
	}
	extremum, err := templates.ExtremumChannels(e.params.Retriever.PeakSign)
	if err != nil {
		return err
	}

	spikes, err := core.NewSpikeVector(sorting, extremum)
	if err != nil {
		return err
	}
	retriever, err := pipeline.NewSpikeRetriever(recording, spikes, pipeline.SpikeRetrieverConfig{
		ChannelFromTemplate: e.params.Retriever.ChannelFromTemplate,
		RadiusUm:            e.params.Retriever.RadiusUm,
		PeakSign:            e.params.Retriever.PeakSign,
	})
	if err != nil {
		return err
	}
	nodes, err := localization.Nodes(recording, e.params.Method, e.params.MsBefore, e.params.MsAfter, e.params.MethodKwargs)
	if err != nil {
		return err
	}

	locations, err := pipeline.Run(ctx, recording, retriever, nodes, opts, SpikeLocationsName, pipeline.NewMemoryGatherer[localization.Location]())
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.spikes = spikes
	e.locations = locations
	e.mu.Unlock()

	return nil
}

// SelectUnits keeps the locations of spikes belonging to the given units,
// preserving spike order. Empty or mismatched selections yield an empty
// result. The stored data is not touched.
func (e *SpikeLocations) SelectUnits(unitIDs []string) (map[string]any, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.locations == nil {
		return nil, fmt.Errorf("extension %q not computed", SpikeLocationsName)
	}

	mask := unitMask(e.analyzer.Sorting().UnitIDs(), unitIDs)

	kept := make([]localization.Location, 0)
	for i, spike := range e.spikes {
		if mask.Contains(uint32(spike.Unit)) {
			kept = append(kept, e.locations[i])
		}
	}

	return map[string]any{"spike_locations": kept}, nil
}

// spikeLocationsBlob is the persisted form: the spike vector rides along
// so unit selection keeps working after a load.
type spikeLocationsBlob struct {
	Spikes    core.SpikeVector        `json:"spikes"`
	Locations []localization.Location `json:"locations"`
}

// EncodeData implements analyzer.DataCodec.
func (e *SpikeLocations) EncodeData(c codec.Codec) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return c.Marshal(spikeLocationsBlob{Spikes: e.spikes, Locations: e.locations})
}

// DecodeData implements analyzer.DataCodec.
func (e *SpikeLocations) DecodeData(c codec.Codec, data []byte) error {
	var blob spikeLocationsBlob
	if err := c.Unmarshal(data, &blob); err != nil {
		return err
	}
	if len(blob.Spikes) != len(blob.Locations) {
		return fmt.Errorf("%d spikes but %d locations", len(blob.Spikes), len(blob.Locations))
	}

	e.mu.Lock()
	e.spikes = blob.Spikes
	e.locations = blob.Locations
	e.mu.Unlock()

	return nil
}

// ComputeSpikeLocations runs the spike locations extension on the
// analyzer and returns the stored instance. The templates extension must
// have been computed first.
func ComputeSpikeLocations(ctx context.Context, a *analyzer.SortingAnalyzer, opts pipeline.Options, params ...ParamOption) (*SpikeLocations, error) {
	ext, err := a.Compute(ctx, SpikeLocationsName, params, opts)
	if err != nil {
		return nil, err
	}

	return ext.(*SpikeLocations), nil
}
