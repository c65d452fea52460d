package spikego

import (
	"context"
	"time"

	"github.com/hupe1980/spikego/analyzer"
	"github.com/hupe1980/spikego/blobstore"
	"github.com/hupe1980/spikego/comparison"
	"github.com/hupe1980/spikego/core"
	"github.com/hupe1980/spikego/localization"
	"github.com/hupe1980/spikego/postprocessing"
	"github.com/hupe1980/spikego/sorters"
)

// Location is one spike's estimated source position, in micrometers.
type Location = localization.Location

// Analyzer is the package facade: a SortingAnalyzer whose operations are
// wrapped with logging and metrics. The embedded SortingAnalyzer exposes
// the full container API.
type Analyzer struct {
	*analyzer.SortingAnalyzer
	opts options
}

// NewSortingAnalyzer creates an analyzer over a recording and a sorting
// of it.
func NewSortingAnalyzer(recording core.Recording, sorting core.Sorting, opts ...Option) (*Analyzer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	analyzerOpts := []analyzer.Option{analyzer.WithLogger(o.logger.Logger)}
	if o.registry != nil {
		analyzerOpts = append(analyzerOpts, analyzer.WithRegistry(o.registry))
	}
	sa, err := analyzer.New(recording, sorting, analyzerOpts...)
	if err != nil {
		return nil, err
	}

	return &Analyzer{SortingAnalyzer: sa, opts: o}, nil
}

// ComputeTemplates computes the average unit waveforms.
func (a *Analyzer) ComputeTemplates(ctx context.Context, params ...postprocessing.TemplatesOption) (*postprocessing.Templates, error) {
	start := time.Now()
	ext, err := postprocessing.ComputeTemplates(ctx, a.SortingAnalyzer, a.opts.jobOptions, params...)
	a.opts.metricsCollector.RecordCompute(postprocessing.TemplatesName, time.Since(start), err)
	a.opts.logger.LogCompute(ctx, postprocessing.TemplatesName, err)

	return ext, err
}

// ComputeSpikeLocations computes one source location per spike. The
// templates extension must have been computed first.
func (a *Analyzer) ComputeSpikeLocations(ctx context.Context, params ...postprocessing.ParamOption) (*postprocessing.SpikeLocations, error) {
	start := time.Now()
	ext, err := postprocessing.ComputeSpikeLocations(ctx, a.SortingAnalyzer, a.opts.jobOptions, params...)
	a.opts.metricsCollector.RecordCompute(postprocessing.SpikeLocationsName, time.Since(start), err)
	a.opts.logger.LogCompute(ctx, postprocessing.SpikeLocationsName, err)

	return ext, err
}

// RunSorter sorts the analyzer's recording with the named sorter.
func (a *Analyzer) RunSorter(ctx context.Context, name string, params sorters.Params) (*core.MemorySorting, error) {
	start := time.Now()
	sorting, err := sorters.Run(ctx, name, a.Recording(), params)
	units := 0
	if sorting != nil {
		units = len(sorting.UnitIDs())
	}
	a.opts.metricsCollector.RecordSort(name, units, time.Since(start), err)
	a.opts.logger.LogSort(ctx, name, units, err)

	return sorting, err
}

// CompareSorting scores a tested sorting against the analyzer's sorting,
// treated as ground truth.
func (a *Analyzer) CompareSorting(ctx context.Context, tested core.Sorting, opts ...comparison.Option) (*comparison.GroundTruthComparison, error) {
	start := time.Now()
	gt := a.Sorting()
	c, err := comparison.CompareSorterToGroundTruth(gt, tested, opts...)
	a.opts.metricsCollector.RecordComparison(time.Since(start), err)
	a.opts.logger.LogComparison(ctx, len(gt.UnitIDs()), len(tested.UnitIDs()), err)

	return c, err
}

// SelectUnits returns a new analyzer restricted to the given units, every
// computed extension projected along.
func (a *Analyzer) SelectUnits(unitIDs []string) (*Analyzer, error) {
	sub, err := a.SortingAnalyzer.SelectUnits(unitIDs)
	if err != nil {
		return nil, err
	}

	return &Analyzer{SortingAnalyzer: sub, opts: a.opts}, nil
}

// Save writes the analyzer and its computed extensions to the store.
func (a *Analyzer) Save(ctx context.Context, store blobstore.BlobStore) error {
	start := time.Now()
	err := a.SortingAnalyzer.Save(ctx, store)
	a.opts.metricsCollector.RecordSave(time.Since(start), err)
	a.opts.logger.LogSave(ctx, len(a.ExtensionNames()), err)

	return err
}

// Load reads a saved analyzer folder and re-attaches it to the recording
// and sorting it was computed on.
func Load(ctx context.Context, store blobstore.BlobStore, recording core.Recording, sorting core.Sorting, opts ...Option) (*Analyzer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	analyzerOpts := []analyzer.Option{analyzer.WithLogger(o.logger.Logger)}
	if o.registry != nil {
		analyzerOpts = append(analyzerOpts, analyzer.WithRegistry(o.registry))
	}

	start := time.Now()
	sa, err := analyzer.Load(ctx, store, recording, sorting, analyzerOpts...)
	o.metricsCollector.RecordLoad(time.Since(start), err)
	if err != nil {
		o.logger.LogLoad(ctx, 0, err)
		return nil, err
	}
	o.logger.LogLoad(ctx, len(sa.ExtensionNames()), nil)

	return &Analyzer{SortingAnalyzer: sa, opts: o}, nil
}
