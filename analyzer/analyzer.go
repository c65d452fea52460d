// Package analyzer pairs one recording with one sorting and collects the
// results of named extension computations on them. Extensions are looked
// up in a registry, checked against their dependencies, run through the
// chunked job pipeline and stored on the analyzer under their name.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/spikego/core"
	"github.com/hupe1980/spikego/pipeline"
)

// SortingAnalyzer owns a Recording, a Sorting over it, and the computed
// extensions. It is safe for concurrent extension lookups; computing the
// same extension concurrently is not.
type SortingAnalyzer struct {
	recording core.Recording
	sorting   core.Sorting
	registry  *Registry
	logger    *slog.Logger

	mu         sync.RWMutex
	extensions map[string]Extension
}

// Option customizes a SortingAnalyzer.
type Option func(*SortingAnalyzer)

// WithRegistry overrides DefaultRegistry for this analyzer.
func WithRegistry(r *Registry) Option {
	return func(a *SortingAnalyzer) {
		a.registry = r
	}
}

// WithLogger sets the logger used by Compute. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(a *SortingAnalyzer) {
		a.logger = logger
	}
}

// New creates an analyzer over a recording and a sorting of it. The two
// must agree on segment count and sampling frequency.
func New(recording core.Recording, sorting core.Sorting, opts ...Option) (*SortingAnalyzer, error) {
	if recording == nil || sorting == nil {
		return nil, fmt.Errorf("analyzer needs a recording and a sorting")
	}
	if recording.NumSegments() != sorting.NumSegments() {
		return nil, fmt.Errorf("recording has %d segments, sorting has %d", recording.NumSegments(), sorting.NumSegments())
	}
	if recording.SamplingFrequency() != sorting.SamplingFrequency() {
		return nil, fmt.Errorf("sampling frequency mismatch: recording %g Hz, sorting %g Hz",
			recording.SamplingFrequency(), sorting.SamplingFrequency())
	}

	a := &SortingAnalyzer{
		recording:  recording,
		sorting:    sorting,
		registry:   DefaultRegistry,
		logger:     slog.Default(),
		extensions: map[string]Extension{},
	}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Recording returns the analyzed recording.
func (a *SortingAnalyzer) Recording() core.Recording { return a.recording }

// Sorting returns the analyzed sorting.
func (a *SortingAnalyzer) Sorting() core.Sorting { return a.sorting }

// Registry returns the registry this analyzer resolves extensions in.
func (a *SortingAnalyzer) Registry() *Registry { return a.registry }

// Logger returns the analyzer's logger.
func (a *SortingAnalyzer) Logger() *slog.Logger { return a.logger }

// UnitIDs returns the sorting's unit identifiers.
func (a *SortingAnalyzer) UnitIDs() []string { return a.sorting.UnitIDs() }

// Extension returns the computed extension stored under name.
func (a *SortingAnalyzer) Extension(name string) (Extension, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ext, ok := a.extensions[name]

	return ext, ok
}

// HasExtension reports whether an extension is stored under name.
func (a *SortingAnalyzer) HasExtension(name string) bool {
	_, ok := a.Extension(name)
	return ok
}

// ExtensionNames returns the stored extension names, sorted.
func (a *SortingAnalyzer) ExtensionNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, 0, len(a.extensions))
	for name := range a.extensions {
		out = append(out, name)
	}
	sort.Strings(out)

	return out
}

// SetExtension stores an extension under its name, replacing any previous
// result in that slot.
func (a *SortingAnalyzer) SetExtension(ext Extension) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.extensions[ext.Name()] = ext
}

// checkDependencies verifies every DependsOn entry resolves to a stored
// extension. An "a|b" alternation is satisfied by either name.
func (a *SortingAnalyzer) checkDependencies(ext Extension) error {
	for _, dep := range ext.DependsOn() {
		satisfied := false
		for _, alternative := range strings.Split(dep, "|") {
			if a.HasExtension(alternative) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return &ErrMissingExtension{Name: ext.Name(), Needs: dep}
		}
	}

	return nil
}

// Compute resolves name in the registry, configures the new instance with
// params (nil for defaults), runs it and stores the result on the
// analyzer. The stored extension is returned.
func (a *SortingAnalyzer) Compute(ctx context.Context, name string, params any, opts pipeline.Options) (Extension, error) {
	ext, err := a.registry.Create(name, a)
	if err != nil {
		return nil, err
	}
	if err := a.checkDependencies(ext); err != nil {
		return nil, err
	}
	if err := ext.SetParams(params); err != nil {
		return nil, fmt.Errorf("extension %q: %w", name, err)
	}

	a.logger.Info("computing extension", slog.String("extension", name))
	if err := ext.Run(ctx, opts); err != nil {
		return nil, fmt.Errorf("extension %q: %w", name, err)
	}
	a.SetExtension(ext)

	return ext, nil
}

// SelectUnits returns a new analyzer restricted to the given units, in
// the sorting's original unit order. Every stored extension is projected
// through its SelectUnits and installed on the new analyzer; the receiver
// is left untouched.
func (a *SortingAnalyzer) SelectUnits(unitIDs []string) (*SortingAnalyzer, error) {
	subSorting, err := subsetSorting(a.sorting, unitIDs)
	if err != nil {
		return nil, err
	}

	sub, err := New(a.recording, subSorting, WithRegistry(a.registry), WithLogger(a.logger))
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	for name, ext := range a.extensions {
		data, err := ext.SelectUnits(unitIDs)
		if err != nil {
			return nil, fmt.Errorf("extension %q: %w", name, err)
		}
		sub.SetExtension(&projectedExtension{
			name:    name,
			depends: ext.DependsOn(),
			params:  ext.Params(),
			data:    data,
		})
	}

	return sub, nil
}

// subsetSorting projects a sorting onto a unit subset, preserving the
// sorting's unit order.
func subsetSorting(s core.Sorting, unitIDs []string) (*core.MemorySorting, error) {
	if ms, ok := s.(*core.MemorySorting); ok {
		return ms.SelectUnits(unitIDs)
	}

	keep := make(map[string]bool, len(unitIDs))
	for _, id := range unitIDs {
		keep[id] = true
	}
	kept := make([]string, 0, len(unitIDs))
	for _, id := range s.UnitIDs() {
		if keep[id] {
			kept = append(kept, id)
			delete(keep, id)
		}
	}
	for id := range keep {
		return nil, &core.ErrUnknownUnit{UnitID: id}
	}

	trains := make([]map[string][]int64, s.NumSegments())
	for segment := range trains {
		trains[segment] = make(map[string][]int64, len(kept))
		for _, id := range kept {
			train, err := s.SpikeTrain(segment, id)
			if err != nil {
				return nil, err
			}
			trains[segment][id] = train
		}
	}

	return core.NewMemorySorting(kept, s.SamplingFrequency(), trains)
}

// projectedExtension holds data sliced out of a computed extension by
// SelectUnits. It cannot run: the subset analyzer has no way to rebuild
// the original computation's inputs.
type projectedExtension struct {
	name    string
	depends []string
	params  any
	data    map[string]any
}

var _ Extension = (*projectedExtension)(nil)

func (e *projectedExtension) Name() string        { return e.name }
func (e *projectedExtension) DependsOn() []string { return e.depends }
func (e *projectedExtension) Params() any         { return e.params }

func (e *projectedExtension) Data() map[string]any { return e.data }

func (e *projectedExtension) SetParams(any) error {
	return fmt.Errorf("extension %q holds projected data; set params on the source analyzer", e.name)
}

func (e *projectedExtension) Run(context.Context, pipeline.Options) error {
	return fmt.Errorf("extension %q holds projected data; recompute on the source analyzer", e.name)
}

func (e *projectedExtension) SelectUnits([]string) (map[string]any, error) {
	return nil, fmt.Errorf("extension %q holds projected data; select units on the source analyzer", e.name)
}
