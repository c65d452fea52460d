package analyzer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/spikego/codec"
	"github.com/hupe1980/spikego/pipeline"
)

// Extension is one named computation attached to a SortingAnalyzer. An
// instance belongs to exactly one analyzer; its lifecycle is construct,
// SetParams, Run, then read-only access to Data.
//
// A single instance is not safe for concurrent Run calls. Extensions on
// different analyzers are fully independent.
type Extension interface {
	// Name returns the slot name the extension is stored under.
	Name() string

	// DependsOn lists extensions that must be computed before this one.
	// An entry may be an alternation like "fast_templates|templates":
	// any one of the alternatives satisfies it.
	DependsOn() []string

	// SetParams configures the run. A nil params value selects the
	// extension's defaults. Implementations validate eagerly and reject
	// values of the wrong type.
	SetParams(params any) error

	// Params returns the effective parameters after SetParams.
	Params() any

	// Data returns the computed outputs by field name. Empty before Run.
	Data() map[string]any

	// Run computes the extension's data.
	Run(ctx context.Context, opts pipeline.Options) error

	// SelectUnits projects the computed data onto a unit subset. It is a
	// pure function of the stored data: no recompute, no mutation of the
	// receiver. The subset keeps the original unit order.
	SelectUnits(unitIDs []string) (map[string]any, error)
}

// Factory builds an unconfigured extension bound to an analyzer.
type Factory func(a *SortingAnalyzer) (Extension, error)

// Registry maps extension names to factories. One name, one
// implementation: a duplicate Register is an error, not an override.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("extension %q: nil factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[name]; ok {
		return &ErrDuplicateExtension{Name: name}
	}
	r.factories[name] = factory

	return nil
}

// Names returns the registered extension names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)

	return out
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]

	return factory, ok
}

// Create builds an extension instance bound to the given analyzer.
func (r *Registry) Create(name string, a *SortingAnalyzer) (Extension, error) {
	factory, ok := r.Lookup(name)
	if !ok {
		return nil, &ErrUnknownExtension{Name: name, Known: r.Names()}
	}

	return factory(a)
}

// DefaultRegistry is the registry extension packages register into from
// their init functions. Analyzers use it unless WithRegistry overrides.
var DefaultRegistry = NewRegistry()

// MustRegister registers into DefaultRegistry and panics on error. For
// init-time registration, where a duplicate name is a programming bug.
func MustRegister(name string, factory Factory) {
	if err := DefaultRegistry.Register(name, factory); err != nil {
		panic(err)
	}
}

// DecodeParams converts a loosely typed params value (for example the
// map produced by JSON decoding, or the typed struct itself) into the
// extension's params type via a codec round trip.
func DecodeParams[T any](params any) (T, error) {
	var out T

	if params == nil {
		return out, nil
	}
	if typed, ok := params.(T); ok {
		return typed, nil
	}

	raw, err := codec.Default.Marshal(params)
	if err != nil {
		return out, fmt.Errorf("encode params: %w", err)
	}
	if err := codec.Default.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode params: %w", err)
	}

	return out, nil
}
