// Package sorters provides built-in reference spike sorters behind a
// named registry: a per-channel threshold detector and a clustering
// sorter over peak amplitude features.
package sorters

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/spikego/core"
)

// Params carries sorter-specific options, forwarded verbatim to the
// sorter factory. Factories reject unknown keys.
type Params map[string]any

// Sorter detects and classifies spikes in a recording.
type Sorter interface {
	// Name returns the sorter's registry name.
	Name() string

	// Run sorts the recording and returns the detected units.
	Run(ctx context.Context, recording core.Recording) (*core.MemorySorting, error)
}

// Factory builds a configured Sorter from params.
type Factory func(params Params) (Sorter, error)

// ErrUnknownSorter is returned when a sorter name has no registered
// factory.
type ErrUnknownSorter struct {
	Name  string
	Known []string
}

func (e *ErrUnknownSorter) Error() string {
	return fmt.Sprintf("unknown sorter %q (known: %v)", e.Name, e.Known)
}

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a sorter factory.
//
// Sorter implementations call this from an init() function.
func Register(name string, factory Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[name] = factory
}

// Names returns the registered sorter names, sorted.
func Names() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New validates the sorter name eagerly and builds it with params.
func New(name string, params Params) (Sorter, error) {
	factoryMu.RLock()
	factory, ok := factories[name]
	factoryMu.RUnlock()
	if !ok {
		return nil, &ErrUnknownSorter{Name: name, Known: Names()}
	}
	return factory(params)
}

// Run builds the named sorter and sorts the recording with it.
func Run(ctx context.Context, name string, recording core.Recording, params Params) (*core.MemorySorting, error) {
	sorter, err := New(name, params)
	if err != nil {
		return nil, err
	}
	return sorter.Run(ctx, recording)
}

// floatParam pops key from params as a float64, or returns def.
func floatParam(params Params, key string, def float64) (float64, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	delete(params, key)
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("param %q: want number, got %T", key, v)
	}
}

// intParam pops key from params as an int, or returns def.
func intParam(params Params, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	delete(params, key)
	switch x := v.(type) {
	case int:
		return x, nil
	case float64:
		return int(x), nil
	default:
		return 0, fmt.Errorf("param %q: want integer, got %T", key, v)
	}
}

// rejectUnknown fails on leftover params after the factory popped its own.
func rejectUnknown(name string, params Params) error {
	if len(params) == 0 {
		return nil
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Errorf("sorter %q: unknown params %v", name, keys)
}

// cloneParams copies params so factories can pop keys without mutating
// the caller's map.
func cloneParams(params Params) Params {
	out := make(Params, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
