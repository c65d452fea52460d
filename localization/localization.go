// Package localization estimates the physical source position of spikes
// from their waveforms on nearby channels. Methods are strategies behind
// one interface, registered by name and validated eagerly: configuring an
// unknown method fails at construction, not at pipeline time.
package localization

import (
	"fmt"
	"sort"
	"sync"
)

// Method names a localization strategy.
type Method string

const (
	// CenterOfMass is the amplitude-weighted mean of channel positions.
	// Fast, 2D, biased toward the probe.
	CenterOfMass Method = "center_of_mass"
	// MonopolarTriangulation fits a monopolar current source to the
	// per-channel amplitudes. 3D plus a source amplitude term.
	MonopolarTriangulation Method = "monopolar_triangulation"
	// GridConvolution scores a dense candidate grid with gaussian
	// prototypes and averages the best-scoring nodes.
	GridConvolution Method = "grid_convolution"
)

// Location is one spike's estimated source position, in micrometers.
// Z and Alpha are only meaningful for methods that estimate them.
type Location struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
	// Alpha is the fitted source amplitude (monopolar triangulation) or
	// the best prototype score (grid convolution).
	Alpha float32 `json:"alpha"`
}

// Kwargs carries method-specific options, forwarded verbatim to the
// method factory. Factories reject unknown keys.
type Kwargs map[string]any

// Localizer estimates one location per spike snippet.
// Implementations must be safe for concurrent use.
type Localizer interface {
	// Name returns the method name.
	Name() Method

	// RadiusUm returns the channel neighborhood radius the method wants
	// around each spike's channel.
	RadiusUm() float64

	// Localize estimates the source location of one snippet.
	Localize(s *Snippet) (Location, error)
}

// Factory builds a configured Localizer from method kwargs.
type Factory func(kwargs Kwargs) (Localizer, error)

// ErrUnknownMethod is returned when a method name has no registered
// factory.
type ErrUnknownMethod struct {
	Method Method
	Known  []Method
}

func (e *ErrUnknownMethod) Error() string {
	return fmt.Sprintf("unknown localization method %q (known: %v)", e.Method, e.Known)
}

var (
	factoryMu sync.RWMutex
	factories = map[Method]Factory{}
)

// RegisterMethod registers a localization method factory.
//
// Method implementations call this from an init() function.
func RegisterMethod(method Method, factory Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[method] = factory
}

// Methods returns the registered method names, sorted.
func Methods() []Method {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	out := make([]Method, 0, len(factories))
	for m := range factories {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New validates method eagerly and builds its Localizer.
func New(method Method, kwargs Kwargs) (Localizer, error) {
	factoryMu.RLock()
	factory, ok := factories[method]
	factoryMu.RUnlock()
	if !ok {
		return nil, &ErrUnknownMethod{Method: method, Known: Methods()}
	}
	return factory(kwargs)
}

// floatKwarg pops key from kwargs as a float64, or returns def.
// Accepts ints for convenience when kwargs come from JSON-ish sources.
func floatKwarg(kwargs Kwargs, key string, def float64) (float64, error) {
	v, ok := kwargs[key]
	if !ok {
		return def, nil
	}
	delete(kwargs, key)
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("kwarg %q: want number, got %T", key, v)
	}
}

// stringKwarg pops key from kwargs as a string, or returns def.
func stringKwarg(kwargs Kwargs, key, def string) (string, error) {
	v, ok := kwargs[key]
	if !ok {
		return def, nil
	}
	delete(kwargs, key)
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("kwarg %q: want string, got %T", key, v)
	}
	return s, nil
}

// rejectUnknown fails on leftover kwargs after the factory popped its own.
func rejectUnknown(method Method, kwargs Kwargs) error {
	if len(kwargs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Errorf("method %q: unknown kwargs %v", method, keys)
}

// cloneKwargs copies kwargs so factories can pop keys without mutating
// the caller's map.
func cloneKwargs(kwargs Kwargs) Kwargs {
	out := make(Kwargs, len(kwargs))
	for k, v := range kwargs {
		out[k] = v
	}
	return out
}
