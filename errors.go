package spikego

import (
	"github.com/hupe1980/spikego/analyzer"
	"github.com/hupe1980/spikego/core"
	"github.com/hupe1980/spikego/localization"
)

// Typed errors from the subpackages, re-exported so callers matching with
// errors.As only need the root import.

// ErrMissingExtension indicates a dependency extension was not computed.
type ErrMissingExtension = analyzer.ErrMissingExtension

// ErrUnknownExtension indicates an unregistered extension name.
type ErrUnknownExtension = analyzer.ErrUnknownExtension

// ErrUnknownMethod indicates an unregistered localization method.
type ErrUnknownMethod = localization.ErrUnknownMethod

// ErrUnknownUnit indicates a unit ID absent from a sorting.
type ErrUnknownUnit = core.ErrUnknownUnit

// ErrSegmentOutOfRange indicates a segment index outside a recording or
// sorting.
type ErrSegmentOutOfRange = core.ErrSegmentOutOfRange

// ErrFrameOutOfRange indicates a frame range outside a segment.
type ErrFrameOutOfRange = core.ErrFrameOutOfRange
