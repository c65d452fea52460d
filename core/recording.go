// Package core defines the extracellular data model: recordings, sortings,
// spike vectors and templates. Everything downstream (analyzer extensions,
// the node pipeline, comparisons) is built on these types.
package core

import (
	"fmt"
)

// Position is a channel location on the probe, in micrometers (x, y).
type Position [2]float32

// Recording is a continuous multi-channel voltage signal over one or more
// segments. Implementations must be safe for concurrent reads.
type Recording interface {
	// NumSegments returns the number of recording segments.
	NumSegments() int

	// NumChannels returns the number of channels. All segments share the
	// same channel set.
	NumChannels() int

	// NumSamples returns the number of frames in the given segment.
	NumSamples(segment int) (int64, error)

	// SamplingFrequency returns the sampling rate in Hz.
	SamplingFrequency() float64

	// ChannelIDs returns the channel identifiers, in channel-index order.
	ChannelIDs() []string

	// ChannelLocations returns the probe position of every channel, in
	// channel-index order.
	ChannelLocations() []Position

	// Traces returns frames [start, end) of the given segment as a
	// frames x channels matrix. The returned slices must be treated as
	// read-only.
	Traces(segment int, start, end int64) ([][]float32, error)
}

// ErrSegmentOutOfRange indicates a segment index outside a recording or
// sorting.
type ErrSegmentOutOfRange struct {
	Segment     int
	NumSegments int
}

func (e *ErrSegmentOutOfRange) Error() string {
	return fmt.Sprintf("segment %d out of range (have %d segments)", e.Segment, e.NumSegments)
}

// ErrFrameOutOfRange indicates a frame range outside a segment.
type ErrFrameOutOfRange struct {
	Start, End, NumSamples int64
}

func (e *ErrFrameOutOfRange) Error() string {
	return fmt.Sprintf("frame range [%d, %d) out of range (segment has %d samples)", e.Start, e.End, e.NumSamples)
}

// TracesRecording is an in-memory Recording backed by trace matrices, one
// frames x channels matrix per segment.
type TracesRecording struct {
	segments  [][][]float32 // per segment: frames x channels
	frequency float64
	ids       []string
	locations []Position
}

var _ Recording = (*TracesRecording)(nil)

// NewTracesRecording creates a recording from in-memory traces. Every
// segment must have the same channel count as there are channel IDs, and
// locations must have one position per channel.
func NewTracesRecording(segments [][][]float32, frequency float64, channelIDs []string, locations []Position) (*TracesRecording, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("recording needs at least one segment")
	}
	if len(locations) != len(channelIDs) {
		return nil, fmt.Errorf("got %d channel locations for %d channels", len(locations), len(channelIDs))
	}
	for seg, traces := range segments {
		for frame, row := range traces {
			if len(row) != len(channelIDs) {
				return nil, fmt.Errorf("segment %d frame %d: got %d channels, want %d", seg, frame, len(row), len(channelIDs))
			}
		}
	}
	return &TracesRecording{
		segments:  segments,
		frequency: frequency,
		ids:       channelIDs,
		locations: locations,
	}, nil
}

func (r *TracesRecording) NumSegments() int { return len(r.segments) }

func (r *TracesRecording) NumChannels() int { return len(r.ids) }

func (r *TracesRecording) NumSamples(segment int) (int64, error) {
	if segment < 0 || segment >= len(r.segments) {
		return 0, &ErrSegmentOutOfRange{Segment: segment, NumSegments: len(r.segments)}
	}
	return int64(len(r.segments[segment])), nil
}

func (r *TracesRecording) SamplingFrequency() float64 { return r.frequency }

func (r *TracesRecording) ChannelIDs() []string { return r.ids }

func (r *TracesRecording) ChannelLocations() []Position { return r.locations }

func (r *TracesRecording) Traces(segment int, start, end int64) ([][]float32, error) {
	if segment < 0 || segment >= len(r.segments) {
		return nil, &ErrSegmentOutOfRange{Segment: segment, NumSegments: len(r.segments)}
	}
	n := int64(len(r.segments[segment]))
	if start < 0 || end > n || start > end {
		return nil, &ErrFrameOutOfRange{Start: start, End: end, NumSamples: n}
	}
	return r.segments[segment][start:end], nil
}
