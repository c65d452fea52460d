package extractors

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/hupe1980/spikego/core"
	"github.com/hupe1980/spikego/internal/mmap"
)

// BinaryRecording reads raw float32 little-endian traces from one
// memory-mapped file per segment, frames interleaved by channel. Safe for
// concurrent reads; Close unmaps the files.
type BinaryRecording struct {
	mappings   []*mmap.Mapping
	numSamples []int64
	channels   int
	frequency  float64
	ids        []string
	locations  []core.Position
}

var _ core.Recording = (*BinaryRecording)(nil)

// OpenBinary maps one raw trace file per segment. Every file's size must
// be a whole number of frames for the given channel count.
func OpenBinary(paths []string, frequency float64, channelIDs []string, locations []core.Position) (*BinaryRecording, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("recording needs at least one segment file")
	}
	if len(locations) != len(channelIDs) {
		return nil, fmt.Errorf("got %d channel locations for %d channels", len(locations), len(channelIDs))
	}

	channels := len(channelIDs)
	frameBytes := int64(channels) * 4
	r := &BinaryRecording{
		channels:  channels,
		frequency: frequency,
		ids:       channelIDs,
		locations: locations,
	}
	for _, path := range paths {
		m, err := mmap.Open(path)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("map %s: %w", path, err)
		}
		if m.Size()%frameBytes != 0 {
			m.Close()
			r.Close()
			return nil, fmt.Errorf("%s: %d bytes is not a whole number of %d-channel frames", path, m.Size(), channels)
		}
		r.mappings = append(r.mappings, m)
		r.numSamples = append(r.numSamples, m.Size()/frameBytes)
	}

	return r, nil
}

// Close unmaps all segment files.
func (r *BinaryRecording) Close() error {
	var firstErr error
	for _, m := range r.mappings {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (r *BinaryRecording) NumSegments() int { return len(r.mappings) }

func (r *BinaryRecording) NumChannels() int { return r.channels }

func (r *BinaryRecording) NumSamples(segment int) (int64, error) {
	if segment < 0 || segment >= len(r.mappings) {
		return 0, &core.ErrSegmentOutOfRange{Segment: segment, NumSegments: len(r.mappings)}
	}

	return r.numSamples[segment], nil
}

func (r *BinaryRecording) SamplingFrequency() float64 { return r.frequency }

func (r *BinaryRecording) ChannelIDs() []string { return r.ids }

func (r *BinaryRecording) ChannelLocations() []core.Position { return r.locations }

func (r *BinaryRecording) Traces(segment int, start, end int64) ([][]float32, error) {
	if segment < 0 || segment >= len(r.mappings) {
		return nil, &core.ErrSegmentOutOfRange{Segment: segment, NumSegments: len(r.mappings)}
	}
	n := r.numSamples[segment]
	if start < 0 || end > n || start > end {
		return nil, &core.ErrFrameOutOfRange{Start: start, End: end, NumSamples: n}
	}

	data := r.mappings[segment].Bytes()
	frames := int(end - start)
	out := make([][]float32, frames)
	offset := start * int64(r.channels) * 4
	for f := 0; f < frames; f++ {
		row := make([]float32, r.channels)
		for c := range row {
			bits := binary.LittleEndian.Uint32(data[offset : offset+4])
			row[c] = math.Float32frombits(bits)
			offset += 4
		}
		out[f] = row
	}

	return out, nil
}

// WriteBinary writes one segment's frames x channels matrix in the raw
// format OpenBinary reads.
func WriteBinary(path string, traces [][]float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	var buf [4]byte
	for _, row := range traces {
		for _, v := range row {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			if _, err := w.Write(buf[:]); err != nil {
				f.Close()
				return err
			}
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
