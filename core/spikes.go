package core

import (
	"cmp"
	"slices"
)

// Spike is one detected event in a SpikeVector.
type Spike struct {
	// Sample is the frame index of the spike peak within its segment.
	Sample int64
	// Segment is the segment index.
	Segment int32
	// Unit is the unit index into Sorting.UnitIDs().
	Unit int32
	// Channel is the channel index assigned to this spike, or -1 when no
	// extremum mapping was supplied.
	Channel int32
}

// SpikeVector is the flat, ordered view of a sorting: one entry per spike,
// sorted by (segment, sample, unit). It is built once and never mutated.
type SpikeVector []Spike

// NewSpikeVector flattens a sorting into a SpikeVector. extremumChannels
// maps unit index to the channel index carrying that unit's template peak;
// it may be nil, in which case every spike gets channel -1.
func NewSpikeVector(sorting Sorting, extremumChannels map[int]int) (SpikeVector, error) {
	var spikes SpikeVector
	for seg := 0; seg < sorting.NumSegments(); seg++ {
		for unitIndex, unitID := range sorting.UnitIDs() {
			train, err := sorting.SpikeTrain(seg, unitID)
			if err != nil {
				return nil, err
			}
			channel := int32(-1)
			if extremumChannels != nil {
				if ch, ok := extremumChannels[unitIndex]; ok {
					channel = int32(ch)
				}
			}
			for _, sample := range train {
				spikes = append(spikes, Spike{
					Sample:  sample,
					Segment: int32(seg),
					Unit:    int32(unitIndex),
					Channel: channel,
				})
			}
		}
	}
	slices.SortFunc(spikes, func(a, b Spike) int {
		if c := cmp.Compare(a.Segment, b.Segment); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Sample, b.Sample); c != 0 {
			return c
		}
		return cmp.Compare(a.Unit, b.Unit)
	})
	return spikes, nil
}

// SegmentRange returns the half-open index range [lo, hi) of spikes in the
// given segment. The vector is sorted by segment, so this is a binary
// search at both ends.
func (sv SpikeVector) SegmentRange(segment int) (lo, hi int) {
	bySegment := func(s Spike, seg int32) int {
		return cmp.Compare(s.Segment, seg)
	}
	lo, _ = slices.BinarySearchFunc(sv, int32(segment), bySegment)
	hi, _ = slices.BinarySearchFunc(sv, int32(segment)+1, bySegment)
	return lo, hi
}

// FrameRange returns the index range [lo, hi) of spikes in segment whose
// sample lies in [start, end).
func (sv SpikeVector) FrameRange(segment int, start, end int64) (lo, hi int) {
	segLo, segHi := sv.SegmentRange(segment)
	seg := sv[segLo:segHi]
	lo, _ = slices.BinarySearchFunc(seg, start, func(s Spike, frame int64) int {
		return cmp.Compare(s.Sample, frame)
	})
	hi, _ = slices.BinarySearchFunc(seg, end, func(s Spike, frame int64) int {
		return cmp.Compare(s.Sample, frame)
	})
	return segLo + lo, segLo + hi
}
