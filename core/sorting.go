package core

import (
	"fmt"
	"slices"
)

// Sorting assigns discrete spike events to unit identities over time.
// Spike trains are sample indices into the paired recording's segments,
// sorted ascending.
type Sorting interface {
	// UnitIDs returns the unit identifiers, in unit-index order.
	UnitIDs() []string

	// NumSegments returns the number of segments.
	NumSegments() int

	// SamplingFrequency returns the sampling rate in Hz.
	SamplingFrequency() float64

	// SpikeTrain returns the sorted spike frames of one unit in one
	// segment. The returned slice must be treated as read-only.
	SpikeTrain(segment int, unitID string) ([]int64, error)
}

// ErrUnknownUnit indicates a unit ID not present in a sorting.
type ErrUnknownUnit struct {
	UnitID string
}

func (e *ErrUnknownUnit) Error() string {
	return fmt.Sprintf("unknown unit %q", e.UnitID)
}

// MemorySorting is an in-memory Sorting.
type MemorySorting struct {
	unitIDs   []string
	frequency float64
	// trains[segment][unitID] -> sorted spike frames
	trains []map[string][]int64
}

var _ Sorting = (*MemorySorting)(nil)

// NewMemorySorting creates a sorting from per-segment spike train maps.
// Unsorted trains are replaced by sorted copies; unit IDs keep the given order.
func NewMemorySorting(unitIDs []string, frequency float64, trains []map[string][]int64) (*MemorySorting, error) {
	if len(trains) == 0 {
		return nil, fmt.Errorf("sorting needs at least one segment")
	}
	for seg, m := range trains {
		for unit, train := range m {
			if !slices.Contains(unitIDs, unit) {
				return nil, fmt.Errorf("segment %d: train for unknown unit %q", seg, unit)
			}
			if !slices.IsSorted(train) {
				sorted := slices.Clone(train)
				slices.Sort(sorted)
				m[unit] = sorted
			}
		}
	}
	return &MemorySorting{unitIDs: unitIDs, frequency: frequency, trains: trains}, nil
}

func (s *MemorySorting) UnitIDs() []string { return s.unitIDs }

func (s *MemorySorting) NumSegments() int { return len(s.trains) }

func (s *MemorySorting) SamplingFrequency() float64 { return s.frequency }

func (s *MemorySorting) SpikeTrain(segment int, unitID string) ([]int64, error) {
	if segment < 0 || segment >= len(s.trains) {
		return nil, &ErrSegmentOutOfRange{Segment: segment, NumSegments: len(s.trains)}
	}
	if !slices.Contains(s.unitIDs, unitID) {
		return nil, &ErrUnknownUnit{UnitID: unitID}
	}
	return s.trains[segment][unitID], nil
}

// SelectUnits returns a new sorting reduced to the given units, keeping
// their relative order from the original unit list.
func (s *MemorySorting) SelectUnits(unitIDs []string) (*MemorySorting, error) {
	for _, id := range unitIDs {
		if !slices.Contains(s.unitIDs, id) {
			return nil, &ErrUnknownUnit{UnitID: id}
		}
	}
	kept := make([]string, 0, len(unitIDs))
	for _, id := range s.unitIDs {
		if slices.Contains(unitIDs, id) {
			kept = append(kept, id)
		}
	}
	trains := make([]map[string][]int64, len(s.trains))
	for seg, m := range s.trains {
		trains[seg] = make(map[string][]int64, len(kept))
		for _, id := range kept {
			if train, ok := m[id]; ok {
				trains[seg][id] = train
			}
		}
	}
	return NewMemorySorting(kept, s.frequency, trains)
}

// TotalSpikes counts all spikes of a sorting across segments and units.
func TotalSpikes(s Sorting) (int, error) {
	total := 0
	for seg := 0; seg < s.NumSegments(); seg++ {
		for _, unit := range s.UnitIDs() {
			train, err := s.SpikeTrain(seg, unit)
			if err != nil {
				return 0, err
			}
			total += len(train)
		}
	}
	return total, nil
}
