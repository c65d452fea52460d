package sorters

import (
	"context"
	"fmt"
	"math"

	"github.com/hupe1980/spikego/core"
	"github.com/hupe1980/spikego/internal/kmeans"
)

// KPeaksName is the registry name of the kpeaks sorter.
const KPeaksName = "kpeaks"

func init() {
	Register(KPeaksName, newKPeaks)
}

// kpeaks detects peaks on all channels, deduplicates them across
// channels, and clusters the surviving events by their per-channel
// amplitude vector with k-means. One cluster, one unit.
//
// Params: detect_threshold (MADs, default 5), min_gap_ms (default 1),
// num_units (default 0: one per channel), max_iter (default 50),
// seed (default 4711).
type kpeaks struct {
	thresholdMads float64
	minGapMs      float64
	numUnits      int
	maxIter       int
	seed          int
}

var _ Sorter = (*kpeaks)(nil)

func newKPeaks(params Params) (Sorter, error) {
	params = cloneParams(params)
	mads, err := floatParam(params, "detect_threshold", 5)
	if err != nil {
		return nil, err
	}
	minGap, err := floatParam(params, "min_gap_ms", 1)
	if err != nil {
		return nil, err
	}
	numUnits, err := intParam(params, "num_units", 0)
	if err != nil {
		return nil, err
	}
	maxIter, err := intParam(params, "max_iter", 50)
	if err != nil {
		return nil, err
	}
	seed, err := intParam(params, "seed", 4711)
	if err != nil {
		return nil, err
	}
	if err := rejectUnknown(KPeaksName, params); err != nil {
		return nil, err
	}
	if mads <= 0 || minGap <= 0 || numUnits < 0 || maxIter <= 0 {
		return nil, fmt.Errorf("sorter %q: invalid params", KPeaksName)
	}
	return &kpeaks{
		thresholdMads: mads,
		minGapMs:      minGap,
		numUnits:      numUnits,
		maxIter:       maxIter,
		seed:          seed,
	}, nil
}

func (s *kpeaks) Name() string { return KPeaksName }

func (s *kpeaks) Run(ctx context.Context, recording core.Recording) (*core.MemorySorting, error) {
	minGap := int64(math.Ceil(s.minGapMs * recording.SamplingFrequency() / 1000))
	channels := recording.NumChannels()
	k := s.numUnits
	if k == 0 {
		k = channels
	}

	// Detect and dedupe per segment, then build one amplitude feature
	// vector per event from the traces at the peak frame.
	type event struct {
		segment int
		sample  int64
	}
	var events []event
	var features []float32
	for segment := 0; segment < recording.NumSegments(); segment++ {
		peaks, err := detectSegment(ctx, recording, segment, s.thresholdMads, minGap)
		if err != nil {
			return nil, err
		}
		peaks = dedupe(peaks, minGap)
		for _, p := range peaks {
			row, err := recording.Traces(segment, p.sample, p.sample+1)
			if err != nil {
				return nil, err
			}
			events = append(events, event{segment: segment, sample: p.sample})
			features = append(features, row[0]...)
		}
	}
	if len(events) < k {
		return nil, fmt.Errorf("sorter %q: %d events for %d clusters", KPeaksName, len(events), k)
	}

	_, assignments, err := kmeans.Train(ctx, features, channels, k, s.maxIter, int64(s.seed))
	if err != nil {
		return nil, err
	}

	unitIDs := make([]string, k)
	for u := range unitIDs {
		unitIDs[u] = fmt.Sprintf("%d", u)
	}
	trains := make([]map[string][]int64, recording.NumSegments())
	for segment := range trains {
		trains[segment] = map[string][]int64{}
	}
	for i, ev := range events {
		unitID := unitIDs[assignments[i]]
		trains[ev.segment][unitID] = append(trains[ev.segment][unitID], ev.sample)
	}

	return core.NewMemorySorting(unitIDs, recording.SamplingFrequency(), trains)
}
