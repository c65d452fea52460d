package sorters

import (
	"context"
	"fmt"
	"math"

	"github.com/hupe1980/spikego/core"
)

// ThresholdName is the registry name of the threshold sorter.
const ThresholdName = "threshold"

func init() {
	Register(ThresholdName, newThreshold)
}

// threshold is the simplest possible sorter: every channel with negative
// threshold crossings becomes one unit. It never splits two neurons
// sharing an extremum channel, and duplicates neurons visible on several
// channels.
//
// Params: detect_threshold (MADs, default 5), min_gap_ms (default 1).
type threshold struct {
	thresholdMads float64
	minGapMs      float64
}

var _ Sorter = (*threshold)(nil)

func newThreshold(params Params) (Sorter, error) {
	params = cloneParams(params)
	mads, err := floatParam(params, "detect_threshold", 5)
	if err != nil {
		return nil, err
	}
	minGap, err := floatParam(params, "min_gap_ms", 1)
	if err != nil {
		return nil, err
	}
	if err := rejectUnknown(ThresholdName, params); err != nil {
		return nil, err
	}
	if mads <= 0 || minGap <= 0 {
		return nil, fmt.Errorf("sorter %q: detect_threshold and min_gap_ms must be positive", ThresholdName)
	}
	return &threshold{thresholdMads: mads, minGapMs: minGap}, nil
}

func (s *threshold) Name() string { return ThresholdName }

func (s *threshold) Run(ctx context.Context, recording core.Recording) (*core.MemorySorting, error) {
	minGap := int64(math.Ceil(s.minGapMs * recording.SamplingFrequency() / 1000))

	perChannel := make([]map[int][]int64, recording.NumChannels())
	for channel := range perChannel {
		perChannel[channel] = map[int][]int64{}
	}
	for segment := 0; segment < recording.NumSegments(); segment++ {
		peaks, err := detectSegment(ctx, recording, segment, s.thresholdMads, minGap)
		if err != nil {
			return nil, err
		}
		for _, p := range peaks {
			perChannel[p.channel][segment] = append(perChannel[p.channel][segment], p.sample)
		}
	}

	// Channels with detections become units, in channel order.
	var unitIDs []string
	trains := make([]map[string][]int64, recording.NumSegments())
	for segment := range trains {
		trains[segment] = map[string][]int64{}
	}
	for channel, bySegment := range perChannel {
		total := 0
		for _, train := range bySegment {
			total += len(train)
		}
		if total == 0 {
			continue
		}
		unitID := fmt.Sprintf("%d", channel)
		unitIDs = append(unitIDs, unitID)
		for segment := range trains {
			trains[segment][unitID] = bySegment[segment]
		}
	}

	return core.NewMemorySorting(unitIDs, recording.SamplingFrequency(), trains)
}
