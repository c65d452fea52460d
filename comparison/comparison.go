// Package comparison scores a spike sorter's output against a ground
// truth sorting: spike trains are matched event by event within a time
// tolerance, units are paired by mutual best agreement, and per-unit
// performance metrics are derived from the matched counts.
package comparison

import (
	"fmt"
	"math"

	"github.com/hupe1980/spikego/core"
)

// Options configure a ground-truth comparison.
type Options struct {
	// DeltaTime is the matching tolerance in milliseconds: two events
	// match when their samples are at most this far apart.
	DeltaTime float64
	// MatchScore is the minimum agreement for pairing two units.
	MatchScore float64
	// ChanceScore is the agreement above which overlap is considered
	// better than chance.
	ChanceScore float64
	// WellDetectedScore is the minimum accuracy of a well-detected unit.
	WellDetectedScore float64
	// ExhaustiveGT declares the ground truth complete: every real unit is
	// in it. Required by the false-positive and redundant unit queries.
	ExhaustiveGT bool
}

// DefaultOptions returns the comparison defaults.
func DefaultOptions() Options {
	return Options{
		DeltaTime:         0.4,
		MatchScore:        0.5,
		ChanceScore:       0.1,
		WellDetectedScore: 0.95,
	}
}

// Option overrides one comparison default.
type Option func(*Options)

// WithDeltaTime sets the event matching tolerance in milliseconds.
func WithDeltaTime(ms float64) Option {
	return func(o *Options) { o.DeltaTime = ms }
}

// WithMatchScore sets the minimum agreement for unit pairing.
func WithMatchScore(score float64) Option {
	return func(o *Options) { o.MatchScore = score }
}

// WithChanceScore sets the above-chance agreement threshold.
func WithChanceScore(score float64) Option {
	return func(o *Options) { o.ChanceScore = score }
}

// WithWellDetectedScore sets the well-detected accuracy threshold.
func WithWellDetectedScore(score float64) Option {
	return func(o *Options) { o.WellDetectedScore = score }
}

// WithExhaustiveGT declares the ground truth exhaustive.
func WithExhaustiveGT(exhaustive bool) Option {
	return func(o *Options) { o.ExhaustiveGT = exhaustive }
}

// GroundTruthComparison holds the matched-event counts and the unit
// pairing between a ground truth sorting and a tested one. It is
// immutable after construction.
type GroundTruthComparison struct {
	gt     core.Sorting
	tested core.Sorting
	opts   Options

	gtUnits     []string
	testedUnits []string

	gtCounts     []int   // events per gt unit
	testedCounts []int   // events per tested unit
	matches      [][]int // gt x tested matched events
	agreement    [][]float64

	// pairing: gt index -> tested index, -1 when unmatched, and back.
	gtToTested []int
	testedToGT []int
}

// CompareSorterToGroundTruth matches the tested sorting against the
// ground truth. The two sortings must share segment count and sampling
// frequency.
func CompareSorterToGroundTruth(gt, tested core.Sorting, opts ...Option) (*GroundTruthComparison, error) {
	if gt.NumSegments() != tested.NumSegments() {
		return nil, fmt.Errorf("ground truth has %d segments, tested has %d", gt.NumSegments(), tested.NumSegments())
	}
	if gt.SamplingFrequency() != tested.SamplingFrequency() {
		return nil, fmt.Errorf("sampling frequency mismatch: ground truth %g Hz, tested %g Hz",
			gt.SamplingFrequency(), tested.SamplingFrequency())
	}

	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.DeltaTime <= 0 {
		return nil, fmt.Errorf("delta time must be positive, got %g", o.DeltaTime)
	}

	c := &GroundTruthComparison{
		gt:          gt,
		tested:      tested,
		opts:        o,
		gtUnits:     gt.UnitIDs(),
		testedUnits: tested.UnitIDs(),
	}
	delta := int64(math.Round(o.DeltaTime * gt.SamplingFrequency() / 1000))
	if err := c.countMatches(delta); err != nil {
		return nil, err
	}
	c.pairUnits()

	return c, nil
}

// countMatches fills the per-unit event counts, the pairwise matched
// event counts and the agreement scores.
func (c *GroundTruthComparison) countMatches(delta int64) error {
	numSegments := c.gt.NumSegments()

	gtTrains := make([][][]int64, len(c.gtUnits))
	c.gtCounts = make([]int, len(c.gtUnits))
	for i, id := range c.gtUnits {
		gtTrains[i] = make([][]int64, numSegments)
		for segment := 0; segment < numSegments; segment++ {
			train, err := c.gt.SpikeTrain(segment, id)
			if err != nil {
				return err
			}
			gtTrains[i][segment] = train
			c.gtCounts[i] += len(train)
		}
	}

	testedTrains := make([][][]int64, len(c.testedUnits))
	c.testedCounts = make([]int, len(c.testedUnits))
	for j, id := range c.testedUnits {
		testedTrains[j] = make([][]int64, numSegments)
		for segment := 0; segment < numSegments; segment++ {
			train, err := c.tested.SpikeTrain(segment, id)
			if err != nil {
				return err
			}
			testedTrains[j][segment] = train
			c.testedCounts[j] += len(train)
		}
	}

	c.matches = make([][]int, len(c.gtUnits))
	c.agreement = make([][]float64, len(c.gtUnits))
	for i := range c.gtUnits {
		c.matches[i] = make([]int, len(c.testedUnits))
		c.agreement[i] = make([]float64, len(c.testedUnits))
		for j := range c.testedUnits {
			m := 0
			for segment := 0; segment < numSegments; segment++ {
				m += matchEvents(gtTrains[i][segment], testedTrains[j][segment], delta)
			}
			c.matches[i][j] = m
			if union := c.gtCounts[i] + c.testedCounts[j] - m; union > 0 {
				c.agreement[i][j] = float64(m) / float64(union)
			}
		}
	}

	return nil
}

// matchEvents counts events of two sorted trains within delta samples of
// each other, each event matched at most once.
func matchEvents(a, b []int64, delta int64) int {
	matches, i, j := 0, 0, 0
	for i < len(a) && j < len(b) {
		d := a[i] - b[j]
		switch {
		case d > delta:
			j++
		case d < -delta:
			i++
		default:
			matches++
			i++
			j++
		}
	}

	return matches
}

// pairUnits matches units greedily by descending agreement: the best
// remaining (gt, tested) pair is paired as long as its agreement reaches
// the match score. Every pairing is mutual best among unpaired units.
func (c *GroundTruthComparison) pairUnits() {
	c.gtToTested = make([]int, len(c.gtUnits))
	c.testedToGT = make([]int, len(c.testedUnits))
	for i := range c.gtToTested {
		c.gtToTested[i] = -1
	}
	for j := range c.testedToGT {
		c.testedToGT[j] = -1
	}

	for {
		best, bi, bj := 0.0, -1, -1
		for i := range c.gtUnits {
			if c.gtToTested[i] >= 0 {
				continue
			}
			for j := range c.testedUnits {
				if c.testedToGT[j] >= 0 {
					continue
				}
				if c.agreement[i][j] > best {
					best, bi, bj = c.agreement[i][j], i, j
				}
			}
		}
		if bi < 0 || best < c.opts.MatchScore {
			return
		}
		c.gtToTested[bi] = bj
		c.testedToGT[bj] = bi
	}
}

// Options returns the comparison's effective options.
func (c *GroundTruthComparison) Options() Options { return c.opts }

// GroundTruthUnits returns the ground truth unit IDs.
func (c *GroundTruthComparison) GroundTruthUnits() []string { return c.gtUnits }

// TestedUnits returns the tested sorting's unit IDs.
func (c *GroundTruthComparison) TestedUnits() []string { return c.testedUnits }

// MatchedUnit returns the tested unit paired with a ground truth unit,
// or false when the unit is unmatched or unknown.
func (c *GroundTruthComparison) MatchedUnit(gtUnitID string) (string, bool) {
	for i, id := range c.gtUnits {
		if id == gtUnitID && c.gtToTested[i] >= 0 {
			return c.testedUnits[c.gtToTested[i]], true
		}
	}

	return "", false
}

// Agreement returns the agreement score of a (ground truth, tested) unit
// pair.
func (c *GroundTruthComparison) Agreement(gtUnitID, testedUnitID string) (float64, error) {
	i := indexOf(c.gtUnits, gtUnitID)
	if i < 0 {
		return 0, &core.ErrUnknownUnit{UnitID: gtUnitID}
	}
	j := indexOf(c.testedUnits, testedUnitID)
	if j < 0 {
		return 0, &core.ErrUnknownUnit{UnitID: testedUnitID}
	}

	return c.agreement[i][j], nil
}

// AgreementMatrix returns agreement scores, ground truth units as rows.
// When ordered, the tested columns are permuted so matched pairs sit on
// the diagonal; unmatched tested units follow in their original order.
// The returned column order is the second value.
func (c *GroundTruthComparison) AgreementMatrix(ordered bool) ([][]float64, []string) {
	columns := make([]int, 0, len(c.testedUnits))
	if ordered {
		used := make([]bool, len(c.testedUnits))
		for i := range c.gtUnits {
			if j := c.gtToTested[i]; j >= 0 {
				columns = append(columns, j)
				used[j] = true
			}
		}
		for j := range c.testedUnits {
			if !used[j] {
				columns = append(columns, j)
			}
		}
	} else {
		for j := range c.testedUnits {
			columns = append(columns, j)
		}
	}

	matrix := make([][]float64, len(c.gtUnits))
	names := make([]string, len(columns))
	for k, j := range columns {
		names[k] = c.testedUnits[j]
	}
	for i := range c.gtUnits {
		matrix[i] = make([]float64, len(columns))
		for k, j := range columns {
			matrix[i][k] = c.agreement[i][j]
		}
	}

	return matrix, names
}

// ConfusionMatrix returns matched-event counts with tested columns in
// diagonal order, plus a trailing FN column (ground truth events matched
// to no tested unit) and a trailing FP row (tested events matched to no
// ground truth unit). Row order is the ground truth units; the column
// order is the second value.
func (c *GroundTruthComparison) ConfusionMatrix() ([][]int, []string) {
	_, names := c.AgreementMatrix(true)
	columns := make([]int, len(names))
	for k, name := range names {
		columns[k] = indexOf(c.testedUnits, name)
	}

	matrix := make([][]int, len(c.gtUnits)+1)
	for i := range c.gtUnits {
		matrix[i] = make([]int, len(columns)+1)
		for k, j := range columns {
			matrix[i][k] = c.matches[i][j]
		}
		fn := c.gtCounts[i]
		if j := c.gtToTested[i]; j >= 0 {
			fn -= c.matches[i][j]
		}
		matrix[i][len(columns)] = fn
	}

	fpRow := make([]int, len(columns)+1)
	for k, j := range columns {
		fp := c.testedCounts[j]
		if i := c.testedToGT[j]; i >= 0 {
			fp -= c.matches[i][j]
		}
		fpRow[k] = fp
	}
	matrix[len(c.gtUnits)] = fpRow

	return matrix, names
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}

	return -1
}
