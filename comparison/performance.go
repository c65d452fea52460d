package comparison

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// UnitPerformance is one ground truth unit's detection metrics, derived
// from its matched tested unit (all zero recall when unmatched).
type UnitPerformance struct {
	UnitID             string  `json:"unit_id"`
	Accuracy           float64 `json:"accuracy"`
	Recall             float64 `json:"recall"`
	Precision          float64 `json:"precision"`
	MissRate           float64 `json:"miss_rate"`
	FalseDiscoveryRate float64 `json:"false_discovery_rate"`
}

// Performance is the per-unit metric table of a comparison, one row per
// ground truth unit in the ground truth's unit order.
type Performance struct {
	Rows []UnitPerformance
}

// counts returns tp, fn, fp for one ground truth unit.
func (c *GroundTruthComparison) counts(i int) (tp, fn, fp int) {
	j := c.gtToTested[i]
	if j < 0 {
		return 0, c.gtCounts[i], 0
	}
	tp = c.matches[i][j]

	return tp, c.gtCounts[i] - tp, c.testedCounts[j] - tp
}

func metricsFromCounts(unitID string, tp, fn, fp int) UnitPerformance {
	p := UnitPerformance{UnitID: unitID}
	if tp+fn+fp > 0 {
		p.Accuracy = float64(tp) / float64(tp+fn+fp)
	}
	if tp+fn > 0 {
		p.Recall = float64(tp) / float64(tp+fn)
		p.MissRate = float64(fn) / float64(tp+fn)
	}
	if tp+fp > 0 {
		p.Precision = float64(tp) / float64(tp+fp)
		p.FalseDiscoveryRate = float64(fp) / float64(tp+fp)
	}

	return p
}

// Performance returns the per-unit metric table.
func (c *GroundTruthComparison) Performance() *Performance {
	rows := make([]UnitPerformance, len(c.gtUnits))
	for i, id := range c.gtUnits {
		tp, fn, fp := c.counts(i)
		rows[i] = metricsFromCounts(id, tp, fn, fp)
	}

	return &Performance{Rows: rows}
}

// PerformancePooledAverage averages every metric over the ground truth
// units.
func (c *GroundTruthComparison) PerformancePooledAverage() UnitPerformance {
	avg := UnitPerformance{UnitID: "average"}
	if len(c.gtUnits) == 0 {
		return avg
	}
	for i := range c.gtUnits {
		tp, fn, fp := c.counts(i)
		p := metricsFromCounts("", tp, fn, fp)
		avg.Accuracy += p.Accuracy
		avg.Recall += p.Recall
		avg.Precision += p.Precision
		avg.MissRate += p.MissRate
		avg.FalseDiscoveryRate += p.FalseDiscoveryRate
	}
	n := float64(len(c.gtUnits))
	avg.Accuracy /= n
	avg.Recall /= n
	avg.Precision /= n
	avg.MissRate /= n
	avg.FalseDiscoveryRate /= n

	return avg
}

// PerformancePooledSum pools the matched-event counts over all units
// before computing the metrics, weighting units by their spike counts.
func (c *GroundTruthComparison) PerformancePooledSum() UnitPerformance {
	var tp, fn, fp int
	for i := range c.gtUnits {
		utp, ufn, ufp := c.counts(i)
		tp += utp
		fn += ufn
		fp += ufp
	}

	return metricsFromCounts("pooled", tp, fn, fp)
}

// String renders the table with aligned columns.
func (p *Performance) String() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "unit_id\taccuracy\trecall\tprecision\tmiss_rate\tfalse_discovery_rate")
	for _, row := range p.Rows {
		fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\n",
			row.UnitID, row.Accuracy, row.Recall, row.Precision, row.MissRate, row.FalseDiscoveryRate)
	}
	w.Flush()

	return sb.String()
}

// WellDetectedUnits returns the ground truth units whose accuracy reaches
// the well-detected score.
func (c *GroundTruthComparison) WellDetectedUnits() []string {
	var units []string
	for i, id := range c.gtUnits {
		tp, fn, fp := c.counts(i)
		if metricsFromCounts(id, tp, fn, fp).Accuracy >= c.opts.WellDetectedScore {
			units = append(units, id)
		}
	}

	return units
}

// FalsePositiveUnits returns tested units whose agreement with every
// ground truth unit is below chance. Only meaningful when the ground
// truth is exhaustive.
func (c *GroundTruthComparison) FalsePositiveUnits() ([]string, error) {
	if !c.opts.ExhaustiveGT {
		return nil, fmt.Errorf("false positive units need an exhaustive ground truth")
	}

	var units []string
	for j, id := range c.testedUnits {
		if c.testedToGT[j] >= 0 {
			continue
		}
		if c.bestAgreementForTested(j) < c.opts.ChanceScore {
			units = append(units, id)
		}
	}

	return units, nil
}

// RedundantUnits returns unmatched tested units that still overlap some
// ground truth unit above chance: duplicates of a unit another tested
// unit already matched. Only meaningful when the ground truth is
// exhaustive.
func (c *GroundTruthComparison) RedundantUnits() ([]string, error) {
	if !c.opts.ExhaustiveGT {
		return nil, fmt.Errorf("redundant units need an exhaustive ground truth")
	}

	var units []string
	for j, id := range c.testedUnits {
		if c.testedToGT[j] >= 0 {
			continue
		}
		if c.bestAgreementForTested(j) >= c.opts.ChanceScore {
			units = append(units, id)
		}
	}

	return units, nil
}

// OvermergedUnits returns tested units overlapping more than one ground
// truth unit above chance.
func (c *GroundTruthComparison) OvermergedUnits() []string {
	var units []string
	for j, id := range c.testedUnits {
		aboveChance := 0
		for i := range c.gtUnits {
			if c.agreement[i][j] >= c.opts.ChanceScore {
				aboveChance++
			}
		}
		if aboveChance > 1 {
			units = append(units, id)
		}
	}

	return units
}

func (c *GroundTruthComparison) bestAgreementForTested(j int) float64 {
	best := 0.0
	for i := range c.gtUnits {
		if c.agreement[i][j] > best {
			best = c.agreement[i][j]
		}
	}

	return best
}
