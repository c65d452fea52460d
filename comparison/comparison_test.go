package comparison

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/spikego/core"
	"github.com/hupe1980/spikego/testutil"
)

const testFrequency = 10000 // default delta of 0.4 ms is 4 samples

func sortingFrom(t *testing.T, unitIDs []string, trains map[string][]int64) *core.MemorySorting {
	t.Helper()

	s, err := core.NewMemorySorting(unitIDs, testFrequency, []map[string][]int64{trains})
	require.NoError(t, err)
	return s
}

// spacedTrain returns n events spaced far enough apart that no event can
// match a neighbor's counterpart.
func spacedTrain(n int, start, step int64) []int64 {
	train := make([]int64, n)
	for i := range train {
		train[i] = start + int64(i)*step
	}
	return train
}

func TestCompareValidation(t *testing.T) {
	gt := sortingFrom(t, []string{"g"}, map[string][]int64{"g": {100}})

	t.Run("segment mismatch", func(t *testing.T) {
		tested, err := core.NewMemorySorting([]string{"t"}, testFrequency, []map[string][]int64{{}, {}})
		require.NoError(t, err)

		_, err = CompareSorterToGroundTruth(gt, tested)
		require.Error(t, err)
	})

	t.Run("frequency mismatch", func(t *testing.T) {
		tested, err := core.NewMemorySorting([]string{"t"}, 20000, []map[string][]int64{{}})
		require.NoError(t, err)

		_, err = CompareSorterToGroundTruth(gt, tested)
		require.Error(t, err)
	})

	t.Run("non-positive delta", func(t *testing.T) {
		tested := sortingFrom(t, []string{"t"}, map[string][]int64{"t": {100}})
		_, err := CompareSorterToGroundTruth(gt, tested, WithDeltaTime(0))
		require.Error(t, err)
	})
}

func TestPerfectMatch(t *testing.T) {
	trainA := spacedTrain(20, 100, 50)
	trainB := spacedTrain(30, 120, 50)

	gt := sortingFrom(t, []string{"g0", "g1"}, map[string][]int64{"g0": trainA, "g1": trainB})
	tested := sortingFrom(t, []string{"t0", "t1"}, map[string][]int64{"t0": trainA, "t1": trainB})

	c, err := CompareSorterToGroundTruth(gt, tested)
	require.NoError(t, err)

	t.Run("units pair up", func(t *testing.T) {
		matched, ok := c.MatchedUnit("g0")
		require.True(t, ok)
		assert.Equal(t, "t0", matched)

		matched, ok = c.MatchedUnit("g1")
		require.True(t, ok)
		assert.Equal(t, "t1", matched)
	})

	t.Run("agreement is one", func(t *testing.T) {
		a, err := c.Agreement("g0", "t0")
		require.NoError(t, err)
		assert.Equal(t, 1.0, a)

		a, err = c.Agreement("g0", "t1")
		require.NoError(t, err)
		assert.Less(t, a, 0.1)
	})

	t.Run("perfect metrics", func(t *testing.T) {
		perf := c.Performance()
		require.Len(t, perf.Rows, 2)
		for _, row := range perf.Rows {
			assert.Equal(t, 1.0, row.Accuracy)
			assert.Equal(t, 1.0, row.Recall)
			assert.Equal(t, 1.0, row.Precision)
			assert.Zero(t, row.MissRate)
			assert.Zero(t, row.FalseDiscoveryRate)
		}
		assert.Equal(t, []string{"g0", "g1"}, c.WellDetectedUnits())
	})

	t.Run("table renders every unit", func(t *testing.T) {
		table := c.Performance().String()
		assert.Contains(t, table, "unit_id")
		assert.Contains(t, table, "accuracy")
		assert.Contains(t, table, "g0")
		assert.Contains(t, table, "g1")
	})
}

func TestJitterWithinDelta(t *testing.T) {
	train := spacedTrain(50, 100, 50)
	rng := testutil.NewRNG(1)

	gt := sortingFrom(t, []string{"g"}, map[string][]int64{"g": train})
	tested := sortingFrom(t, []string{"t"}, map[string][]int64{"t": rng.Jitter(train, 3)})

	c, err := CompareSorterToGroundTruth(gt, tested)
	require.NoError(t, err)

	a, err := c.Agreement("g", "t")
	require.NoError(t, err)
	assert.Equal(t, 1.0, a)
}

func TestMissedAndExtraEvents(t *testing.T) {
	train := spacedTrain(10, 100, 50)

	t.Run("missed events cost recall", func(t *testing.T) {
		gt := sortingFrom(t, []string{"g"}, map[string][]int64{"g": train})
		tested := sortingFrom(t, []string{"t"}, map[string][]int64{"t": train[:8]})

		c, err := CompareSorterToGroundTruth(gt, tested)
		require.NoError(t, err)

		perf := c.Performance()
		require.Len(t, perf.Rows, 1)
		row := perf.Rows[0]
		assert.InDelta(t, 0.8, row.Recall, 1e-9)
		assert.Equal(t, 1.0, row.Precision)
		assert.InDelta(t, 0.8, row.Accuracy, 1e-9)
		assert.InDelta(t, 0.2, row.MissRate, 1e-9)
		assert.Zero(t, row.FalseDiscoveryRate)
	})

	t.Run("extra events cost precision", func(t *testing.T) {
		extra := append(append([]int64{}, train...), 5000, 5050)
		gt := sortingFrom(t, []string{"g"}, map[string][]int64{"g": train})
		tested := sortingFrom(t, []string{"t"}, map[string][]int64{"t": extra})

		c, err := CompareSorterToGroundTruth(gt, tested)
		require.NoError(t, err)

		row := c.Performance().Rows[0]
		assert.Equal(t, 1.0, row.Recall)
		assert.InDelta(t, 10.0/12.0, row.Precision, 1e-9)
		assert.InDelta(t, 2.0/12.0, row.FalseDiscoveryRate, 1e-9)
	})

	t.Run("each event matches at most once", func(t *testing.T) {
		gt := sortingFrom(t, []string{"g"}, map[string][]int64{"g": {100}})
		tested := sortingFrom(t, []string{"t"}, map[string][]int64{"t": {99, 101}})

		c, err := CompareSorterToGroundTruth(gt, tested)
		require.NoError(t, err)

		row := c.Performance().Rows[0]
		assert.Equal(t, 1.0, row.Recall)
		assert.InDelta(t, 0.5, row.Precision, 1e-9)
	})
}

func TestUnmatchedGroundTruthUnit(t *testing.T) {
	trainA := spacedTrain(20, 100, 50)
	trainB := spacedTrain(20, 120, 50)

	gt := sortingFrom(t, []string{"g0", "g1"}, map[string][]int64{"g0": trainA, "g1": trainB})
	tested := sortingFrom(t, []string{"t0"}, map[string][]int64{"t0": trainA})

	c, err := CompareSorterToGroundTruth(gt, tested)
	require.NoError(t, err)

	_, ok := c.MatchedUnit("g1")
	assert.False(t, ok)

	perf := c.Performance()
	require.Len(t, perf.Rows, 2)
	missed := perf.Rows[1]
	assert.Equal(t, "g1", missed.UnitID)
	assert.Zero(t, missed.Accuracy)
	assert.Zero(t, missed.Recall)
	assert.Equal(t, 1.0, missed.MissRate)

	t.Run("pooled metrics average over all units", func(t *testing.T) {
		avg := c.PerformancePooledAverage()
		assert.InDelta(t, 0.5, avg.Accuracy, 1e-9)

		sum := c.PerformancePooledSum()
		assert.InDelta(t, 0.5, sum.Recall, 1e-9)
	})
}

func TestUnitQueries(t *testing.T) {
	trainA := spacedTrain(20, 100, 50)
	junk := spacedTrain(20, 125, 50)

	gt := sortingFrom(t, []string{"g"}, map[string][]int64{"g": trainA})
	tested := sortingFrom(t, []string{"dup", "good", "junk"}, map[string][]int64{
		"good": trainA,
		"dup":  trainA,
		"junk": junk,
	})

	t.Run("queries need an exhaustive ground truth", func(t *testing.T) {
		c, err := CompareSorterToGroundTruth(gt, tested)
		require.NoError(t, err)

		_, err = c.FalsePositiveUnits()
		require.Error(t, err)
		_, err = c.RedundantUnits()
		require.Error(t, err)
	})

	t.Run("false positives and redundant units", func(t *testing.T) {
		c, err := CompareSorterToGroundTruth(gt, tested, WithExhaustiveGT(true))
		require.NoError(t, err)

		matched, ok := c.MatchedUnit("g")
		require.True(t, ok)

		fp, err := c.FalsePositiveUnits()
		require.NoError(t, err)
		assert.Equal(t, []string{"junk"}, fp)

		redundant, err := c.RedundantUnits()
		require.NoError(t, err)
		require.Len(t, redundant, 1)
		assert.NotEqual(t, matched, redundant[0])
		assert.NotEqual(t, "junk", redundant[0])
	})
}

func TestOvermergedUnits(t *testing.T) {
	trainA := spacedTrain(20, 100, 100)
	trainB := spacedTrain(20, 150, 100)
	merged := make([]int64, 0, len(trainA)+len(trainB))
	for i := range trainA {
		merged = append(merged, trainA[i], trainB[i])
	}

	gt := sortingFrom(t, []string{"g0", "g1"}, map[string][]int64{"g0": trainA, "g1": trainB})
	tested := sortingFrom(t, []string{"m"}, map[string][]int64{"m": merged})

	c, err := CompareSorterToGroundTruth(gt, tested)
	require.NoError(t, err)

	assert.Equal(t, []string{"m"}, c.OvermergedUnits())
}

func TestMatrices(t *testing.T) {
	trainA := spacedTrain(10, 100, 100)
	trainB := spacedTrain(10, 150, 100)

	gt := sortingFrom(t, []string{"g0", "g1"}, map[string][]int64{"g0": trainA, "g1": trainB})
	// Tested unit order is deliberately reversed against the pairing.
	tested := sortingFrom(t, []string{"t0", "t1"}, map[string][]int64{"t0": trainB, "t1": trainA})

	c, err := CompareSorterToGroundTruth(gt, tested)
	require.NoError(t, err)

	t.Run("raw agreement matrix keeps tested order", func(t *testing.T) {
		matrix, names := c.AgreementMatrix(false)
		assert.Equal(t, []string{"t0", "t1"}, names)
		assert.Equal(t, 1.0, matrix[0][1])
		assert.Equal(t, 1.0, matrix[1][0])
	})

	t.Run("ordered agreement matrix puts matches on the diagonal", func(t *testing.T) {
		matrix, names := c.AgreementMatrix(true)
		assert.Equal(t, []string{"t1", "t0"}, names)
		assert.Equal(t, 1.0, matrix[0][0])
		assert.Equal(t, 1.0, matrix[1][1])
	})

	t.Run("confusion matrix carries FN column and FP row", func(t *testing.T) {
		matrix, names := c.ConfusionMatrix()
		require.Len(t, names, 2)
		require.Len(t, matrix, 3)
		require.Len(t, matrix[0], 3)

		assert.Equal(t, 10, matrix[0][0])
		assert.Equal(t, 10, matrix[1][1])
		// Nothing is missed and nothing is spurious.
		assert.Equal(t, 0, matrix[0][2])
		assert.Equal(t, 0, matrix[1][2])
		assert.Equal(t, []int{0, 0, 0}, matrix[2])
	})
}
