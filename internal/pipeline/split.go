package pipeline

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// TrainTestSplit shuffles deterministically by seed and holds out testSize of
// the rows. With stratify, every target value keeps its share in both halves.
func TrainTestSplit(d *Dataset, testSize float64, seed int64, stratify bool) (train, test *Dataset, err error) {
	n := d.NumRows()
	if n < 2 {
		return nil, nil, fmt.Errorf("%w: need at least 2 rows to split, got %d", ErrInvalidInput, n)
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("%w: test size %.3f must be in (0, 1)", ErrInvalidInput, testSize)
	}
	rng := rand.New(rand.NewSource(seed))

	strata := map[float64][]int{0: nil}
	if stratify && d.Y != nil {
		strata = make(map[float64][]int)
		for i, y := range d.Y {
			strata[y] = append(strata[y], i)
		}
	} else {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		strata[0] = all
	}

	keys := make([]float64, 0, len(strata))
	for k := range strata {
		keys = append(keys, k)
	}
	sort.Float64s(keys)

	var trainIdx, testIdx []int
	for _, k := range keys {
		idx := strata[k]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTest := int(math.Round(float64(len(idx)) * testSize))
		if nTest == 0 && len(idx) > 1 {
			nTest = 1
		}
		if nTest == len(idx) && len(idx) > 1 {
			nTest = len(idx) - 1
		}
		testIdx = append(testIdx, idx[:nTest]...)
		trainIdx = append(trainIdx, idx[nTest:]...)
	}
	if len(trainIdx) == 0 || len(testIdx) == 0 {
		return nil, nil, fmt.Errorf("%w: split of %d rows left an empty side", ErrInvalidInput, n)
	}
	sort.Ints(trainIdx)
	sort.Ints(testIdx)
	return d.Subset(trainIdx), d.Subset(testIdx), nil
}
