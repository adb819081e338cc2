package factors

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func sexMatrix() (Matrix, []float64, []Group) {
	x := Matrix{
		Columns: []string{"age", "sex.F"},
		Rows: [][]float64{
			{2, 1},
			{0.2, 0},
		},
	}
	return x, []float64{0.5, 0.8}, []Group{{Variable: "sex", Levels: []string{"M", "F"}}}
}

func TestRank_SynthesizesBaselineAndCentersGroup(t *testing.T) {
	x, coefs, groups := sexMatrix()

	got, err := RankWithContributions(x, coefs, 2, groups)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// row 0: age 2*0.5=1.0, sex.F 1*0.4=0.4, sex.M 0*-0.4=0
	assert.Equal(t, "age", got[0][0].Name)
	assert.InDelta(t, 1.0, got[0][0].Contribution, 1e-12)
	assert.Equal(t, "sex.F", got[0][1].Name)
	assert.InDelta(t, 0.4, got[0][1].Contribution, 1e-12)

	// row 1: sex.M 1*|-0.4|=0.4, age 0.2*0.5=0.1, sex.F 0
	assert.Equal(t, "sex.M", got[1][0].Name)
	assert.InDelta(t, 0.4, got[1][0].Contribution, 1e-12)
	assert.Equal(t, "age", got[1][1].Name)
	assert.InDelta(t, 0.1, got[1][1].Contribution, 1e-12)

	names, err := Rank(x, coefs, 1, groups)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"age"}, {"sex.M"}}, names)
}

func TestRank_DoesNotMutateInputs(t *testing.T) {
	x, coefs, groups := sexMatrix()
	wantX := Matrix{Columns: append([]string(nil), x.Columns...), Rows: [][]float64{{2, 1}, {0.2, 0}}}
	wantCoefs := append([]float64(nil), coefs...)

	_, err := Rank(x, coefs, 3, groups)
	require.NoError(t, err)

	if diff := cmp.Diff(wantX, x); diff != "" {
		t.Errorf("matrix mutated (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantCoefs, coefs); diff != "" {
		t.Errorf("coefficients mutated (-want +got):\n%s", diff)
	}
}

func TestRank_RepeatedLevelsCountOnce(t *testing.T) {
	x, coefs, groups := sexMatrix()
	want, err := RankWithContributions(x, coefs, 2, groups)
	require.NoError(t, err)

	repeated := []Group{{Variable: "sex", Levels: []string{"F", "F", "M"}}}
	got, err := RankWithContributions(x, coefs, 2, repeated)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("repeated level changed the ranking (-want +got):\n%s", diff)
	}
	assert.Equal(t, "age", got[0][0].Name)
	assert.Equal(t, "sex.F", got[0][1].Name)
}

func TestRank_KExceedsFeatures(t *testing.T) {
	x, coefs, groups := sexMatrix()

	_, err := Rank(x, coefs, 3, groups)
	// 3 == 2 model features + 1 synthesized is still too many: the limit is the model's feature count
	require.Error(t, err)

	var ipe *InvalidParameterError
	require.True(t, errors.As(err, &ipe))
	assert.Equal(t, "k", ipe.Param)
	assert.Equal(t, 3, ipe.Requested)
	assert.Equal(t, 2, ipe.Available)
	assert.Equal(t, 2, ipe.Max())
	assert.Contains(t, err.Error(), "Please choose 2 or less")
}

func TestRank_KCheckedBeforeAnyWork(t *testing.T) {
	// a malformed group would fail later; the k error must come first
	_, err := Rank(Matrix{Columns: []string{"a"}, Rows: [][]float64{{1}}}, []float64{1}, 5,
		[]Group{{Variable: "missing", Levels: []string{"x"}}})
	var ipe *InvalidParameterError
	assert.True(t, errors.As(err, &ipe))
}

func TestRank_InvalidInputs(t *testing.T) {
	x := Matrix{Columns: []string{"a", "b"}, Rows: [][]float64{{1, 2}}}

	t.Run("k below one", func(t *testing.T) {
		_, err := Rank(x, []float64{1, 1}, 0, nil)
		var ipe *InvalidParameterError
		require.True(t, errors.As(err, &ipe))
		assert.Equal(t, 1, ipe.Minimum)
	})

	t.Run("coefficients not aligned with columns", func(t *testing.T) {
		_, err := Rank(x, []float64{1, 1, 1}, 1, nil)
		var ipe *InvalidParameterError
		require.True(t, errors.As(err, &ipe))
		assert.Equal(t, "coefficients", ipe.Param)
	})

	t.Run("ragged row", func(t *testing.T) {
		_, err := Rank(Matrix{Columns: []string{"a", "b"}, Rows: [][]float64{{1}}}, []float64{1, 1}, 1, nil)
		assert.Error(t, err)
	})

	t.Run("duplicate column", func(t *testing.T) {
		_, err := Rank(Matrix{Columns: []string{"a", "a"}, Rows: [][]float64{{1, 2}}}, []float64{1, 1}, 1, nil)
		assert.Error(t, err)
	})
}

func TestRank_GroupErrors(t *testing.T) {
	x := Matrix{Columns: []string{"age", "race.B"}, Rows: [][]float64{{1, 0}}}
	coefs := []float64{1, 1}

	t.Run("no matching columns", func(t *testing.T) {
		_, err := Rank(x, coefs, 1, []Group{{Variable: "sex", Levels: []string{"M", "F"}}})
		var ge *GroupError
		require.True(t, errors.As(err, &ge))
		assert.Equal(t, "sex", ge.Variable)
	})

	t.Run("more than one level missing", func(t *testing.T) {
		_, err := Rank(x, coefs, 1, []Group{{Variable: "race", Levels: []string{"A", "B", "W"}}})
		var ge *GroupError
		require.True(t, errors.As(err, &ge))
		assert.Contains(t, ge.Error(), "only the baseline level may be absent")
	})
}

func TestRank_AllLevelsPresentStillCenters(t *testing.T) {
	x := Matrix{
		Columns: []string{"unit.icu", "unit.med", "unit.surg"},
		Rows:    [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	}
	// mean is 2: centered coefficients are -1, 0, 1
	got, err := RankWithContributions(x, []float64{1, 2, 3}, 1, []Group{{Variable: "unit", Levels: []string{"icu", "med", "surg"}}})
	require.NoError(t, err)

	assert.Equal(t, "unit.icu", got[0][0].Name)
	assert.InDelta(t, 1.0, got[0][0].Contribution, 1e-12)
	// med is centered to zero, so every column ties at 0 and the first column wins
	assert.Equal(t, "unit.icu", got[1][0].Name)
	assert.InDelta(t, 0.0, got[1][0].Contribution, 1e-12)
	assert.Equal(t, "unit.surg", got[2][0].Name)
	assert.InDelta(t, 1.0, got[2][0].Contribution, 1e-12)
}

func TestRank_TiesKeepColumnOrder(t *testing.T) {
	x := Matrix{Columns: []string{"c", "a", "b"}, Rows: [][]float64{{1, 1, 1}}}
	got, err := Rank(x, []float64{2, 2, 2}, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"c", "a", "b"}}, got)
}

func TestRank_NegativeValuesUseMagnitude(t *testing.T) {
	x := Matrix{Columns: []string{"bmi", "a1c"}, Rows: [][]float64{{-3, 1}}}
	got, err := Rank(x, []float64{1, -2}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"bmi", "a1c"}}, got)
}

func TestRank_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cols := []string{"age", "los", "bmi", "dx.a", "dx.b", "dx.c"}
	groups := []Group{{Variable: "dx", Levels: []string{"a", "b", "c", "d"}}}

	rows := make([][]float64, 50)
	for i := range rows {
		level := rng.Intn(4)
		row := []float64{rng.NormFloat64(), rng.Float64() * 10, rng.NormFloat64() * 5, 0, 0, 0}
		if level < 3 {
			row[3+level] = 1
		}
		rows[i] = row
	}
	coefs := make([]float64, len(cols))
	for i := range coefs {
		coefs[i] = rng.NormFloat64()
	}
	x := Matrix{Columns: cols, Rows: rows}
	allowed := map[string]bool{"dx.d": true}
	for _, c := range cols {
		allowed[c] = true
	}

	for k := 1; k <= len(coefs); k++ {
		got, err := RankWithContributions(x, coefs, k, groups)
		require.NoError(t, err)
		require.Len(t, got, len(rows))
		for _, row := range got {
			require.Len(t, row, k)
			seen := map[string]bool{}
			for j, f := range row {
				assert.True(t, allowed[f.Name], "unexpected column %q", f.Name)
				assert.False(t, seen[f.Name], "duplicate column %q", f.Name)
				seen[f.Name] = true
				if j > 0 {
					assert.GreaterOrEqual(t, row[j-1].Contribution, f.Contribution)
				}
			}
		}
	}

	first, err := Rank(x, coefs, 3, groups)
	require.NoError(t, err)
	second, err := Rank(x, coefs, 3, groups)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRank_ConcurrentCalls(t *testing.T) {
	x, coefs, groups := sexMatrix()
	want, err := Rank(x, coefs, 2, groups)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := Rank(x, coefs, 2, groups)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestFlatten(t *testing.T) {
	row, err := Flatten(mat.NewDense(1, 3, []float64{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, row)

	col, err := Flatten(mat.NewVecDense(2, []float64{4, 5}))
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5}, col)

	_, err = Flatten(mat.NewDense(2, 2, nil))
	assert.Error(t, err)
}

func TestFromDense(t *testing.T) {
	m := FromDense([]string{"a", "b"}, mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, m.Rows)
}
