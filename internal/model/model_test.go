package model

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/your-org/healthcareai-go/internal/evaluation"
)

func linearData(n int) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewSource(7))
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a, b := rng.Float64()*10, rng.Float64()*5
		x.SetRow(i, []float64{a, b})
		y[i] = 1 + 2*a - 3*b
	}
	return x, y
}

// binaryData has a positive rate that rises with the first column; the
// second column is noise.
func binaryData(n int) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewSource(11))
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a, b := rng.NormFloat64(), rng.NormFloat64()
		x.SetRow(i, []float64{a, b})
		if rng.Float64() < 1/(1+math.Exp(-3*a)) {
			y[i] = 1
		}
	}
	return x, y
}

func TestLinearRegression(t *testing.T) {
	x, y := linearData(50)
	m := NewLinearRegression()
	_, err := m.Predict(x)
	assert.ErrorIs(t, err, ErrNotFitted)

	require.NoError(t, m.Fit(context.Background(), x, y))
	assert.InDelta(t, 1.0, m.Intercept(), 1e-5)
	assert.InDeltaSlice(t, []float64{2, -3}, m.Coefficients(), 1e-5)

	pred, err := m.Predict(mat.NewDense(1, 2, []float64{1, 1}))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, pred[0], 1e-5)

	_, err = m.Predict(mat.NewDense(1, 3, nil))
	assert.ErrorIs(t, err, ErrDims)
	assert.ErrorIs(t, m.Fit(context.Background(), x, y[:3]), ErrDims)
}

func TestLinearRegression_CollinearColumns(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{1, 1, 2, 2, 3, 3, 4, 4})
	y := []float64{2, 4, 6, 8}
	m := NewLinearRegression()
	require.NoError(t, m.Fit(context.Background(), x, y))
	pred, err := m.Predict(x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, y, pred, 1e-4)
}

func TestLogisticRegression(t *testing.T) {
	x, y := binaryData(400)
	m := NewLogisticRegression()
	require.NoError(t, m.Fit(context.Background(), x, y))

	coef := m.Coefficients()
	assert.Greater(t, coef[0], 1.5)
	assert.Less(t, math.Abs(coef[1]), 0.5)

	pred, err := m.Predict(mat.NewDense(2, 2, []float64{-2, 0, 2, 0}))
	require.NoError(t, err)
	assert.Less(t, pred[0], 0.1)
	assert.Greater(t, pred[1], 0.9)

	auc, err := evaluation.ROCAUC(y, mustPredict(t, m, x))
	require.NoError(t, err)
	assert.Greater(t, auc, 0.8)

	strong := &LogisticRegression{C: 0.001, MaxIter: 100, Tol: 1e-8}
	require.NoError(t, strong.Fit(context.Background(), x, y))
	assert.Less(t, math.Abs(strong.Coefficients()[0]), math.Abs(coef[0]), "smaller C shrinks the coefficients")
}

func TestLogisticRegression_Separable(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{-2, -1, 1, 2})
	y := []float64{0, 0, 1, 1}
	m := NewLogisticRegression()
	require.NoError(t, m.Fit(context.Background(), x, y))
	for _, c := range m.Coefficients() {
		assert.False(t, math.IsNaN(c) || math.IsInf(c, 0))
	}
}

func TestKNN(t *testing.T) {
	x := mat.NewDense(5, 1, []float64{0, 1, 2, 10, 11})
	y := []float64{0, 0, 1, 1, 1}
	ctx := context.Background()

	one := NewKNN(1, WeightsUniform)
	require.NoError(t, one.Fit(ctx, x, y))
	pred, err := one.Predict(mat.NewDense(2, 1, []float64{0.2, 10.4}))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, pred)

	three := NewKNN(3, WeightsUniform)
	require.NoError(t, three.Fit(ctx, x, y))
	pred, err = three.Predict(mat.NewDense(1, 1, []float64{1}))
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, pred[0], 1e-12)

	weighted := NewKNN(3, WeightsDistance)
	require.NoError(t, weighted.Fit(ctx, x, y))
	pred, err = weighted.Predict(mat.NewDense(2, 1, []float64{2, 1.5}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, pred[0], "exact match takes all the weight")
	// neighbours 1 and 2 at 0.5, 0 at 1.5
	assert.InDelta(t, 2.0/(2+2+1.0/1.5), pred[1], 1e-12)

	big := NewKNN(50, WeightsUniform)
	require.NoError(t, big.Fit(ctx, x, y))
	pred, err = big.Predict(mat.NewDense(1, 1, []float64{5}))
	require.NoError(t, err)
	assert.InDelta(t, 0.6, pred[0], 1e-12)

	assert.Error(t, NewKNN(0, WeightsUniform).Fit(ctx, x, y))
}

func stepData() (*mat.Dense, []float64) {
	x := mat.NewDense(20, 2, nil)
	y := make([]float64, 20)
	for i := 0; i < 20; i++ {
		x.SetRow(i, []float64{float64(i), 3})
		if i >= 10 {
			y[i] = 10
		}
	}
	return x, y
}

func TestRandomForest_Regression(t *testing.T) {
	x, y := stepData()
	m := NewRandomForest(50, false, 1)
	require.NoError(t, m.Fit(context.Background(), x, y))

	pred, err := m.Predict(mat.NewDense(2, 2, []float64{1, 3, 18, 3}))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, pred[0], 1e-9)
	assert.InDelta(t, 10.0, pred[1], 1e-9)

	imp := m.FeatureImportances()
	assert.InDelta(t, 1.0, imp[0], 1e-9)
	assert.Equal(t, 0.0, imp[1], "a constant column never splits")
}

func TestRandomForest_Deterministic(t *testing.T) {
	x, y := binaryData(120)
	a := NewRandomForest(20, true, 42)
	a.Workers = 1
	b := NewRandomForest(20, true, 42)
	b.Workers = 8
	require.NoError(t, a.Fit(context.Background(), x, y))
	require.NoError(t, b.Fit(context.Background(), x, y))
	assert.Equal(t, mustPredict(t, a, x), mustPredict(t, b, x))

	for _, p := range mustPredict(t, a, x) {
		assert.True(t, p >= 0 && p <= 1)
	}
}

func TestRandomForest_Errors(t *testing.T) {
	x, y := stepData()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewRandomForest(5, false, 1).Fit(ctx, x, y), context.Canceled)

	bad := NewRandomForest(5, false, 1)
	bad.MaxFeatures = "half"
	assert.Error(t, bad.Fit(context.Background(), x, y))
	assert.Error(t, NewRandomForest(0, false, 1).Fit(context.Background(), x, y))
}

func TestKFold(t *testing.T) {
	folds, err := KFold(10, 3, 5)
	require.NoError(t, err)
	require.Len(t, folds, 3)

	var all []int
	for _, f := range folds {
		assert.GreaterOrEqual(t, len(f), 3)
		all = append(all, f...)
	}
	sort.Ints(all)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, all)

	_, err = KFold(3, 5, 0)
	assert.Error(t, err)
}

func TestGridSearch(t *testing.T) {
	x, y := linearData(40)
	score, err := evaluation.Score(evaluation.MetricNegMSE)
	require.NoError(t, err)

	g := &GridSearch{
		Candidates: []Candidate{
			{Label: "knn k=1", New: func() Model { return NewKNN(1, WeightsUniform) }},
			{Label: "ols", New: func() Model { return NewLinearRegression() }},
		},
		Folds: 4,
		Seed:  3,
		Score: score,
	}
	best, results, err := g.Fit(context.Background(), x, y)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, AlgLinearRegression, best.Name())
	assert.Greater(t, results[1].Mean, results[0].Mean)
	assert.Len(t, results[0].Folds, 4)

	_, _, err = (&GridSearch{Folds: 3, Score: score}).Fit(context.Background(), x, y)
	assert.Error(t, err)
}

func TestMarshalUnmarshal(t *testing.T) {
	ctx := context.Background()
	xl, yl := linearData(30)
	xb, yb := binaryData(60)

	models := []struct {
		m    Model
		x    *mat.Dense
		y    []float64
		name string
	}{
		{NewLinearRegression(), xl, yl, AlgLinearRegression},
		{NewLogisticRegression(), xb, yb, AlgLogisticRegression},
		{NewKNN(5, WeightsDistance), xb, yb, AlgKNN},
		{NewRandomForest(10, true, 9), xb, yb, AlgRandomForest},
	}
	for _, tt := range models {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.m.Fit(ctx, tt.x, tt.y))
			data, err := Marshal(tt.m)
			require.NoError(t, err)

			loaded, err := Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, tt.name, loaded.Name())
			assert.InDeltaSlice(t, mustPredict(t, tt.m, tt.x), mustPredict(t, loaded, tt.x), 1e-12)
		})
	}

	_, err := Unmarshal([]byte(`{"algorithm":"svm","params":{}}`))
	assert.Error(t, err)
	_, err = Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}

func mustPredict(t *testing.T, m Model, x mat.Matrix) []float64 {
	t.Helper()
	p, err := m.Predict(x)
	require.NoError(t, err)
	return p
}
