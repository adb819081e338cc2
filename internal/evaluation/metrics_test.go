package evaluation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestROCAUC(t *testing.T) {
	tests := []struct {
		name   string
		truth  []float64
		scores []float64
		want   float64
	}{
		{"textbook", []float64{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8}, 0.75},
		{"perfect", []float64{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}, 1},
		{"inverted", []float64{1, 1, 0, 0}, []float64{0.1, 0.2, 0.8, 0.9}, 0},
		{"all tied", []float64{0, 1, 0, 1}, []float64{0.5, 0.5, 0.5, 0.5}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ROCAUC(tt.truth, tt.scores)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestPRAUC(t *testing.T) {
	got, err := PRAUC([]float64{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8})
	require.NoError(t, err)
	assert.InDelta(t, 5.0/6.0, got, 1e-9)

	got, err = PRAUC([]float64{0, 1}, []float64{0.2, 0.9})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestClassificationErrors(t *testing.T) {
	_, err := ROCAUC([]float64{1, 1}, []float64{0.3, 0.4})
	assert.ErrorIs(t, err, ErrSingleClass)

	_, err = ROCAUC([]float64{1, 0}, []float64{0.3})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = Accuracy(nil, nil, 0.5)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestAccuracy(t *testing.T) {
	got, err := Accuracy([]float64{0, 1, 1, 0}, []float64{0.2, 0.5, 0.4, 0.9}, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.5, got)
}

func TestRegression(t *testing.T) {
	truth := []float64{3, -0.5, 2, 7}
	pred := []float64{2.5, 0, 2, 8}

	m, err := Regression(truth, pred)
	require.NoError(t, err)
	assert.InDelta(t, 0.375, m.MSE, 1e-9)
	assert.InDelta(t, math.Sqrt(0.375), m.RMSE, 1e-9)
	assert.InDelta(t, 0.5, m.MAE, 1e-9)
	assert.InDelta(t, 0.9486081370449679, m.R2, 1e-9)
}

func TestScore(t *testing.T) {
	truth := []float64{3, -0.5, 2, 7}
	pred := []float64{2.5, 0, 2, 8}

	negMSE, err := Score(MetricNegMSE)
	require.NoError(t, err)
	v, err := negMSE(truth, pred)
	require.NoError(t, err)
	assert.InDelta(t, -0.375, v, 1e-9)

	negMAE, err := Score(MetricNegMAE)
	require.NoError(t, err)
	v, err = negMAE(truth, pred)
	require.NoError(t, err)
	assert.InDelta(t, -0.5, v, 1e-9)

	for _, name := range []string{MetricROCAUC, MetricPRAUC, MetricAcc, MetricR2} {
		s, err := Score(name)
		require.NoError(t, err, name)
		assert.NotNil(t, s)
	}

	_, err = Score("f1")
	assert.ErrorIs(t, err, ErrUnknownMetric)
}
