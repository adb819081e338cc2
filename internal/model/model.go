// Package model holds the supervised estimators used by the trainer. All of
// them take a dense design matrix and a target vector; classifiers predict the
// probability of the positive class (target value 1).
package model

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Algorithm names, also used as persistence tags.
const (
	AlgLinearRegression   = "linear_regression"
	AlgLogisticRegression = "logistic_regression"
	AlgKNN                = "knn"
	AlgRandomForest       = "random_forest"
)

var (
	ErrNotFitted = errors.New("model is not fitted")
	ErrDims      = errors.New("dimension mismatch")
)

// Model is a supervised estimator.
type Model interface {
	Name() string
	Fit(ctx context.Context, x mat.Matrix, y []float64) error
	Predict(x mat.Matrix) ([]float64, error)
}

// LinearModel exposes one coefficient per input column, in column order.
type LinearModel interface {
	Model
	Coefficients() []float64
	Intercept() float64
}

// Importancer is implemented by models that rank their inputs.
type Importancer interface {
	FeatureImportances() []float64
}

func checkFit(x mat.Matrix, y []float64) (int, int, error) {
	r, c := x.Dims()
	if r != len(y) {
		return 0, 0, fmt.Errorf("%w: %d rows but %d targets", ErrDims, r, len(y))
	}
	if r == 0 || c == 0 {
		return 0, 0, fmt.Errorf("%w: empty design matrix", ErrDims)
	}
	return r, c, nil
}

func checkPredict(x mat.Matrix, want int) (int, error) {
	r, c := x.Dims()
	if c != want {
		return 0, fmt.Errorf("%w: fitted on %d columns, got %d", ErrDims, want, c)
	}
	return r, nil
}

// rowsOf copies x into row slices.
func rowsOf(x mat.Matrix) [][]float64 {
	r, _ := x.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, x)
	}
	return out
}

// withIntercept prepends a column of ones.
func withIntercept(x mat.Matrix) *mat.Dense {
	r, c := x.Dims()
	a := mat.NewDense(r, c+1, nil)
	for i := 0; i < r; i++ {
		a.Set(i, 0, 1)
		for j := 0; j < c; j++ {
			a.Set(i, j+1, x.At(i, j))
		}
	}
	return a
}
