package model

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// jitter keeps the normal equations positive definite when columns are
// collinear (constant or duplicated indicators).
const jitter = 1e-8

var errSingular = errors.New("normal equations are singular")

// LinearRegression is ordinary least squares with an intercept.
type LinearRegression struct {
	Coef []float64 `json:"coef"`
	Bias float64   `json:"intercept"`
}

func NewLinearRegression() *LinearRegression { return &LinearRegression{} }

func (m *LinearRegression) Name() string { return AlgLinearRegression }

func (m *LinearRegression) Fit(ctx context.Context, x mat.Matrix, y []float64) error {
	if _, _, err := checkFit(x, y); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	a := withIntercept(x)
	_, p := a.Dims()
	penalty := make([]float64, p)
	for j := range penalty {
		penalty[j] = jitter
	}
	beta, err := solveWeighted(a, nil, y, penalty)
	if err != nil {
		return err
	}
	m.Bias = beta[0]
	m.Coef = beta[1:]
	return nil
}

func (m *LinearRegression) Predict(x mat.Matrix) ([]float64, error) {
	if m.Coef == nil {
		return nil, ErrNotFitted
	}
	return linearPredictor(x, m.Coef, m.Bias)
}

func (m *LinearRegression) Coefficients() []float64 { return append([]float64(nil), m.Coef...) }
func (m *LinearRegression) Intercept() float64      { return m.Bias }

// LogisticRegression is L2-regularised logistic regression fitted by Newton
// iterations (IRLS). C is the inverse regularisation strength; the intercept
// is not penalised.
type LogisticRegression struct {
	C       float64   `json:"c"`
	MaxIter int       `json:"max_iter"`
	Tol     float64   `json:"tol"`
	Coef    []float64 `json:"coef"`
	Bias    float64   `json:"intercept"`
}

func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{C: 1, MaxIter: 100, Tol: 1e-8}
}

func (m *LogisticRegression) Name() string { return AlgLogisticRegression }

func (m *LogisticRegression) Fit(ctx context.Context, x mat.Matrix, y []float64) error {
	n, _, err := checkFit(x, y)
	if err != nil {
		return err
	}
	a := withIntercept(x)
	_, p := a.Dims()

	penalty := make([]float64, p)
	penalty[0] = jitter
	for j := 1; j < p; j++ {
		penalty[j] = 1 / m.C
	}

	beta := make([]float64, p)
	eta := make([]float64, n)
	w := make([]float64, n)
	z := make([]float64, n)
	for iter := 0; iter < m.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		mat.NewVecDense(n, eta).MulVec(a, mat.NewVecDense(p, beta))
		for i := 0; i < n; i++ {
			mu := sigmoid(eta[i])
			w[i] = math.Max(mu*(1-mu), 1e-10)
			// working response
			z[i] = eta[i] + (y[i]-mu)/w[i]
		}
		next, err := solveWeighted(a, w, z, penalty)
		if err != nil {
			return err
		}
		delta := 0.0
		for j := range beta {
			delta = math.Max(delta, math.Abs(next[j]-beta[j]))
		}
		beta = next
		if delta < m.Tol {
			break
		}
	}
	m.Bias = beta[0]
	m.Coef = beta[1:]
	return nil
}

func (m *LogisticRegression) Predict(x mat.Matrix) ([]float64, error) {
	if m.Coef == nil {
		return nil, ErrNotFitted
	}
	out, err := linearPredictor(x, m.Coef, m.Bias)
	if err != nil {
		return nil, err
	}
	for i, v := range out {
		out[i] = sigmoid(v)
	}
	return out, nil
}

func (m *LogisticRegression) Coefficients() []float64 { return append([]float64(nil), m.Coef...) }
func (m *LogisticRegression) Intercept() float64      { return m.Bias }

func sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}

func linearPredictor(x mat.Matrix, coef []float64, bias float64) ([]float64, error) {
	r, err := checkPredict(x, len(coef))
	if err != nil {
		return nil, err
	}
	out := make([]float64, r)
	v := mat.NewVecDense(r, out)
	v.MulVec(x, mat.NewVecDense(len(coef), append([]float64(nil), coef...)))
	for i := range out {
		out[i] += bias
	}
	return out, nil
}

// solveWeighted solves (AᵀWA + diag(penalty)) β = AᵀWz. A nil w means unit
// weights.
func solveWeighted(a *mat.Dense, w, z, penalty []float64) ([]float64, error) {
	n, p := a.Dims()
	b := mat.DenseCopyOf(a)
	rhs := make([]float64, n)
	for i := 0; i < n; i++ {
		s := 1.0
		if w != nil {
			s = math.Sqrt(w[i])
		}
		row := b.RawRowView(i)
		for j := range row {
			row[j] *= s
		}
		rhs[i] = z[i] * s
	}

	var gram mat.SymDense
	gram.SymOuterK(1, b.T())
	for j := 0; j < p; j++ {
		gram.SetSym(j, j, gram.At(j, j)+penalty[j])
	}
	var atz mat.VecDense
	atz.MulVec(b.T(), mat.NewVecDense(n, rhs))

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return nil, errSingular
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &atz); err != nil {
		return nil, err
	}
	return mat.Col(nil, 0, &beta), nil
}
