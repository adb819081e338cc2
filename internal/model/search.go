package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Candidate is one hyperparameter setting in a search.
type Candidate struct {
	Label string
	New   func() Model
}

// CVResult is the cross-validated score of one candidate.
type CVResult struct {
	Label  string
	Mean   float64
	StdDev float64
	Folds  []float64
}

// GridSearch cross-validates every candidate with KFold and refits the best
// one on all of x.
type GridSearch struct {
	Candidates []Candidate
	Folds      int
	Seed       int64
	// Score must rank higher as better.
	Score      func(truth, pred []float64) (float64, error)
}

// Fit runs the search and returns the refitted winner with every result in
// candidate order.
func (g *GridSearch) Fit(ctx context.Context, x mat.Matrix, y []float64) (Model, []CVResult, error) {
	if len(g.Candidates) == 0 {
		return nil, nil, errors.New("grid search: no candidates")
	}
	folds, err := KFold(len(y), g.Folds, g.Seed)
	if err != nil {
		return nil, nil, err
	}

	results := make([]CVResult, 0, len(g.Candidates))
	best := -1
	for ci, c := range g.Candidates {
		res := CVResult{Label: c.Label}
		for _, test := range folds {
			train := complement(len(y), test)
			m := c.New()
			if err := m.Fit(ctx, subRows(x, train), subVec(y, train)); err != nil {
				return nil, nil, fmt.Errorf("grid search %s: %w", c.Label, err)
			}
			pred, err := m.Predict(subRows(x, test))
			if err != nil {
				return nil, nil, fmt.Errorf("grid search %s: %w", c.Label, err)
			}
			s, err := g.Score(subVec(y, test), pred)
			if err != nil {
				// a fold with a single class cannot be scored
				continue
			}
			res.Folds = append(res.Folds, s)
		}
		if len(res.Folds) == 0 {
			res.Mean = math.Inf(-1)
		} else {
			res.Mean, res.StdDev = stat.MeanStdDev(res.Folds, nil)
			if len(res.Folds) == 1 {
				res.StdDev = 0
			}
		}
		results = append(results, res)
		if best < 0 || res.Mean > results[best].Mean {
			best = ci
		}
	}

	winner := g.Candidates[best].New()
	if err := winner.Fit(ctx, x, y); err != nil {
		return nil, nil, err
	}
	return winner, results, nil
}

// KFold shuffles 0..n-1 by seed and deals it into k test folds.
func KFold(n, k int, seed int64) ([][]int, error) {
	if k < 2 || k > n {
		return nil, fmt.Errorf("kfold: need 2 <= k <= %d, got %d", n, k)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	folds := make([][]int, k)
	for i, idx := range perm {
		folds[i%k] = append(folds[i%k], idx)
	}
	return folds, nil
}

func complement(n int, test []int) []int {
	in := make([]bool, n)
	for _, i := range test {
		in[i] = true
	}
	out := make([]int, 0, n-len(test))
	for i := 0; i < n; i++ {
		if !in[i] {
			out = append(out, i)
		}
	}
	return out
}

func subRows(x mat.Matrix, rows []int) *mat.Dense {
	_, c := x.Dims()
	d := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		d.SetRow(i, mat.Row(nil, r, x))
	}
	return d
}

func subVec(y []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = y[r]
	}
	return out
}
