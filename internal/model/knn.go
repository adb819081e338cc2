package model

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Neighbour weighting schemes.
const (
	WeightsUniform  = "uniform"
	WeightsDistance = "distance"
)

// KNN predicts the (optionally distance weighted) mean target of the K nearest
// training rows by Euclidean distance. For a 0/1 target that is the positive
// class probability.
type KNN struct {
	K       int         `json:"k"`
	Weights string      `json:"weights"`
	X       [][]float64 `json:"x"`
	Y       []float64   `json:"y"`
}

func NewKNN(k int, weights string) *KNN {
	return &KNN{K: k, Weights: weights}
}

func (m *KNN) Name() string { return AlgKNN }

func (m *KNN) Fit(ctx context.Context, x mat.Matrix, y []float64) error {
	if _, _, err := checkFit(x, y); err != nil {
		return err
	}
	if m.K < 1 {
		return fmt.Errorf("knn: k must be >= 1, got %d", m.K)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.X = rowsOf(x)
	m.Y = append([]float64(nil), y...)
	return nil
}

func (m *KNN) Predict(x mat.Matrix) ([]float64, error) {
	if m.X == nil {
		return nil, ErrNotFitted
	}
	r, err := checkPredict(x, len(m.X[0]))
	if err != nil {
		return nil, err
	}
	k := min(m.K, len(m.X))
	type neighbour struct {
		idx  int
		dist float64
	}
	out := make([]float64, r)
	nb := make([]neighbour, len(m.X))
	for i := 0; i < r; i++ {
		q := mat.Row(nil, i, x)
		for j, train := range m.X {
			nb[j] = neighbour{idx: j, dist: floats.Distance(q, train, 2)}
		}
		sort.SliceStable(nb, func(a, b int) bool { return nb[a].dist < nb[b].dist })

		if m.Weights == WeightsDistance && nb[0].dist == 0 {
			// exact matches take all the weight
			sum, cnt := 0.0, 0.0
			for _, n := range nb[:k] {
				if n.dist == 0 {
					sum += m.Y[n.idx]
					cnt++
				}
			}
			out[i] = sum / cnt
			continue
		}
		sum, total := 0.0, 0.0
		for _, n := range nb[:k] {
			w := 1.0
			if m.Weights == WeightsDistance {
				w = 1 / n.dist
			}
			sum += w * m.Y[n.idx]
			total += w
		}
		out[i] = sum / total
	}
	return out, nil
}
