package model

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MaxFeatures settings.
const (
	MaxFeaturesSqrt = "sqrt"
	MaxFeaturesAll  = "all"
	MaxFeaturesLog2 = "log2"
)

// RandomForest averages bootstrapped CART trees. Classification forests sample
// sqrt(features) per split by default, regression forests use every feature.
type RandomForest struct {
	Trees          int    `json:"trees"`
	MaxFeatures    string `json:"max_features"`
	MaxDepth       int    `json:"max_depth,omitempty"`
	MinSamplesLeaf int    `json:"min_samples_leaf"`
	Classification bool   `json:"classification"`
	Seed           int64  `json:"seed"`
	// Workers bounds concurrent tree fitting; 0 means GOMAXPROCS.
	Workers int `json:"-"`

	Forest      []tree    `json:"forest"`
	Importances []float64 `json:"importances"`
	NumFeatures int       `json:"num_features"`
}

func NewRandomForest(trees int, classification bool, seed int64) *RandomForest {
	mf := MaxFeaturesAll
	if classification {
		mf = MaxFeaturesSqrt
	}
	return &RandomForest{
		Trees:          trees,
		MaxFeatures:    mf,
		MinSamplesLeaf: 1,
		Classification: classification,
		Seed:           seed,
	}
}

func (m *RandomForest) Name() string { return AlgRandomForest }

func (m *RandomForest) featuresPerSplit(n int) (int, error) {
	var k int
	switch m.MaxFeatures {
	case MaxFeaturesSqrt:
		k = int(math.Sqrt(float64(n)))
	case MaxFeaturesLog2:
		k = int(math.Log2(float64(n)))
	case MaxFeaturesAll, "":
		k = n
	default:
		return 0, fmt.Errorf("random forest: unknown max_features %q", m.MaxFeatures)
	}
	return max(1, min(k, n)), nil
}

func (m *RandomForest) Fit(ctx context.Context, x mat.Matrix, y []float64) error {
	n, c, err := checkFit(x, y)
	if err != nil {
		return err
	}
	if m.Trees < 1 {
		return fmt.Errorf("random forest: trees must be >= 1, got %d", m.Trees)
	}
	mf, err := m.featuresPerSplit(c)
	if err != nil {
		return err
	}
	params := treeParams{maxFeatures: mf, maxDepth: m.MaxDepth, minSamplesLeaf: max(1, m.MinSamplesLeaf)}
	rows := rowsOf(x)

	forest := make([]tree, m.Trees)
	importances := make([][]float64, m.Trees)
	workers := m.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for t := 0; t < m.Trees; t++ {
		t := t
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(m.Seed + int64(t)))
			sample := make([]int, n)
			for i := range sample {
				sample[i] = rng.Intn(n)
			}
			forest[t], importances[t] = growTree(rows, y, sample, params, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	total := make([]float64, c)
	for _, imp := range importances {
		floats.Add(total, imp)
	}
	if s := floats.Sum(total); s > 0 {
		floats.Scale(1/s, total)
	}
	m.Forest = forest
	m.Importances = total
	m.NumFeatures = c
	return nil
}

func (m *RandomForest) Predict(x mat.Matrix) ([]float64, error) {
	if m.Forest == nil {
		return nil, ErrNotFitted
	}
	r, err := checkPredict(x, m.NumFeatures)
	if err != nil {
		return nil, err
	}
	out := make([]float64, r)
	for i := range out {
		row := mat.Row(nil, i, x)
		sum := 0.0
		for _, t := range m.Forest {
			sum += t.predict(row)
		}
		out[i] = sum / float64(len(m.Forest))
	}
	return out, nil
}

// FeatureImportances are the impurity decreases per column, summing to 1.
func (m *RandomForest) FeatureImportances() []float64 {
	return append([]float64(nil), m.Importances...)
}
