// Package factors ranks, for every row of a feature matrix, the features that
// contribute most to a fitted linear model's prediction.
//
// Contributions are |value × coefficient|. One-hot encoded categorical
// variables are handled as a group: the level dropped during encoding is
// synthesized back as an indicator column with a zero coefficient, and the
// group's coefficients are shifted to mean zero so that the choice of baseline
// does not bias which levels look important.
package factors

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// LevelSeparator joins a categorical variable and a level in an encoded column name.
const LevelSeparator = "."

// Matrix is a feature matrix with named columns. Rows holds one slice per
// observation, aligned with Columns.
type Matrix struct {
	Columns []string
	Rows    [][]float64
}

// FromDense wraps a gonum matrix.
func FromDense(columns []string, m mat.Matrix) Matrix {
	r, c := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		row := make([]float64, c)
		for j := range row {
			row[j] = m.At(i, j)
		}
		rows[i] = row
	}
	return Matrix{Columns: columns, Rows: rows}
}

// Group is a categorical variable and the full enumerated set of its levels,
// including the baseline level that may have been dropped during encoding.
type Group struct {
	Variable string
	Levels   []string
}

// ColumnName returns the encoded column name for a level of the group.
func (g Group) ColumnName(level string) string {
	return g.Variable + LevelSeparator + level
}

// Factor is a ranked column with the magnitude of its contribution.
type Factor struct {
	Name         string
	Contribution float64
}

// Flatten squeezes a coefficient matrix of shape 1×N or N×1 into a vector.
// Fitted binary classifiers commonly report coefficients as a single row.
func Flatten(m mat.Matrix) ([]float64, error) {
	r, c := m.Dims()
	if r != 1 && c != 1 {
		return nil, fmt.Errorf("coefficient matrix must be 1-D, got %dx%d", r, c)
	}
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out = append(out, m.At(i, j))
		}
	}
	return out, nil
}

// Rank returns, for each row of x, the names of the k columns with the largest
// contribution magnitude, in descending order. Ties keep column order.
//
// coefficients must be aligned with x.Columns.
func Rank(x Matrix, coefficients []float64, k int, groups []Group) ([][]string, error) {
	ranked, err := RankWithContributions(x, coefficients, k, groups)
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(ranked))
	for i, row := range ranked {
		names := make([]string, len(row))
		for j, f := range row {
			names[j] = f.Name
		}
		out[i] = names
	}
	return out, nil
}

// RankWithContributions is Rank, keeping the contribution magnitudes.
func RankWithContributions(x Matrix, coefficients []float64, k int, groups []Group) ([][]Factor, error) {
	if k > len(coefficients) {
		return nil, &InvalidParameterError{
			Param:     "k",
			Requested: k,
			Available: len(coefficients),
		}
	}
	if k < 1 {
		return nil, &InvalidParameterError{Param: "k", Requested: k, Available: len(coefficients), Minimum: 1}
	}
	if len(coefficients) != len(x.Columns) {
		return nil, &InvalidParameterError{
			Param:     "coefficients",
			Requested: len(coefficients),
			Available: len(x.Columns),
			Reason:    "coefficient vector must have one entry per feature column",
		}
	}
	for i, row := range x.Rows {
		if len(row) != len(x.Columns) {
			return nil, fmt.Errorf("row %d has %d values for %d columns", i, len(row), len(x.Columns))
		}
	}

	w, err := newWorkspace(x, coefficients)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if err := w.addGroup(g); err != nil {
			return nil, err
		}
	}
	return w.rank(k), nil
}

// workspace is a private copy of the inputs; synthesized columns are appended to it.
type workspace struct {
	columns []string
	index   map[string]int
	coefs   []float64
	rows    [][]float64
}

func newWorkspace(x Matrix, coefficients []float64) (*workspace, error) {
	w := &workspace{
		columns: append([]string(nil), x.Columns...),
		index:   make(map[string]int, len(x.Columns)),
		coefs:   append([]float64(nil), coefficients...),
		rows:    make([][]float64, len(x.Rows)),
	}
	for i, name := range w.columns {
		if _, dup := w.index[name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", name)
		}
		w.index[name] = i
	}
	for i, row := range x.Rows {
		w.rows[i] = append(make([]float64, 0, len(row)+4), row...)
	}
	return w, nil
}

func (w *workspace) addGroup(g Group) error {
	var present []int
	var missing []string
	seen := make(map[string]struct{}, len(g.Levels))
	for _, level := range g.Levels {
		if _, dup := seen[level]; dup {
			continue
		}
		seen[level] = struct{}{}
		if j, ok := w.index[g.ColumnName(level)]; ok {
			present = append(present, j)
		} else {
			missing = append(missing, level)
		}
	}
	if len(present) == 0 {
		return &GroupError{Variable: g.Variable, Reason: "no encoded column matches any of its levels"}
	}
	if len(missing) > 1 {
		return &GroupError{
			Variable: g.Variable,
			Reason:   fmt.Sprintf("levels %v have no encoded column; only the baseline level may be absent", missing),
		}
	}

	cols := present
	if len(missing) == 1 {
		name := g.ColumnName(missing[0])
		for i, row := range w.rows {
			sum := 0.0
			for _, j := range present {
				sum += row[j]
			}
			w.rows[i] = append(row, 1-sum)
		}
		w.index[name] = len(w.columns)
		cols = append(cols, len(w.columns))
		w.columns = append(w.columns, name)
		w.coefs = append(w.coefs, 0)
	}

	mean := 0.0
	for _, j := range cols {
		mean += w.coefs[j]
	}
	mean /= float64(len(cols))
	for _, j := range cols {
		w.coefs[j] -= mean
	}
	return nil
}

func (w *workspace) rank(k int) [][]Factor {
	out := make([][]Factor, len(w.rows))
	for i, row := range w.rows {
		contributions := make([]Factor, len(w.columns))
		for j, name := range w.columns {
			contributions[j] = Factor{Name: name, Contribution: math.Abs(row[j] * w.coefs[j])}
		}
		out[i] = descending(contributions)[:k]
	}
	return out
}

// descending sorts by contribution, largest first, keeping column order for ties.
func descending(fs []Factor) []Factor {
	sort.SliceStable(fs, func(a, b int) bool {
		return fs[a].Contribution > fs[b].Contribution
	})
	return fs
}
