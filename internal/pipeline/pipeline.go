// Package pipeline turns a raw frame into a numeric design matrix: target
// conversion, imputation or null dropping, and one-hot encoding of categorical
// columns into "<var>.<level>" indicators with the first level as baseline.
package pipeline

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/your-org/healthcareai-go/internal/factors"
	"github.com/your-org/healthcareai-go/internal/frame"
)

// Model types.
const (
	Classification = "classification"
	Regression     = "regression"
)

var (
	// ErrInvalidInput is wrapped by every validation failure.
	ErrInvalidInput = errors.New("invalid model input")
	// ErrNotFitted is returned by Transform before Fit.
	ErrNotFitted = errors.New("pipeline is not fitted")
	// ErrNoRows is returned when nothing is left after dropping nulls.
	ErrNoRows = errors.New("no rows left after data preparation")
)

// Options configure a pipeline.
type Options struct {
	ModelType       string `json:"model_type"`
	PredictedColumn string `json:"predicted_column"`
	GrainColumn     string `json:"grain_column,omitempty"`
	Impute          bool   `json:"impute"`
}

// Categorical is an encoded variable with every level seen at fit time,
// sorted. Levels[0] is the baseline and has no indicator column.
type Categorical struct {
	Variable string   `json:"variable"`
	Levels   []string `json:"levels"`
}

// Pipeline holds the fitted preparation state so that scoring data is
// prepared exactly like training data.
type Pipeline struct {
	Options     Options            `json:"options"`
	Numeric     []string           `json:"numeric"`
	Categorical []Categorical      `json:"categorical"`
	Means       map[string]float64 `json:"means"`
	Modes       map[string]string  `json:"modes"`
	Features    []string           `json:"features"`
	// order of raw input columns, numeric and categorical interleaved
	Inputs []string `json:"inputs"`
}

// Dataset is a prepared design matrix. Y is nil for scoring data.
type Dataset struct {
	Features []string
	X        *mat.Dense
	Y        []float64
	Grain    []string
	// Source is the row index in the input frame for every dataset row.
	Source []int
}

// NumRows returns the number of observations.
func (d *Dataset) NumRows() int {
	if d.X == nil {
		return 0
	}
	r, _ := d.X.Dims()
	return r
}

// Row returns a view of row i.
func (d *Dataset) Row(i int) []float64 { return d.X.RawRowView(i) }

// Subset copies the given rows into a new dataset.
func (d *Dataset) Subset(rows []int) *Dataset {
	_, c := d.X.Dims()
	data := make([]float64, 0, len(rows)*c)
	out := &Dataset{Features: d.Features, Source: make([]int, len(rows))}
	if d.Y != nil {
		out.Y = make([]float64, len(rows))
	}
	if d.Grain != nil {
		out.Grain = make([]string, len(rows))
	}
	for i, r := range rows {
		data = append(data, d.X.RawRowView(r)...)
		out.Source[i] = d.Source[r]
		if d.Y != nil {
			out.Y[i] = d.Y[r]
		}
		if d.Grain != nil {
			out.Grain[i] = d.Grain[r]
		}
	}
	if len(rows) > 0 {
		out.X = mat.NewDense(len(rows), c, data)
	}
	return out
}

// New returns an unfitted pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{Options: opts}
}

// Groups returns the categorical variables as ranker groups, with every level.
func (p *Pipeline) Groups() []factors.Group {
	out := make([]factors.Group, len(p.Categorical))
	for i, c := range p.Categorical {
		out[i] = factors.Group{Variable: c.Variable, Levels: append([]string(nil), c.Levels...)}
	}
	return out
}

func (p *Pipeline) fitted() bool { return p.Features != nil }

// FitTransform learns imputation values and levels from f and returns the
// prepared training set, target included. Rows with a null target are dropped.
func (p *Pipeline) FitTransform(f *frame.Frame) (*Dataset, error) {
	target, ok := f.Column(p.Options.PredictedColumn)
	if !ok {
		return nil, fmt.Errorf("%w: predicted column %q not found", ErrInvalidInput, p.Options.PredictedColumn)
	}

	features := f.Drop(p.Options.PredictedColumn, p.Options.GrainColumn)
	keep := make([]int, 0, f.NumRows())
	for i := 0; i < f.NumRows(); i++ {
		if target.Missing(i) {
			continue
		}
		if !p.Options.Impute && rowHasMissing(features, i) {
			continue
		}
		keep = append(keep, i)
	}
	if len(keep) == 0 {
		return nil, ErrNoRows
	}
	training := features.Take(keep)

	p.Numeric, p.Categorical, p.Inputs = nil, nil, nil
	p.Means = make(map[string]float64)
	p.Modes = make(map[string]string)
	for _, c := range training.Columns() {
		p.Inputs = append(p.Inputs, c.Name)
		if c.IsNumeric() {
			vals, err := c.Floats()
			if err != nil {
				return nil, err
			}
			p.Numeric = append(p.Numeric, c.Name)
			p.Means[c.Name] = nanMean(vals)
			continue
		}
		levels := c.Unique()
		if len(levels) < 2 {
			// constant or all-null column carries no information
			continue
		}
		p.Categorical = append(p.Categorical, Categorical{Variable: c.Name, Levels: levels})
		p.Modes[c.Name] = mode(c)
	}
	p.Features = p.encodedNames()
	if len(p.Features) == 0 {
		return nil, fmt.Errorf("%w: no usable feature columns", ErrInvalidInput)
	}

	ds, err := p.transform(f, keep)
	if err != nil {
		return nil, err
	}
	y, err := p.convertTarget(target, keep)
	if err != nil {
		return nil, err
	}
	ds.Y = y
	return ds, nil
}

// Transform prepares scoring data with the fitted state. The target column,
// if present, is ignored. Without imputation, rows with nulls are dropped and
// Dataset.Source tells which input rows survived.
func (p *Pipeline) Transform(f *frame.Frame) (*Dataset, error) {
	if !p.fitted() {
		return nil, ErrNotFitted
	}
	features := f.Drop(p.Options.PredictedColumn, p.Options.GrainColumn)
	keep := make([]int, 0, f.NumRows())
	for i := 0; i < f.NumRows(); i++ {
		if !p.Options.Impute && rowHasMissing(features, i) {
			continue
		}
		keep = append(keep, i)
	}
	if len(keep) == 0 {
		return nil, ErrNoRows
	}
	return p.transform(f, keep)
}

func (p *Pipeline) encodedNames() []string {
	cats := make(map[string]Categorical, len(p.Categorical))
	for _, c := range p.Categorical {
		cats[c.Variable] = c
	}
	names := make([]string, 0, len(p.Inputs))
	for _, in := range p.Inputs {
		if c, ok := cats[in]; ok {
			for _, level := range c.Levels[1:] {
				names = append(names, in+factors.LevelSeparator+level)
			}
			continue
		}
		if _, ok := p.Means[in]; ok {
			names = append(names, in)
		}
	}
	return names
}

func (p *Pipeline) transform(f *frame.Frame, rows []int) (*Dataset, error) {
	cats := make(map[string]Categorical, len(p.Categorical))
	for _, c := range p.Categorical {
		cats[c.Variable] = c
	}

	data := make([]float64, len(rows)*len(p.Features))
	offset := 0
	for _, in := range p.Inputs {
		col, ok := f.Column(in)
		if c, isCat := cats[in]; isCat {
			width := len(c.Levels) - 1
			if !ok && !p.Options.Impute {
				return nil, fmt.Errorf("%w: column %q is missing", ErrInvalidInput, in)
			}
			pos := make(map[string]int, width)
			for i, level := range c.Levels[1:] {
				pos[level] = i
			}
			for r, src := range rows {
				v := p.Modes[in]
				if ok && !col.Missing(src) {
					v = strings.TrimSpace(col.Cells[src])
				}
				// unseen levels encode like the baseline
				if j, ok := pos[v]; ok {
					data[r*len(p.Features)+offset+j] = 1
				}
			}
			offset += width
			continue
		}
		if _, isNum := p.Means[in]; !isNum {
			continue
		}
		if !ok && !p.Options.Impute {
			return nil, fmt.Errorf("%w: column %q is missing", ErrInvalidInput, in)
		}
		for r, src := range rows {
			v := p.Means[in]
			if ok && !col.Missing(src) {
				parsed, err := strconv.ParseFloat(strings.TrimSpace(col.Cells[src]), 64)
				if err != nil {
					return nil, fmt.Errorf("%w: column %q row %d: %q is not numeric", ErrInvalidInput, in, src, col.Cells[src])
				}
				v = parsed
			}
			data[r*len(p.Features)+offset] = v
		}
		offset++
	}

	ds := &Dataset{
		Features: append([]string(nil), p.Features...),
		X:        mat.NewDense(len(rows), len(p.Features), data),
		Source:   append([]int(nil), rows...),
	}
	if g, ok := f.Column(p.Options.GrainColumn); ok && p.Options.GrainColumn != "" {
		ds.Grain = make([]string, len(rows))
		for i, src := range rows {
			ds.Grain[i] = g.Cells[src]
		}
	}
	return ds, nil
}

func (p *Pipeline) convertTarget(target *frame.Column, rows []int) ([]float64, error) {
	y := make([]float64, len(rows))
	for i, src := range rows {
		v := strings.TrimSpace(target.Cells[src])
		if p.Options.ModelType == Classification {
			switch v {
			case "Y":
				y[i] = 1
			case "N":
				y[i] = 0
			default:
				return nil, fmt.Errorf("%w: predicted column value %q is not Y or N", ErrInvalidInput, v)
			}
			continue
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: predicted column value %q is not numeric", ErrInvalidInput, v)
		}
		y[i] = parsed
	}
	return y, nil
}

func rowHasMissing(f *frame.Frame, i int) bool {
	for _, c := range f.Columns() {
		if c.Missing(i) {
			return true
		}
	}
	return false
}

func nanMean(vals []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// mode returns the most frequent non-null value; ties go to the smallest.
func mode(c *frame.Column) string {
	counts := make(map[string]int)
	for i, s := range c.Cells {
		if !c.Missing(i) {
			counts[strings.TrimSpace(s)]++
		}
	}
	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Strings(values)
	best := ""
	for _, v := range values {
		if best == "" || counts[v] > counts[best] {
			best = v
		}
	}
	return best
}
