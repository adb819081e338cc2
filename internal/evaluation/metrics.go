// Package evaluation scores predictions against held-out truth.
package evaluation

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrLengthMismatch = errors.New("truth and prediction lengths differ")
	ErrEmpty          = errors.New("no observations to score")
	ErrSingleClass    = errors.New("only one class present in truth")
	ErrUnknownMetric  = errors.New("unknown scoring metric")
)

// Metric names accepted by Score. All scores are "higher is better".
const (
	MetricROCAUC = "roc_auc"
	MetricPRAUC  = "pr_auc"
	MetricAcc    = "accuracy"
	MetricNegMSE = "neg_mean_squared_error"
	MetricNegMAE = "neg_mean_absolute_error"
	MetricR2     = "r2"
)

// ClassificationMetrics summarise a binary classifier on a test split.
type ClassificationMetrics struct {
	ROCAUC   float64 `json:"roc_auc"`
	PRAUC    float64 `json:"pr_auc"`
	Accuracy float64 `json:"accuracy"`
}

// RegressionMetrics summarise a regressor on a test split.
type RegressionMetrics struct {
	MSE  float64 `json:"mean_squared_error"`
	RMSE float64 `json:"root_mean_squared_error"`
	MAE  float64 `json:"mean_absolute_error"`
	R2   float64 `json:"r2"`
}

// Scorer maps truth and predictions to a score where higher is better.
type Scorer func(truth, pred []float64) (float64, error)

// Score looks a scorer up by name.
func Score(metric string) (Scorer, error) {
	switch metric {
	case MetricROCAUC:
		return ROCAUC, nil
	case MetricPRAUC:
		return PRAUC, nil
	case MetricAcc:
		return func(truth, pred []float64) (float64, error) { return Accuracy(truth, pred, 0.5) }, nil
	case MetricNegMSE:
		return func(truth, pred []float64) (float64, error) {
			v, err := MeanSquaredError(truth, pred)
			return -v, err
		}, nil
	case MetricNegMAE:
		return func(truth, pred []float64) (float64, error) {
			v, err := MeanAbsoluteError(truth, pred)
			return -v, err
		}, nil
	case MetricR2:
		return RSquared, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
}

func check(truth, pred []float64) error {
	if len(truth) != len(pred) {
		return fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(truth), len(pred))
	}
	if len(truth) == 0 {
		return ErrEmpty
	}
	return nil
}

// sortedByScore returns scores ascending with their classes aligned.
func sortedByScore(truth, scores []float64) ([]float64, []bool, error) {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	y := make([]float64, len(idx))
	classes := make([]bool, len(idx))
	pos := 0
	for i, j := range idx {
		y[i] = scores[j]
		classes[i] = truth[j] == 1
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(idx) {
		return nil, nil, ErrSingleClass
	}
	return y, classes, nil
}

// ROCAUC is the area under the receiver operating characteristic curve.
// truth holds 1 for positives and 0 for negatives.
func ROCAUC(truth, scores []float64) (float64, error) {
	if err := check(truth, scores); err != nil {
		return 0, err
	}
	y, classes, err := sortedByScore(truth, scores)
	if err != nil {
		return 0, err
	}
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// PRAUC is the average precision: precision at each threshold weighted by the
// recall gained there.
func PRAUC(truth, scores []float64) (float64, error) {
	if err := check(truth, scores); err != nil {
		return 0, err
	}
	y, classes, err := sortedByScore(truth, scores)
	if err != nil {
		return 0, err
	}
	positives := 0.0
	for _, c := range classes {
		if c {
			positives++
		}
	}

	ap, tp, seen, prevRecall := 0.0, 0.0, 0.0, 0.0
	for i := len(y) - 1; i >= 0; {
		// consume every row tied at this threshold
		j := i
		for ; j >= 0 && y[j] == y[i]; j-- {
			seen++
			if classes[j] {
				tp++
			}
		}
		recall := tp / positives
		ap += (recall - prevRecall) * (tp / seen)
		prevRecall = recall
		i = j
	}
	return ap, nil
}

// Accuracy is the fraction of rows where the score, cut at threshold, matches
// the truth.
func Accuracy(truth, scores []float64, threshold float64) (float64, error) {
	if err := check(truth, scores); err != nil {
		return 0, err
	}
	hit := 0
	for i, s := range scores {
		label := 0.0
		if s >= threshold {
			label = 1
		}
		if label == truth[i] {
			hit++
		}
	}
	return float64(hit) / float64(len(truth)), nil
}

func MeanSquaredError(truth, pred []float64) (float64, error) {
	if err := check(truth, pred); err != nil {
		return 0, err
	}
	d := floats.Distance(truth, pred, 2)
	return d * d / float64(len(truth)), nil
}

func MeanAbsoluteError(truth, pred []float64) (float64, error) {
	if err := check(truth, pred); err != nil {
		return 0, err
	}
	return floats.Distance(truth, pred, 1) / float64(len(truth)), nil
}

// RSquared is the coefficient of determination of pred for truth.
func RSquared(truth, pred []float64) (float64, error) {
	if err := check(truth, pred); err != nil {
		return 0, err
	}
	return stat.RSquaredFrom(pred, truth, nil), nil
}

// Classification computes every classification metric at once.
func Classification(truth, scores []float64) (ClassificationMetrics, error) {
	var m ClassificationMetrics
	var err error
	if m.ROCAUC, err = ROCAUC(truth, scores); err != nil {
		return m, err
	}
	if m.PRAUC, err = PRAUC(truth, scores); err != nil {
		return m, err
	}
	m.Accuracy, err = Accuracy(truth, scores, 0.5)
	return m, err
}

// Regression computes every regression metric at once.
func Regression(truth, pred []float64) (RegressionMetrics, error) {
	var m RegressionMetrics
	var err error
	if m.MSE, err = MeanSquaredError(truth, pred); err != nil {
		return m, err
	}
	m.RMSE = math.Sqrt(m.MSE)
	if m.MAE, err = MeanAbsoluteError(truth, pred); err != nil {
		return m, err
	}
	m.R2, err = RSquared(truth, pred)
	return m, err
}
