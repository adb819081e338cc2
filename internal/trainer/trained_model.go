package trainer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/healthcareai-go/internal/evaluation"
	"github.com/your-org/healthcareai-go/internal/factors"
	"github.com/your-org/healthcareai-go/internal/frame"
	"github.com/your-org/healthcareai-go/internal/model"
	"github.com/your-org/healthcareai-go/internal/pipeline"
	"github.com/your-org/healthcareai-go/pkg/logger"
)

// TrainedModel is a fitted estimator together with the preparation pipeline
// it was trained behind and its test split metrics.
type TrainedModel struct {
	ID            string
	AlgorithmName string
	ModelType     string
	Model         model.Model
	Pipeline      *pipeline.Pipeline
	// FactorModel supplies the coefficients for top factors. It is Model
	// itself for linear algorithms.
	FactorModel    model.LinearModel
	Classification *evaluation.ClassificationMetrics
	Regression     *evaluation.RegressionMetrics
	TrainedAt      time.Time

	log *zap.Logger
}

// Prediction is the score of one input row.
type Prediction struct {
	// Row is the index in the scored frame.
	Row        int      `json:"row"`
	Grain      string   `json:"grain,omitempty"`
	Prediction float64  `json:"prediction"`
	Factors    []string `json:"factors,omitempty"`

	// Contributions holds |value x coefficient| for each factor.
	Contributions []float64 `json:"contributions,omitempty"`
}

// Score returns the named test metric, higher is better.
func (m *TrainedModel) Score(metric string) float64 {
	switch {
	case m.Classification != nil && metric == evaluation.MetricROCAUC:
		return m.Classification.ROCAUC
	case m.Classification != nil && metric == evaluation.MetricPRAUC:
		return m.Classification.PRAUC
	case m.Classification != nil && metric == evaluation.MetricAcc:
		return m.Classification.Accuracy
	case m.Regression != nil && metric == evaluation.MetricNegMSE:
		return -m.Regression.MSE
	case m.Regression != nil && metric == evaluation.MetricNegMAE:
		return -m.Regression.MAE
	case m.Regression != nil && metric == evaluation.MetricR2:
		return m.Regression.R2
	}
	return 0
}

// Predict scores every row of f that survives preparation.
func (m *TrainedModel) Predict(f *frame.Frame) ([]Prediction, error) {
	ds, err := m.Pipeline.Transform(f)
	if err != nil {
		return nil, err
	}
	scores, err := m.Model.Predict(ds.X)
	if err != nil {
		return nil, err
	}
	out := make([]Prediction, len(scores))
	for i, s := range scores {
		out[i] = Prediction{Row: ds.Source[i], Prediction: s}
		if ds.Grain != nil {
			out[i].Grain = ds.Grain[i]
		}
	}
	return out, nil
}

// TopFactors returns the k most influential features of every prepared row
// of f, categorical indicators reported as "<var>.<level>".
func (m *TrainedModel) TopFactors(f *frame.Frame, k int) ([][]string, error) {
	ds, err := m.Pipeline.Transform(f)
	if err != nil {
		return nil, err
	}
	ranked, err := m.topFactors(ds, k)
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(ranked))
	for i, row := range ranked {
		out[i] = make([]string, len(row))
		for j, fc := range row {
			out[i][j] = fc.Name
		}
	}
	return out, nil
}

func (m *TrainedModel) topFactors(ds *pipeline.Dataset, k int) ([][]factors.Factor, error) {
	if m.FactorModel == nil {
		return nil, fmt.Errorf("%s has no factor model", m.AlgorithmName)
	}
	x := factors.FromDense(ds.Features, ds.X)
	return factors.RankWithContributions(x, m.FactorModel.Coefficients(), k, m.Pipeline.Groups())
}

// PredictWithFactors scores f and attaches the top k factors of each row.
func (m *TrainedModel) PredictWithFactors(f *frame.Frame, k int) ([]Prediction, error) {
	ds, err := m.Pipeline.Transform(f)
	if err != nil {
		return nil, err
	}
	top, err := m.topFactors(ds, k)
	if err != nil {
		return nil, err
	}
	scores, err := m.Model.Predict(ds.X)
	if err != nil {
		return nil, err
	}
	out := make([]Prediction, len(scores))
	for i, s := range scores {
		out[i] = Prediction{Row: ds.Source[i], Prediction: s}
		for _, fc := range top[i] {
			out[i].Factors = append(out[i].Factors, fc.Name)
			out[i].Contributions = append(out[i].Contributions, fc.Contribution)
		}
		if ds.Grain != nil {
			out[i].Grain = ds.Grain[i]
		}
	}
	return out, nil
}

// PrintTrainingResults logs the test metrics and, when w is not nil, writes
// them as a short report.
func (m *TrainedModel) PrintTrainingResults(w io.Writer) {
	l := m.log
	if l == nil {
		l = logger.L()
	}
	switch {
	case m.Classification != nil:
		l.Info("Training results",
			zap.String("algorithm", m.AlgorithmName),
			zap.Float64("roc_auc", m.Classification.ROCAUC),
			zap.Float64("pr_auc", m.Classification.PRAUC),
			zap.Float64("accuracy", m.Classification.Accuracy))
		if w != nil {
			fmt.Fprintf(w, "%s Training Results:\n- Trained in: %s\n- ROC AUC: %.6f\n- PR AUC: %.6f\n- Accuracy: %.6f\n",
				m.AlgorithmName, m.TrainedAt.Format(time.RFC3339), m.Classification.ROCAUC, m.Classification.PRAUC, m.Classification.Accuracy)
		}
	case m.Regression != nil:
		l.Info("Training results",
			zap.String("algorithm", m.AlgorithmName),
			zap.Float64("mse", m.Regression.MSE),
			zap.Float64("rmse", m.Regression.RMSE),
			zap.Float64("mae", m.Regression.MAE),
			zap.Float64("r2", m.Regression.R2))
		if w != nil {
			fmt.Fprintf(w, "%s Training Results:\n- Trained in: %s\n- Mean Squared Error: %.6f\n- Root Mean Squared Error: %.6f\n- Mean Absolute Error: %.6f\n- R2: %.6f\n",
				m.AlgorithmName, m.TrainedAt.Format(time.RFC3339), m.Regression.MSE, m.Regression.RMSE, m.Regression.MAE, m.Regression.R2)
		}
	}
}

type savedModel struct {
	ID               string                            `json:"id"`
	Algorithm        string                            `json:"algorithm"`
	ModelType        string                            `json:"model_type"`
	TrainedAt        time.Time                         `json:"trained_at"`
	Pipeline         *pipeline.Pipeline                `json:"pipeline"`
	Model            json.RawMessage                   `json:"model"`
	FactorModel      json.RawMessage                   `json:"factor_model,omitempty"`
	FactorsFromModel bool                              `json:"factors_from_model"`
	Classification   *evaluation.ClassificationMetrics `json:"classification,omitempty"`
	Regression       *evaluation.RegressionMetrics     `json:"regression,omitempty"`
}

// Save writes the model as JSON.
func (m *TrainedModel) Save(w io.Writer) error {
	est, err := model.Marshal(m.Model)
	if err != nil {
		return err
	}
	s := savedModel{
		ID:             m.ID,
		Algorithm:      m.AlgorithmName,
		ModelType:      m.ModelType,
		TrainedAt:      m.TrainedAt,
		Pipeline:       m.Pipeline,
		Model:          est,
		Classification: m.Classification,
		Regression:     m.Regression,
	}
	if lm, ok := m.Model.(model.LinearModel); ok && lm == m.FactorModel {
		s.FactorsFromModel = true
	} else if m.FactorModel != nil {
		if s.FactorModel, err = model.Marshal(m.FactorModel); err != nil {
			return err
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// Load reads a model written by Save.
func Load(r io.Reader) (*TrainedModel, error) {
	var s savedModel
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode trained model: %w", err)
	}
	if s.Pipeline == nil {
		return nil, fmt.Errorf("decode trained model: missing pipeline")
	}
	est, err := model.Unmarshal(s.Model)
	if err != nil {
		return nil, err
	}
	tm := &TrainedModel{
		ID:             s.ID,
		AlgorithmName:  s.Algorithm,
		ModelType:      s.ModelType,
		Model:          est,
		Pipeline:       s.Pipeline,
		Classification: s.Classification,
		Regression:     s.Regression,
		TrainedAt:      s.TrainedAt,
	}
	switch {
	case s.FactorsFromModel:
		lm, ok := est.(model.LinearModel)
		if !ok {
			return nil, fmt.Errorf("decode trained model: %s has no coefficients", est.Name())
		}
		tm.FactorModel = lm
	case len(s.FactorModel) > 0:
		fm, err := model.Unmarshal(s.FactorModel)
		if err != nil {
			return nil, err
		}
		lm, ok := fm.(model.LinearModel)
		if !ok {
			return nil, fmt.Errorf("decode trained model: factor model %s has no coefficients", fm.Name())
		}
		tm.FactorModel = lm
	}
	return tm, nil
}

// SaveFile writes the model to path.
func (m *TrainedModel) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	if err := m.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile reads a model saved with SaveFile.
func LoadFile(path string) (*TrainedModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()
	return Load(f)
}
