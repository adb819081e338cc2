// Package trainer drives supervised model training end to end: input
// validation, data preparation, the train/test split and the algorithm
// specific fits, ending in a TrainedModel that can score new data.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/healthcareai-go/internal/evaluation"
	"github.com/your-org/healthcareai-go/internal/frame"
	"github.com/your-org/healthcareai-go/internal/model"
	"github.com/your-org/healthcareai-go/internal/pipeline"
	"github.com/your-org/healthcareai-go/pkg/logger"
)

// ErrModelTypeMismatch is returned when an algorithm is asked of a trainer
// with the wrong model type, e.g. logistic regression for regression.
var ErrModelTypeMismatch = errors.New("algorithm does not match the trainer model type")

const (
	defaultTestSize = 0.2
	defaultTrees    = 200
	defaultFolds    = 5
)

// Options configure a SupervisedModelTrainer.
type Options struct {
	PredictedColumn string
	ModelType       string
	GrainColumn     string
	// Impute fills nulls with column means and modes; when false rows with
	// nulls are dropped.
	Impute   bool
	TestSize float64
	Seed     int64
	// Trees per random forest, 200 when zero.
	Trees int
	// Folds for hyperparameter search, 5 when zero.
	Folds  int
	Logger *zap.Logger
}

// SupervisedModelTrainer prepares a dataset once and trains any of the
// supported algorithms against the same split.
type SupervisedModelTrainer struct {
	opts     Options
	pipeline *pipeline.Pipeline
	clean    *pipeline.Dataset
	train    *pipeline.Dataset
	test     *pipeline.Dataset
	log      *zap.Logger
}

// New validates f for the requested model type, fits the preparation
// pipeline and splits the cleaned data.
func New(f *frame.Frame, opts Options) (*SupervisedModelTrainer, error) {
	if opts.TestSize == 0 {
		opts.TestSize = defaultTestSize
	}
	if opts.Trees == 0 {
		opts.Trees = defaultTrees
	}
	if opts.Folds == 0 {
		opts.Folds = defaultFolds
	}
	log := opts.Logger
	if log == nil {
		log = logger.L()
	}

	if err := pipeline.ValidateModelInput(f, opts.ModelType, opts.PredictedColumn); err != nil {
		return nil, err
	}
	p := pipeline.New(pipeline.Options{
		ModelType:       opts.ModelType,
		PredictedColumn: opts.PredictedColumn,
		GrainColumn:     opts.GrainColumn,
		Impute:          opts.Impute,
	})
	clean, err := p.FitTransform(f)
	if err != nil {
		return nil, err
	}
	train, test, err := pipeline.TrainTestSplit(clean, opts.TestSize, opts.Seed, opts.ModelType == pipeline.Classification)
	if err != nil {
		return nil, err
	}
	log.Debug("Prepared training data",
		zap.Int("rows", clean.NumRows()),
		zap.Int("features", len(clean.Features)),
		zap.Int("train", train.NumRows()),
		zap.Int("test", test.NumRows()))

	return &SupervisedModelTrainer{
		opts:     opts,
		pipeline: p,
		clean:    clean,
		train:    train,
		test:     test,
		log:      log,
	}, nil
}

// CleanDataset returns the data after preparation, before the split.
func (t *SupervisedModelTrainer) CleanDataset() *pipeline.Dataset { return t.clean }

// ModelType is classification or regression.
func (t *SupervisedModelTrainer) ModelType() string { return t.opts.ModelType }

func (t *SupervisedModelTrainer) isClassification() bool {
	return t.opts.ModelType == pipeline.Classification
}

func (t *SupervisedModelTrainer) scoringMetric() string {
	if t.isClassification() {
		return evaluation.MetricROCAUC
	}
	return evaluation.MetricNegMSE
}

// KNN searches the neighbour count and weighting by cross-validation.
func (t *SupervisedModelTrainer) KNN(ctx context.Context) (*TrainedModel, error) {
	t.log.Info("Training KNN")
	var candidates []model.Candidate
	for _, weights := range []string{model.WeightsUniform, model.WeightsDistance} {
		for k := 5; k <= 25; k += 5 {
			candidates = append(candidates, model.Candidate{
				Label: "k=" + strconv.Itoa(k) + " weights=" + weights,
				New:   func() model.Model { return model.NewKNN(k, weights) },
			})
		}
	}
	tm, err := t.search(ctx, "KNN", candidates)
	if err != nil {
		return nil, err
	}
	tm.PrintTrainingResults(nil)
	return tm, nil
}

// RandomForest dispatches on the model type.
func (t *SupervisedModelTrainer) RandomForest(ctx context.Context) (*TrainedModel, error) {
	if t.isClassification() {
		return t.RandomForestClassification(ctx)
	}
	return t.RandomForestRegression(ctx)
}

// RandomForestClassification logs feature importances alongside the
// training results.
func (t *SupervisedModelTrainer) RandomForestClassification(ctx context.Context) (*TrainedModel, error) {
	if !t.isClassification() {
		return nil, fmt.Errorf("%w: random forest classification on a %s trainer", ErrModelTypeMismatch, t.opts.ModelType)
	}
	t.log.Info("Training Random Forest Classification")
	tm, err := t.search(ctx, "Random Forest Classification", t.forestCandidates(true))
	if err != nil {
		return nil, err
	}
	tm.PrintTrainingResults(nil)
	t.logImportances(tm)
	return tm, nil
}

func (t *SupervisedModelTrainer) RandomForestRegression(ctx context.Context) (*TrainedModel, error) {
	if t.isClassification() {
		return nil, fmt.Errorf("%w: random forest regression on a %s trainer", ErrModelTypeMismatch, t.opts.ModelType)
	}
	t.log.Info("Training Random Forest Regression")
	tm, err := t.search(ctx, "Random Forest Regression", t.forestCandidates(false))
	if err != nil {
		return nil, err
	}
	tm.PrintTrainingResults(nil)
	return tm, nil
}

func (t *SupervisedModelTrainer) forestCandidates(classification bool) []model.Candidate {
	options := []string{model.MaxFeaturesAll, model.MaxFeaturesLog2}
	if classification {
		options = []string{model.MaxFeaturesSqrt, model.MaxFeaturesLog2}
	}
	out := make([]model.Candidate, len(options))
	for i, mf := range options {
		out[i] = model.Candidate{
			Label: "max_features=" + mf,
			New: func() model.Model {
				rf := model.NewRandomForest(t.opts.Trees, classification, t.opts.Seed)
				rf.MaxFeatures = mf
				return rf
			},
		}
	}
	return out
}

func (t *SupervisedModelTrainer) LogisticRegression(ctx context.Context) (*TrainedModel, error) {
	if !t.isClassification() {
		return nil, fmt.Errorf("%w: logistic regression on a %s trainer", ErrModelTypeMismatch, t.opts.ModelType)
	}
	t.log.Info("Training Logistic Regression")
	tm, err := t.fit(ctx, "Logistic Regression", model.NewLogisticRegression())
	if err != nil {
		return nil, err
	}
	tm.PrintTrainingResults(nil)
	return tm, nil
}

func (t *SupervisedModelTrainer) LinearRegression(ctx context.Context) (*TrainedModel, error) {
	if t.isClassification() {
		return nil, fmt.Errorf("%w: linear regression on a %s trainer", ErrModelTypeMismatch, t.opts.ModelType)
	}
	t.log.Info("Training Linear Regression")
	tm, err := t.fit(ctx, "Linear Regression", model.NewLinearRegression())
	if err != nil {
		return nil, err
	}
	tm.PrintTrainingResults(nil)
	return tm, nil
}

// Ensemble trains the algorithm family for the model type and keeps the one
// with the best test score.
func (t *SupervisedModelTrainer) Ensemble(ctx context.Context) (*TrainedModel, error) {
	t.log.Info("Training ensemble " + t.opts.ModelType)
	metric := t.scoringMetric()

	var contenders []func(context.Context) (*TrainedModel, error)
	if t.isClassification() {
		contenders = append(contenders, t.KNN, t.LogisticRegression, t.RandomForestClassification)
	} else {
		contenders = append(contenders, t.LinearRegression, t.RandomForestRegression, t.KNN)
	}

	var best *TrainedModel
	bestScore := 0.0
	for _, train := range contenders {
		tm, err := train(ctx)
		if err != nil {
			return nil, err
		}
		s := tm.Score(metric)
		if best == nil || s > bestScore {
			best, bestScore = tm, s
		}
	}
	t.log.Info("Based on the scoring metric "+metric+", the best algorithm found is: "+best.AlgorithmName,
		zap.Float64("score", bestScore))
	best.PrintTrainingResults(nil)
	return best, nil
}

// Train runs an algorithm by its configuration name.
func (t *SupervisedModelTrainer) Train(ctx context.Context, algorithm string) (*TrainedModel, error) {
	switch algorithm {
	case model.AlgKNN:
		return t.KNN(ctx)
	case model.AlgRandomForest:
		return t.RandomForest(ctx)
	case model.AlgLogisticRegression:
		return t.LogisticRegression(ctx)
	case model.AlgLinearRegression:
		return t.LinearRegression(ctx)
	case "ensemble":
		return t.Ensemble(ctx)
	}
	return nil, fmt.Errorf("unknown algorithm %q", algorithm)
}

func (t *SupervisedModelTrainer) search(ctx context.Context, name string, candidates []model.Candidate) (*TrainedModel, error) {
	score, err := evaluation.Score(t.scoringMetric())
	if err != nil {
		return nil, err
	}
	folds := min(t.opts.Folds, t.train.NumRows())
	gs := &model.GridSearch{Candidates: candidates, Folds: folds, Seed: t.opts.Seed, Score: score}
	best, results, err := gs.Fit(ctx, t.train.X, t.train.Y)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	for _, r := range results {
		t.log.Debug("Cross-validation result",
			zap.String("algorithm", name),
			zap.String("candidate", r.Label),
			zap.Float64("mean", r.Mean),
			zap.Float64("std", r.StdDev))
	}
	return t.finish(ctx, name, best)
}

func (t *SupervisedModelTrainer) fit(ctx context.Context, name string, m model.Model) (*TrainedModel, error) {
	if err := m.Fit(ctx, t.train.X, t.train.Y); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return t.finish(ctx, name, m)
}

// finish scores the fitted model on the test split and attaches the linear
// model used for top factors.
func (t *SupervisedModelTrainer) finish(ctx context.Context, name string, m model.Model) (*TrainedModel, error) {
	pred, err := m.Predict(t.test.X)
	if err != nil {
		return nil, err
	}
	tm := &TrainedModel{
		ID:            uuid.NewString(),
		AlgorithmName: name,
		ModelType:     t.opts.ModelType,
		Model:         m,
		Pipeline:      t.pipeline,
		TrainedAt:     time.Now().UTC(),
		log:           t.log,
	}
	if t.isClassification() {
		metrics, err := evaluation.Classification(t.test.Y, pred)
		if err != nil {
			return nil, fmt.Errorf("%s: score test split: %w", name, err)
		}
		tm.Classification = &metrics
	} else {
		metrics, err := evaluation.Regression(t.test.Y, pred)
		if err != nil {
			return nil, fmt.Errorf("%s: score test split: %w", name, err)
		}
		tm.Regression = &metrics
	}

	if lm, ok := m.(model.LinearModel); ok {
		tm.FactorModel = lm
	} else if tm.FactorModel, err = t.factorModel(ctx); err != nil {
		return nil, err
	}
	return tm, nil
}

// factorModel fits the linear model whose coefficients rank top factors for
// algorithms without their own.
func (t *SupervisedModelTrainer) factorModel(ctx context.Context) (model.LinearModel, error) {
	var lm model.LinearModel = model.NewLinearRegression()
	if t.isClassification() {
		lm = model.NewLogisticRegression()
	}
	if err := lm.Fit(ctx, t.train.X, t.train.Y); err != nil {
		return nil, fmt.Errorf("fit factor model: %w", err)
	}
	return lm, nil
}

func (t *SupervisedModelTrainer) logImportances(tm *TrainedModel) {
	imp, ok := tm.Model.(model.Importancer)
	if !ok {
		return
	}
	values := imp.FeatureImportances()
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] > values[order[b]] })
	fields := make([]zap.Field, 0, len(order))
	for _, i := range order {
		fields = append(fields, zap.Float64(t.clean.Features[i], values[i]))
	}
	t.log.Info("Random forest feature importances", fields...)
}
