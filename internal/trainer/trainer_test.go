package trainer

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/your-org/healthcareai-go/internal/frame"
	"github.com/your-org/healthcareai-go/internal/model"
	"github.com/your-org/healthcareai-go/internal/pipeline"
)

// encounters builds a synthetic readmission set: the readmit flag follows age
// with noise, length of stay follows age and gender. Unit is noise with a
// few nulls.
func encounters(t *testing.T, n int) *frame.Frame {
	t.Helper()
	rng := rand.New(rand.NewSource(20))
	var b strings.Builder
	b.WriteString("EncounterID,Age,Gender,Unit,LOS,ReadmitFLG\n")
	units := []string{"icu", "med", "surg"}
	for i := 0; i < n; i++ {
		age := 20 + rng.Float64()*60
		gender := "F"
		if rng.Intn(2) == 1 {
			gender = "M"
		}
		unit := units[rng.Intn(len(units))]
		readmit := "N"
		if age+rng.NormFloat64()*8 > 50 {
			readmit = "Y"
		}
		los := 0.1*age + 2
		if gender == "M" {
			los += 1.5
		}
		los += rng.NormFloat64() * 0.1
		if i%17 == 0 {
			unit = "NA"
		}
		fmt.Fprintf(&b, "%d,%.1f,%s,%s,%.3f,%s\n", i, age, gender, unit, los, readmit)
	}
	f, err := frame.ReadCSV(strings.NewReader(b.String()))
	require.NoError(t, err)
	return f
}

func classificationTrainer(t *testing.T, log *zap.Logger) *SupervisedModelTrainer {
	t.Helper()
	f := encounters(t, 120).Drop("LOS")
	tr, err := New(f, Options{
		PredictedColumn: "ReadmitFLG",
		ModelType:       pipeline.Classification,
		GrainColumn:     "EncounterID",
		Impute:          true,
		Seed:            1,
		Trees:           15,
		Folds:           3,
		Logger:          log,
	})
	require.NoError(t, err)
	return tr
}

func regressionTrainer(t *testing.T) *SupervisedModelTrainer {
	t.Helper()
	f := encounters(t, 120).Drop("ReadmitFLG")
	tr, err := New(f, Options{
		PredictedColumn: "LOS",
		ModelType:       pipeline.Regression,
		GrainColumn:     "EncounterID",
		Impute:          true,
		Seed:            1,
		Trees:           15,
		Folds:           3,
		Logger:          zap.NewNop(),
	})
	require.NoError(t, err)
	return tr
}

func TestNew_ValidatesInput(t *testing.T) {
	f := encounters(t, 30)
	_, err := New(f, Options{PredictedColumn: "ReadmitFLG", ModelType: pipeline.Regression, Logger: zap.NewNop()})
	assert.ErrorIs(t, err, pipeline.ErrInvalidInput)

	_, err = New(f, Options{PredictedColumn: "Unit", ModelType: pipeline.Classification, Logger: zap.NewNop()})
	assert.ErrorIs(t, err, pipeline.ErrInvalidInput)
}

func TestCleanDataset(t *testing.T) {
	tr := classificationTrainer(t, zap.NewNop())
	clean := tr.CleanDataset()
	assert.Equal(t, 120, clean.NumRows())
	assert.Equal(t, []string{"Age", "Gender.M", "Unit.med", "Unit.surg"}, clean.Features)
	assert.Equal(t, pipeline.Classification, tr.ModelType())
}

func TestLogisticRegression(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tr := classificationTrainer(t, zap.New(core))

	tm, err := tr.LogisticRegression(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tm.Classification)
	assert.Nil(t, tm.Regression)
	assert.Greater(t, tm.Classification.ROCAUC, 0.75)
	assert.Equal(t, "Logistic Regression", tm.AlgorithmName)
	assert.NotEmpty(t, tm.ID)
	assert.Same(t, tm.Model, tm.FactorModel.(model.Model), "linear models rank factors with their own coefficients")

	assert.Equal(t, 1, logs.FilterMessage("Training Logistic Regression").Len())
	assert.GreaterOrEqual(t, logs.FilterMessage("Training results").Len(), 1)
}

func TestModelTypeMismatch(t *testing.T) {
	ctx := context.Background()
	cls := classificationTrainer(t, zap.NewNop())
	_, err := cls.LinearRegression(ctx)
	assert.ErrorIs(t, err, ErrModelTypeMismatch)
	_, err = cls.RandomForestRegression(ctx)
	assert.ErrorIs(t, err, ErrModelTypeMismatch)

	reg := regressionTrainer(t)
	_, err = reg.LogisticRegression(ctx)
	assert.ErrorIs(t, err, ErrModelTypeMismatch)
	_, err = reg.RandomForestClassification(ctx)
	assert.ErrorIs(t, err, ErrModelTypeMismatch)

	_, err = reg.Train(ctx, "svm")
	assert.Error(t, err)
}

func TestRandomForest_UsesLogisticFactorModel(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tr := classificationTrainer(t, zap.New(core))

	tm, err := tr.RandomForest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.AlgRandomForest, tm.Model.Name())
	require.NotNil(t, tm.FactorModel)
	assert.Equal(t, model.AlgLogisticRegression, tm.FactorModel.Name())
	assert.Equal(t, 1, logs.FilterMessage("Random forest feature importances").Len())
}

func TestEnsemble_Classification(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tr := classificationTrainer(t, zap.New(core))

	tm, err := tr.Ensemble(context.Background())
	require.NoError(t, err)
	assert.Contains(t, []string{"KNN", "Logistic Regression", "Random Forest Classification"}, tm.AlgorithmName)

	best := logs.FilterMessageSnippet("the best algorithm found is: " + tm.AlgorithmName)
	assert.Equal(t, 1, best.Len())
	for _, name := range []string{"Training KNN", "Training Logistic Regression", "Training Random Forest Classification"} {
		assert.Equal(t, 1, logs.FilterMessage(name).Len(), name)
	}
}

func TestRegression(t *testing.T) {
	tr := regressionTrainer(t)
	ctx := context.Background()

	lin, err := tr.LinearRegression(ctx)
	require.NoError(t, err)
	require.NotNil(t, lin.Regression)
	assert.Greater(t, lin.Regression.R2, 0.9)

	tm, err := tr.Train(ctx, "ensemble")
	require.NoError(t, err)
	assert.Contains(t, []string{"Linear Regression", "Random Forest Regression", "KNN"}, tm.AlgorithmName)
	assert.GreaterOrEqual(t, tm.Score("neg_mean_squared_error"), lin.Score("neg_mean_squared_error"))
}

func TestPredictWithFactors(t *testing.T) {
	tr := classificationTrainer(t, zap.NewNop())
	tm, err := tr.LogisticRegression(context.Background())
	require.NoError(t, err)

	scoring := encounters(t, 10).Drop("ReadmitFLG", "LOS")
	preds, err := tm.PredictWithFactors(scoring, 2)
	require.NoError(t, err)
	require.Len(t, preds, 10)

	valid := map[string]bool{
		"Age": true, "Gender.F": true, "Gender.M": true,
		"Unit.icu": true, "Unit.med": true, "Unit.surg": true,
	}
	for i, p := range preds {
		assert.Equal(t, i, p.Row)
		assert.Equal(t, fmt.Sprint(i), p.Grain)
		assert.True(t, p.Prediction >= 0 && p.Prediction <= 1)
		require.Len(t, p.Factors, 2)
		for _, name := range p.Factors {
			assert.True(t, valid[name], name)
		}
	}

	plain, err := tm.Predict(scoring)
	require.NoError(t, err)
	for i := range plain {
		assert.Equal(t, preds[i].Prediction, plain[i].Prediction)
		assert.Nil(t, plain[i].Factors)
	}

	_, err = tm.TopFactors(scoring, 5)
	var ipe interface{ Max() int }
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, 4, ipe.Max())
}

func TestSaveLoad(t *testing.T) {
	tr := classificationTrainer(t, zap.NewNop())
	ctx := context.Background()
	scoring := encounters(t, 8).Drop("ReadmitFLG", "LOS")

	for _, train := range []func(context.Context) (*TrainedModel, error){tr.LogisticRegression, tr.KNN} {
		tm, err := train(ctx)
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, tm.Save(&buf))
		loaded, err := Load(&buf)
		require.NoError(t, err)

		assert.Equal(t, tm.ID, loaded.ID)
		assert.Equal(t, tm.AlgorithmName, loaded.AlgorithmName)
		assert.Equal(t, tm.Classification, loaded.Classification)

		want, err := tm.PredictWithFactors(scoring, 3)
		require.NoError(t, err)
		got, err := loaded.PredictWithFactors(scoring, 3)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := Load(strings.NewReader(`{"model":{}}`))
	assert.Error(t, err)
}

func TestPrintTrainingResults(t *testing.T) {
	tr := regressionTrainer(t)
	tm, err := tr.LinearRegression(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	tm.PrintTrainingResults(&buf)
	out := buf.String()
	assert.Contains(t, out, "Linear Regression Training Results:")
	assert.Contains(t, out, "Mean Squared Error")
	assert.Contains(t, out, "R2")
}
