package dbwriter

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/your-org/healthcareai-go/internal/trainer"
)

// FactorWriter persists the scored rows of a prediction run. The run itself
// must already exist (datastore.Repository.CreateRun).
// This allows for mocking in tests.
type FactorWriter interface {
	Write(ctx context.Context, runID string, preds []trainer.Prediction) error
	Close()
}

// PredictionRow is one row of the predictions table.
type PredictionRow struct {
	RunID      string         `db:"run_id"`
	Row        int            `db:"row_index"`
	Grain      sql.NullString `db:"grain"`
	Prediction float64        `db:"prediction"`
}

// FactorRow is one row of the top_factors table. Rank starts at 1.
type FactorRow struct {
	RunID        string          `db:"run_id"`
	Row          int             `db:"row_index"`
	Rank         int             `db:"factor_rank"`
	Factor       string          `db:"factor"`
	Contribution decimal.Decimal `db:"contribution"`
}

// contributionPlaces matches the NUMERIC(18, 6) columns.
const contributionPlaces = 6

// Rows flattens preds into table rows.
func Rows(runID string, preds []trainer.Prediction) ([]PredictionRow, []FactorRow) {
	predictions := make([]PredictionRow, 0, len(preds))
	var factors []FactorRow
	for _, p := range preds {
		predictions = append(predictions, PredictionRow{
			RunID:      runID,
			Row:        p.Row,
			Grain:      sql.NullString{String: p.Grain, Valid: p.Grain != ""},
			Prediction: p.Prediction,
		})
		for i, name := range p.Factors {
			c := decimal.Zero
			if i < len(p.Contributions) {
				c = decimal.NewFromFloat(p.Contributions[i]).Round(contributionPlaces)
			}
			factors = append(factors, FactorRow{RunID: runID, Row: p.Row, Rank: i + 1, Factor: name, Contribution: c})
		}
	}
	return predictions, factors
}
