// Package datastore reads training data from SQL sources and keeps the record
// of prediction runs and their top factors.
package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/your-org/healthcareai-go/internal/dbconn"
	"github.com/your-org/healthcareai-go/internal/frame"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("prediction run not found")

// Run is one scoring pass of a trained model.
type Run struct {
	ID        string    `json:"run_id"`
	ModelID   string    `json:"model_id"`
	Algorithm string    `json:"algorithm"`
	ModelType string    `json:"model_type"`
	K         int       `json:"k"`
	CreatedAt time.Time `json:"created_at"`
}

// Factor is one ranked factor of a scored row.
type Factor struct {
	Rank         int             `json:"rank"`
	Name         string          `json:"factor"`
	Contribution decimal.Decimal `json:"contribution"`
}

// ScoredRow is a stored prediction with its factors in rank order.
type ScoredRow struct {
	Row        int      `json:"row"`
	Grain      string   `json:"grain,omitempty"`
	Prediction float64  `json:"prediction"`
	Factors    []Factor `json:"factors,omitempty"`
}

// Store provides access to prediction runs.
type Store interface {
	CreateRun(ctx context.Context, run Run) error
	FetchRun(ctx context.Context, runID string) (Run, error)
	FetchFactors(ctx context.Context, runID string) ([]ScoredRow, error)
}

// Repository implements Store over database/sql.
type Repository struct {
	db      *sql.DB
	dialect string
}

// NewRepository creates a new Repository. dialect selects placeholder syntax.
func NewRepository(db *sql.DB, dialect string) *Repository {
	return &Repository{db: db, dialect: dialect}
}

// LoadFrame runs query and returns the result set as a frame.
func (r *Repository) LoadFrame(ctx context.Context, query string) (*frame.Frame, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to run source query: %w", err)
	}
	defer rows.Close()
	return frame.FromRows(rows)
}

// CreateRun registers a new run before its rows are written.
func (r *Repository) CreateRun(ctx context.Context, run Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	query := dbconn.Rebind(r.dialect, `
        INSERT INTO prediction_runs (run_id, model_id, algorithm, model_type, k, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query, run.ID, run.ModelID, run.Algorithm, run.ModelType, run.K, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert prediction run: %w", err)
	}
	return nil
}

// FetchRun returns the run with the given id.
func (r *Repository) FetchRun(ctx context.Context, runID string) (Run, error) {
	query := dbconn.Rebind(r.dialect, `
        SELECT run_id, model_id, algorithm, model_type, k, created_at
        FROM prediction_runs
        WHERE run_id = ?`)
	var run Run
	err := r.db.QueryRowContext(ctx, query, runID).
		Scan(&run.ID, &run.ModelID, &run.Algorithm, &run.ModelType, &run.K, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// FetchFactors returns every row of a run ordered by row index, factors in
// rank order.
func (r *Repository) FetchFactors(ctx context.Context, runID string) ([]ScoredRow, error) {
	if _, err := r.FetchRun(ctx, runID); err != nil {
		return nil, err
	}
	query := dbconn.Rebind(r.dialect, `
        SELECT p.row_index, p.grain, p.prediction, f.factor_rank, f.factor, f.contribution
        FROM predictions p
        LEFT JOIN top_factors f ON f.run_id = p.run_id AND f.row_index = p.row_index
        WHERE p.run_id = ?
        ORDER BY p.row_index, f.factor_rank`)
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch factors: %w", err)
	}
	defer rows.Close()

	var out []ScoredRow
	for rows.Next() {
		var (
			row          int
			grain        sql.NullString
			prediction   float64
			rank         sql.NullInt64
			name         sql.NullString
			contribution decimal.NullDecimal
		)
		if err := rows.Scan(&row, &grain, &prediction, &rank, &name, &contribution); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].Row != row {
			out = append(out, ScoredRow{Row: row, Grain: grain.String, Prediction: prediction})
		}
		if rank.Valid {
			last := &out[len(out)-1]
			last.Factors = append(last.Factors, Factor{Rank: int(rank.Int64), Name: name.String, Contribution: contribution.Decimal})
		}
	}
	return out, rows.Err()
}
