package dbwriter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/your-org/healthcareai-go/internal/config"
	"github.com/your-org/healthcareai-go/internal/dbconn"
	"github.com/your-org/healthcareai-go/internal/trainer"
)

const defaultBatchSize = 100

var (
	predictionColumns = []string{"run_id", "row_index", "grain", "prediction"}
	factorColumns     = []string{"run_id", "row_index", "factor_rank", "factor", "contribution"}
)

// New picks the writer for conn: COPY for PostgreSQL when enabled, batched
// INSERTs otherwise. A nil conn means database output is off and gets the
// dummy writer.
func New(conn *dbconn.Conn, writerConfig config.DBWriterConfig, logger *zap.Logger) FactorWriter {
	if conn == nil {
		return NewDummyWriter(logger.Sugar())
	}
	if conn.Pool != nil && writerConfig.UseCopy.Bool() {
		return NewCopyWriter(conn.Pool, logger)
	}
	return NewSQLWriter(conn.DB, conn.Dialect, writerConfig, logger)
}

// SQLWriter inserts rows in transactions of BatchSize prediction rows.
type SQLWriter struct {
	db      *sql.DB
	dialect string
	config  config.DBWriterConfig
	logger  *zap.Logger
}

// NewSQLWriter creates a SQLWriter for db.
func NewSQLWriter(db *sql.DB, dialect string, writerConfig config.DBWriterConfig, logger *zap.Logger) *SQLWriter {
	if writerConfig.BatchSize <= 0 {
		logger.Warn("BatchSize is zero or negative, defaulting to 100.", zap.Int("originalValue", writerConfig.BatchSize))
		writerConfig.BatchSize = defaultBatchSize
	}
	return &SQLWriter{db: db, dialect: dialect, config: writerConfig, logger: logger}
}

func insertQuery(dialect, table string, columns []string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return dbconn.Rebind(dialect,
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), marks))
}

// Write stores preds under runID. A failed batch is rolled back and
// earlier batches stay committed.
func (w *SQLWriter) Write(ctx context.Context, runID string, preds []trainer.Prediction) error {
	for start := 0; start < len(preds); start += w.config.BatchSize {
		end := min(start+w.config.BatchSize, len(preds))
		predictions, factors := Rows(runID, preds[start:end])
		w.logger.Debug("Flushing predictions",
			zap.String("run_id", runID),
			zap.Int("predictions", len(predictions)),
			zap.Int("factors", len(factors)))
		if err := w.writeBatch(ctx, predictions, factors); err != nil {
			w.logger.Error("Failed to batch insert predictions", zap.Error(err), zap.String("run_id", runID))
			return err
		}
	}
	return nil
}

func (w *SQLWriter) writeBatch(ctx context.Context, predictions []PredictionRow, factors []FactorRow) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	predStmt, err := tx.PrepareContext(ctx, insertQuery(w.dialect, "predictions", predictionColumns))
	if err != nil {
		return fmt.Errorf("failed to prepare prediction insert: %w", err)
	}
	defer predStmt.Close()
	for _, p := range predictions {
		if _, err := predStmt.ExecContext(ctx, p.RunID, p.Row, p.Grain, p.Prediction); err != nil {
			return fmt.Errorf("failed to insert prediction row %d: %w", p.Row, err)
		}
	}

	if len(factors) > 0 {
		factorStmt, err := tx.PrepareContext(ctx, insertQuery(w.dialect, "top_factors", factorColumns))
		if err != nil {
			return fmt.Errorf("failed to prepare factor insert: %w", err)
		}
		defer factorStmt.Close()
		for _, f := range factors {
			if _, err := factorStmt.ExecContext(ctx, f.RunID, f.Row, f.Rank, f.Factor, f.Contribution); err != nil {
				return fmt.Errorf("failed to insert factor %d of row %d: %w", f.Rank, f.Row, err)
			}
		}
	}
	return tx.Commit()
}

// Close does not close the database, which the caller owns.
func (w *SQLWriter) Close() {
	w.logger.Debug("Closing SQL factor writer")
}

// Pool is an interface that abstracts the pgxpool.Pool for testability.
type Pool interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// CopyWriter streams rows into PostgreSQL with COPY.
type CopyWriter struct {
	pool   Pool
	logger *zap.Logger
}

// NewCopyWriter creates a CopyWriter over pool.
func NewCopyWriter(pool Pool, logger *zap.Logger) *CopyWriter {
	return &CopyWriter{pool: pool, logger: logger}
}

func (w *CopyWriter) Write(ctx context.Context, runID string, preds []trainer.Prediction) error {
	predictions, factors := Rows(runID, preds)
	w.logger.Debug("Copying predictions", zap.String("run_id", runID), zap.Int("count", len(predictions)))

	n, err := w.pool.CopyFrom(ctx, pgx.Identifier{"predictions"}, predictionColumns, pgx.CopyFromRows(toPredictionInterfaces(predictions)))
	if err != nil {
		w.logger.Error("Failed to copy predictions", zap.Error(err))
		return fmt.Errorf("failed to copy predictions: %w", err)
	}
	if len(factors) == 0 {
		return nil
	}
	m, err := w.pool.CopyFrom(ctx, pgx.Identifier{"top_factors"}, factorColumns, pgx.CopyFromRows(toFactorInterfaces(factors)))
	if err != nil {
		w.logger.Error("Failed to copy top factors", zap.Error(err))
		return fmt.Errorf("failed to copy top factors: %w", err)
	}
	w.logger.Info("Copied prediction run", zap.String("run_id", runID), zap.Int64("predictions", n), zap.Int64("factors", m))
	return nil
}

// Close does not close the pool, which the caller owns.
func (w *CopyWriter) Close() {
	w.logger.Debug("Closing COPY factor writer")
}

func toPredictionInterfaces(rows []PredictionRow) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		var grain interface{}
		if r.Grain.Valid {
			grain = r.Grain.String
		}
		out[i] = []interface{}{r.RunID, int32(r.Row), grain, r.Prediction}
	}
	return out
}

func toFactorInterfaces(rows []FactorRow) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		out[i] = []interface{}{r.RunID, int32(r.Row), int16(r.Rank), r.Factor, r.Contribution.InexactFloat64()}
	}
	return out
}
