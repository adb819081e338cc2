package dbwriter

import (
	"context"
	"sync"

	"github.com/your-org/healthcareai-go/internal/trainer"
)

// InMemWriter is an in-memory implementation of the FactorWriter interface for testing.
type InMemWriter struct {
	mu          sync.RWMutex
	Predictions []PredictionRow
	Factors     []FactorRow
	IsClosed    bool
}

// NewInMemWriter creates a new InMemWriter.
func NewInMemWriter() *InMemWriter {
	return &InMemWriter{
		Predictions: make([]PredictionRow, 0),
		Factors:     make([]FactorRow, 0),
	}
}

// Write appends the rows to the in-memory slices.
func (w *InMemWriter) Write(ctx context.Context, runID string, preds []trainer.Prediction) error {
	predictions, factors := Rows(runID, preds)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Predictions = append(w.Predictions, predictions...)
	w.Factors = append(w.Factors, factors...)
	return nil
}

// Close marks the writer as closed.
func (w *InMemWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.IsClosed = true
}

// Clear resets all the in-memory slices.
func (w *InMemWriter) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Predictions = make([]PredictionRow, 0)
	w.Factors = make([]FactorRow, 0)
	w.IsClosed = false
}
