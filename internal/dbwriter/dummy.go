package dbwriter

import (
	"context"

	"github.com/your-org/healthcareai-go/internal/trainer"
	"github.com/your-org/healthcareai-go/pkg/logger"
)

// dummyWriter is a no-op implementation of the FactorWriter interface.
// It is used when database output is disabled.
type dummyWriter struct {
	logger logger.Logger
}

// NewDummyWriter creates a new dummy writer.
func NewDummyWriter(l logger.Logger) FactorWriter {
	l.Info("Creating dummy factor writer because database output is disabled.")
	return &dummyWriter{logger: l}
}

// Write does nothing and returns nil.
func (d *dummyWriter) Write(ctx context.Context, runID string, preds []trainer.Prediction) error {
	d.logger.Debugf("Dummy writer: dropping %d predictions of run %s", len(preds), runID)
	return nil
}

// Close does nothing.
func (d *dummyWriter) Close() {
	d.logger.Debug("Dummy writer: Close called")
}
