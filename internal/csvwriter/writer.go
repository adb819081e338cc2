package csvwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/your-org/healthcareai-go/internal/trainer"
)

// Writer writes scored rows as CSV with one column per top factor:
//
//	<grain>,Prediction,Factor1TXT,...,FactorKTXT
//
// The header is written with the first batch.
type Writer struct {
	closer      io.Closer
	writer      *csv.Writer
	logger      *zap.Logger
	grainColumn string
	k           int
	wroteHeader bool
	mu          sync.Mutex
}

// NewWriter creates filePath and returns a Writer for k factors per row.
// An empty grainColumn writes the row index under "Row".
func NewWriter(filePath, grainColumn string, k int, logger *zap.Logger) (*Writer, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file: %w", err)
	}
	return newWriter(file, file, grainColumn, k, logger), nil
}

// NewStreamWriter writes to w. Close does not close w.
func NewStreamWriter(w io.Writer, grainColumn string, k int, logger *zap.Logger) *Writer {
	return newWriter(w, nil, grainColumn, k, logger)
}

func newWriter(w io.Writer, c io.Closer, grainColumn string, k int, logger *zap.Logger) *Writer {
	return &Writer{
		closer:      c,
		writer:      csv.NewWriter(w),
		logger:      logger,
		grainColumn: grainColumn,
		k:           k,
	}
}

// Header returns the column names.
func (w *Writer) Header() []string {
	key := w.grainColumn
	if key == "" {
		key = "Row"
	}
	header := []string{key, "Prediction"}
	for i := 1; i <= w.k; i++ {
		header = append(header, "Factor"+strconv.Itoa(i)+"TXT")
	}
	return header
}

// Write appends preds. Rows with fewer than k factors are padded with
// empty cells.
func (w *Writer) Write(preds []trainer.Prediction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.wroteHeader {
		if err := w.writer.Write(w.Header()); err != nil {
			return fmt.Errorf("failed to write header to CSV: %w", err)
		}
		w.wroteHeader = true
	}
	for _, p := range preds {
		key := p.Grain
		if w.grainColumn == "" {
			key = strconv.Itoa(p.Row)
		}
		record := make([]string, 2, 2+w.k)
		record[0] = key
		record[1] = strconv.FormatFloat(p.Prediction, 'g', -1, 64)
		for i := 0; i < w.k; i++ {
			cell := ""
			if i < len(p.Factors) {
				cell = p.Factors[i]
			}
			record = append(record, cell)
		}
		if err := w.writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record to CSV: %w", err)
		}
	}
	w.logger.Debug("Wrote scored rows to CSV", zap.Int("rows", len(preds)))
	return nil
}

// Flush flushes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
