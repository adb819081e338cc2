package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/your-org/healthcareai-go/internal/factors"
	"github.com/your-org/healthcareai-go/internal/frame"
	"github.com/your-org/healthcareai-go/internal/pipeline"
	"github.com/your-org/healthcareai-go/internal/trainer"
)

// DefaultK is the number of factors returned when a request omits k.
const DefaultK = 3

// maxBodyBytes bounds a prediction request body.
const maxBodyBytes = 8 << 20

// Predictor scores a frame and explains every row.
type Predictor interface {
	PredictWithFactors(f *frame.Frame, k int) ([]trainer.Prediction, error)
}

// ModelInfo identifies the served model in responses.
type ModelInfo struct {
	ID        string `json:"model_id"`
	Algorithm string `json:"algorithm"`
	ModelType string `json:"model_type"`
}

// PredictionRequest is the body of POST /v1/predictions. A nil K means
// DefaultK.
type PredictionRequest struct {
	K    *int             `json:"k"`
	Rows []map[string]any `json:"rows"`
}

// PredictionResponse is returned by POST /v1/predictions.
type PredictionResponse struct {
	ModelInfo
	K           int                  `json:"k"`
	Predictions []trainer.Prediction `json:"predictions"`
}

type errorResponse struct {
	Error string `json:"error"`
	Max   int    `json:"max,omitempty"`
}

// PredictionHandler scores rows posted as JSON objects.
type PredictionHandler struct {
	model  Predictor
	info   ModelInfo
	logger *zap.Logger
}

// NewPredictionHandler creates a new PredictionHandler.
func NewPredictionHandler(model Predictor, info ModelInfo, logger *zap.Logger) *PredictionHandler {
	return &PredictionHandler{model: model, info: info, logger: logger}
}

// RegisterRoutes registers the prediction routes on r.
func (h *PredictionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/v1/predictions", h.CreatePredictions)
}

// CreatePredictions scores the posted rows with their top k factors.
func (h *PredictionHandler) CreatePredictions(w http.ResponseWriter, r *http.Request) {
	var req PredictionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if len(req.Rows) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "rows must not be empty"})
		return
	}
	k := DefaultK
	if req.K != nil {
		k = *req.K
	}

	f, err := frame.FromRecords(req.Rows)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	preds, err := h.model.PredictWithFactors(f, k)
	if err != nil {
		h.writeScoringError(w, err)
		return
	}
	h.logger.Debug("Scored rows", zap.Int("rows", len(preds)), zap.Int("k", k))
	writeJSON(w, http.StatusOK, PredictionResponse{ModelInfo: h.info, K: k, Predictions: preds})
}

func (h *PredictionHandler) writeScoringError(w http.ResponseWriter, err error) {
	var paramErr *factors.InvalidParameterError
	switch {
	case errors.As(err, &paramErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Max: paramErr.Max()})
	case errors.Is(err, pipeline.ErrInvalidInput), errors.Is(err, pipeline.ErrNoRows):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	default:
		h.logger.Error("Failed to score rows", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to score rows"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
