package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/your-org/healthcareai-go/internal/datastore"
)

// RunResponse is a stored prediction run with its scored rows.
type RunResponse struct {
	Run  datastore.Run         `json:"run"`
	Rows []datastore.ScoredRow `json:"rows"`
}

// RunHandler serves prediction runs written by the trainer.
type RunHandler struct {
	store datastore.Store
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(store datastore.Store) *RunHandler {
	return &RunHandler{store: store}
}

// RegisterRoutes registers the run routes on r.
func (h *RunHandler) RegisterRoutes(r chi.Router) {
	r.Get("/v1/runs/{runID}", h.GetRun)
}

// GetRun returns the run and its top factors.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := h.store.FetchRun(r.Context(), runID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	rows, err := h.store.FetchFactors(r.Context(), runID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RunResponse{Run: run, Rows: rows})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, datastore.ErrRunNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to fetch run"})
}
