package handler

import (
	"encoding/json"
	"net/http"
)

// HealthCheckHandler returns HTTP 200 with the id of the model being served.
// It can be used for health checks by Docker or other services.
func HealthCheckHandler(modelID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "model_id": modelID})
	}
}
