package handler

import (
	"encoding/json"
	"net/http"

	"snapwatch/internal/dto"
	"snapwatch/internal/logger"
)

// HealthHandler reports the monitor status. It answers 503 once the loop
// has stopped.
func HealthHandler(status func() dto.Status, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := status()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if s.State == "stopped" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(s); err != nil {
			logger.Error("Error encoding status: %v", err)
		}
	}
}
