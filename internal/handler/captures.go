package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"snapwatch/internal/logger"
	"snapwatch/internal/model"
	"snapwatch/internal/repository"
)

const (
	defaultCaptureLimit = 50
	maxCaptureLimit     = 500
)

// GetCapturesHandler returns the most recent journaled captures with their
// detected labels. Query: limit (default 50, max 500), or filename for a
// single capture with its detections.
func GetCapturesHandler(captureRepo repository.CaptureRepository, detectionRepo repository.DetectionRepository,
	logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if captureRepo == nil {
			http.Error(w, "Capture journal disabled", http.StatusServiceUnavailable)
			return
		}

		if filename := r.URL.Query().Get("filename"); filename != "" {
			getCapture(w, filename, captureRepo, detectionRepo, logger)
			return
		}

		limit := atoiDefault(r.URL.Query().Get("limit"), defaultCaptureLimit)
		if limit > maxCaptureLimit {
			limit = maxCaptureLimit
		}

		captures, err := captureRepo.ListRecent(limit)
		if err != nil {
			logger.Error("Error querying captures: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		for i := range captures {
			if detectionRepo == nil {
				break
			}
			labels, err := detectionRepo.GetLabelsByCaptureID(captures[i].ID)
			if err != nil {
				logger.Error("Error getting labels for capture %d: %v", captures[i].ID, err)
				continue
			}
			captures[i].Labels = labels
		}

		counts, err := captureRepo.CountByOutcome()
		if err != nil {
			logger.Error("Error counting captures: %v", err)
		}

		data := map[string]interface{}{
			"captures": captures,
			"count":    len(captures),
			"outcomes": counts,
		}

		writeJSON(w, data, logger)
	}
}

func getCapture(w http.ResponseWriter, filename string, captureRepo repository.CaptureRepository,
	detectionRepo repository.DetectionRepository, logger *logger.Logger) {
	capture, err := captureRepo.GetByFilename(filename)
	if err != nil {
		logger.Error("Error getting capture %s: %v", filename, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if capture == nil {
		http.Error(w, "Capture not found", http.StatusNotFound)
		return
	}

	detections := []model.Detection{}
	if detectionRepo != nil {
		found, err := detectionRepo.GetByCaptureID(capture.ID)
		if err != nil {
			logger.Error("Error getting detections for capture %d: %v", capture.ID, err)
		} else if found != nil {
			detections = found
		}
	}
	for _, d := range detections {
		capture.Labels = append(capture.Labels, d.Label)
	}

	writeJSON(w, map[string]interface{}{
		"capture":    capture,
		"detections": detections,
	}, logger)
}

// GetLabelsHandler lists every label the journal has recorded.
func GetLabelsHandler(detectionRepo repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if detectionRepo == nil {
			http.Error(w, "Capture journal disabled", http.StatusServiceUnavailable)
			return
		}

		labels, err := detectionRepo.GetAllLabels()
		if err != nil {
			logger.Error("Error getting labels: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if labels == nil {
			labels = []string{}
		}

		writeJSON(w, map[string]interface{}{"labels": labels}, logger)
	}
}

func writeJSON(w http.ResponseWriter, data interface{}, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Error encoding response: %v", err)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}
