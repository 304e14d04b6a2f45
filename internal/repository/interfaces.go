package repository

import (
	"snapwatch/internal/model"
)

// CaptureRepository defines the interface for capture journal operations.
type CaptureRepository interface {
	// Create operations
	Insert(c *model.Capture) (int64, error)

	// Read operations
	GetByFilename(filename string) (*model.Capture, error)
	Exists(filename string) (bool, error)
	ListRecent(limit int) ([]model.Capture, error)
	CountByOutcome() (map[string]int, error)

	// Update operations
	MarkPruned(filename string) error
}

// DetectionRepository defines the interface for detection journal operations.
type DetectionRepository interface {
	// Create operations
	InsertBatch(detections []model.Detection) error

	// Read operations
	GetByCaptureID(captureID int64) ([]model.Detection, error)
	GetLabelsByCaptureID(captureID int64) ([]string, error)
	GetAllLabels() ([]string, error)
}
