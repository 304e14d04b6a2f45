package dto

import "time"

// CycleEvent describes one completed monitor cycle. It is broadcast to
// event stream subscribers as JSON.
type CycleEvent struct {
	CycleID     string             `json:"cycle_id"`
	Timestamp   time.Time          `json:"timestamp"`
	Outcome     string             `json:"outcome"`
	Filename    string             `json:"filename,omitempty"`
	UploadKey   string             `json:"upload_key,omitempty"`
	ChangeRatio *float64           `json:"change_ratio,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	Detections  map[string]float64 `json:"detections"`
	Attempts    int                `json:"attempts,omitempty"`
	Error       string             `json:"error,omitempty"`
}
