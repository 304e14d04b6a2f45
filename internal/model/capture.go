package model

import "time"

// Cycle outcomes recorded in the journal and exported as metric labels.
const (
	OutcomeUploaded      = "uploaded"
	OutcomeUnchanged     = "unchanged"
	OutcomeUploadFailed  = "upload_failed"
	OutcomeCaptureFailed = "capture_failed"
	OutcomeIndexed       = "indexed"
)

// Capture represents a journaled capture record.
type Capture struct {
	ID          int64     `json:"id"`
	Filename    string    `json:"filename"`
	FilePath    string    `json:"filepath"`
	FileSize    int64     `json:"filesize"`
	CapturedAt  time.Time `json:"captured_at"`
	Outcome     string    `json:"outcome"`
	UploadKey   string    `json:"upload_key,omitempty"`
	ChangeRatio *float64  `json:"change_ratio,omitempty"`
	Pruned      bool      `json:"pruned"`
	Labels      []string  `json:"labels,omitempty"`
}
