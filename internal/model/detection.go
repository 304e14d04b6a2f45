package model

import (
	"fmt"
	"sort"
	"strings"
)

// DetectionResult maps a detected label to its confidence (0.0-1.0).
// Only labels above the configured confidence threshold are present.
type DetectionResult map[string]float64

// Labels returns the detected labels ordered by descending confidence.
func (r DetectionResult) Labels() []string {
	labels := make([]string, 0, len(r))
	for label := range r {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if r[labels[i]] == r[labels[j]] {
			return labels[i] < labels[j]
		}
		return r[labels[i]] > r[labels[j]]
	})
	return labels
}

// String formats the result for log lines, e.g. "person (0.93), car (0.71)".
func (r DetectionResult) String() string {
	parts := make([]string, 0, len(r))
	for _, label := range r.Labels() {
		parts = append(parts, fmt.Sprintf("%s (%.2f)", label, r[label]))
	}
	return strings.Join(parts, ", ")
}

// Detection is a journaled detection row.
type Detection struct {
	ID         int64   `json:"id"`
	CaptureID  int64   `json:"capture_id"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}
