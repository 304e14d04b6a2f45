package monitor

import (
	"context"

	"snapwatch/internal/dto"
	"snapwatch/internal/model"
)

// Camera produces one still frame on demand.
type Camera interface {
	Capture(ctx context.Context) (*model.Frame, error)
}

// Detector asks the remote detection service what a frame shows.
type Detector interface {
	Detect(ctx context.Context, frame *model.Frame) (model.DetectionResult, error)
}

// ChangeDetector compares a candidate frame against the baseline, which is
// nil on the first cycle.
type ChangeDetector interface {
	Differs(baseline, candidate *model.Frame) model.ChangeDecision
}

// Uploader persists a frame at key. It is never called concurrently.
type Uploader interface {
	Upload(ctx context.Context, frame *model.Frame, key string) error
}

// FrameStore owns the baseline slot and the local capture files.
// storage.FrameStore satisfies this interface.
type FrameStore interface {
	Current() (*model.Frame, bool)
	Retain(frame *model.Frame)
	Save(frame *model.Frame, name string) (string, error)
	Settle(path string, retained bool) ([]string, error)
}

// Publisher receives an event after every cycle. It must not block.
type Publisher interface {
	Publish(event dto.CycleEvent)
}
