package monitor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"testing"
	"time"

	"snapwatch/internal/dto"
	"snapwatch/internal/logger"
	"snapwatch/internal/model"
	"snapwatch/internal/service/change"
)

type fakeCamera struct {
	frames []*model.Frame
	err    error
	calls  int
}

func (c *fakeCamera) Capture(ctx context.Context) (*model.Frame, error) {
	c.calls++
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrCapture, err)
	}
	if c.err != nil {
		return nil, c.err
	}
	if len(c.frames) == 0 {
		return nil, fmt.Errorf("%w: no frames left", model.ErrCapture)
	}
	f := c.frames[0]
	c.frames = c.frames[1:]
	return f, nil
}

type fakeDetector struct {
	result model.DetectionResult
	err    error
}

func (d *fakeDetector) Detect(ctx context.Context, frame *model.Frame) (model.DetectionResult, error) {
	return d.result, d.err
}

type fakeUploader struct {
	errs []error
	keys []string
}

func (u *fakeUploader) Upload(ctx context.Context, frame *model.Frame, key string) error {
	u.keys = append(u.keys, key)
	if len(u.errs) == 0 {
		return nil
	}
	err := u.errs[0]
	u.errs = u.errs[1:]
	return err
}

type fakeStore struct {
	baseline *model.Frame
	saveErr  error
	saved    []string
	settled  map[string]bool
	prune    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{settled: make(map[string]bool)}
}

func (s *fakeStore) Current() (*model.Frame, bool) { return s.baseline, s.baseline != nil }

func (s *fakeStore) Retain(frame *model.Frame) { s.baseline = frame }

func (s *fakeStore) Save(frame *model.Frame, name string) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	s.saved = append(s.saved, name)
	return "/captures/" + name, nil
}

func (s *fakeStore) Settle(path string, retained bool) ([]string, error) {
	s.settled[path] = retained
	return s.prune, nil
}

type fakePublisher struct {
	events []dto.CycleEvent
	onPub  func()
}

func (p *fakePublisher) Publish(event dto.CycleEvent) {
	p.events = append(p.events, event)
	if p.onPub != nil {
		p.onPub()
	}
}

type fakeCaptures struct {
	inserted []model.Capture
	pruned   []string
}

func (r *fakeCaptures) Insert(c *model.Capture) (int64, error) {
	r.inserted = append(r.inserted, *c)
	return int64(len(r.inserted)), nil
}
func (r *fakeCaptures) GetByFilename(string) (*model.Capture, error) { return nil, nil }
func (r *fakeCaptures) Exists(string) (bool, error)                  { return false, nil }
func (r *fakeCaptures) ListRecent(int) ([]model.Capture, error)      { return nil, nil }
func (r *fakeCaptures) CountByOutcome() (map[string]int, error)      { return nil, nil }
func (r *fakeCaptures) MarkPruned(name string) error {
	r.pruned = append(r.pruned, name)
	return nil
}

type fakeDetections struct {
	inserted []model.Detection
}

func (r *fakeDetections) InsertBatch(d []model.Detection) error {
	r.inserted = append(r.inserted, d...)
	return nil
}
func (r *fakeDetections) GetByCaptureID(int64) ([]model.Detection, error) { return nil, nil }
func (r *fakeDetections) GetLabelsByCaptureID(int64) ([]string, error)    { return nil, nil }
func (r *fakeDetections) GetAllLabels() ([]string, error)                 { return nil, nil }

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// testFrame builds a 10x10 black frame with the first `changed` pixels white.
func testFrame(t *testing.T, changed int, at time.Time) *model.Frame {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for i := 0; i < 100; i++ {
		c := color.RGBA{A: 255}
		if i < changed {
			c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
		}
		img.Set(i%10, i/10, c)
	}
	f, err := model.NewFrame(img, at)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	return f
}

type harness struct {
	camera     *fakeCamera
	detector   *fakeDetector
	uploader   *fakeUploader
	store      *fakeStore
	publisher  *fakePublisher
	captures   *fakeCaptures
	detections *fakeDetections
	loop       *Loop
}

func newHarness(t *testing.T, frames ...*model.Frame) *harness {
	t.Helper()
	h := &harness{
		camera:     &fakeCamera{frames: frames},
		detector:   &fakeDetector{},
		uploader:   &fakeUploader{},
		store:      newFakeStore(),
		publisher:  &fakePublisher{},
		captures:   &fakeCaptures{},
		detections: &fakeDetections{},
	}
	h.loop = New(Deps{
		Camera:     h.camera,
		Detector:   h.detector,
		Change:     change.NewDetector(5.0, 0),
		Uploader:   h.uploader,
		Store:      h.store,
		Captures:   h.captures,
		Detections: h.detections,
		Publisher:  h.publisher,
		Logger:     logger.NewWriterLogger(io.Discard, io.Discard),
	}, Options{
		Interval:          time.Hour,
		KeyPrefix:         "cam1",
		MaxUploadAttempts: 3,
		RetryInitial:      time.Millisecond,
		RetryMax:          2 * time.Millisecond,
	})
	return h
}

func (h *harness) cycle(t *testing.T) dto.CycleEvent {
	t.Helper()
	event, err := h.loop.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	return event
}

func TestRunCycle_FirstCycleAlwaysUploads(t *testing.T) {
	frame := testFrame(t, 0, epoch)
	h := newHarness(t, frame)

	event := h.cycle(t)

	if event.Outcome != model.OutcomeUploaded {
		t.Fatalf("outcome = %q, want %q", event.Outcome, model.OutcomeUploaded)
	}
	if event.Reason != model.ReasonNoBaseline {
		t.Errorf("reason = %q, want %q", event.Reason, model.ReasonNoBaseline)
	}
	if want := "cam1/capture_2024-05-01_12-00-00.000.jpg"; len(h.uploader.keys) != 1 || h.uploader.keys[0] != want {
		t.Errorf("upload keys = %v, want [%s]", h.uploader.keys, want)
	}
	if h.store.baseline != frame {
		t.Error("frame was not retained as baseline")
	}
	if !h.store.settled["/captures/capture_2024-05-01_12-00-00.000.jpg"] {
		t.Error("capture was not settled as retained")
	}
}

func TestRunCycle_IdenticalFrameSkipsUpload(t *testing.T) {
	first := testFrame(t, 0, epoch)
	second := testFrame(t, 0, epoch.Add(30*time.Second))
	h := newHarness(t, first, second)

	h.cycle(t)
	event := h.cycle(t)

	if event.Outcome != model.OutcomeUnchanged {
		t.Fatalf("outcome = %q, want %q", event.Outcome, model.OutcomeUnchanged)
	}
	if len(h.uploader.keys) != 1 {
		t.Errorf("upload calls = %d, want 1", len(h.uploader.keys))
	}
	if h.store.baseline != first {
		t.Error("baseline changed on an unchanged cycle")
	}
	if event.ChangeRatio == nil || *event.ChangeRatio != 0 {
		t.Errorf("change ratio = %v, want 0", event.ChangeRatio)
	}
}

func TestRunCycle_ChangedFrameReplacesBaseline(t *testing.T) {
	first := testFrame(t, 0, epoch)
	second := testFrame(t, 10, epoch.Add(30*time.Second))
	h := newHarness(t, first, second)

	h.cycle(t)
	event := h.cycle(t)

	if event.Outcome != model.OutcomeUploaded {
		t.Fatalf("outcome = %q, want %q", event.Outcome, model.OutcomeUploaded)
	}
	if h.store.baseline != second {
		t.Error("baseline was not replaced by the changed frame")
	}
	if event.ChangeRatio == nil || *event.ChangeRatio < 9 || *event.ChangeRatio > 11 {
		t.Errorf("change ratio = %v, want about 10", event.ChangeRatio)
	}
}

func TestRunCycle_CaptureFailureMutatesNothing(t *testing.T) {
	h := newHarness(t)
	baseline := testFrame(t, 0, epoch)
	h.store.baseline = baseline
	h.camera.err = fmt.Errorf("%w: device busy", model.ErrCapture)

	event := h.cycle(t)

	if event.Outcome != model.OutcomeCaptureFailed {
		t.Fatalf("outcome = %q, want %q", event.Outcome, model.OutcomeCaptureFailed)
	}
	if len(h.store.saved) != 0 || len(h.uploader.keys) != 0 || len(h.captures.inserted) != 0 {
		t.Errorf("capture failure touched state: saved=%v uploads=%v journal=%d",
			h.store.saved, h.uploader.keys, len(h.captures.inserted))
	}
	if h.store.baseline != baseline {
		t.Error("baseline changed after capture failure")
	}
	if len(h.publisher.events) != 1 {
		t.Errorf("published %d events, want 1", len(h.publisher.events))
	}
}

func TestRunCycle_CancelledCaptureIsNotReported(t *testing.T) {
	h := newHarness(t, testFrame(t, 0, epoch))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	event, err := h.loop.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle returned %v", err)
	}
	if event.Outcome != "" {
		t.Errorf("outcome = %q, want none", event.Outcome)
	}
	if len(h.publisher.events) != 0 {
		t.Errorf("published %d events, want 0", len(h.publisher.events))
	}
	if status := h.loop.Status(); status.Cycles != 0 || status.Outcomes[model.OutcomeCaptureFailed] != 0 {
		t.Errorf("status = %+v, want no recorded cycle", status)
	}
}

func TestRunCycle_DetectionFailureDoesNotBlockUpload(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unavailable", fmt.Errorf("%w: connection refused", model.ErrDetectionUnavailable)},
		{"protocol error", fmt.Errorf("%w: status 500", model.ErrDetection)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testFrame(t, 0, epoch))
			h.detector.err = tt.err

			event := h.cycle(t)

			if event.Outcome != model.OutcomeUploaded {
				t.Fatalf("outcome = %q, want %q", event.Outcome, model.OutcomeUploaded)
			}
			if len(event.Detections) != 0 {
				t.Errorf("detections = %v, want empty", event.Detections)
			}
		})
	}
}

func TestRunCycle_TransientFailureKeepsBaseline(t *testing.T) {
	first := testFrame(t, 0, epoch)
	second := testFrame(t, 50, epoch.Add(30*time.Second))
	h := newHarness(t, first, second)
	h.cycle(t)

	transient := fmt.Errorf("%w: status 503", model.ErrUploadTransient)
	h.uploader.errs = []error{transient, transient, transient}
	event := h.cycle(t)

	if event.Outcome != model.OutcomeUploadFailed {
		t.Fatalf("outcome = %q, want %q", event.Outcome, model.OutcomeUploadFailed)
	}
	if event.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", event.Attempts)
	}
	if h.store.baseline != first {
		t.Error("baseline replaced after failed upload")
	}
	if h.store.settled["/captures/capture_2024-05-01_12-00-30.000.jpg"] {
		t.Error("failed capture settled as retained")
	}
}

func TestRunCycle_TransientThenSuccess(t *testing.T) {
	frame := testFrame(t, 0, epoch)
	h := newHarness(t, frame)
	h.uploader.errs = []error{fmt.Errorf("%w: timeout", model.ErrUploadTransient)}

	event := h.cycle(t)

	if event.Outcome != model.OutcomeUploaded || event.Attempts != 2 {
		t.Fatalf("outcome = %q attempts = %d, want uploaded after 2", event.Outcome, event.Attempts)
	}
	if len(h.uploader.keys) != 2 || h.uploader.keys[0] != h.uploader.keys[1] {
		t.Errorf("retry used keys %v, want the same key twice", h.uploader.keys)
	}
	if h.store.baseline != frame {
		t.Error("frame not retained after retry succeeded")
	}
}

func TestRunCycle_FatalFailureIsNotRetried(t *testing.T) {
	h := newHarness(t, testFrame(t, 0, epoch))
	h.uploader.errs = []error{fmt.Errorf("%w: status 403", model.ErrUploadFatal)}

	event := h.cycle(t)

	if event.Outcome != model.OutcomeUploadFailed {
		t.Fatalf("outcome = %q, want %q", event.Outcome, model.OutcomeUploadFailed)
	}
	if event.Attempts != 1 || len(h.uploader.keys) != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1", event.Attempts, len(h.uploader.keys))
	}
	if h.store.baseline != nil {
		t.Error("baseline set after fatal failure")
	}
}

func TestRunCycle_JournalsCaptureAndDetections(t *testing.T) {
	h := newHarness(t, testFrame(t, 0, epoch))
	h.detector.result = model.DetectionResult{"person": 0.9, "dog": 0.6}
	h.store.prune = []string{"capture_old.jpg"}

	h.cycle(t)

	if len(h.captures.inserted) != 1 {
		t.Fatalf("journal rows = %d, want 1", len(h.captures.inserted))
	}
	c := h.captures.inserted[0]
	if c.Outcome != model.OutcomeUploaded || c.Filename != "capture_2024-05-01_12-00-00.000.jpg" {
		t.Errorf("journal row = %+v", c)
	}
	if c.ChangeRatio != nil {
		t.Errorf("unmeasured ratio journaled as %v", *c.ChangeRatio)
	}
	if len(h.detections.inserted) != 2 || h.detections.inserted[0].Label != "person" {
		t.Errorf("detections = %+v", h.detections.inserted)
	}
	if len(h.captures.pruned) != 1 || h.captures.pruned[0] != "capture_old.jpg" {
		t.Errorf("pruned = %v", h.captures.pruned)
	}
}

func TestRunCycle_LocalStorageFailureIsFatal(t *testing.T) {
	h := newHarness(t, testFrame(t, 0, epoch))
	h.store.saveErr = fmt.Errorf("%w: disk full", model.ErrLocalStorage)

	_, err := h.loop.RunCycle(context.Background())
	if !errors.Is(err, model.ErrLocalStorage) {
		t.Fatalf("err = %v, want ErrLocalStorage", err)
	}
	if len(h.uploader.keys) != 0 {
		t.Error("upload attempted after local storage failure")
	}

	h.camera.frames = []*model.Frame{testFrame(t, 0, epoch)}
	if err := h.loop.Run(context.Background()); !errors.Is(err, model.ErrLocalStorage) {
		t.Errorf("Run err = %v, want ErrLocalStorage", err)
	}
	if h.loop.State() != StateStopped {
		t.Errorf("state = %s, want stopped", h.loop.State())
	}
}

func TestRun_StopsOnCancellation(t *testing.T) {
	h := newHarness(t, testFrame(t, 0, epoch), testFrame(t, 0, epoch.Add(time.Second)))
	ctx, cancel := context.WithCancel(context.Background())
	h.publisher.onPub = cancel

	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	if h.camera.calls != 1 {
		t.Errorf("camera calls = %d, want 1", h.camera.calls)
	}
	if h.loop.State() != StateStopped {
		t.Errorf("state = %s, want stopped", h.loop.State())
	}

	status := h.loop.Status()
	if status.Cycles != 1 || status.Outcomes[model.OutcomeUploaded] != 1 || status.State != "stopped" {
		t.Errorf("status = %+v", status)
	}
}

func TestRun_CancelledBeforeStartDoesNotCapture(t *testing.T) {
	h := newHarness(t, testFrame(t, 0, epoch))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.loop.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if h.camera.calls != 0 {
		t.Errorf("camera calls = %d, want 0", h.camera.calls)
	}
}
