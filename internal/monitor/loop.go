// Package monitor runs the capture, detect, decide and upload cycle.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"snapwatch/internal/config"
	"snapwatch/internal/dto"
	"snapwatch/internal/logger"
	"snapwatch/internal/model"
	"snapwatch/internal/repository"
	"snapwatch/internal/service/upload"
)

// Options controls cadence and upload retry.
type Options struct {
	Interval          time.Duration
	KeyPrefix         string
	MaxUploadAttempts int
	RetryInitial      time.Duration
	RetryMax          time.Duration
}

// OptionsFromConfig maps the loop settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Interval:          cfg.PollInterval,
		KeyPrefix:         cfg.KeyPrefix,
		MaxUploadAttempts: cfg.UploadMaxAttempts,
		RetryInitial:      cfg.UploadRetryInterval,
		RetryMax:          cfg.UploadRetryMaxInterval,
	}
}

// Deps are the loop's collaborators. Captures, Detections, Publisher and
// Metrics are optional.
type Deps struct {
	Camera     Camera
	Detector   Detector
	Change     ChangeDetector
	Uploader   Uploader
	Store      FrameStore
	Captures   repository.CaptureRepository
	Detections repository.DetectionRepository
	Publisher  Publisher
	Metrics    *Metrics
	Logger     *logger.Logger
}

// Loop is the single-goroutine monitor. Run must not be called concurrently;
// State and Status are safe from any goroutine.
type Loop struct {
	deps Deps
	opts Options

	state atomic.Int32

	mu     sync.Mutex
	status dto.Status
}

// New builds a loop from its collaborators.
func New(deps Deps, opts Options) *Loop {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	if opts.MaxUploadAttempts < 1 {
		opts.MaxUploadAttempts = 1
	}

	l := &Loop{
		deps: deps,
		opts: opts,
		status: dto.Status{
			Outcomes: make(map[string]int),
		},
	}
	l.setState(StateIdle)
	return l
}

// Run executes cycles until ctx is cancelled, sleeping Interval between
// them. It returns nil on cancellation and an error only when the local
// capture directory cannot be written.
func (l *Loop) Run(ctx context.Context) error {
	defer l.setState(StateStopped)

	l.deps.Logger.Info("Monitor started (interval %s)", l.opts.Interval)
	defer l.deps.Logger.Info("Monitor stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		if _, err := l.RunCycle(ctx); err != nil {
			return err
		}

		l.setState(StateSleeping)
		timer := time.NewTimer(l.opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle performs one capture, detect, decide and upload pass and returns
// the event describing it. Only a local storage failure is returned as an
// error; every other failure is logged and reflected in the event outcome.
func (l *Loop) RunCycle(ctx context.Context) (dto.CycleEvent, error) {
	started := time.Now()
	event := dto.CycleEvent{
		CycleID:    uuid.NewString()[:8],
		Detections: map[string]float64{},
	}
	log := l.cycleLogger(event.CycleID)

	l.setState(StateCapturing)
	frame, err := l.deps.Camera.Capture(ctx)
	if err != nil && ctx.Err() != nil {
		// Shutdown, not a device failure: nothing is counted or published.
		log.info("Capture interrupted: %v", err)
		return event, nil
	}
	if err != nil {
		event.Timestamp = time.Now().UTC()
		event.Outcome = model.OutcomeCaptureFailed
		event.Error = err.Error()
		log.err("Capture failed at %s: %v", event.Timestamp.Format(time.RFC3339), err)
		l.finish(event, started)
		return event, nil
	}
	event.Timestamp = frame.CapturedAt.UTC()
	event.Filename = upload.FileName(frame.CapturedAt)

	path, err := l.deps.Store.Save(frame, event.Filename)
	if err != nil {
		log.err("Saving %s failed: %v", event.Filename, err)
		return event, err
	}

	l.setState(StateDetecting)
	result := l.detect(ctx, frame, log)
	for label, confidence := range result {
		event.Detections[label] = confidence
	}

	l.setState(StateDeciding)
	baseline, _ := l.deps.Store.Current()
	decision := l.deps.Change.Differs(baseline, frame)
	event.Reason = decision.Reason
	if decision.Measured {
		ratio := decision.Ratio
		event.ChangeRatio = &ratio
		l.deps.Metrics.ChangeRatio.Set(ratio)
	}

	retained := false
	if !decision.Differs {
		event.Outcome = model.OutcomeUnchanged
		log.info("No significant change (%.2f%%), skipping upload", decision.Ratio)
	} else {
		l.setState(StateUploading)
		event.UploadKey = upload.Key(l.opts.KeyPrefix, frame.CapturedAt)
		attempts, err := l.upload(ctx, frame, event.UploadKey, log)
		event.Attempts = attempts
		switch {
		case err == nil:
			l.deps.Store.Retain(frame)
			retained = true
			event.Outcome = model.OutcomeUploaded
			log.info("Uploaded %s (%s, detections: %s)", event.UploadKey, describe(decision), result)
		case errors.Is(err, model.ErrUploadFatal):
			event.Outcome = model.OutcomeUploadFailed
			event.Error = err.Error()
			log.err("Upload of %s failed, not retried: %v", event.UploadKey, err)
		default:
			event.Outcome = model.OutcomeUploadFailed
			event.Error = err.Error()
			log.err("Upload of %s failed after %d attempt(s): %v", event.UploadKey, attempts, err)
		}
	}

	pruned, err := l.deps.Store.Settle(path, retained)
	if err != nil {
		log.warn("Local retention: %v", err)
	}

	l.journal(frame, path, event, pruned, result, log)
	l.finish(event, started)
	return event, nil
}

// State returns the current loop state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Status returns a snapshot of loop counters.
func (l *Loop) Status() dto.Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.status
	s.State = l.State().String()
	s.Outcomes = make(map[string]int, len(l.status.Outcomes))
	for k, v := range l.status.Outcomes {
		s.Outcomes[k] = v
	}
	return s
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

func (l *Loop) detect(ctx context.Context, frame *model.Frame, log cycleLogger) model.DetectionResult {
	result, err := l.deps.Detector.Detect(ctx, frame)
	switch {
	case err == nil:
		return result
	case errors.Is(err, model.ErrDetectionUnavailable):
		l.deps.Metrics.DetectionFailures.WithLabelValues("unavailable").Inc()
		log.warn("Detection unavailable: %v", err)
	default:
		l.deps.Metrics.DetectionFailures.WithLabelValues("error").Inc()
		log.warn("Detection error: %v", err)
	}
	return model.DetectionResult{}
}

// upload retries transient failures with exponential backoff up to
// MaxUploadAttempts total attempts. Fatal failures stop immediately.
func (l *Loop) upload(ctx context.Context, frame *model.Frame, key string, log cycleLogger) (int, error) {
	attempts := 0
	operation := func() error {
		attempts++
		l.deps.Metrics.UploadAttempts.Inc()

		err := l.deps.Uploader.Upload(ctx, frame, key)
		if err != nil && errors.Is(err, model.ErrUploadFatal) {
			return backoff.Permanent(err)
		}
		return err
	}

	expo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(l.opts.RetryInitial),
		backoff.WithMaxInterval(l.opts.RetryMax),
		backoff.WithMaxElapsedTime(0),
	)
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(l.opts.MaxUploadAttempts-1)), ctx)

	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		log.warn("Upload attempt %d failed, retrying in %s: %v", attempts, wait.Round(time.Millisecond), err)
	})
	return attempts, err
}

func (l *Loop) journal(frame *model.Frame, path string, event dto.CycleEvent, pruned []string, result model.DetectionResult, log cycleLogger) {
	if l.deps.Captures == nil {
		return
	}

	capture := &model.Capture{
		Filename:    event.Filename,
		FilePath:    path,
		FileSize:    int64(len(frame.Data)),
		CapturedAt:  frame.CapturedAt,
		Outcome:     event.Outcome,
		UploadKey:   event.UploadKey,
		ChangeRatio: event.ChangeRatio,
	}
	for _, name := range pruned {
		if name == event.Filename {
			capture.Pruned = true
			continue
		}
		if err := l.deps.Captures.MarkPruned(name); err != nil {
			log.warn("Journal: %v", err)
		}
	}

	id, err := l.deps.Captures.Insert(capture)
	if err != nil {
		log.warn("Journal: %v", err)
		return
	}

	if l.deps.Detections == nil || len(result) == 0 {
		return
	}
	detections := make([]model.Detection, 0, len(result))
	for _, label := range result.Labels() {
		detections = append(detections, model.Detection{
			CaptureID:  id,
			Label:      label,
			Confidence: result[label],
		})
	}
	if err := l.deps.Detections.InsertBatch(detections); err != nil {
		log.warn("Journal: %v", err)
	}
}

func (l *Loop) finish(event dto.CycleEvent, started time.Time) {
	l.deps.Metrics.Cycles.WithLabelValues(event.Outcome).Inc()
	l.deps.Metrics.CycleDuration.Observe(time.Since(started).Seconds())

	l.mu.Lock()
	l.status.Cycles++
	l.status.Outcomes[event.Outcome]++
	l.status.LastOutcome = event.Outcome
	l.status.LastCycleAt = event.Timestamp
	l.status.LastError = event.Error
	if event.Outcome == model.OutcomeUploaded {
		l.status.BaselineAt = event.Timestamp
	}
	l.mu.Unlock()

	if l.deps.Publisher != nil {
		l.deps.Publisher.Publish(event)
	}
}

func describe(d model.ChangeDecision) string {
	if d.Measured {
		return fmt.Sprintf("%s %.2f%%", d.Reason, d.Ratio)
	}
	return d.Reason
}

// cycleLogger prefixes every line with the cycle id.
type cycleLogger struct {
	logger *logger.Logger
	prefix string
}

func (l *Loop) cycleLogger(id string) cycleLogger {
	return cycleLogger{logger: l.deps.Logger, prefix: "[" + id + "] "}
}

func (c cycleLogger) info(format string, v ...interface{}) {
	c.logger.Info(c.prefix+format, v...)
}

func (c cycleLogger) warn(format string, v ...interface{}) {
	c.logger.Warning(c.prefix+format, v...)
}

func (c cycleLogger) err(format string, v ...interface{}) {
	c.logger.Error(c.prefix+format, v...)
}

