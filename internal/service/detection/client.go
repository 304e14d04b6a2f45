package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"time"

	"snapwatch/internal/config"
	"snapwatch/internal/model"
)

// DefaultMinConfidence is the confidence a label must exceed to be reported.
const DefaultMinConfidence = 0.50

// Client sends frames to a remote object-detection service.
type Client struct {
	url           string
	apiKey        string
	minConfidence float64
	timeout       time.Duration
	httpClient    *http.Client
}

// NewClient creates a detection client for the configured service URL.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		url:           cfg.DetectionURL,
		apiKey:        cfg.DetectionAPIKey,
		minConfidence: cfg.MinConfidence,
		timeout:       cfg.DetectionTimeout,
		httpClient:    &http.Client{},
	}
}

type labelScore struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type detectResponse struct {
	Detections []labelScore `json:"detections"`
}

// Detect uploads the frame and returns the labels scoring above the
// minimum confidence. Errors wrap model.ErrDetectionUnavailable or
// model.ErrDetection.
func (c *Client) Detect(ctx context.Context, frame *model.Frame) (model.DetectionResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("%w: create form file: %w", model.ErrDetection, err)
	}
	if _, err := part.Write(frame.Data); err != nil {
		return nil, fmt.Errorf("%w: write image data: %w", model.ErrDetection, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%w: close multipart body: %w", model.ErrDetection, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", model.ErrDetection, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isUnreachable(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrDetectionUnavailable, err)
		}
		return nil, fmt.Errorf("%w: send request: %w", model.ErrDetection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		switch resp.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return nil, fmt.Errorf("%w: status %d: %s", model.ErrDetectionUnavailable, resp.StatusCode, bytes.TrimSpace(msg))
		default:
			return nil, fmt.Errorf("%w: status %d: %s", model.ErrDetection, resp.StatusCode, bytes.TrimSpace(msg))
		}
	}

	var result detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if isUnreachable(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrDetectionUnavailable, err)
		}
		return nil, fmt.Errorf("%w: decode response: %w", model.ErrDetection, err)
	}

	return filter(result.Detections, c.minConfidence), nil
}

// filter keeps labels whose confidence is strictly greater than
// minConfidence. A label seen more than once keeps its highest score.
func filter(scores []labelScore, minConfidence float64) model.DetectionResult {
	out := make(model.DetectionResult)
	for _, s := range scores {
		if s.Label == "" || s.Confidence <= minConfidence {
			continue
		}
		if prev, ok := out[s.Label]; !ok || s.Confidence > prev {
			out[s.Label] = s.Confidence
		}
	}
	return out
}

// isUnreachable reports whether err means the service could not be reached
// in time, as opposed to a protocol failure.
func isUnreachable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Disabled stands in for a detection service when none is configured.
type Disabled struct{}

// Detect always reports the service as unavailable.
func (Disabled) Detect(context.Context, *model.Frame) (model.DetectionResult, error) {
	return nil, fmt.Errorf("%w: no detection service configured", model.ErrDetectionUnavailable)
}
