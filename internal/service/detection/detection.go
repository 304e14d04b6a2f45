// Package detection asks a remote service which objects a frame shows.
//
// Errors wrap model.ErrDetectionUnavailable (service unreachable, overloaded
// or slow) or model.ErrDetection (anything else).
package detection

import (
	"context"
	"fmt"
	"net/url"

	"snapwatch/internal/config"
	"snapwatch/internal/model"
)

// Service reports the labels found in a frame.
type Service interface {
	Detect(ctx context.Context, frame *model.Frame) (model.DetectionResult, error)
}

// New selects a detection backend from DETECTION_URL:
//
//	(empty)             detection disabled
//	vision://           Google Cloud Vision object localization
//	http(s)://host/path multipart POST to a detection service
func New(ctx context.Context, cfg *config.Config) (Service, error) {
	if cfg.DetectionURL == "" {
		return Disabled{}, nil
	}

	u, err := url.Parse(cfg.DetectionURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid detection url %q: %w", model.ErrInvalidConfig, cfg.DetectionURL, err)
	}

	switch u.Scheme {
	case "vision":
		client, err := NewVisionClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "http", "https":
		if u.Host == "" {
			return nil, fmt.Errorf("%w: missing host in detection url %q", model.ErrInvalidConfig, cfg.DetectionURL)
		}
		return NewClient(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unsupported detection url scheme %q", model.ErrInvalidConfig, u.Scheme)
	}
}
