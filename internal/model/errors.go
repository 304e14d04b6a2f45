package model

import "errors"

var (
	// ErrCapture is returned when the camera yields no frame.
	ErrCapture = errors.New("capture failure")

	// ErrDetectionUnavailable is returned when the detection service is
	// unreachable, rate limited or times out.
	ErrDetectionUnavailable = errors.New("detection unavailable")

	// ErrDetection is returned for any other detection protocol error.
	ErrDetection = errors.New("detection error")

	// ErrUploadTransient marks retryable upload failures (network, quota).
	ErrUploadTransient = errors.New("transient upload failure")

	// ErrUploadFatal marks upload failures that will not succeed on retry
	// (credentials, missing bucket).
	ErrUploadFatal = errors.New("fatal upload failure")

	// ErrLocalStorage is returned when the local capture directory cannot be written.
	ErrLocalStorage = errors.New("local storage failure")

	// ErrInvalidConfig is returned for configuration rejected at startup.
	ErrInvalidConfig = errors.New("invalid configuration")
)
