package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"snapwatch/internal/model"
)

// HTTPUploader stores frames with an HTTP PUT to <baseURL>/<key>.
type HTTPUploader struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewHTTPUploader creates an HTTP-based uploader.
func NewHTTPUploader(baseURL, apiKey string, timeout time.Duration) *HTTPUploader {
	return &HTTPUploader{
		baseURL:    baseURL,
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Upload PUTs the JPEG bytes at the key.
func (u *HTTPUploader) Upload(ctx context.Context, frame *model.Frame, key string) error {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	url := u.baseURL + "/" + strings.TrimLeft(key, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(frame.Data))
	if err != nil {
		return fmt.Errorf("%w: create request: %w", model.ErrUploadFatal, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(frame.Data))
	if u.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrUploadTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%w: upload failed with status %d: %s", classifyStatus(resp.StatusCode), resp.StatusCode, bytes.TrimSpace(body))
}

// classifyStatus maps an HTTP status to the transient or fatal failure class.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return model.ErrUploadTransient
	default:
		return model.ErrUploadFatal
	}
}
