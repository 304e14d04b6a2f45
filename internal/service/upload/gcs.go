package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"snapwatch/internal/model"
)

// GCSUploader stores frames as objects in a Google Cloud Storage bucket.
// Credentials come from the environment (GOOGLE_APPLICATION_CREDENTIALS).
type GCSUploader struct {
	client  *storage.Client
	bucket  string
	prefix  string
	timeout time.Duration
}

// NewGCSUploader connects to Cloud Storage and checks that the bucket is
// reachable with the provisioned credentials.
func NewGCSUploader(ctx context.Context, bucket, prefix string, timeout time.Duration) (*GCSUploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create storage client: %w", model.ErrUploadFatal, err)
	}

	u := &GCSUploader{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		timeout: timeout,
	}

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := client.Bucket(bucket).Attrs(checkCtx); err != nil {
		// Only misconfiguration aborts startup; a flaky network at boot is
		// handled by the per-cycle retry policy.
		if classified := classifyGCSError("check bucket "+bucket, err); errors.Is(classified, model.ErrUploadFatal) {
			client.Close()
			return nil, classified
		}
	}

	return u, nil
}

// Upload writes the frame to gs://<bucket>/<prefix>/<key>, replacing any
// existing object.
func (u *GCSUploader) Upload(ctx context.Context, frame *model.Frame, key string) error {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	name := key
	if u.prefix != "" {
		name = path.Join(u.prefix, key)
	}

	w := u.client.Bucket(u.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(frame.Data); err != nil {
		w.Close()
		return classifyGCSError("write object "+name, err)
	}
	if err := w.Close(); err != nil {
		return classifyGCSError("finalize object "+name, err)
	}
	return nil
}

// Close releases the storage client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}

func classifyGCSError(op string, err error) error {
	if errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%w: %s: %w", model.ErrUploadFatal, op, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%w: %s: %w", model.ErrUploadFatal, op, err)
		}
		return fmt.Errorf("%w: %s: %w", classifyStatus(apiErr.Code), op, err)
	}

	// Network errors, timeouts and cancelled writes are worth retrying.
	return fmt.Errorf("%w: %s: %w", model.ErrUploadTransient, op, err)
}
