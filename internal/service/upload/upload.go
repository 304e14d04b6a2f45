// Package upload persists retained frames to durable remote storage.
//
// Every backend performs a full-content overwrite-or-create at the given key,
// so repeating an upload of the same frame to the same key is safe. Errors
// wrap model.ErrUploadTransient (retryable) or model.ErrUploadFatal.
package upload

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"snapwatch/internal/config"
	"snapwatch/internal/model"
)

const (
	keyLayout   = "2006-01-02_15-04-05.000"
	keyPrefix   = "capture_"
	keyExt      = ".jpg"
	contentType = "image/jpeg"
)

// Uploader stores frame content at a key.
type Uploader interface {
	Upload(ctx context.Context, frame *model.Frame, key string) error
}

// Key derives the storage key for a frame captured at capturedAt. The key
// only depends on the UTC timestamp (millisecond resolution) and prefix.
func Key(prefix string, capturedAt time.Time) string {
	name := FileName(capturedAt)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// FileName returns the base name used both locally and remotely.
func FileName(capturedAt time.Time) string {
	return keyPrefix + capturedAt.UTC().Format(keyLayout) + keyExt
}

// ParseFileName recovers the capture timestamp from a name produced by FileName.
func ParseFileName(name string) (time.Time, error) {
	base := path.Base(name)
	if !strings.HasPrefix(base, keyPrefix) || !strings.HasSuffix(base, keyExt) {
		return time.Time{}, fmt.Errorf("not a capture file name: %s", name)
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(base, keyPrefix), keyExt)
	t, err := time.ParseInLocation(keyLayout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid capture timestamp in %s: %w", name, err)
	}
	return t, nil
}

// IsCaptureFile reports whether name looks like a capture produced by FileName.
func IsCaptureFile(name string) bool {
	_, err := ParseFileName(name)
	return err == nil
}

// New selects an uploader from the storage destination scheme:
//
//	gs://bucket[/prefix]        Google Cloud Storage
//	http(s)://host/path         HTTP PUT per key
//	file:///dir                 local or mounted directory
//
// The destination is validated; a misconfigured destination is reported as
// model.ErrUploadFatal so startup can abort.
func New(ctx context.Context, cfg *config.Config) (Uploader, error) {
	dest, err := url.Parse(cfg.StorageDestination)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid storage destination %q: %w", model.ErrUploadFatal, cfg.StorageDestination, err)
	}

	switch dest.Scheme {
	case "gs":
		if dest.Host == "" {
			return nil, fmt.Errorf("%w: missing bucket in %q", model.ErrUploadFatal, cfg.StorageDestination)
		}
		return NewGCSUploader(ctx, dest.Host, strings.Trim(dest.Path, "/"), cfg.UploadTimeout)
	case "http", "https":
		if dest.Host == "" {
			return nil, fmt.Errorf("%w: missing host in %q", model.ErrUploadFatal, cfg.StorageDestination)
		}
		return NewHTTPUploader(strings.TrimRight(dest.String(), "/"), cfg.StorageAPIKey, cfg.UploadTimeout), nil
	case "file":
		if dest.Host != "" && dest.Host != "localhost" {
			return nil, fmt.Errorf("%w: file destination %q has host %q, use file:///abs/path", model.ErrUploadFatal, cfg.StorageDestination, dest.Host)
		}
		dir := dest.Path
		if dir == "" {
			dir = dest.Opaque
		}
		return NewFilesystemUploader(dir)
	default:
		return nil, fmt.Errorf("%w: unsupported storage destination scheme %q", model.ErrUploadFatal, dest.Scheme)
	}
}
