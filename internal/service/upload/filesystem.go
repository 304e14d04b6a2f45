package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"snapwatch/internal/model"
)

// FilesystemUploader writes frames below a base directory, typically a
// mounted network share.
type FilesystemUploader struct {
	baseDir string
}

// NewFilesystemUploader creates the base directory if needed.
func NewFilesystemUploader(baseDir string) (*FilesystemUploader, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: empty destination directory", model.ErrUploadFatal)
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create destination directory: %w", model.ErrUploadFatal, err)
	}

	return &FilesystemUploader{baseDir: filepath.Clean(baseDir)}, nil
}

// Upload writes the frame atomically: a temporary file is renamed over the key.
func (fs *FilesystemUploader) Upload(ctx context.Context, frame *model.Frame, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", model.ErrUploadTransient, err)
	}

	path := filepath.Join(fs.baseDir, filepath.FromSlash(key))

	// Security: prevent directory traversal
	if !within(fs.baseDir, path) {
		return fmt.Errorf("%w: invalid key %q: path traversal detected", model.ErrUploadFatal, key)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return classifyFSError("create key directory", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return classifyFSError("create temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(frame.Data); err != nil {
		tmp.Close()
		return classifyFSError("write frame", err)
	}
	if err := tmp.Close(); err != nil {
		return classifyFSError("close temp file", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return classifyFSError("rename into place", err)
	}
	return nil
}

// within reports whether path names an entry strictly below dir.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, filepath.Clean(path))
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func classifyFSError(op string, err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %s: %w", model.ErrUploadFatal, op, err)
	}
	return fmt.Errorf("%w: %s: %w", model.ErrUploadTransient, op, err)
}
