package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"snapwatch/internal/config"
	"snapwatch/internal/logger"
	"snapwatch/internal/model"
	"snapwatch/internal/service/upload"
)

// FrameStore holds the comparison baseline and writes every capture to the
// local capture directory.
//
// It is owned by a single loop goroutine: Retain is only called after a
// successful upload and Current only while deciding, so no locking is needed.
type FrameStore struct {
	dir           string
	maxCaptures   int
	keepDiscarded bool
	logger        *logger.Logger

	baseline     *model.Frame
	baselinePath string
}

// NewFrameStore creates the capture directory. Failing to create it is fatal.
func NewFrameStore(config *config.Config, logger *logger.Logger) (*FrameStore, error) {
	if err := os.MkdirAll(config.LocalCaptureDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating capture directory: %w", model.ErrLocalStorage, err)
	}

	return &FrameStore{
		dir:           config.LocalCaptureDir,
		maxCaptures:   config.MaxLocalCaptures,
		keepDiscarded: config.KeepDiscardedCaptures,
		logger:        logger,
	}, nil
}

// Current returns the retained baseline, or false before the first upload.
func (s *FrameStore) Current() (*model.Frame, bool) {
	return s.baseline, s.baseline != nil
}

// Retain makes frame the new comparison baseline, dropping the previous one.
func (s *FrameStore) Retain(frame *model.Frame) {
	s.baseline = frame
}

// Dir returns the capture directory.
func (s *FrameStore) Dir() string {
	return s.dir
}

// Save writes the encoded frame as name inside the capture directory and
// returns its path.
func (s *FrameStore) Save(frame *model.Frame, name string) (string, error) {
	fullpath := filepath.Join(s.dir, filepath.Base(name))

	if err := os.WriteFile(fullpath, frame.Data, 0644); err != nil {
		return "", fmt.Errorf("%w: saving capture %s: %w", model.ErrLocalStorage, name, err)
	}
	return fullpath, nil
}

// Settle applies the local retention policy once the cycle for the capture
// at path is decided. retained marks the capture as the new baseline. It
// returns the base names of deleted files.
func (s *FrameStore) Settle(path string, retained bool) ([]string, error) {
	var pruned []string

	if retained {
		s.baselinePath = path
	} else if !s.keepDiscarded && path != s.baselinePath {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return pruned, fmt.Errorf("removing discarded capture: %w", err)
		}
		pruned = append(pruned, filepath.Base(path))
	}

	if s.maxCaptures <= 0 {
		return pruned, nil
	}

	names, err := s.captureNames()
	if err != nil {
		return pruned, err
	}

	excess := len(names) - s.maxCaptures
	baselineName := filepath.Base(s.baselinePath)
	for _, name := range names {
		if excess <= 0 {
			break
		}
		if s.baselinePath != "" && name == baselineName {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return pruned, fmt.Errorf("pruning capture %s: %w", name, err)
		}
		pruned = append(pruned, name)
		excess--
	}

	if len(pruned) > 0 {
		s.logger.Info("Pruned %d local capture(s)", len(pruned))
	}
	return pruned, nil
}

// captureNames lists capture files oldest first. Capture names embed a
// sortable timestamp.
func (s *FrameStore) captureNames() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading capture directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !upload.IsCaptureFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
