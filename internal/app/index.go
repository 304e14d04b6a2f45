package app

import (
	"fmt"
	"os"
	"path/filepath"

	"snapwatch/internal/logger"
	"snapwatch/internal/model"
	"snapwatch/internal/repository"
	"snapwatch/internal/service/upload"
)

// IndexResult summarizes an IndexCaptures run.
type IndexResult struct {
	Inserted int
	Existing int
	Skipped  int
}

// IndexCaptures journals capture files found in dir that are not yet
// recorded. Capture times are recovered from the file names.
func IndexCaptures(dir string, captureRepo repository.CaptureRepository, log *logger.Logger) (IndexResult, error) {
	var result IndexResult

	files, err := os.ReadDir(dir)
	if err != nil {
		return result, fmt.Errorf("failed to read capture directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".jpg" {
			continue
		}

		capturedAt, err := upload.ParseFileName(file.Name())
		if err != nil {
			log.Warning("Skipping %s: %v", file.Name(), err)
			result.Skipped++
			continue
		}

		exists, err := captureRepo.Exists(file.Name())
		if err != nil {
			return result, err
		}
		if exists {
			result.Existing++
			continue
		}

		info, err := file.Info()
		if err != nil {
			log.Warning("Failed to get info for %s: %v", file.Name(), err)
			result.Skipped++
			continue
		}

		if _, err := captureRepo.Insert(&model.Capture{
			Filename:   file.Name(),
			FilePath:   filepath.Join(dir, file.Name()),
			FileSize:   info.Size(),
			CapturedAt: capturedAt,
			Outcome:    model.OutcomeIndexed,
		}); err != nil {
			return result, err
		}
		result.Inserted++
	}

	return result, nil
}
