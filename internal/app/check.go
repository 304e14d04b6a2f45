package app

import (
	"context"
	"fmt"
	"io"

	"snapwatch/internal/config"
	"snapwatch/internal/logger"
	"snapwatch/internal/service/clock"
	"snapwatch/internal/service/upload"
)

// Check validates the storage destination and, when configured, the clock
// skew without opening the camera. Configuration errors surface from
// config.Load before this runs.
func Check(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	uploader, err := upload.New(ctx, cfg)
	if err != nil {
		return err
	}
	if closer, ok := uploader.(io.Closer); ok {
		defer closer.Close()
	}
	log.Info("Storage destination %s OK", cfg.StorageDestination)

	if checker := clock.NewChecker(cfg, log); checker != nil {
		status := checker.Check()
		if status.Error != "" {
			return fmt.Errorf("clock check: %s", status.Error)
		}
		if !status.Healthy {
			return fmt.Errorf("clock offset %s exceeds %s", status.Offset, cfg.MaxClockSkew)
		}
		log.Info("Clock offset %s OK", status.Offset)
	}

	return nil
}
