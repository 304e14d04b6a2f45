package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"snapwatch/internal/config"
	"snapwatch/internal/dto"
	"snapwatch/internal/logger"
	"snapwatch/internal/monitor"
	"snapwatch/internal/repository"
	"snapwatch/internal/repository/sqlite"
	"snapwatch/internal/route"
	"snapwatch/internal/service/camera"
	"snapwatch/internal/service/change"
	"snapwatch/internal/service/clock"
	"snapwatch/internal/service/detection"
	"snapwatch/internal/service/storage"
	"snapwatch/internal/service/upload"
	"snapwatch/internal/service/websocket"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config   *config.Config
	logger   *logger.Logger
	camera   *camera.Camera
	uploader upload.Uploader
	detector detection.Service
	db       *sqlite.DB
	hub      *websocket.HubService
	clock    *clock.Checker
	registry *prometheus.Registry
	loop     *monitor.Loop

	captureRepo   repository.CaptureRepository
	detectionRepo repository.DetectionRepository
}

// NewApp wires every service. Any error is a startup failure; resources
// opened before the failure are released.
func NewApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{
		config:   cfg,
		logger:   log,
		registry: prometheus.NewRegistry(),
	}
	fail := func(err error) (*App, error) {
		a.Close()
		return nil, err
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := storage.NewFrameStore(cfg, log)
	if err != nil {
		return fail(err)
	}

	a.uploader, err = upload.New(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	if cfg.DatabasePath != "" {
		a.db, err = sqlite.New(cfg.DatabasePath)
		if err != nil {
			return fail(fmt.Errorf("failed to open capture journal: %w", err))
		}
		a.captureRepo = sqlite.NewCaptureRepository(a.db)
		a.detectionRepo = sqlite.NewDetectionRepository(a.db)
	}

	a.detector, err = detection.New(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	if _, disabled := a.detector.(detection.Disabled); disabled {
		log.Warning("DETECTION_URL not set, object detection disabled")
	}

	a.camera, err = camera.Open(cfg, log)
	if err != nil {
		return fail(err)
	}

	a.hub = websocket.NewHubService(log)
	a.clock = clock.NewChecker(cfg, log)

	a.loop = monitor.New(monitor.Deps{
		Camera:     a.camera,
		Detector:   a.detector,
		Change:     change.NewDetector(cfg.ChangeThresholdPercent, cfg.PixelEpsilon),
		Uploader:   a.uploader,
		Store:      store,
		Captures:   a.captureRepo,
		Detections: a.detectionRepo,
		Publisher:  a.hub,
		Metrics:    monitor.NewMetrics(a.registry),
		Logger:     log,
	}, monitor.OptionsFromConfig(cfg))

	return a, nil
}

// Run starts the monitor loop, the event hub, the clock checker and the HTTP
// server, and blocks until ctx is cancelled or the loop fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.hub.Run(ctx) })

	if a.clock != nil {
		g.Go(func() error { return a.clock.Run(ctx) })
	}

	if a.config.Port > 0 {
		server := &http.Server{
			Addr: fmt.Sprintf(":%d", a.config.Port),
			Handler: route.SetupRoutes(route.Deps{
				Status:        a.Status,
				Hub:           a.hub,
				Gatherer:      a.registry,
				CaptureRepo:   a.captureRepo,
				DetectionRepo: a.detectionRepo,
				Logger:        a.logger,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		if err := a.loop.Run(ctx); err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
		return nil
	})

	a.logger.Info("🚀 snapwatch started")
	a.logger.Info("📷 Camera: %d, every %s", a.config.CameraIndex, a.config.PollInterval)
	a.logger.Info("📁 Captures: %s -> %s", a.config.LocalCaptureDir, a.config.StorageDestination)
	if a.config.Port > 0 {
		a.logger.Info("📍 Status: http://localhost:%d/health", a.config.Port)
	}

	return g.Wait()
}

// Status merges the loop snapshot with the clock check.
func (a *App) Status() dto.Status {
	s := a.loop.Status()
	if a.clock != nil {
		cs := a.clock.Status()
		if !cs.CheckedAt.IsZero() {
			healthy := cs.Healthy
			s.ClockHealthy = &healthy
			s.ClockOffset = cs.Offset.String()
		}
	}
	return s
}

// Close releases the camera, the uploader, the detector and the journal.
func (a *App) Close() error {
	var errs []error
	if a.camera != nil {
		errs = append(errs, a.camera.Close())
	}
	if closer, ok := a.uploader.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if closer, ok := a.detector.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
