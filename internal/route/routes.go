package route

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"snapwatch/internal/dto"
	"snapwatch/internal/handler"
	"snapwatch/internal/logger"
	"snapwatch/internal/repository"
	wshub "snapwatch/internal/service/websocket"
)

// Deps are the services exposed over HTTP. Repositories may be nil when the
// capture journal is disabled.
type Deps struct {
	Status        func() dto.Status
	Hub           *wshub.HubService
	Gatherer      prometheus.Gatherer
	CaptureRepo   repository.CaptureRepository
	DetectionRepo repository.DetectionRepository
	Logger        *logger.Logger
}

// SetupRoutes registers the status, metrics, event stream, journal and log endpoints.
func SetupRoutes(deps Deps) http.Handler {
	mux := http.NewServeMux()
	log := deps.Logger

	mux.HandleFunc("/health", handler.HealthHandler(deps.Status, log))
	mux.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	// API endpoints
	mux.HandleFunc("/api/events", handler.EventsWebsocketHandler(deps.Hub, log))
	mux.HandleFunc("/api/captures", handler.GetCapturesHandler(deps.CaptureRepo, deps.DetectionRepo, log))
	mux.HandleFunc("/api/labels", handler.GetLabelsHandler(deps.DetectionRepo, log))

	// Log endpoints
	for _, level := range []struct{ path, file string }{
		{"/logs/info", logger.InfoFile},
		{"/logs/warning", logger.WarningFile},
		{"/logs/error", logger.ErrorFile},
	} {
		mux.HandleFunc(level.path, handler.ShowLogsHandler(log, level.file))
		mux.HandleFunc(level.path+"/clear", handler.ClearLogsHandler(log, level.file))
	}

	return mux
}
