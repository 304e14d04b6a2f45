package route

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"snapwatch/internal/dto"
	"snapwatch/internal/logger"
	wshub "snapwatch/internal/service/websocket"
)

func TestSetupRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "snapwatch_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	log := logger.NewWriterLogger(io.Discard, io.Discard)
	router := SetupRoutes(Deps{
		Status:   func() dto.Status { return dto.Status{State: "sleeping"} },
		Hub:      wshub.NewHubService(log),
		Gatherer: reg,
		Logger:   log,
	})

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/health", http.StatusOK, `"state":"sleeping"`},
		{"/metrics", http.StatusOK, "snapwatch_test_total 1"},
		{"/api/captures", http.StatusServiceUnavailable, "disabled"},
		{"/api/labels", http.StatusServiceUnavailable, "disabled"},
		{"/unknown", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}
