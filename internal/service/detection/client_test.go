package detection

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"snapwatch/internal/config"
	"snapwatch/internal/model"
)

func newTestClient(url string, timeout time.Duration) *Client {
	return NewClient(&config.Config{
		DetectionURL:     url,
		DetectionAPIKey:  "secret",
		MinConfidence:    DefaultMinConfidence,
		DetectionTimeout: timeout,
	})
}

func testFrame() *model.Frame {
	return &model.Frame{Data: []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}, CapturedAt: time.Now()}
}

func TestDetect_FiltersByConfidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, expected POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing form file: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if len(data) != 5 {
				t.Errorf("uploaded %d bytes, expected 5", len(data))
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"detections":[
			{"label":"person","confidence":0.91},
			{"label":"person","confidence":0.62},
			{"label":"cat","confidence":0.50},
			{"label":"car","confidence":0.51},
			{"label":"dog","confidence":0.12}
		]}`))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL, time.Second).Detect(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("expected 2 labels, got %v", result)
	}
	if result["person"] != 0.91 {
		t.Errorf("person = %v, expected highest score 0.91", result["person"])
	}
	if _, ok := result["cat"]; ok {
		t.Error("confidence equal to threshold must be filtered out")
	}
	if result["car"] != 0.51 {
		t.Errorf("car = %v, expected 0.51", result["car"])
	}
}

func TestDetect_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"service unavailable", http.StatusServiceUnavailable, "busy", model.ErrDetectionUnavailable},
		{"rate limited", http.StatusTooManyRequests, "slow down", model.ErrDetectionUnavailable},
		{"bad request", http.StatusBadRequest, "bad image", model.ErrDetection},
		{"unauthorized", http.StatusUnauthorized, "", model.ErrDetection},
		{"invalid json", http.StatusOK, "{not json", model.ErrDetection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL, time.Second).Detect(context.Background(), testFrame())
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, expected %v", err, tt.want)
			}
		})
	}
}

func TestDetect_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newTestClient(url, time.Second).Detect(context.Background(), testFrame())
	if !errors.Is(err, model.ErrDetectionUnavailable) {
		t.Errorf("error = %v, expected ErrDetectionUnavailable", err)
	}
}

func TestDetect_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	start := time.Now()
	_, err := newTestClient(server.URL, 50*time.Millisecond).Detect(context.Background(), testFrame())
	if !errors.Is(err, model.ErrDetectionUnavailable) {
		t.Errorf("error = %v, expected ErrDetectionUnavailable", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Detect should honor timeout, took %v", elapsed)
	}
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Detect(context.Background(), testFrame())
	if !errors.Is(err, model.ErrDetectionUnavailable) {
		t.Errorf("error = %v, expected ErrDetectionUnavailable", err)
	}
}
