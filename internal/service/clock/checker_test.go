package clock

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"snapwatch/internal/config"
	"snapwatch/internal/logger"
)

func newTestChecker(offset time.Duration, err error) *Checker {
	cfg := &config.Config{NTPServer: "ntp.test", MaxClockSkew: time.Second}
	c := NewChecker(cfg, logger.NewWriterLogger(io.Discard, io.Discard))
	c.QueryFunc = func(string) (time.Duration, error) { return offset, err }
	c.Now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return c
}

func TestNewChecker_DisabledWithoutServer(t *testing.T) {
	if c := NewChecker(&config.Config{}, nil); c != nil {
		t.Error("expected nil checker without NTP server")
	}
}

func TestChecker_Check(t *testing.T) {
	tests := []struct {
		name        string
		offset      time.Duration
		err         error
		wantHealthy bool
		wantError   bool
	}{
		{"small offset", 10 * time.Millisecond, nil, true, false},
		{"negative small offset", -900 * time.Millisecond, nil, true, false},
		{"large offset", 3 * time.Second, nil, false, false},
		{"large negative offset", -2 * time.Second, nil, false, false},
		{"query error", 0, errors.New("timeout"), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestChecker(tt.offset, tt.err)
			s := c.Check()

			if s.Healthy != tt.wantHealthy {
				t.Errorf("Healthy = %v, want %v", s.Healthy, tt.wantHealthy)
			}
			if (s.Error != "") != tt.wantError {
				t.Errorf("Error = %q, wantError %v", s.Error, tt.wantError)
			}
			if c.Status() != s {
				t.Errorf("Status() = %+v, want %+v", c.Status(), s)
			}
		})
	}
}

func TestChecker_RunChecksImmediately(t *testing.T) {
	c := newTestChecker(5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	s := c.Status()
	if !s.Healthy || s.Offset != 5*time.Millisecond || s.CheckedAt.IsZero() {
		t.Errorf("status after Run = %+v", s)
	}
}
