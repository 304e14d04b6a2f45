// Package clock watches local clock skew against an NTP server. Storage keys
// are derived from capture timestamps, so a drifting clock produces keys that
// sort out of order.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/beevik/ntp"

	"snapwatch/internal/config"
	"snapwatch/internal/logger"
)

const (
	DefaultInterval = 10 * time.Minute
	queryTimeout    = 5 * time.Second
)

type Status struct {
	Offset    time.Duration
	Healthy   bool
	Error     string
	CheckedAt time.Time
}

type Checker struct {
	mu        sync.RWMutex
	status    Status
	server    string
	interval  time.Duration
	threshold time.Duration
	logger    *logger.Logger

	// QueryFunc returns the local clock offset; tests replace it.
	QueryFunc func(server string) (time.Duration, error)
	Now       func() time.Time
}

// NewChecker returns nil when no NTP server is configured.
func NewChecker(cfg *config.Config, logger *logger.Logger) *Checker {
	if cfg.NTPServer == "" {
		return nil
	}
	return &Checker{
		server:    cfg.NTPServer,
		interval:  DefaultInterval,
		threshold: cfg.MaxClockSkew,
		logger:    logger,
		QueryFunc: query,
		Now:       time.Now,
	}
}

func query(server string) (time.Duration, error) {
	resp, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: queryTimeout})
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, err
	}
	return resp.ClockOffset, nil
}

// Run checks immediately and then every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) error {
	c.Check()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Check()
		}
	}
}

// Check queries the server once, records and returns the result.
func (c *Checker) Check() Status {
	offset, err := c.QueryFunc(c.server)
	status := Status{CheckedAt: c.Now()}

	if err != nil {
		status.Error = err.Error()
		c.logger.Warning("Clock check against %s failed: %v", c.server, err)
	} else {
		status.Offset = offset
		status.Healthy = offset.Abs() <= c.threshold
		if !status.Healthy {
			c.logger.Warning("Local clock is off by %s (limit %s); capture keys may be misordered", offset, c.threshold)
		}
	}

	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	return status
}

func (c *Checker) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}
