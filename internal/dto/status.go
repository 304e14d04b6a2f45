package dto

import "time"

// Status is the monitor snapshot served by the health endpoint.
type Status struct {
	State        string         `json:"state"`
	Cycles       int64          `json:"cycles"`
	Outcomes     map[string]int `json:"outcomes"`
	LastOutcome  string         `json:"last_outcome,omitempty"`
	LastCycleAt  time.Time      `json:"last_cycle_at,omitempty"`
	BaselineAt   time.Time      `json:"baseline_at,omitempty"`
	LastError    string         `json:"last_error,omitempty"`
	ClockOffset  string         `json:"clock_offset,omitempty"`
	ClockHealthy *bool          `json:"clock_healthy,omitempty"`
}
