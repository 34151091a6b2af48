package model

import "time"

// HealthCheckRecord is a single probe outcome for a region.
// Records are immutable once written and kept as a bounded rolling window.
type HealthCheckRecord struct {
	RegionID     string       `json:"region_id"`
	CheckedAt    time.Time    `json:"checked_at"`
	Latency      time.Duration `json:"latency"`
	Reachable    bool         `json:"reachable"`
	CapacityOK   bool         `json:"capacity_ok"`
	ErrorRateOK  bool         `json:"error_rate_ok"`
	Status       RegionStatus `json:"status"` // Verdict derived from this check plus recent history
	FailureCause string       `json:"failure_cause,omitempty"`
}

// Passed reports whether every probe dimension succeeded
func (r *HealthCheckRecord) Passed() bool {
	return r.Reachable && r.CapacityOK && r.ErrorRateOK
}

// RegionHealth is the current verdict for a region as reported by the monitor
type RegionHealth struct {
	RegionID        string       `json:"region_id"`
	Name            string       `json:"name"`
	Status          RegionStatus `json:"status"`
	IsPrimary       bool         `json:"is_primary"`
	LastCheckedAt   time.Time    `json:"last_checked_at"`
	ConsecutiveFail int          `json:"consecutive_failures"`
}
