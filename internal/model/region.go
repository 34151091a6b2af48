package model

import "time"

// RegionStatus represents the current health verdict for a region
type RegionStatus string

const (
	RegionStatusHealthy   RegionStatus = "healthy"
	RegionStatusDegraded  RegionStatus = "degraded"
	RegionStatusUnhealthy RegionStatus = "unhealthy"
)

// Valid reports whether the status is one of the known verdicts
func (s RegionStatus) Valid() bool {
	switch s {
	case RegionStatusHealthy, RegionStatusDegraded, RegionStatusUnhealthy:
		return true
	}
	return false
}

// Region represents a serving region with its capacity and role
type Region struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	DisplayName       string       `json:"display_name"`
	Endpoint          string       `json:"endpoint"`
	Priority          int          `json:"priority"` // Lower value = preferred failover target
	MaxDeployments    int          `json:"max_deployments"`
	ActiveDeployments int          `json:"active_deployments"`
	Status            RegionStatus `json:"status"`
	IsPrimary         bool         `json:"is_primary"`
	Provider          string       `json:"provider,omitempty"` // Informational only
	Geo               string       `json:"geo,omitempty"`      // Informational only
	LastHealthCheckAt time.Time    `json:"last_health_check_at"`
	CreatedAt         time.Time    `json:"created_at"`
}

// Utilization returns the fraction of deployment capacity in use
func (r *Region) Utilization() float64 {
	if r.MaxDeployments <= 0 {
		return 0
	}
	return float64(r.ActiveDeployments) / float64(r.MaxDeployments)
}

// Clone returns a deep copy so callers cannot mutate shared state
func (r *Region) Clone() *Region {
	cp := *r
	return &cp
}
