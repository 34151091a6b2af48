package model

import "time"

// ReplicationState represents the propagation state for a region pair
type ReplicationState string

const (
	ReplicationPending ReplicationState = "pending"
	ReplicationSyncing ReplicationState = "syncing"
	ReplicationReady   ReplicationState = "ready"
	ReplicationStale   ReplicationState = "stale"
)

// Valid reports whether the state is one of the known values
func (s ReplicationState) Valid() bool {
	switch s {
	case ReplicationPending, ReplicationSyncing, ReplicationReady, ReplicationStale:
		return true
	}
	return false
}

// ReplicationStatus records whether data from a source region has been
// propagated to a target region. Keyed by the (source, target) pair.
type ReplicationStatus struct {
	SourceRegionID string           `json:"source_region_id"`
	TargetRegionID string           `json:"target_region_id"`
	Status         ReplicationState `json:"status"`
	LastSyncedAt   time.Time        `json:"last_synced_at"`
	LagEstimate    time.Duration    `json:"lag_estimate"`
}
