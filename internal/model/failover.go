package model

import "time"

// FailoverTrigger identifies what initiated a failover
type FailoverTrigger string

const (
	TriggerManual    FailoverTrigger = "manual"
	TriggerAutomatic FailoverTrigger = "automatic"
)

// Valid reports whether the trigger is one of the known values
func (t FailoverTrigger) Valid() bool {
	return t == TriggerManual || t == TriggerAutomatic
}

// FailoverState represents the lifecycle state of a failover event
type FailoverState string

const (
	FailoverPending    FailoverState = "pending"
	FailoverCompleted  FailoverState = "completed"
	FailoverRolledBack FailoverState = "rolled_back"
	FailoverCancelled  FailoverState = "cancelled"
	FailoverFailed     FailoverState = "failed"
)

// Terminal reports whether no further transitions are allowed from the state
func (s FailoverState) Terminal() bool {
	return s != FailoverPending
}

// FailoverEvent is the audit record for one primary-role transition.
// At most one event may be pending at any time; terminal events are
// immutable history. A rollback never rewrites an event, it creates a
// new one for the reverse direction referencing the original.
type FailoverEvent struct {
	ID             string          `json:"id"`
	FromRegionID   string          `json:"from_region_id"`
	ToRegionID     string          `json:"to_region_id"`
	Trigger        FailoverTrigger `json:"trigger"`
	InitiatedBy    string          `json:"initiated_by,omitempty"` // Empty for automatic triggers
	Status         FailoverState   `json:"status"`
	Reason         string          `json:"reason,omitempty"` // Human-readable failure reason
	RollbackOfID   string          `json:"rollback_of_id,omitempty"`
	RolledBackByID string          `json:"rolled_back_by_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    time.Time       `json:"completed_at,omitzero"`
}

// FailoverStatus summarizes the current failover posture
type FailoverStatus struct {
	PrimaryRegionID string         `json:"primary_region_id,omitempty"`
	InProgress      bool           `json:"in_progress"`
	PendingEvent    *FailoverEvent `json:"pending_event,omitempty"`
}
