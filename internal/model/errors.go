package model

import "errors"

// Sentinel errors for the failover subsystem. Callers match with errors.Is;
// wrapped variants carry the offending field or current state.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrDuplicateRegion     = errors.New("region already exists")
	ErrRegionNotHealthy    = errors.New("region is not healthy")
	ErrTargetNotHealthy    = errors.New("target region is not healthy")
	ErrReplicationNotReady = errors.New("replication to target region is not ready")
	ErrCapacityExceeded    = errors.New("region deployment capacity exceeded")
	ErrFailoverInProgress  = errors.New("another failover is already in progress")
	ErrInvalidTransition   = errors.New("invalid failover transition")
	ErrInvalidState        = errors.New("event is not in a valid state for this operation")
	ErrFailoverFailed      = errors.New("failover commit failed")
)
