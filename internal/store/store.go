package store

import (
	"context"

	"github.com/deploybay/region-failover/internal/model"
)

// RegionStore persists regions
type RegionStore interface {
	CreateRegion(ctx context.Context, region *model.Region) error
	GetRegion(ctx context.Context, id string) (*model.Region, error)
	GetRegionByName(ctx context.Context, name string) (*model.Region, error)
	ListRegions(ctx context.Context) ([]*model.Region, error)
	UpdateRegion(ctx context.Context, region *model.Region) error
}

// HealthStore persists per-region health check history as a bounded
// rolling window: appending beyond the window prunes the oldest records
type HealthStore interface {
	AppendHealthRecord(ctx context.Context, record *model.HealthCheckRecord, window int) error
	ListHealthRecords(ctx context.Context, regionID string, limit int) ([]*model.HealthCheckRecord, error)
}

// ReplicationStore persists replication status per (source, target) pair
type ReplicationStore interface {
	GetReplication(ctx context.Context, sourceID, targetID string) (*model.ReplicationStatus, error)
	PutReplication(ctx context.Context, status *model.ReplicationStatus) error
	ListReplication(ctx context.Context) ([]*model.ReplicationStatus, error)
}

// EventStore persists failover events. CreatePending enforces the
// one-pending-event constraint: it fails with ErrFailoverInProgress if
// another event is still pending. UpdateEvent on a transition out of
// pending releases the constraint.
type EventStore interface {
	CreatePending(ctx context.Context, event *model.FailoverEvent) error
	GetEvent(ctx context.Context, id string) (*model.FailoverEvent, error)
	UpdateEvent(ctx context.Context, event *model.FailoverEvent) error
	PendingEvent(ctx context.Context) (*model.FailoverEvent, error)
	ListEvents(ctx context.Context, limit int) ([]*model.FailoverEvent, error)
}

// Store aggregates all persistence used by the failover subsystem
type Store interface {
	RegionStore
	HealthStore
	ReplicationStore
	EventStore
	Close() error
}
