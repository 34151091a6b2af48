package replication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deploybay/region-failover/internal/config"
	"github.com/deploybay/region-failover/internal/model"
	"github.com/deploybay/region-failover/internal/store"
)

// Tracker records whether data from a source region has been propagated
// to a target region. It does not replicate anything itself: an external
// replication mechanism calls Record to update status, and the failover
// orchestrator consults IsReady before committing.
type Tracker interface {
	GetStatus(ctx context.Context, sourceID, targetID string) (*model.ReplicationStatus, error)
	IsReady(ctx context.Context, sourceID, targetID string) (bool, error)
	Record(ctx context.Context, status *model.ReplicationStatus) error
	List(ctx context.Context) ([]*model.ReplicationStatus, error)
}

type tracker struct {
	cfg    config.ReplicationConfig
	store  store.ReplicationStore
	logger *slog.Logger
}

// New creates a replication tracker
func New(cfg config.ReplicationConfig, replStore store.ReplicationStore, logger *slog.Logger) Tracker {
	return &tracker{
		cfg:    cfg,
		store:  replStore,
		logger: logger,
	}
}

// GetStatus returns the current status for the pair. A pair with no
// record yet defaults to pending; it never fabricates ready.
func (t *tracker) GetStatus(ctx context.Context, sourceID, targetID string) (*model.ReplicationStatus, error) {
	status, err := t.store.GetReplication(ctx, sourceID, targetID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return &model.ReplicationStatus{
				SourceRegionID: sourceID,
				TargetRegionID: targetID,
				Status:         model.ReplicationPending,
			}, nil
		}
		return nil, err
	}
	return status, nil
}

// IsReady is the sole fact the orchestrator consults before committing:
// true only when the pair is ready, recently synced, and within the lag
// threshold
func (t *tracker) IsReady(ctx context.Context, sourceID, targetID string) (bool, error) {
	status, err := t.GetStatus(ctx, sourceID, targetID)
	if err != nil {
		return false, err
	}

	if status.Status != model.ReplicationReady {
		return false, nil
	}
	if time.Since(status.LastSyncedAt) > t.cfg.StalenessBound {
		return false, nil
	}
	if status.LagEstimate > t.cfg.MaxLag {
		return false, nil
	}
	return true, nil
}

// Record updates the status for a pair, called back by the external
// replication mechanism
func (t *tracker) Record(ctx context.Context, status *model.ReplicationStatus) error {
	if status.SourceRegionID == "" || status.TargetRegionID == "" {
		return fmt.Errorf("%w: source and target region ids are required", model.ErrValidation)
	}
	if status.SourceRegionID == status.TargetRegionID {
		return fmt.Errorf("%w: source and target must differ", model.ErrValidation)
	}
	if !status.Status.Valid() {
		return fmt.Errorf("%w: unknown replication status %q", model.ErrValidation, status.Status)
	}

	if err := t.store.PutReplication(ctx, status); err != nil {
		return fmt.Errorf("failed to record replication status: %w", err)
	}

	t.logger.Debug("replication status recorded",
		slog.String("source", status.SourceRegionID),
		slog.String("target", status.TargetRegionID),
		slog.String("status", string(status.Status)),
		slog.Duration("lag", status.LagEstimate),
	)

	return nil
}

// List returns all recorded pairs
func (t *tracker) List(ctx context.Context) ([]*model.ReplicationStatus, error) {
	return t.store.ListReplication(ctx)
}
