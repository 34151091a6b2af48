package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deploybay/region-failover/internal/config"
	"github.com/deploybay/region-failover/internal/migrate"
	"github.com/deploybay/region-failover/internal/model"
	"github.com/deploybay/region-failover/internal/registry"
	"github.com/deploybay/region-failover/internal/replication"
	"github.com/deploybay/region-failover/internal/store"
)

// ExecuteParams describes a requested failover
type ExecuteParams struct {
	FromRegionID             string
	ToRegionID               string
	Trigger                  model.FailoverTrigger
	InitiatedBy              string
	OverrideReplicationCheck bool // Honored only for manual triggers
}

// Orchestrator is the state machine that moves the primary role between
// regions with auditability and reversibility. Failovers are globally
// serialized: concurrent calls have exactly one winner, the loser fails
// fast with FailoverInProgress.
type Orchestrator interface {
	ExecuteFailover(ctx context.Context, params ExecuteParams) (*model.FailoverEvent, error)
	RollbackFailover(ctx context.Context, eventID, initiator string) (*model.FailoverEvent, error)
	CancelFailover(ctx context.Context, eventID string) (bool, error)
	Status(ctx context.Context) (*model.FailoverStatus, error)
	History(ctx context.Context, limit int) ([]*model.FailoverEvent, error)
}

type orchestrator struct {
	cfg         config.FailoverConfig
	registry    registry.Registry
	replication replication.Tracker
	events      store.EventStore
	migrator    migrate.Migrator
	logger      *slog.Logger

	// Serializes the validate-and-create window of ExecuteFailover; the
	// store's pending constraint backs it up across instances
	executeMu sync.Mutex

	// Guards event state transitions so a cancel racing the commit has
	// exactly one winner
	stateMu sync.Mutex
}

// New creates a failover orchestrator
func New(
	cfg config.FailoverConfig,
	reg registry.Registry,
	tracker replication.Tracker,
	events store.EventStore,
	migrator migrate.Migrator,
	logger *slog.Logger,
) Orchestrator {
	return &orchestrator{
		cfg:         cfg,
		registry:    reg,
		replication: tracker,
		events:      events,
		migrator:    migrator,
		logger:      logger,
	}
}

// ExecuteFailover validates the transition, records a pending event and
// commits the primary flip. On any commit failure the registry's state
// is reverted before returning: the system never stays half-migrated.
//
// If a cancellation wins the race against the commit, the transition is
// reverted and the returned event carries status cancelled with no error.
func (o *orchestrator) ExecuteFailover(ctx context.Context, params ExecuteParams) (*model.FailoverEvent, error) {
	if !params.Trigger.Valid() {
		return nil, fmt.Errorf("%w: unknown trigger %q", model.ErrValidation, params.Trigger)
	}
	if params.FromRegionID == "" || params.ToRegionID == "" {
		return nil, fmt.Errorf("%w: from and to region ids are required", model.ErrValidation)
	}
	if params.FromRegionID == params.ToRegionID {
		return nil, fmt.Errorf("%w: source and target must differ", model.ErrValidation)
	}

	o.executeMu.Lock()

	from, err := o.registry.Get(ctx, params.FromRegionID)
	if err != nil {
		o.executeMu.Unlock()
		return nil, err
	}
	to, err := o.registry.Get(ctx, params.ToRegionID)
	if err != nil {
		o.executeMu.Unlock()
		return nil, err
	}

	if !from.IsPrimary {
		o.executeMu.Unlock()
		return nil, fmt.Errorf("%w: %s is not the current primary", model.ErrInvalidTransition, from.Name)
	}
	if to.IsPrimary {
		o.executeMu.Unlock()
		return nil, fmt.Errorf("%w: %s already holds the primary role", model.ErrInvalidTransition, to.Name)
	}

	if to.Status != model.RegionStatusHealthy {
		o.executeMu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", model.ErrTargetNotHealthy, to.Name, to.Status)
	}

	// Automatic failover must never bypass the replication gate
	bypass := params.OverrideReplicationCheck && params.Trigger == model.TriggerManual
	if !bypass {
		ready, err := o.replication.IsReady(ctx, from.ID, to.ID)
		if err != nil {
			o.executeMu.Unlock()
			return nil, fmt.Errorf("failed to check replication readiness: %w", err)
		}
		if !ready {
			o.executeMu.Unlock()
			return nil, fmt.Errorf("%w: %s -> %s", model.ErrReplicationNotReady, from.Name, to.Name)
		}
	}

	event := &model.FailoverEvent{
		ID:           uuid.NewString(),
		FromRegionID: from.ID,
		ToRegionID:   to.ID,
		Trigger:      params.Trigger,
		InitiatedBy:  params.InitiatedBy,
		Status:       model.FailoverPending,
		CreatedAt:    time.Now(),
	}

	if err := o.events.CreatePending(ctx, event); err != nil {
		o.executeMu.Unlock()
		return nil, err
	}
	o.executeMu.Unlock()

	o.logger.Info("failover started",
		slog.String("event_id", event.ID),
		slog.String("from", from.Name),
		slog.String("to", to.Name),
		slog.String("trigger", string(params.Trigger)),
	)

	return o.commit(ctx, event, from, to)
}

// commit performs the primary flip, waits for the migration collaborator
// within the configured timeout, transfers the deployment bookkeeping and
// marks the event terminal
func (o *orchestrator) commit(ctx context.Context, event *model.FailoverEvent, from, to *model.Region) (*model.FailoverEvent, error) {
	commitCtx, cancel := context.WithTimeout(ctx, o.cfg.CommitTimeout)
	defer cancel()

	// Reverts and terminal markings must survive caller cancellation: a
	// disconnected client cannot be allowed to strand the primary flipped
	// or the event pending
	cleanupCtx := context.WithoutCancel(ctx)

	if err := o.registry.SetPrimary(commitCtx, to.ID); err != nil {
		// A partial flip may have cleared the old primary already
		o.revertPrimary(cleanupCtx, from)
		failed := o.failPending(cleanupCtx, event, fmt.Sprintf("failed to set primary: %v", err))
		return failed, fmt.Errorf("%w: %v", model.ErrFailoverFailed, err)
	}

	if err := o.migrator.Migrate(commitCtx, from, to); err != nil {
		o.revertPrimary(cleanupCtx, from)
		failed := o.failPending(cleanupCtx, event, fmt.Sprintf("migration collaborator failed: %v", err))
		return failed, fmt.Errorf("%w: %v", model.ErrFailoverFailed, err)
	}

	if err := o.registry.TransferDeployments(commitCtx, from.ID, to.ID); err != nil {
		o.revertPrimary(cleanupCtx, from)
		failed := o.failPending(cleanupCtx, event, fmt.Sprintf("failed to transfer deployments: %v", err))
		return failed, fmt.Errorf("%w: %v", model.ErrFailoverFailed, err)
	}

	// Commit point: the event completes unless a cancellation already
	// won the race, in which case everything above is rolled back
	o.stateMu.Lock()
	current, err := o.events.GetEvent(cleanupCtx, event.ID)
	if err != nil {
		o.stateMu.Unlock()
		return nil, fmt.Errorf("failed to re-read event before completion: %w", err)
	}
	if current.Status != model.FailoverPending {
		o.stateMu.Unlock()

		o.logger.Warn("failover cancelled during commit, reverting",
			slog.String("event_id", event.ID),
		)
		if err := o.registry.TransferDeployments(cleanupCtx, to.ID, from.ID); err != nil {
			o.logger.Error("failed to revert deployment transfer",
				slog.String("event_id", event.ID),
				slog.String("error", err.Error()),
			)
		}
		o.revertPrimary(cleanupCtx, from)
		return current, nil
	}

	current.Status = model.FailoverCompleted
	current.CompletedAt = time.Now()
	if err := o.events.UpdateEvent(cleanupCtx, current); err != nil {
		o.stateMu.Unlock()
		return nil, fmt.Errorf("failed to mark event completed: %w", err)
	}
	o.stateMu.Unlock()

	o.logger.Info("failover completed",
		slog.String("event_id", current.ID),
		slog.String("from", from.Name),
		slog.String("to", to.Name),
	)

	return current, nil
}

// revertPrimary hands the primary role back to the original region
// without the health gate: the original may be unhealthy, but a failed
// commit must restore the previous state regardless
func (o *orchestrator) revertPrimary(ctx context.Context, from *model.Region) {
	if err := o.registry.RestorePrimary(ctx, from.ID); err != nil {
		o.logger.Error("failed to restore primary after aborted commit",
			slog.String("region", from.Name),
			slog.String("error", err.Error()),
		)
	}
}

// failPending transitions the event to failed with the given reason,
// unless a cancel already made it terminal
func (o *orchestrator) failPending(ctx context.Context, event *model.FailoverEvent, reason string) *model.FailoverEvent {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()

	current, err := o.events.GetEvent(ctx, event.ID)
	if err != nil {
		o.logger.Error("failed to re-read event for failure marking",
			slog.String("event_id", event.ID),
			slog.String("error", err.Error()),
		)
		return event
	}
	if current.Status != model.FailoverPending {
		return current
	}

	current.Status = model.FailoverFailed
	current.Reason = reason
	current.CompletedAt = time.Now()
	if err := o.events.UpdateEvent(ctx, current); err != nil {
		o.logger.Error("failed to mark event failed",
			slog.String("event_id", event.ID),
			slog.String("error", err.Error()),
		)
	}

	o.logger.Error("failover failed",
		slog.String("event_id", current.ID),
		slog.String("reason", reason),
	)

	return current
}

// RollbackFailover fails back to the original primary by running the
// symmetric failover with all the same validation. The original event
// stays completed; the two events reference each other.
func (o *orchestrator) RollbackFailover(ctx context.Context, eventID, initiator string) (*model.FailoverEvent, error) {
	original, err := o.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if original.Status != model.FailoverCompleted {
		return nil, fmt.Errorf("%w: event is %s, only completed failovers can be rolled back",
			model.ErrInvalidState, original.Status)
	}
	if original.RolledBackByID != "" {
		return nil, fmt.Errorf("%w: event was already rolled back by %s",
			model.ErrInvalidState, original.RolledBackByID)
	}

	reverse, err := o.ExecuteFailover(ctx, ExecuteParams{
		FromRegionID: original.ToRegionID,
		ToRegionID:   original.FromRegionID,
		Trigger:      model.TriggerManual,
		InitiatedBy:  initiator,
	})
	if err != nil {
		return reverse, err
	}
	if reverse.Status != model.FailoverCompleted {
		return reverse, nil
	}

	reverse.RollbackOfID = original.ID
	if err := o.events.UpdateEvent(ctx, reverse); err != nil {
		o.logger.Error("failed to link rollback event",
			slog.String("event_id", reverse.ID),
			slog.String("error", err.Error()),
		)
	}
	original.RolledBackByID = reverse.ID
	if err := o.events.UpdateEvent(ctx, original); err != nil {
		o.logger.Error("failed to link original event",
			slog.String("event_id", original.ID),
			slog.String("error", err.Error()),
		)
	}

	o.logger.Info("failover rolled back",
		slog.String("original_event_id", original.ID),
		slog.String("rollback_event_id", reverse.ID),
	)

	return reverse, nil
}

// CancelFailover aborts an event that is still pending. Returns false
// without error if the event already left pending: losing the race
// against the commit is a normal outcome, not a fault. Cancellation can
// never undo a completed failover; rollback is the post-commit path.
func (o *orchestrator) CancelFailover(ctx context.Context, eventID string) (bool, error) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()

	event, err := o.events.GetEvent(ctx, eventID)
	if err != nil {
		return false, err
	}
	if event.Status != model.FailoverPending {
		return false, nil
	}

	event.Status = model.FailoverCancelled
	event.CompletedAt = time.Now()
	if err := o.events.UpdateEvent(ctx, event); err != nil {
		return false, fmt.Errorf("failed to mark event cancelled: %w", err)
	}

	o.logger.Info("failover cancelled",
		slog.String("event_id", event.ID),
	)

	return true, nil
}

// Status summarizes the current primary and any in-flight failover
func (o *orchestrator) Status(ctx context.Context) (*model.FailoverStatus, error) {
	status := &model.FailoverStatus{}

	primary, err := o.registry.Primary(ctx)
	if err != nil {
		return nil, err
	}
	if primary != nil {
		status.PrimaryRegionID = primary.ID
	}

	pending, err := o.events.PendingEvent(ctx)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		status.InProgress = true
		status.PendingEvent = pending
	}

	return status, nil
}

// History returns the most recent events, newest first
func (o *orchestrator) History(ctx context.Context, limit int) ([]*model.FailoverEvent, error) {
	return o.events.ListEvents(ctx, limit)
}
