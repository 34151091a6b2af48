package policy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/deploybay/region-failover/internal/model"
	"github.com/deploybay/region-failover/internal/orchestrator"
	"github.com/deploybay/region-failover/internal/registry"
	"github.com/deploybay/region-failover/internal/replication"
)

// AutoFailover evaluates monitor verdicts and triggers an automatic
// failover when the current primary turns unhealthy. It is a caller of
// the orchestrator like any operator: every gate the orchestrator
// enforces still applies, and the replication check is never bypassed.
type AutoFailover struct {
	registry     registry.Registry
	replication  replication.Tracker
	orchestrator orchestrator.Orchestrator
	logger       *slog.Logger
}

// New creates the automatic failover policy
func New(
	reg registry.Registry,
	tracker replication.Tracker,
	orch orchestrator.Orchestrator,
	logger *slog.Logger,
) *AutoFailover {
	return &AutoFailover{
		registry:     reg,
		replication:  tracker,
		orchestrator: orch,
		logger:       logger,
	}
}

// OnStatusChange reacts to verdict transitions from the health monitor.
// Only a primary region entering unhealthy triggers action: candidates
// come from the registry's priority ordering, and the first one whose
// replication is ready wins.
func (p *AutoFailover) OnStatusChange(ctx context.Context, health model.RegionHealth, previous model.RegionStatus) {
	if !health.IsPrimary || health.Status != model.RegionStatusUnhealthy {
		return
	}

	p.logger.Warn("primary region is unhealthy, evaluating automatic failover",
		slog.String("region", health.Name),
		slog.String("previous_status", string(previous)),
	)

	targets, err := p.registry.ListFailoverTargets(ctx, health.RegionID)
	if err != nil {
		p.logger.Error("failed to list failover targets",
			slog.String("error", err.Error()),
		)
		return
	}
	if len(targets) == 0 {
		p.logger.Error("no healthy failover target available",
			slog.String("region", health.Name),
		)
		return
	}

	for _, target := range targets {
		ready, err := p.replication.IsReady(ctx, health.RegionID, target.ID)
		if err != nil {
			p.logger.Error("failed to check replication readiness",
				slog.String("target", target.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ready {
			p.logger.Warn("skipping failover target, replication not ready",
				slog.String("target", target.Name),
			)
			continue
		}

		event, err := p.orchestrator.ExecuteFailover(ctx, orchestrator.ExecuteParams{
			FromRegionID: health.RegionID,
			ToRegionID:   target.ID,
			Trigger:      model.TriggerAutomatic,
		})
		if err != nil {
			if errors.Is(err, model.ErrFailoverInProgress) {
				p.logger.Info("failover already in progress, leaving it to the operator")
				return
			}
			p.logger.Error("automatic failover attempt failed",
				slog.String("target", target.Name),
				slog.String("error", err.Error()),
			)
			continue
		}

		p.logger.Info("automatic failover executed",
			slog.String("event_id", event.ID),
			slog.String("from", health.Name),
			slog.String("to", target.Name),
			slog.String("status", string(event.Status)),
		)
		return
	}

	p.logger.Error("automatic failover exhausted all candidate targets",
		slog.String("region", health.Name),
	)
}
