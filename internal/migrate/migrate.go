package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deploybay/region-failover/internal/config"
	"github.com/deploybay/region-failover/internal/model"
)

// Migrator is the traffic-migration collaborator invoked during a
// failover commit. The orchestrator awaits the result before marking
// the event terminal; an error aborts the commit.
type Migrator interface {
	Migrate(ctx context.Context, from, to *model.Region) error
}

// New returns the migrator selected by configuration
func New(cfg config.MigratorConfig, logger *slog.Logger) (Migrator, error) {
	switch cfg.Driver {
	case "", "none":
		return Noop{}, nil
	case "nomad":
		return NewNomadMigrator(cfg.Clusters, logger)
	default:
		return nil, fmt.Errorf("unknown migrator driver %q", cfg.Driver)
	}
}

// Noop acknowledges migrations without moving anything. Used when
// traffic shifting happens outside this controller (DNS, anycast).
type Noop struct{}

// Migrate always succeeds
func (Noop) Migrate(ctx context.Context, from, to *model.Region) error {
	return nil
}
