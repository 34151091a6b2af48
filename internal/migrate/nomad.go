package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	nomad "github.com/hashicorp/nomad/api"

	"github.com/deploybay/region-failover/internal/config"
	"github.com/deploybay/region-failover/internal/model"
	"github.com/deploybay/region-failover/internal/util"
)

// NomadMigrator shifts deployment capacity between regions backed by
// Nomad clusters: it restores scheduling eligibility in the target
// region's cluster, then drains the source region's cluster. The target
// comes up before the source goes down so capacity never hits zero.
type NomadMigrator struct {
	clusters map[string]*nomad.Client // Keyed by region name
	logger   *slog.Logger
}

// NewNomadMigrator builds a client per configured region cluster
func NewNomadMigrator(clusters []config.NomadClusterConfig, logger *slog.Logger) (*NomadMigrator, error) {
	m := &NomadMigrator{
		clusters: make(map[string]*nomad.Client, len(clusters)),
		logger:   logger,
	}

	for _, cluster := range clusters {
		client, err := createClient(cluster)
		if err != nil {
			return nil, fmt.Errorf("failed to create nomad client for region %s: %w", cluster.Region, err)
		}
		m.clusters[cluster.Region] = client
	}

	return m, nil
}

// createClient creates a Nomad API client for a region's cluster
func createClient(cluster config.NomadClusterConfig) (*nomad.Client, error) {
	nomadConfig := nomad.DefaultConfig()
	nomadConfig.Address = cluster.Address

	if cluster.TLS != nil {
		tlsConfig, err := util.LoadTLSConfig(cluster.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
		nomadConfig.HttpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
			Timeout: 30 * time.Second,
		}
	}

	return nomad.NewClient(nomadConfig)
}

// Migrate restores eligibility on every node of the target region, then
// drains every node of the source region. A drain failure after the
// target is up is reported so the orchestrator aborts the commit.
func (m *NomadMigrator) Migrate(ctx context.Context, from, to *model.Region) error {
	toClient, ok := m.clusters[to.Name]
	if !ok {
		return fmt.Errorf("no nomad cluster configured for target region %s", to.Name)
	}
	fromClient, ok := m.clusters[from.Name]
	if !ok {
		return fmt.Errorf("no nomad cluster configured for source region %s", from.Name)
	}

	if err := m.setRegionDrain(ctx, toClient, to.Name, false); err != nil {
		return fmt.Errorf("failed to restore scheduling in %s: %w", to.Name, err)
	}
	if err := m.setRegionDrain(ctx, fromClient, from.Name, true); err != nil {
		return fmt.Errorf("failed to drain %s: %w", from.Name, err)
	}

	m.logger.Info("traffic migration completed",
		slog.String("from", from.Name),
		slog.String("to", to.Name),
	)

	return nil
}

// setRegionDrain toggles drain on all nodes of a region's cluster
func (m *NomadMigrator) setRegionDrain(ctx context.Context, client *nomad.Client, region string, drain bool) error {
	nodes, _, err := client.Nodes().List((&nomad.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to list nodes: %w", err)
	}

	var drainSpec *nomad.DrainSpec
	if drain {
		drainSpec = &nomad.DrainSpec{
			Deadline: -1, // Infinite deadline
		}
	}
	markEligible := !drain

	for _, node := range nodes {
		alreadyCorrect := node.Drain == drain &&
			(node.SchedulingEligibility == nomad.NodeSchedulingEligible) == markEligible
		if alreadyCorrect {
			continue
		}

		if _, err := client.Nodes().UpdateDrainOpts(node.ID, &nomad.DrainOptions{
			DrainSpec:    drainSpec,
			MarkEligible: markEligible,
		}, (&nomad.WriteOptions{}).WithContext(ctx)); err != nil {
			return fmt.Errorf("failed to update drain on node %s: %w", node.ID, err)
		}

		m.logger.Info("updated node drain status",
			slog.String("region", region),
			slog.String("node_id", node.ID),
			slog.Bool("drain", drain),
		)
	}

	return nil
}
