package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deploybay/region-failover/internal/api"
	"github.com/deploybay/region-failover/internal/cache"
	"github.com/deploybay/region-failover/internal/config"
	"github.com/deploybay/region-failover/internal/logger"
	"github.com/deploybay/region-failover/internal/migrate"
	"github.com/deploybay/region-failover/internal/monitor"
	"github.com/deploybay/region-failover/internal/orchestrator"
	"github.com/deploybay/region-failover/internal/policy"
	"github.com/deploybay/region-failover/internal/registry"
	"github.com/deploybay/region-failover/internal/replication"
	"github.com/deploybay/region-failover/internal/store"
	etcdstore "github.com/deploybay/region-failover/internal/store/etcd"
	memorystore "github.com/deploybay/region-failover/internal/store/memory"
	"github.com/deploybay/region-failover/pkg/httpserver"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	log.Info("configuration loaded",
		slog.String("store_backend", cfg.Store.Backend),
		slog.Int("seeded_regions", len(cfg.Regions)),
	)

	db, err := newStore(cfg, log)
	if err != nil {
		log.Error("failed to initialize store",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer db.Close()

	appCache := cache.New(cfg.Cache.TTL)
	reg := registry.New(db, appCache, cfg.Cache.TTL, log)
	tracker := replication.New(cfg.Replication, db, log)

	migrator, err := migrate.New(cfg.Migrator, log)
	if err != nil {
		log.Error("failed to initialize migrator",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	orch := orchestrator.New(cfg.Failover, reg, tracker, db, migrator, log)

	prober := monitor.NewHTTPProber(cfg.Monitor.ProbeTimeout)
	mon := monitor.New(cfg.Monitor, reg, db, prober, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bootstrap(ctx, cfg, reg, log); err != nil {
		log.Error("failed to bootstrap regions",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	if cfg.Failover.AutoEnabled {
		log.Info("automatic failover policy enabled")
		mon.SetTransitionHandler(policy.New(reg, tracker, orch, log))
	}

	mon.Start(ctx)

	handler := api.NewHandler(reg, mon, tracker, orch, cfg.Server.BasePath, log)
	srv := httpserver.New(
		cfg.Server.Addr,
		handler.Router(),
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		log,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Run()
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error("server error",
				slog.String("error", err.Error()),
			)
		}
	case sig := <-quit:
		log.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shut down server",
				slog.String("error", err.Error()),
			)
		}
	}

	log.Info("shutting down health monitor")
	cancel()
	mon.Stop()

	log.Info("shutdown complete")
}

// newStore builds the configured persistence backend
func newStore(cfg *config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "etcd":
		return etcdstore.New(cfg.Store.Etcd, log)
	default:
		return memorystore.New(), nil
	}
}

// bootstrap registers seeded regions, skipping ones that already exist
// in the store, then verifies the single-primary invariant
func bootstrap(ctx context.Context, cfg *config.Config, reg registry.Registry, log *slog.Logger) error {
	for _, seed := range cfg.Regions {
		if _, err := reg.GetByName(ctx, seed.Name); err == nil {
			log.Info("seeded region already registered",
				slog.String("name", seed.Name),
			)
			continue
		}

		region, err := reg.Register(ctx, registry.RegisterParams{
			Name:           seed.Name,
			DisplayName:    seed.DisplayName,
			Endpoint:       seed.Endpoint,
			Priority:       seed.Priority,
			MaxDeployments: seed.MaxDeployments,
			Provider:       seed.Provider,
			Geo:            seed.Geo,
			Primary:        seed.Primary,
		})
		if err != nil {
			return fmt.Errorf("failed to register seeded region %s: %w", seed.Name, err)
		}
		log.Info("seeded region registered",
			slog.String("name", region.Name),
			slog.Bool("is_primary", region.IsPrimary),
		)
	}

	return reg.ReconcilePrimary(ctx)
}
