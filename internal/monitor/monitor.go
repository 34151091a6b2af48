package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deploybay/region-failover/internal/concurrent"
	"github.com/deploybay/region-failover/internal/config"
	"github.com/deploybay/region-failover/internal/model"
	"github.com/deploybay/region-failover/internal/registry"
	"github.com/deploybay/region-failover/internal/store"
)

// TransitionHandler is notified when a region's verdict changes. The
// automatic failover policy hangs off this hook; the monitor itself
// never decides to fail over.
type TransitionHandler interface {
	OnStatusChange(ctx context.Context, health model.RegionHealth, previous model.RegionStatus)
}

// Monitor periodically probes every registered region and converts the
// raw signal into the status verdict the rest of the system consumes
type Monitor interface {
	Start(ctx context.Context)
	Stop()
	CheckRegionHealth(ctx context.Context, regionID string) (*model.RegionHealth, error)
	AllRegionHealth(ctx context.Context) ([]*model.RegionHealth, error)
	History(ctx context.Context, regionID string, limit int) ([]*model.HealthCheckRecord, error)
	SetTransitionHandler(h TransitionHandler)
}

type monitor struct {
	cfg      config.MonitorConfig
	registry registry.Registry
	health   store.HealthStore
	prober   Prober
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu          sync.Mutex
	regionLocks map[string]*sync.Mutex // Serializes checks per region
	failures    map[string]int         // region id -> consecutive failed probes
	handler     TransitionHandler
}

// New creates a health monitor
func New(
	cfg config.MonitorConfig,
	reg registry.Registry,
	healthStore store.HealthStore,
	prober Prober,
	logger *slog.Logger,
) Monitor {
	return &monitor{
		cfg:         cfg,
		registry:    reg,
		health:      healthStore,
		prober:      prober,
		logger:      logger,
		stopCh:      make(chan struct{}),
		regionLocks: make(map[string]*sync.Mutex),
		failures:    make(map[string]int),
	}
}

// SetTransitionHandler registers the verdict-transition hook
func (m *monitor) SetTransitionHandler(h TransitionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// Start begins the periodic check loop in a background goroutine
func (m *monitor) Start(ctx context.Context) {
	m.logger.Info("starting health monitor",
		slog.Duration("interval", m.cfg.Interval),
		slog.Int("failure_threshold", m.cfg.FailureThreshold),
	)

	m.wg.Add(1)
	go m.run(ctx)
}

// Stop gracefully stops the check loop
func (m *monitor) Stop() {
	m.logger.Info("stopping health monitor")
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("health monitor stopped")
}

// run is the main check loop. A probe failure is never fatal here: each
// region's check is isolated and write errors only get logged, the loop
// retries on its next tick.
func (m *monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.checkAll(ctx)

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

// checkAll probes every region concurrently, one task per region
func (m *monitor) checkAll(ctx context.Context) {
	regions, err := m.registry.List(ctx)
	if err != nil {
		m.logger.Error("failed to list regions for health check",
			slog.String("error", err.Error()),
		)
		return
	}

	results := concurrent.ParallelMap(ctx, regions, func(ctx context.Context, region *model.Region) (*model.RegionHealth, error) {
		return m.checkRegion(ctx, region)
	})

	for _, result := range results {
		if result.Error != nil {
			m.logger.Warn("health check write failed",
				slog.String("error", result.Error.Error()),
			)
		}
	}
}

// CheckRegionHealth forces an immediate check of a single region
func (m *monitor) CheckRegionHealth(ctx context.Context, regionID string) (*model.RegionHealth, error) {
	region, err := m.registry.Get(ctx, regionID)
	if err != nil {
		return nil, err
	}
	return m.checkRegion(ctx, region)
}

// AllRegionHealth returns the current verdict for every region
func (m *monitor) AllRegionHealth(ctx context.Context) ([]*model.RegionHealth, error) {
	regions, err := m.registry.List(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	health := make([]*model.RegionHealth, 0, len(regions))
	for _, region := range regions {
		health = append(health, &model.RegionHealth{
			RegionID:        region.ID,
			Name:            region.Name,
			Status:          region.Status,
			IsPrimary:       region.IsPrimary,
			LastCheckedAt:   region.LastHealthCheckAt,
			ConsecutiveFail: m.failures[region.ID],
		})
	}
	return health, nil
}

// History returns the rolling window of health records, newest first
func (m *monitor) History(ctx context.Context, regionID string, limit int) ([]*model.HealthCheckRecord, error) {
	if _, err := m.registry.Get(ctx, regionID); err != nil {
		return nil, err
	}
	return m.health.ListHealthRecords(ctx, regionID, limit)
}

// checkRegion runs one check cycle for a region: probe, derive the
// verdict from the probe plus recent history, persist the record and
// the verdict. Checks for the same region never interleave.
func (m *monitor) checkRegion(ctx context.Context, region *model.Region) (*model.RegionHealth, error) {
	lock := m.regionLock(region.ID)
	lock.Lock()
	defer lock.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	now := time.Now()
	record := &model.HealthCheckRecord{
		RegionID:    region.ID,
		CheckedAt:   now,
		Reachable:   true,
		CapacityOK:  true,
		ErrorRateOK: true,
	}

	result, probeErr := m.prober.Probe(probeCtx, region)
	var verdict model.RegionStatus
	var failures int

	if probeErr != nil {
		record.Reachable = false
		record.FailureCause = probeErr.Error()
		failures = m.recordFailure(region.ID)

		// A single blip only degrades; it takes the configured number
		// of consecutive failures to flip a region unhealthy
		if failures >= m.cfg.FailureThreshold {
			verdict = model.RegionStatusUnhealthy
		} else {
			verdict = model.RegionStatusDegraded
		}

		m.logger.Warn("region probe failed",
			slog.String("region", region.Name),
			slog.Int("consecutive_failures", failures),
			slog.String("error", probeErr.Error()),
		)
	} else {
		m.resetFailures(region.ID)
		record.Latency = result.Latency

		utilization := result.Utilization
		if utilization < 0 {
			utilization = region.Utilization()
		}
		if utilization > m.cfg.CapacityHighWater {
			record.CapacityOK = false
		}
		if result.ErrorRate >= 0 && result.ErrorRate > m.cfg.ErrorRateThreshold {
			record.ErrorRateOK = false
		}

		if record.CapacityOK && record.ErrorRateOK {
			verdict = model.RegionStatusHealthy
		} else {
			verdict = model.RegionStatusDegraded
		}
	}

	record.Status = verdict

	previous := region.Status
	var writeErr error
	if err := m.health.AppendHealthRecord(ctx, record, m.cfg.HistoryWindow); err != nil {
		writeErr = errors.Join(writeErr, fmt.Errorf("failed to append health record: %w", err))
	}
	if err := m.registry.UpdateStatus(ctx, region.ID, verdict, now); err != nil {
		writeErr = errors.Join(writeErr, fmt.Errorf("failed to update region status: %w", err))
	}

	health := model.RegionHealth{
		RegionID:        region.ID,
		Name:            region.Name,
		Status:          verdict,
		IsPrimary:       region.IsPrimary,
		LastCheckedAt:   now,
		ConsecutiveFail: failures,
	}

	if writeErr == nil && previous != verdict {
		m.logger.Info("region status changed",
			slog.String("region", region.Name),
			slog.String("from", string(previous)),
			slog.String("to", string(verdict)),
		)
		if h := m.transitionHandler(); h != nil {
			h.OnStatusChange(ctx, health, previous)
		}
	}

	return &health, writeErr
}

func (m *monitor) regionLock(regionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.regionLocks[regionID]
	if !ok {
		lock = &sync.Mutex{}
		m.regionLocks[regionID] = lock
	}
	return lock
}

func (m *monitor) recordFailure(regionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[regionID]++
	return m.failures[regionID]
}

func (m *monitor) resetFailures(regionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[regionID] = 0
}

func (m *monitor) transitionHandler() TransitionHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler
}
