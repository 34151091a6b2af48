package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deploybay/region-failover/internal/cache"
	"github.com/deploybay/region-failover/internal/model"
	"github.com/deploybay/region-failover/internal/store"
)

const regionsCacheKey = "regions"

// RegisterParams holds the caller-supplied attributes of a new region
type RegisterParams struct {
	Name           string `json:"name"`
	DisplayName    string `json:"display_name"`
	Endpoint       string `json:"endpoint"`
	Priority       int    `json:"priority"`
	MaxDeployments int    `json:"max_deployments"`
	Provider       string `json:"provider"`
	Geo            string `json:"geo"`
	Primary        bool   `json:"primary"` // Honored only for the first registered region
}

// Registry is the single source of truth for region existence, capacity
// and role. All role and capacity mutations are serialized through it;
// the health monitor writes status and the failover orchestrator writes
// the primary role, nothing else mutates either.
type Registry interface {
	Register(ctx context.Context, params RegisterParams) (*model.Region, error)
	Get(ctx context.Context, id string) (*model.Region, error)
	GetByName(ctx context.Context, name string) (*model.Region, error)
	List(ctx context.Context) ([]*model.Region, error)
	Primary(ctx context.Context) (*model.Region, error)
	SetPrimary(ctx context.Context, regionID string) error
	RestorePrimary(ctx context.Context, regionID string) error
	UpdateStatus(ctx context.Context, regionID string, status model.RegionStatus, checkedAt time.Time) error
	AdjustActiveDeployments(ctx context.Context, regionID string, delta int) error
	TransferDeployments(ctx context.Context, fromID, toID string) error
	ListFailoverTargets(ctx context.Context, excludeRegionID string) ([]*model.Region, error)
	ReconcilePrimary(ctx context.Context) error
}

type registry struct {
	store  store.RegionStore
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger

	// Serializes all mutations so primary flips and capacity changes are
	// atomic with respect to each other
	mu sync.Mutex
}

// New creates a region registry backed by the given store
func New(regionStore store.RegionStore, regionCache cache.Cache, ttl time.Duration, logger *slog.Logger) Registry {
	return &registry{
		store:  regionStore,
		cache:  regionCache,
		ttl:    ttl,
		logger: logger,
	}
}

// Register creates a new region. The first region registered may be
// designated primary at bootstrap; after that the primary role only
// moves through SetPrimary.
func (r *registry) Register(ctx context.Context, params RegisterParams) (*model.Region, error) {
	name := strings.TrimSpace(params.Name)
	endpoint := strings.TrimSpace(params.Endpoint)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", model.ErrValidation)
	}
	if endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", model.ErrValidation)
	}
	if params.MaxDeployments < 0 {
		return nil, fmt.Errorf("%w: max_deployments must not be negative", model.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.store.GetRegionByName(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrDuplicateRegion, name)
	}

	existing, err := r.store.ListRegions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}

	region := &model.Region{
		ID:             uuid.NewString(),
		Name:           name,
		DisplayName:    params.DisplayName,
		Endpoint:       endpoint,
		Priority:       params.Priority,
		MaxDeployments: params.MaxDeployments,
		Status:         model.RegionStatusHealthy,
		IsPrimary:      params.Primary && len(existing) == 0,
		Provider:       params.Provider,
		Geo:            params.Geo,
		CreatedAt:      time.Now(),
	}

	if err := r.store.CreateRegion(ctx, region); err != nil {
		return nil, err
	}
	r.cache.Delete(regionsCacheKey)

	r.logger.Info("region registered",
		slog.String("region_id", region.ID),
		slog.String("name", region.Name),
		slog.Bool("is_primary", region.IsPrimary),
	)

	return region, nil
}

// Get returns the region with the given id
func (r *registry) Get(ctx context.Context, id string) (*model.Region, error) {
	return r.store.GetRegion(ctx, id)
}

// GetByName returns the region with the given unique name
func (r *registry) GetByName(ctx context.Context, name string) (*model.Region, error) {
	return r.store.GetRegionByName(ctx, name)
}

// List returns all regions, served from the read cache when fresh.
// Callers always receive their own copies; mutating a result can never
// poison the cache.
func (r *registry) List(ctx context.Context) ([]*model.Region, error) {
	if cached, ok := r.cache.Get(regionsCacheKey); ok {
		if regions, ok := cached.([]*model.Region); ok {
			return cloneRegions(regions), nil
		}
	}

	regions, err := r.store.ListRegions(ctx)
	if err != nil {
		return nil, err
	}

	r.cache.Set(regionsCacheKey, cloneRegions(regions), r.ttl)
	return regions, nil
}

func cloneRegions(regions []*model.Region) []*model.Region {
	out := make([]*model.Region, len(regions))
	for i, region := range regions {
		out[i] = region.Clone()
	}
	return out
}

// Primary returns the current primary region, or nil if none is set
func (r *registry) Primary(ctx context.Context) (*model.Region, error) {
	regions, err := r.store.ListRegions(ctx)
	if err != nil {
		return nil, err
	}
	for _, region := range regions {
		if region.IsPrimary {
			return region, nil
		}
	}
	return nil, nil
}

// SetPrimary atomically moves the primary role to the given region.
// Fails with RegionNotHealthy unless the target's status is healthy.
// Called exclusively by the failover orchestrator inside a commit.
func (r *registry) SetPrimary(ctx context.Context, regionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setPrimaryLocked(ctx, regionID, true)
}

// RestorePrimary moves the primary role back without the health gate.
// This exists solely for the orchestrator's commit-failure revert path,
// where the original primary may no longer be healthy but must regain
// the role to avoid a half-migrated state.
func (r *registry) RestorePrimary(ctx context.Context, regionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setPrimaryLocked(ctx, regionID, false)
}

func (r *registry) setPrimaryLocked(ctx context.Context, regionID string, requireHealthy bool) error {
	target, err := r.store.GetRegion(ctx, regionID)
	if err != nil {
		return err
	}
	if requireHealthy && target.Status != model.RegionStatusHealthy {
		return fmt.Errorf("%w: %s is %s", model.ErrRegionNotHealthy, target.Name, target.Status)
	}

	regions, err := r.store.ListRegions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list regions: %w", err)
	}

	for _, region := range regions {
		if region.IsPrimary && region.ID != regionID {
			region.IsPrimary = false
			if err := r.store.UpdateRegion(ctx, region); err != nil {
				return fmt.Errorf("failed to clear primary on %s: %w", region.Name, err)
			}
		}
	}

	if !target.IsPrimary {
		target.IsPrimary = true
		if err := r.store.UpdateRegion(ctx, target); err != nil {
			return fmt.Errorf("failed to set primary on %s: %w", target.Name, err)
		}
	}
	r.cache.Delete(regionsCacheKey)

	r.logger.Info("primary region changed",
		slog.String("region_id", target.ID),
		slog.String("name", target.Name),
	)

	return nil
}

// UpdateStatus writes a health verdict for a region. The registry mutex
// guarantees two concurrent writes cannot interleave into a corrupted
// status; stale writes (older than the stored check time) are dropped.
func (r *registry) UpdateStatus(ctx context.Context, regionID string, status model.RegionStatus, checkedAt time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", model.ErrValidation, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	region, err := r.store.GetRegion(ctx, regionID)
	if err != nil {
		return err
	}
	if checkedAt.Before(region.LastHealthCheckAt) {
		return nil
	}

	region.Status = status
	region.LastHealthCheckAt = checkedAt
	if err := r.store.UpdateRegion(ctx, region); err != nil {
		return fmt.Errorf("failed to update region status: %w", err)
	}
	r.cache.Delete(regionsCacheKey)
	return nil
}

// AdjustActiveDeployments changes a region's active deployment count by
// delta, failing with CapacityExceeded if the result would exceed the
// region's maximum
func (r *registry) AdjustActiveDeployments(ctx context.Context, regionID string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adjustLocked(ctx, regionID, delta)
}

func (r *registry) adjustLocked(ctx context.Context, regionID string, delta int) error {
	region, err := r.store.GetRegion(ctx, regionID)
	if err != nil {
		return err
	}

	result := region.ActiveDeployments + delta
	if result < 0 {
		return fmt.Errorf("%w: active deployments would become negative", model.ErrValidation)
	}
	if region.MaxDeployments > 0 && result > region.MaxDeployments {
		return fmt.Errorf("%w: %d exceeds maximum %d for %s",
			model.ErrCapacityExceeded, result, region.MaxDeployments, region.Name)
	}

	region.ActiveDeployments = result
	if err := r.store.UpdateRegion(ctx, region); err != nil {
		return fmt.Errorf("failed to update region capacity: %w", err)
	}
	r.cache.Delete(regionsCacheKey)
	return nil
}

// TransferDeployments moves the active deployment bookkeeping from one
// region to another as a single operation: if crediting the target
// fails, the source is left untouched
func (r *registry) TransferDeployments(ctx context.Context, fromID, toID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	from, err := r.store.GetRegion(ctx, fromID)
	if err != nil {
		return err
	}
	count := from.ActiveDeployments
	if count == 0 {
		return nil
	}

	if err := r.adjustLocked(ctx, toID, count); err != nil {
		return err
	}
	if err := r.adjustLocked(ctx, fromID, -count); err != nil {
		// Undo the credit so the books still balance
		if undoErr := r.adjustLocked(ctx, toID, -count); undoErr != nil {
			r.logger.Error("failed to undo deployment transfer",
				slog.String("to_region", toID),
				slog.String("error", undoErr.Error()),
			)
		}
		return err
	}
	return nil
}

// ListFailoverTargets returns non-primary healthy regions ordered by
// ascending priority, ties broken by ascending active deployments. This
// ordering is the tie-break rule used by automatic target selection.
func (r *registry) ListFailoverTargets(ctx context.Context, excludeRegionID string) ([]*model.Region, error) {
	regions, err := r.store.ListRegions(ctx)
	if err != nil {
		return nil, err
	}

	targets := make([]*model.Region, 0, len(regions))
	for _, region := range regions {
		if region.ID == excludeRegionID || region.IsPrimary {
			continue
		}
		if region.Status != model.RegionStatusHealthy {
			continue
		}
		targets = append(targets, region)
	}

	sort.Slice(targets, func(i, j int) bool {
		if targets[i].Priority != targets[j].Priority {
			return targets[i].Priority < targets[j].Priority
		}
		return targets[i].ActiveDeployments < targets[j].ActiveDeployments
	})

	return targets, nil
}

// ReconcilePrimary verifies at most one stored region holds the primary
// role at startup. If several do (corrupt store), the highest-priority
// healthy one keeps the role and the rest are cleared.
func (r *registry) ReconcilePrimary(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	regions, err := r.store.ListRegions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list regions: %w", err)
	}

	var primaries []*model.Region
	for _, region := range regions {
		if region.IsPrimary {
			primaries = append(primaries, region)
		}
	}
	if len(primaries) <= 1 {
		return nil
	}

	sort.Slice(primaries, func(i, j int) bool {
		iHealthy := primaries[i].Status == model.RegionStatusHealthy
		jHealthy := primaries[j].Status == model.RegionStatusHealthy
		if iHealthy != jHealthy {
			return iHealthy
		}
		return primaries[i].Priority < primaries[j].Priority
	})

	keep := primaries[0]
	r.logger.Warn("multiple primary regions found at startup, reconciling",
		slog.Int("count", len(primaries)),
		slog.String("keeping", keep.Name),
	)

	for _, region := range primaries[1:] {
		region.IsPrimary = false
		if err := r.store.UpdateRegion(ctx, region); err != nil {
			return fmt.Errorf("failed to clear primary on %s: %w", region.Name, err)
		}
	}
	r.cache.Delete(regionsCacheKey)
	return nil
}
