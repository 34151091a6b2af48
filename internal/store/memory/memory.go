package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/deploybay/region-failover/internal/model"
)

// Store is an in-memory implementation of store.Store. It backs
// single-node deployments and tests; the etcd implementation provides
// the same semantics for durable setups.
type Store struct {
	mu          sync.RWMutex
	regions     map[string]*model.Region
	health      map[string][]*model.HealthCheckRecord
	replication map[string]*model.ReplicationStatus
	events      map[string]*model.FailoverEvent
	eventOrder  []string // Insertion order, oldest first
	pendingID   string   // ID of the pending event, empty if none
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		regions:     make(map[string]*model.Region),
		health:      make(map[string][]*model.HealthCheckRecord),
		replication: make(map[string]*model.ReplicationStatus),
		events:      make(map[string]*model.FailoverEvent),
	}
}

// CreateRegion stores a new region
func (s *Store) CreateRegion(ctx context.Context, region *model.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.regions[region.ID]; exists {
		return model.ErrDuplicateRegion
	}
	for _, r := range s.regions {
		if r.Name == region.Name {
			return model.ErrDuplicateRegion
		}
	}

	s.regions[region.ID] = region.Clone()
	return nil
}

// GetRegion returns the region with the given id
func (s *Store) GetRegion(ctx context.Context, id string) (*model.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	region, exists := s.regions[id]
	if !exists {
		return nil, model.ErrNotFound
	}
	return region.Clone(), nil
}

// GetRegionByName returns the region with the given unique name
func (s *Store) GetRegionByName(ctx context.Context, name string) (*model.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, region := range s.regions {
		if region.Name == name {
			return region.Clone(), nil
		}
	}
	return nil, model.ErrNotFound
}

// ListRegions returns all regions ordered by name
func (s *Store) ListRegions(ctx context.Context) ([]*model.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	regions := make([]*model.Region, 0, len(s.regions))
	for _, region := range s.regions {
		regions = append(regions, region.Clone())
	}
	sort.Slice(regions, func(i, j int) bool {
		return regions[i].Name < regions[j].Name
	})
	return regions, nil
}

// UpdateRegion replaces the stored region
func (s *Store) UpdateRegion(ctx context.Context, region *model.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.regions[region.ID]; !exists {
		return model.ErrNotFound
	}
	s.regions[region.ID] = region.Clone()
	return nil
}

// AppendHealthRecord appends a record to the region's rolling window,
// pruning the oldest records beyond the window size
func (s *Store) AppendHealthRecord(ctx context.Context, record *model.HealthCheckRecord, window int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *record
	records := append(s.health[record.RegionID], &cp)
	if window > 0 && len(records) > window {
		records = records[len(records)-window:]
	}
	s.health[record.RegionID] = records
	return nil
}

// ListHealthRecords returns the most recent records, newest first
func (s *Store) ListHealthRecords(ctx context.Context, regionID string, limit int) ([]*model.HealthCheckRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.health[regionID]
	result := make([]*model.HealthCheckRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		cp := *records[i]
		result = append(result, &cp)
	}
	return result, nil
}

func replicationKey(sourceID, targetID string) string {
	return sourceID + "/" + targetID
}

// GetReplication returns the stored status for the pair, or ErrNotFound
func (s *Store) GetReplication(ctx context.Context, sourceID, targetID string) (*model.ReplicationStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, exists := s.replication[replicationKey(sourceID, targetID)]
	if !exists {
		return nil, model.ErrNotFound
	}
	cp := *status
	return &cp, nil
}

// PutReplication creates or replaces the status for the pair
func (s *Store) PutReplication(ctx context.Context, status *model.ReplicationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *status
	s.replication[replicationKey(status.SourceRegionID, status.TargetRegionID)] = &cp
	return nil
}

// ListReplication returns all replication records
func (s *Store) ListReplication(ctx context.Context) ([]*model.ReplicationStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.ReplicationStatus, 0, len(s.replication))
	for _, status := range s.replication {
		cp := *status
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SourceRegionID == result[j].SourceRegionID {
			return result[i].TargetRegionID < result[j].TargetRegionID
		}
		return result[i].SourceRegionID < result[j].SourceRegionID
	})
	return result, nil
}

// CreatePending stores a new pending event, failing if one already exists
func (s *Store) CreatePending(ctx context.Context, event *model.FailoverEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingID != "" {
		return model.ErrFailoverInProgress
	}
	if _, exists := s.events[event.ID]; exists {
		return model.ErrInvalidState
	}

	cp := *event
	cp.Status = model.FailoverPending
	s.events[event.ID] = &cp
	s.eventOrder = append(s.eventOrder, event.ID)
	s.pendingID = event.ID
	return nil
}

// GetEvent returns the event with the given id
func (s *Store) GetEvent(ctx context.Context, id string) (*model.FailoverEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, exists := s.events[id]
	if !exists {
		return nil, model.ErrNotFound
	}
	cp := *event
	return &cp, nil
}

// UpdateEvent replaces the stored event, releasing the pending slot when
// the event transitions to a terminal state
func (s *Store) UpdateEvent(ctx context.Context, event *model.FailoverEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[event.ID]; !exists {
		return model.ErrNotFound
	}

	cp := *event
	s.events[event.ID] = &cp
	if s.pendingID == event.ID && event.Status.Terminal() {
		s.pendingID = ""
	}
	return nil
}

// PendingEvent returns the currently pending event, or nil if none
func (s *Store) PendingEvent(ctx context.Context) (*model.FailoverEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pendingID == "" {
		return nil, nil
	}
	cp := *s.events[s.pendingID]
	return &cp, nil
}

// ListEvents returns the most recent events, newest first
func (s *Store) ListEvents(ctx context.Context, limit int) ([]*model.FailoverEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.FailoverEvent, 0, len(s.eventOrder))
	for i := len(s.eventOrder) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		cp := *s.events[s.eventOrder[i]]
		result = append(result, &cp)
	}
	return result, nil
}

// Close is a no-op for the in-memory store
func (s *Store) Close() error {
	return nil
}
