package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/deploybay/region-failover/internal/config"
	"github.com/deploybay/region-failover/internal/model"
	"github.com/deploybay/region-failover/internal/util"
)

const (
	keyRegionPrefix      = "region-failover/regions/"
	keyRegionNamePrefix  = "region-failover/region-names/"
	keyHealthPrefix      = "region-failover/health/"
	keyReplicationPrefix = "region-failover/replication/"
	keyEventPrefix       = "region-failover/events/"
	keyPendingEvent      = "region-failover/failover/pending"
)

// Store is an etcd-backed implementation of store.Store. Records are
// stored as JSON values under well-known key prefixes; the one-pending
// failover constraint is enforced with a transaction on a marker key so
// it holds across multiple controller instances.
type Store struct {
	client *clientv3.Client
	logger *slog.Logger
}

// New connects to the configured etcd cluster and verifies the connection
func New(cfg config.EtcdConfig, logger *slog.Logger) (*Store, error) {
	etcdCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	}

	if cfg.TLS != nil {
		tlsConfig, err := util.LoadTLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
		etcdCfg.TLS = tlsConfig
	}

	client, err := clientv3.New(etcdCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Status(ctx, cfg.Endpoints[0]); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	logger.Info("connected to etcd cluster",
		slog.Any("endpoints", cfg.Endpoints),
	)

	return &Store{
		client: client,
		logger: logger,
	}, nil
}

// CreateRegion stores a new region, reserving its unique name with a
// transaction so two concurrent registrations cannot both win
func (s *Store) CreateRegion(ctx context.Context, region *model.Region) error {
	data, err := json.Marshal(region)
	if err != nil {
		return fmt.Errorf("failed to marshal region: %w", err)
	}

	nameKey := keyRegionNamePrefix + region.Name
	resp, err := s.client.Txn(ctx).
		If(
			clientv3.Compare(clientv3.CreateRevision(nameKey), "=", 0),
			clientv3.Compare(clientv3.CreateRevision(keyRegionPrefix+region.ID), "=", 0),
		).
		Then(
			clientv3.OpPut(nameKey, region.ID),
			clientv3.OpPut(keyRegionPrefix+region.ID, string(data)),
		).
		Commit()
	if err != nil {
		return fmt.Errorf("failed to write region to etcd: %w", err)
	}
	if !resp.Succeeded {
		return model.ErrDuplicateRegion
	}
	return nil
}

// GetRegion returns the region with the given id
func (s *Store) GetRegion(ctx context.Context, id string) (*model.Region, error) {
	resp, err := s.client.Get(ctx, keyRegionPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("failed to read region from etcd: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, model.ErrNotFound
	}

	var region model.Region
	if err := json.Unmarshal(resp.Kvs[0].Value, &region); err != nil {
		return nil, fmt.Errorf("failed to unmarshal region: %w", err)
	}
	return &region, nil
}

// GetRegionByName resolves the name index and returns the region
func (s *Store) GetRegionByName(ctx context.Context, name string) (*model.Region, error) {
	resp, err := s.client.Get(ctx, keyRegionNamePrefix+name)
	if err != nil {
		return nil, fmt.Errorf("failed to read region name index from etcd: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, model.ErrNotFound
	}
	return s.GetRegion(ctx, string(resp.Kvs[0].Value))
}

// ListRegions returns all regions ordered by name
func (s *Store) ListRegions(ctx context.Context) ([]*model.Region, error) {
	resp, err := s.client.Get(ctx, keyRegionPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list regions from etcd: %w", err)
	}

	regions := make([]*model.Region, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var region model.Region
		if err := json.Unmarshal(kv.Value, &region); err != nil {
			return nil, fmt.Errorf("failed to unmarshal region: %w", err)
		}
		regions = append(regions, &region)
	}
	sort.Slice(regions, func(i, j int) bool {
		return regions[i].Name < regions[j].Name
	})
	return regions, nil
}

// UpdateRegion replaces the stored region
func (s *Store) UpdateRegion(ctx context.Context, region *model.Region) error {
	key := keyRegionPrefix + region.ID

	data, err := json.Marshal(region)
	if err != nil {
		return fmt.Errorf("failed to marshal region: %w", err)
	}

	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), ">", 0)).
		Then(clientv3.OpPut(key, string(data))).
		Commit()
	if err != nil {
		return fmt.Errorf("failed to update region in etcd: %w", err)
	}
	if !resp.Succeeded {
		return model.ErrNotFound
	}
	return nil
}

// AppendHealthRecord writes a health record and prunes the oldest
// records beyond the rolling window
func (s *Store) AppendHealthRecord(ctx context.Context, record *model.HealthCheckRecord, window int) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal health record: %w", err)
	}

	prefix := keyHealthPrefix + record.RegionID + "/"
	key := fmt.Sprintf("%s%020d", prefix, record.CheckedAt.UnixNano())
	if _, err := s.client.Put(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to write health record to etcd: %w", err)
	}

	if window <= 0 {
		return nil
	}

	// Prune: keys sort by timestamp, so anything before the newest
	// `window` keys can be deleted
	resp, err := s.client.Get(ctx, prefix, clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
		clientv3.WithKeysOnly())
	if err != nil {
		return fmt.Errorf("failed to list health records for pruning: %w", err)
	}
	excess := len(resp.Kvs) - window
	for i := 0; i < excess; i++ {
		if _, err := s.client.Delete(ctx, string(resp.Kvs[i].Key)); err != nil {
			s.logger.Warn("failed to prune health record",
				slog.String("key", string(resp.Kvs[i].Key)),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// ListHealthRecords returns the most recent records, newest first
func (s *Store) ListHealthRecords(ctx context.Context, regionID string, limit int) ([]*model.HealthCheckRecord, error) {
	opts := []clientv3.OpOption{
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortDescend),
	}
	if limit > 0 {
		opts = append(opts, clientv3.WithLimit(int64(limit)))
	}

	resp, err := s.client.Get(ctx, keyHealthPrefix+regionID+"/", opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to list health records from etcd: %w", err)
	}

	records := make([]*model.HealthCheckRecord, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var record model.HealthCheckRecord
		if err := json.Unmarshal(kv.Value, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal health record: %w", err)
		}
		records = append(records, &record)
	}
	return records, nil
}

// GetReplication returns the stored status for the pair, or ErrNotFound
func (s *Store) GetReplication(ctx context.Context, sourceID, targetID string) (*model.ReplicationStatus, error) {
	resp, err := s.client.Get(ctx, keyReplicationPrefix+sourceID+"/"+targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to read replication status from etcd: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, model.ErrNotFound
	}

	var status model.ReplicationStatus
	if err := json.Unmarshal(resp.Kvs[0].Value, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal replication status: %w", err)
	}
	return &status, nil
}

// PutReplication creates or replaces the status for the pair
func (s *Store) PutReplication(ctx context.Context, status *model.ReplicationStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal replication status: %w", err)
	}

	key := keyReplicationPrefix + status.SourceRegionID + "/" + status.TargetRegionID
	if _, err := s.client.Put(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to write replication status to etcd: %w", err)
	}
	return nil
}

// ListReplication returns all replication records
func (s *Store) ListReplication(ctx context.Context) ([]*model.ReplicationStatus, error) {
	resp, err := s.client.Get(ctx, keyReplicationPrefix, clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("failed to list replication statuses from etcd: %w", err)
	}

	statuses := make([]*model.ReplicationStatus, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var status model.ReplicationStatus
		if err := json.Unmarshal(kv.Value, &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal replication status: %w", err)
		}
		statuses = append(statuses, &status)
	}
	return statuses, nil
}

// CreatePending stores a new pending event guarded by the pending marker
// key: the transaction only succeeds if no marker exists, which gives
// concurrent failovers exactly one winner even across instances
func (s *Store) CreatePending(ctx context.Context, event *model.FailoverEvent) error {
	event.Status = model.FailoverPending

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal failover event: %w", err)
	}

	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(keyPendingEvent), "=", 0)).
		Then(
			clientv3.OpPut(keyPendingEvent, event.ID),
			clientv3.OpPut(keyEventPrefix+event.ID, string(data)),
		).
		Commit()
	if err != nil {
		return fmt.Errorf("failed to create pending event in etcd: %w", err)
	}
	if !resp.Succeeded {
		return model.ErrFailoverInProgress
	}
	return nil
}

// GetEvent returns the event with the given id
func (s *Store) GetEvent(ctx context.Context, id string) (*model.FailoverEvent, error) {
	resp, err := s.client.Get(ctx, keyEventPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("failed to read failover event from etcd: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, model.ErrNotFound
	}

	var event model.FailoverEvent
	if err := json.Unmarshal(resp.Kvs[0].Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failover event: %w", err)
	}
	return &event, nil
}

// UpdateEvent replaces the stored event, releasing the pending marker in
// the same transaction when the event reaches a terminal state
func (s *Store) UpdateEvent(ctx context.Context, event *model.FailoverEvent) error {
	key := keyEventPrefix + event.ID

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal failover event: %w", err)
	}

	ops := []clientv3.Op{clientv3.OpPut(key, string(data))}
	if event.Status.Terminal() {
		// Release the marker only if it still points at this event
		_, err := s.client.Txn(ctx).
			If(clientv3.Compare(clientv3.Value(keyPendingEvent), "=", event.ID)).
			Then(append(ops, clientv3.OpDelete(keyPendingEvent))...).
			Else(ops...).
			Commit()
		if err != nil {
			return fmt.Errorf("failed to update failover event in etcd: %w", err)
		}
		return nil
	}

	if _, err := s.client.Put(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to update failover event in etcd: %w", err)
	}
	return nil
}

// PendingEvent returns the currently pending event, or nil if none
func (s *Store) PendingEvent(ctx context.Context) (*model.FailoverEvent, error) {
	resp, err := s.client.Get(ctx, keyPendingEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending marker from etcd: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	return s.GetEvent(ctx, string(resp.Kvs[0].Value))
}

// ListEvents returns the most recent events, newest first
func (s *Store) ListEvents(ctx context.Context, limit int) ([]*model.FailoverEvent, error) {
	resp, err := s.client.Get(ctx, keyEventPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list failover events from etcd: %w", err)
	}

	events := make([]*model.FailoverEvent, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var event model.FailoverEvent
		if err := json.Unmarshal(kv.Value, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failover event: %w", err)
		}
		events = append(events, &event)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// Close closes the etcd client connection
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
