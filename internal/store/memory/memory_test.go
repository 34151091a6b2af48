package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploybay/region-failover/internal/model"
)

func testRegion(id, name string) *model.Region {
	return &model.Region{
		ID:       id,
		Name:     name,
		Endpoint: "https://" + name + ".example.com/healthz",
		Status:   model.RegionStatusHealthy,
	}
}

func TestRegionCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreateRegion(ctx, testRegion("r1", "us-east-1")))
	require.NoError(t, s.CreateRegion(ctx, testRegion("r2", "eu-west-1")))

	got, err := s.GetRegion(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", got.Name)

	got, err = s.GetRegionByName(ctx, "eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "r2", got.ID)

	_, err = s.GetRegion(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	regions, err := s.ListRegions(ctx)
	require.NoError(t, err)
	require.Len(t, regions, 2)
	assert.Equal(t, "eu-west-1", regions[0].Name, "regions should be ordered by name")

	got.DisplayName = "EU West"
	require.NoError(t, s.UpdateRegion(ctx, got))
	updated, err := s.GetRegion(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, "EU West", updated.DisplayName)

	err = s.UpdateRegion(ctx, testRegion("missing", "nope"))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreateRegionDuplicates(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreateRegion(ctx, testRegion("r1", "us-east-1")))

	err := s.CreateRegion(ctx, testRegion("r1", "other-name"))
	assert.ErrorIs(t, err, model.ErrDuplicateRegion)

	err = s.CreateRegion(ctx, testRegion("r2", "us-east-1"))
	assert.ErrorIs(t, err, model.ErrDuplicateRegion, "name uniqueness is enforced")
}

func TestGetRegionReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreateRegion(ctx, testRegion("r1", "us-east-1")))

	first, err := s.GetRegion(ctx, "r1")
	require.NoError(t, err)
	first.Status = model.RegionStatusUnhealthy

	second, err := s.GetRegion(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.RegionStatusHealthy, second.Status, "mutating a read result must not leak into the store")
}

func TestHealthRecordWindow(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Now()

	for i := 0; i < 5; i++ {
		record := &model.HealthCheckRecord{
			RegionID:  "r1",
			CheckedAt: base.Add(time.Duration(i) * time.Second),
			Reachable: true,
			Status:    model.RegionStatusHealthy,
		}
		require.NoError(t, s.AppendHealthRecord(ctx, record, 3))
	}

	records, err := s.ListHealthRecords(ctx, "r1", 0)
	require.NoError(t, err)
	require.Len(t, records, 3, "window should prune the oldest records")
	assert.True(t, records[0].CheckedAt.After(records[1].CheckedAt), "newest first")
	assert.Equal(t, base.Add(4*time.Second).Unix(), records[0].CheckedAt.Unix())

	limited, err := s.ListHealthRecords(ctx, "r1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestReplicationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetReplication(ctx, "r1", "r2")
	assert.ErrorIs(t, err, model.ErrNotFound)

	status := &model.ReplicationStatus{
		SourceRegionID: "r1",
		TargetRegionID: "r2",
		Status:         model.ReplicationSyncing,
		LastSyncedAt:   time.Now(),
		LagEstimate:    2 * time.Second,
	}
	require.NoError(t, s.PutReplication(ctx, status))

	got, err := s.GetReplication(ctx, "r1", "r2")
	require.NoError(t, err)
	assert.Equal(t, model.ReplicationSyncing, got.Status)

	// The pair is directional: the reverse direction has its own record
	_, err = s.GetReplication(ctx, "r2", "r1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	status.Status = model.ReplicationReady
	require.NoError(t, s.PutReplication(ctx, status))
	got, err = s.GetReplication(ctx, "r1", "r2")
	require.NoError(t, err)
	assert.Equal(t, model.ReplicationReady, got.Status)

	all, err := s.ListReplication(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreatePendingEnforcesSingleSlot(t *testing.T) {
	ctx := context.Background()
	s := New()

	first := &model.FailoverEvent{ID: "e1", FromRegionID: "r1", ToRegionID: "r2", CreatedAt: time.Now()}
	require.NoError(t, s.CreatePending(ctx, first))

	second := &model.FailoverEvent{ID: "e2", FromRegionID: "r1", ToRegionID: "r3", CreatedAt: time.Now()}
	err := s.CreatePending(ctx, second)
	assert.ErrorIs(t, err, model.ErrFailoverInProgress)

	pending, err := s.PendingEvent(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "e1", pending.ID)

	// Terminal transition releases the slot
	first.Status = model.FailoverCompleted
	first.CompletedAt = time.Now()
	require.NoError(t, s.UpdateEvent(ctx, first))

	pending, err = s.PendingEvent(ctx)
	require.NoError(t, err)
	assert.Nil(t, pending)

	require.NoError(t, s.CreatePending(ctx, second))
}

func TestListEventsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, id := range []string{"e1", "e2", "e3"} {
		event := &model.FailoverEvent{ID: id, CreatedAt: time.Now()}
		require.NoError(t, s.CreatePending(ctx, event))
		event.Status = model.FailoverCompleted
		require.NoError(t, s.UpdateEvent(ctx, event))
	}

	events, err := s.ListEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "e3", events[0].ID)
	assert.Equal(t, "e1", events[2].ID)

	limited, err := s.ListEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "e3", limited[0].ID)
}
