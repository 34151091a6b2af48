package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploybay/region-failover/internal/cache"
	"github.com/deploybay/region-failover/internal/config"
	"github.com/deploybay/region-failover/internal/migrate"
	"github.com/deploybay/region-failover/internal/model"
	"github.com/deploybay/region-failover/internal/monitor"
	"github.com/deploybay/region-failover/internal/orchestrator"
	"github.com/deploybay/region-failover/internal/registry"
	"github.com/deploybay/region-failover/internal/replication"
	"github.com/deploybay/region-failover/internal/store/memory"
)

// stubProber reports every region reachable
type stubProber struct{}

func (stubProber) Probe(ctx context.Context, region *model.Region) (*monitor.ProbeResult, error) {
	return &monitor.ProbeResult{Latency: time.Millisecond, Utilization: -1, ErrorRate: -1}, nil
}

type apiFixture struct {
	server   *httptest.Server
	registry registry.Registry
	tracker  replication.Tracker
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := memory.New()
	reg := registry.New(db, cache.New(time.Minute), time.Minute, logger)
	tracker := replication.New(config.ReplicationConfig{
		MaxLag:         30 * time.Second,
		StalenessBound: 5 * time.Minute,
	}, db, logger)
	orch := orchestrator.New(config.FailoverConfig{CommitTimeout: time.Second}, reg, tracker, db, migrate.Noop{}, logger)
	mon := monitor.New(config.MonitorConfig{
		Interval:           time.Minute,
		ProbeTimeout:       time.Second,
		FailureThreshold:   3,
		CapacityHighWater:  0.9,
		ErrorRateThreshold: 0.05,
		HistoryWindow:      10,
	}, reg, db, stubProber{}, logger)

	handler := NewHandler(reg, mon, tracker, orch, "", logger)
	server := httptest.NewServer(handler.Router())
	t.Cleanup(server.Close)

	return &apiFixture{server: server, registry: reg, tracker: tracker}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (f *apiFixture) registerRegion(t *testing.T, params registry.RegisterParams) *model.Region {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/regions", params)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	region := decode[model.Region](t, resp)
	return &region
}

func TestRegionEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	region := f.registerRegion(t, registry.RegisterParams{
		Name: "us-east-1", Endpoint: "https://a.example.com/healthz", Priority: 1, MaxDeployments: 100, Primary: true,
	})
	assert.Equal(t, "us-east-1", region.Name)
	assert.True(t, region.IsPrimary)
	assert.NotEmpty(t, region.ID)

	t.Run("duplicate name conflicts", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/regions", registry.RegisterParams{
			Name: "us-east-1", Endpoint: "https://b.example.com",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("missing endpoint is a bad request", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/regions", registry.RegisterParams{Name: "eu-west-1"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("list", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/api/regions", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		regions := decode[[]model.Region](t, resp)
		assert.Len(t, regions, 1)
	})

	t.Run("get by id", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/api/regions/"+region.ID, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decode[model.Region](t, resp)
		assert.Equal(t, region.ID, got.ID)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/api/regions/missing", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	region := f.registerRegion(t, registry.RegisterParams{
		Name: "us-east-1", Endpoint: "https://a.example.com/healthz",
	})

	resp := f.do(t, http.MethodPost, "/api/regions/"+region.ID+"/check", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[model.RegionHealth](t, resp)
	assert.Equal(t, model.RegionStatusHealthy, health.Status)

	resp = f.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decode[[]model.RegionHealth](t, resp)
	require.Len(t, all, 1)
	assert.Equal(t, region.ID, all[0].RegionID)

	resp = f.do(t, http.MethodGet, "/api/regions/"+region.ID+"/health?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records := decode[[]model.HealthCheckRecord](t, resp)
	require.Len(t, records, 1, "the forced check left one record")
	assert.True(t, records[0].Reachable)

	resp = f.do(t, http.MethodGet, "/api/regions/"+region.ID+"/health?limit=no", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReplicationEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	path := "/api/replication/r1/r2"

	resp := f.do(t, http.MethodPut, path, replicationUpdateRequest{
		Status:      model.ReplicationReady,
		LagEstimate: time.Duration(2 * time.Second),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[model.ReplicationStatus](t, resp)
	assert.Equal(t, model.ReplicationReady, status.Status)
	assert.False(t, status.LastSyncedAt.IsZero(), "omitted sync time defaults to now")

	resp = f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[model.ReplicationStatus](t, resp)
	assert.Equal(t, model.ReplicationReady, got.Status)

	// The reverse direction has no record and defaults to pending
	resp = f.do(t, http.MethodGet, "/api/replication/r2/r1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reverse := decode[model.ReplicationStatus](t, resp)
	assert.Equal(t, model.ReplicationPending, reverse.Status)

	resp = f.do(t, http.MethodGet, "/api/replication", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decode[[]model.ReplicationStatus](t, resp)
	assert.Len(t, all, 1)

	resp = f.do(t, http.MethodPut, path, replicationUpdateRequest{Status: "replicated"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFailoverEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	from := f.registerRegion(t, registry.RegisterParams{
		Name: "us-east-1", Endpoint: "https://a.example.com", Priority: 1, MaxDeployments: 10, Primary: true,
	})
	to := f.registerRegion(t, registry.RegisterParams{
		Name: "eu-west-1", Endpoint: "https://b.example.com", Priority: 2, MaxDeployments: 10,
	})

	t.Run("replication gate rejects", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/failover", executeFailoverRequest{
			FromRegionID: from.ID, ToRegionID: to.ID,
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	for _, pair := range [][2]string{{from.ID, to.ID}, {to.ID, from.ID}} {
		resp := f.do(t, http.MethodPut, "/api/replication/"+pair[0]+"/"+pair[1], replicationUpdateRequest{
			Status: model.ReplicationReady,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	var eventID string
	t.Run("execute", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/failover", executeFailoverRequest{
			FromRegionID: from.ID, ToRegionID: to.ID, InitiatedBy: "ops",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		event := decode[model.FailoverEvent](t, resp)
		assert.Equal(t, model.FailoverCompleted, event.Status)
		assert.Equal(t, model.TriggerManual, event.Trigger)
		eventID = event.ID
	})

	t.Run("status reflects new primary", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/api/failover/status", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		status := decode[model.FailoverStatus](t, resp)
		assert.Equal(t, to.ID, status.PrimaryRegionID)
		assert.False(t, status.InProgress)
	})

	t.Run("cancel after completion reports lost race", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/failover/"+eventID+"/cancel", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		out := decode[cancelResponse](t, resp)
		assert.False(t, out.Cancelled)
		assert.NotEmpty(t, out.Reason)
	})

	t.Run("rollback", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/failover/"+eventID+"/rollback", rollbackRequest{InitiatedBy: "ops"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		reverse := decode[model.FailoverEvent](t, resp)
		assert.Equal(t, model.FailoverCompleted, reverse.Status)
		assert.Equal(t, eventID, reverse.RollbackOfID)
	})

	t.Run("second rollback is refused", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/failover/"+eventID+"/rollback", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("history", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/api/failover/history", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		events := decode[[]model.FailoverEvent](t, resp)
		require.Len(t, events, 2)
		assert.Equal(t, eventID, events[1].ID, "newest first")
	})

	t.Run("rollback of unknown event", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/failover/missing/rollback", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("bad history limit", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/api/failover/history?limit=-1", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

// failingMigrator refuses every migration
type failingMigrator struct{}

func (failingMigrator) Migrate(ctx context.Context, from, to *model.Region) error {
	return errors.New("drain rejected")
}

func TestFailedFailoverReturnsEventBody(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := memory.New()
	reg := registry.New(db, cache.New(time.Minute), time.Minute, logger)
	tracker := replication.New(config.ReplicationConfig{
		MaxLag:         30 * time.Second,
		StalenessBound: 5 * time.Minute,
	}, db, logger)
	orch := orchestrator.New(config.FailoverConfig{CommitTimeout: time.Second}, reg, tracker, db, failingMigrator{}, logger)
	mon := monitor.New(config.MonitorConfig{
		Interval: time.Minute, ProbeTimeout: time.Second, FailureThreshold: 3,
		CapacityHighWater: 0.9, ErrorRateThreshold: 0.05, HistoryWindow: 10,
	}, reg, db, stubProber{}, logger)

	handler := NewHandler(reg, mon, tracker, orch, "", logger)
	server := httptest.NewServer(handler.Router())
	t.Cleanup(server.Close)
	f := &apiFixture{server: server, registry: reg, tracker: tracker}

	from := f.registerRegion(t, registry.RegisterParams{
		Name: "us-east-1", Endpoint: "https://a.example.com", Priority: 1, MaxDeployments: 10, Primary: true,
	})
	to := f.registerRegion(t, registry.RegisterParams{
		Name: "eu-west-1", Endpoint: "https://b.example.com", Priority: 2, MaxDeployments: 10,
	})
	require.NoError(t, f.tracker.Record(context.Background(), &model.ReplicationStatus{
		SourceRegionID: from.ID, TargetRegionID: to.ID,
		Status: model.ReplicationReady, LastSyncedAt: time.Now(),
	}))

	resp := f.do(t, http.MethodPost, "/api/failover", executeFailoverRequest{
		FromRegionID: from.ID, ToRegionID: to.ID, InitiatedBy: "ops",
	})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	event := decode[model.FailoverEvent](t, resp)
	assert.Equal(t, model.FailoverFailed, event.Status)
	assert.NotEmpty(t, event.Reason)
	assert.NotEmpty(t, event.ID)
}

func TestBasePathMount(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := memory.New()
	reg := registry.New(db, cache.New(time.Minute), time.Minute, logger)
	tracker := replication.New(config.ReplicationConfig{MaxLag: time.Minute, StalenessBound: time.Minute}, db, logger)
	orch := orchestrator.New(config.FailoverConfig{CommitTimeout: time.Second}, reg, tracker, db, migrate.Noop{}, logger)
	mon := monitor.New(config.MonitorConfig{
		Interval: time.Minute, ProbeTimeout: time.Second, FailureThreshold: 3,
		CapacityHighWater: 0.9, ErrorRateThreshold: 0.05, HistoryWindow: 10,
	}, reg, db, stubProber{}, logger)

	handler := NewHandler(reg, mon, tracker, orch, "/failover-controller", logger)
	server := httptest.NewServer(handler.Router())
	defer server.Close()

	resp, err := http.Get(server.URL + "/failover-controller/api/regions")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/api/regions")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
