package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/deploybay/region-failover/internal/model"
)

// ProbeResult carries the raw signal from a single reachability probe
type ProbeResult struct {
	Latency     time.Duration
	Utilization float64 // Reported capacity utilization, negative if not reported
	ErrorRate   float64 // Reported serving error rate, negative if not reported
}

// Prober issues a reachability probe against a region's endpoint
type Prober interface {
	Probe(ctx context.Context, region *model.Region) (*ProbeResult, error)
}

// probeResponse is the optional JSON body a region health endpoint may
// return to report its own capacity headroom and error rate
type probeResponse struct {
	Utilization *float64 `json:"utilization"`
	ErrorRate   *float64 `json:"error_rate"`
}

// HTTPProber probes regions with a GET against their endpoint
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber creates a prober with the given per-probe timeout
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		client: &http.Client{Timeout: timeout},
	}
}

// Probe issues the request and decodes the optional health payload.
// Transport failures and non-2xx responses are probe failures.
func (p *HTTPProber) Probe(ctx context.Context, region *model.Region) (*ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, region.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build probe request: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("probe returned status %d", resp.StatusCode)
	}

	result := &ProbeResult{
		Latency:     latency,
		Utilization: -1,
		ErrorRate:   -1,
	}

	var body probeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		if body.Utilization != nil {
			result.Utilization = *body.Utilization
		}
		if body.ErrorRate != nil {
			result.ErrorRate = *body.ErrorRate
		}
	}

	return result, nil
}
