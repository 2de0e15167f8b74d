package provision

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const defaultProbeTimeout = 5 * time.Second

// ServiceHealth is the outcome of a single bounded health probe.
type ServiceHealth struct {
	Service   string `json:"service"`
	Healthy   bool   `json:"healthy"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker performs bounded-timeout liveness checks against external
// service health endpoints. Any 2xx response is healthy; anything else, or a
// request error, is unhealthy with captured latency and error text.
type HealthChecker struct {
	client  *http.Client
	timeout time.Duration
}

func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &HealthChecker{
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Probe performs a GET against the given health URL. The wait is bounded by
// the checker's timeout via the request deadline, never left to hang.
func (c *HealthChecker) Probe(ctx context.Context, service, url string) ServiceHealth {
	health := ServiceHealth{Service: service}

	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		health.Error = fmt.Sprintf("build health request: %v", err)
		return health
	}

	resp, err := c.client.Do(req)
	health.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		health.Error = err.Error()
		return health
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		health.Healthy = true
	} else {
		health.Error = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return health
}
