package provision

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nimbuslabs/nimbus/internal/model"
)

// enabledServiceProbes returns the health endpoints for every configured
// external service. Services without configuration are not probed.
func (h *Handlers) enabledServiceProbes() map[string]string {
	probes := map[string]string{}
	if h.cfg.AuthServiceURL != "" {
		probes["auth"] = h.cfg.AuthServiceURL + "/health"
	}
	if url := h.cfg.ResolveRealtimeURL(); url != "" {
		probes["realtime"] = url + "/health"
	}
	return probes
}

// VerifyServices probes database connectivity plus every enabled external
// service's health endpoint and aggregates the results. The step succeeds
// only when all probed services report healthy; on success it additionally
// triggers the auto status transition, whose errors are logged and swallowed
// because provisioning succeeded regardless of the convenience promotion.
func (h *Handlers) VerifyServices(ctx context.Context, projectID string) (*model.StepResult, error) {
	_, fail, err := h.loadProject(ctx, projectID)
	if fail != nil || err != nil {
		return fail, err
	}

	var results []ServiceHealth

	if h.cfg.IntegrationTest {
		results = append(results, ServiceHealth{Service: "database", Healthy: true})
		for service := range h.enabledServiceProbes() {
			results = append(results, ServiceHealth{Service: service, Healthy: true})
		}
	} else {
		results = append(results, h.probeDatabase(ctx))

		var mu sync.Mutex
		g, probeCtx := errgroup.WithContext(ctx)
		for service, url := range h.enabledServiceProbes() {
			g.Go(func() error {
				probe := h.health.Probe(probeCtx, service, url)
				mu.Lock()
				results = append(results, probe)
				mu.Unlock()
				return nil
			})
		}
		// Probes record their own failures; the group never errors.
		_ = g.Wait()
	}

	unhealthy := make([]string, 0)
	healthList := make([]map[string]any, 0, len(results))
	for _, r := range results {
		healthList = append(healthList, map[string]any{
			"service":    r.Service,
			"healthy":    r.Healthy,
			"latency_ms": r.LatencyMS,
			"error":      r.Error,
		})
		if !r.Healthy {
			unhealthy = append(unhealthy, r.Service)
		}
	}

	if len(unhealthy) > 0 {
		return failure(&StepError{
			Type:    ErrorTypeServiceHealthCheck,
			Message: "one or more services failed health verification",
			Context: map[string]any{
				"projectId": projectID,
				"unhealthy": unhealthy,
				"services":  healthList,
			},
		}), nil
	}

	if err := h.transition.MaybeActivate(ctx, projectID); err != nil {
		h.logger.Warn().Err(err).Str("project_id", projectID).Msg("auto status transition failed after verification")
	}

	return success(map[string]any{"services": healthList}), nil
}

// probeDatabase checks store connectivity with a trivial query.
func (h *Handlers) probeDatabase(ctx context.Context) ServiceHealth {
	health := ServiceHealth{Service: "database"}
	var one int
	if err := h.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		health.Error = err.Error()
		return health
	}
	health.Healthy = true
	return health
}
