package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/nimbuslabs/nimbus/internal/model"
)

// RegisterRealtimeService resolves the realtime service URL, performs a
// best-effort health probe, and persists the channel prefix and URL into
// project metadata. A failed probe degrades health_status to "unknown" but
// does not fail the step; metadata merge is commutative so re-runs are safe.
func (h *Handlers) RegisterRealtimeService(ctx context.Context, projectID string) (*model.StepResult, error) {
	project, fail, err := h.loadProject(ctx, projectID)
	if fail != nil || err != nil {
		return fail, err
	}

	url := h.cfg.ResolveRealtimeURL()
	now := time.Now().UTC().Format(time.RFC3339)

	healthStatus := "unknown"
	switch {
	case h.cfg.IntegrationTest:
		healthStatus = "healthy"
	case url == "":
		healthStatus = "not_configured"
	default:
		if probe := h.health.Probe(ctx, "realtime", url+"/health"); probe.Healthy {
			healthStatus = "healthy"
		} else {
			h.logger.Warn().Str("project_id", projectID).Str("error", probe.Error).Msg("realtime health probe failed")
		}
	}

	cfg := model.RealtimeServiceConfig{
		URL:           url,
		ChannelPrefix: fmt.Sprintf("%s:%s", project.Environment, project.Slug),
		HealthStatus:  healthStatus,
		RegisteredAt:  now,
	}
	if err := h.projects.MergeMetadata(ctx, projectID, model.MetadataKeyRealtimeService, cfg); err != nil {
		return nil, err
	}

	return success(map[string]any{
		"url":            url,
		"channel_prefix": cfg.ChannelPrefix,
		"health_status":  healthStatus,
	}), nil
}
