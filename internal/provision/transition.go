package provision

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nimbuslabs/nimbus/internal/core"
	"github.com/nimbuslabs/nimbus/internal/model"
)

// AutoTransitioner promotes a project from created to active once
// provisioning completes. The decision is made from the aggregate persisted
// step state, never from a single step's in-memory result.
type AutoTransitioner struct {
	projects *core.ProjectService
	steps    *core.ProvisioningStepService
	logger   zerolog.Logger
}

func NewAutoTransitioner(projects *core.ProjectService, steps *core.ProvisioningStepService, logger zerolog.Logger) *AutoTransitioner {
	return &AutoTransitioner{
		projects: projects,
		steps:    steps,
		logger:   logger.With().Str("component", "auto-transition").Logger(),
	}
}

// MaybeActivate moves the project to active when its current status is
// created, every persisted step is success or skipped, and the lifecycle
// table permits the transition. Projects in any other state are left alone.
func (t *AutoTransitioner) MaybeActivate(ctx context.Context, projectID string) error {
	project, err := t.projects.GetByID(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project for activation: %w", err)
	}

	if project.Status != model.StatusCreated {
		t.logger.Debug().Str("project_id", projectID).Str("status", project.Status).Msg("skipping activation, project not in created state")
		return nil
	}

	done, err := t.steps.AllCompleted(ctx, projectID)
	if err != nil {
		return fmt.Errorf("check step completion: %w", err)
	}
	if !done {
		t.logger.Debug().Str("project_id", projectID).Msg("skipping activation, provisioning incomplete")
		return nil
	}

	if err := t.projects.TransitionStatus(ctx, projectID, model.StatusCreated, model.StatusActive); err != nil {
		return fmt.Errorf("activate project: %w", err)
	}

	t.logger.Info().Str("project_id", projectID).Msg("project activated")
	return nil
}
