package provision

import (
	"context"
	"errors"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/nimbuslabs/nimbus/internal/config"
	"github.com/nimbuslabs/nimbus/internal/core"
	"github.com/nimbuslabs/nimbus/internal/model"
)

// slugRegex is the identifier-safety gate for every handler that derives a
// schema, table or bucket name from the project slug. Slugs are interpolated
// into DDL where placeholders cannot be used, so a non-matching slug is
// rejected before any query touches the store.
var slugRegex = regexp.MustCompile(`^[a-z0-9-]+$`)

// Handlers carries the dependencies shared by all step handlers. One method
// per catalog step; the Registry seals the name-to-method table.
type Handlers struct {
	db         core.DB
	projects   *core.ProjectService
	steps      *core.ProvisioningStepService
	keys       *core.APIKeyService
	cfg        *config.Config
	quotas     map[string]config.StorageQuota
	health     *HealthChecker
	auth       *AuthServiceClient
	storage    StorageVerifier
	transition *AutoTransitioner
	logger     zerolog.Logger
}

// NewHandlers wires the step handlers. The storage verifier may be nil when
// no S3 credentials are configured; the storage and verify handlers handle
// that case explicitly.
func NewHandlers(
	db core.DB,
	projects *core.ProjectService,
	steps *core.ProvisioningStepService,
	keys *core.APIKeyService,
	cfg *config.Config,
	quotas map[string]config.StorageQuota,
	storage StorageVerifier,
	logger zerolog.Logger,
) *Handlers {
	return &Handlers{
		db:         db,
		projects:   projects,
		steps:      steps,
		keys:       keys,
		cfg:        cfg,
		quotas:     quotas,
		health:     NewHealthChecker(defaultProbeTimeout),
		auth:       NewAuthServiceClient(),
		storage:    storage,
		transition: NewAutoTransitioner(projects, steps, logger),
		logger:     logger.With().Str("component", "provision-handlers").Logger(),
	}
}

// loadProject fetches the project row, translating a missing row into the
// structured NotFoundError failure every handler fails fast with.
func (h *Handlers) loadProject(ctx context.Context, projectID string) (*model.Project, *model.StepResult, error) {
	project, err := h.projects.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, failure(NewNotFoundError("project not found", map[string]any{
				"projectId": projectID,
			})), nil
		}
		return nil, nil, err
	}
	return project, nil, nil
}

// validSlugProject loads the project and additionally enforces the slug
// gate. Used by every handler that builds interpolated identifiers.
func (h *Handlers) validSlugProject(ctx context.Context, projectID string) (*model.Project, *model.StepResult, error) {
	project, fail, err := h.loadProject(ctx, projectID)
	if fail != nil || err != nil {
		return nil, fail, err
	}
	if !slugRegex.MatchString(project.Slug) {
		return nil, failure(NewValidationError("project slug contains invalid characters", map[string]any{
			"projectId": projectID,
			"slug":      project.Slug,
		})), nil
	}
	return project, nil, nil
}
