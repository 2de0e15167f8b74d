package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nimbuslabs/nimbus/internal/model"
	"github.com/nimbuslabs/nimbus/internal/platform"
)

// ProvisioningStepService owns the provisioning_steps table. All transitions
// go through this service; step handlers never touch the table directly.
type ProvisioningStepService struct {
	db DB
}

func NewProvisioningStepService(db DB) *ProvisioningStepService {
	return &ProvisioningStepService{db: db}
}

const stepColumns = `id, project_id, step_name, status, started_at, completed_at, error_message, error_details, retry_count, created_at`

func scanStep(row interface{ Scan(dest ...any) error }) (*model.ProvisioningStep, error) {
	var (
		step        model.ProvisioningStep
		errMsg      *string
		detailsJSON []byte
	)
	err := row.Scan(&step.ID, &step.ProjectID, &step.StepName, &step.Status,
		&step.StartedAt, &step.CompletedAt, &errMsg, &detailsJSON,
		&step.RetryCount, &step.CreatedAt)
	if err != nil {
		return nil, err
	}
	if errMsg != nil {
		step.ErrorMessage = *errMsg
	}
	if len(detailsJSON) > 0 {
		var details model.ErrorDetails
		if err := json.Unmarshal(detailsJSON, &details); err != nil {
			return nil, fmt.Errorf("unmarshal error details: %w", err)
		}
		step.ErrorDetails = &details
	}
	return &step, nil
}

// Get loads the persisted step row for a (project, step) pair.
func (s *ProvisioningStepService) Get(ctx context.Context, projectID, stepName string) (*model.ProvisioningStep, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+stepColumns+` FROM provisioning_steps WHERE project_id = $1 AND step_name = $2`,
		projectID, stepName,
	)
	step, err := scanStep(row)
	if err != nil {
		return nil, fmt.Errorf("get provisioning step %s/%s: %w", projectID, stepName, err)
	}
	return step, nil
}

// MarkRunning upserts the step row to running with started_at = now. The
// insert-or-update on the (project_id, step_name) unique key lets a step be
// (re)started even when no prior row exists.
func (s *ProvisioningStepService) MarkRunning(ctx context.Context, projectID, stepName string) (*model.ProvisioningStep, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO provisioning_steps (id, project_id, step_name, status, started_at, created_at)
		VALUES ($1, $2, $3, 'running', now(), now())
		ON CONFLICT (project_id, step_name) DO UPDATE SET
			status = 'running',
			started_at = now()
		RETURNING `+stepColumns,
		platform.NewID(), projectID, stepName,
	)
	step, err := scanStep(row)
	if err != nil {
		return nil, fmt.Errorf("mark step %s/%s running: %w", projectID, stepName, err)
	}
	return step, nil
}

// MarkSuccess upserts the step row to success with completed_at = now.
// Retained error fields from earlier failures are left untouched.
func (s *ProvisioningStepService) MarkSuccess(ctx context.Context, projectID, stepName string) (*model.ProvisioningStep, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO provisioning_steps (id, project_id, step_name, status, completed_at, created_at)
		VALUES ($1, $2, $3, 'success', now(), now())
		ON CONFLICT (project_id, step_name) DO UPDATE SET
			status = 'success',
			completed_at = now()
		RETURNING `+stepColumns,
		platform.NewID(), projectID, stepName,
	)
	step, err := scanStep(row)
	if err != nil {
		return nil, fmt.Errorf("mark step %s/%s success: %w", projectID, stepName, err)
	}
	return step, nil
}

// MarkFailed upserts the step row to failed, persisting the error message and
// structured details verbatim.
func (s *ProvisioningStepService) MarkFailed(ctx context.Context, projectID, stepName, errorMessage string, details *model.ErrorDetails) (*model.ProvisioningStep, error) {
	var detailsJSON []byte
	if details != nil {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("marshal error details: %w", err)
		}
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO provisioning_steps (id, project_id, step_name, status, completed_at, error_message, error_details, created_at)
		VALUES ($1, $2, $3, 'failed', now(), $4, $5, now())
		ON CONFLICT (project_id, step_name) DO UPDATE SET
			status = 'failed',
			completed_at = now(),
			error_message = EXCLUDED.error_message,
			error_details = EXCLUDED.error_details
		RETURNING `+stepColumns,
		platform.NewID(), projectID, stepName, errorMessage, detailsJSON,
	)
	step, err := scanStep(row)
	if err != nil {
		return nil, fmt.Errorf("mark step %s/%s failed: %w", projectID, stepName, err)
	}
	return step, nil
}

// ResetForRetry atomically moves a step back to pending for a new attempt:
// retry_count is incremented and the error fields and timestamps cleared.
// Returns the new retry count.
func (s *ProvisioningStepService) ResetForRetry(ctx context.Context, projectID, stepName string) (int, error) {
	var retryCount int
	err := s.db.QueryRow(ctx, `
		UPDATE provisioning_steps SET
			status = 'pending',
			retry_count = retry_count + 1,
			error_message = NULL,
			error_details = NULL,
			started_at = NULL,
			completed_at = NULL
		WHERE project_id = $1 AND step_name = $2
		RETURNING retry_count`,
		projectID, stepName,
	).Scan(&retryCount)
	if err != nil {
		return 0, fmt.Errorf("reset step %s/%s for retry: %w", projectID, stepName, err)
	}
	return retryCount, nil
}

// ListByProject returns all persisted step rows for a project, ordered by
// creation time.
func (s *ProvisioningStepService) ListByProject(ctx context.Context, projectID string) ([]model.ProvisioningStep, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+stepColumns+` FROM provisioning_steps WHERE project_id = $1 ORDER BY created_at`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list provisioning steps for project %s: %w", projectID, err)
	}
	defer rows.Close()

	var steps []model.ProvisioningStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provisioning step: %w", err)
		}
		steps = append(steps, *step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate provisioning steps: %w", err)
	}
	return steps, nil
}

// AllCompleted reports whether every persisted step for the project is
// success or skipped. Computed by aggregate query, not derived from any
// single step's in-memory state.
func (s *ProvisioningStepService) AllCompleted(ctx context.Context, projectID string) (bool, error) {
	var remaining int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM provisioning_steps WHERE project_id = $1 AND status NOT IN ('success', 'skipped')`,
		projectID,
	).Scan(&remaining)
	if err != nil {
		return false, fmt.Errorf("count incomplete steps for project %s: %w", projectID, err)
	}
	return remaining == 0, nil
}
