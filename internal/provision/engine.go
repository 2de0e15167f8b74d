package provision

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/nimbuslabs/nimbus/internal/core"
	"github.com/nimbuslabs/nimbus/internal/metrics"
	"github.com/nimbuslabs/nimbus/internal/model"
)

// Engine drives provisioning step execution. It owns every transition of the
// step state machine: handlers produce results, the engine persists them.
// A step run is pending -> running -> success|failed; retries move a failed
// step back to pending with an incremented retry count before re-running it.
type Engine struct {
	projects *core.ProjectService
	steps    *core.ProvisioningStepService
	registry *Registry
	logger   zerolog.Logger
}

func NewEngine(projects *core.ProjectService, steps *core.ProvisioningStepService, registry *Registry, logger zerolog.Logger) *Engine {
	return &Engine{
		projects: projects,
		steps:    steps,
		registry: registry,
		logger:   logger.With().Str("component", "provision-engine").Logger(),
	}
}

// RunStep executes a single provisioning step for a project using the
// registered handler. Unknown step names and missing projects fail before any
// row is written. Every terminal state is persisted before the outcome is
// returned, so a crash after persistence never loses a transition.
func (e *Engine) RunStep(ctx context.Context, projectID, stepName string) (*model.StepRunOutcome, error) {
	return e.run(ctx, projectID, stepName, e.registry.resolve(stepName))
}

// RunStepWithHandler executes a step with an explicit handler, bypassing the
// registry. Used by callers that need to substitute behavior for one run.
func (e *Engine) RunStepWithHandler(ctx context.Context, projectID, stepName string, handler Handler) (*model.StepRunOutcome, error) {
	return e.run(ctx, projectID, stepName, handler)
}

func (e *Engine) run(ctx context.Context, projectID, stepName string, handler Handler) (*model.StepRunOutcome, error) {
	def, ok := GetStep(stepName)
	if !ok {
		return unpersistedFailure(projectID, stepName, &StepError{
			Type:    ErrorTypeValidation,
			Message: "unknown provisioning step",
			Context: map[string]any{"projectId": projectID, "stepName": stepName},
		}), nil
	}

	if _, err := e.projects.GetByID(ctx, projectID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return unpersistedFailure(projectID, stepName, NewNotFoundError("project not found", map[string]any{
				"projectId": projectID,
				"stepName":  stepName,
			})), nil
		}
		return nil, err
	}

	if _, err := e.steps.MarkRunning(ctx, projectID, stepName); err != nil {
		return nil, err
	}
	e.logger.Info().Str("project_id", projectID).Str("step", stepName).Msg("step started")

	started := time.Now()
	result, handlerErr := handler(ctx, projectID)
	elapsed := time.Since(started)

	if handlerErr != nil {
		result = failure(normalizeHandlerError(handlerErr, projectID, def))
	}

	var (
		step *model.ProvisioningStep
		err  error
	)
	if result.Success {
		step, err = e.steps.MarkSuccess(ctx, projectID, stepName)
	} else {
		step, err = e.steps.MarkFailed(ctx, projectID, stepName, result.Error, result.ErrorDetails)
	}
	if err != nil {
		return nil, err
	}

	metrics.ObserveStepRun(stepName, step.Status, elapsed)
	e.logger.Info().
		Str("project_id", projectID).
		Str("step", stepName).
		Str("status", step.Status).
		Dur("elapsed", elapsed).
		Msg("step finished")

	outcome := outcomeFromStep(step)
	outcome.Data = result.Data
	return outcome, nil
}

// RetryStep re-runs a previously failed step. The step name is validated
// against the catalog before the row is loaded, succeeded steps are never
// re-executed, and a step at its retry ceiling fails permanently with
// MaxRetriesExceededError instead of running again.
func (e *Engine) RetryStep(ctx context.Context, projectID, stepName string) (*model.StepRunOutcome, error) {
	def, ok := GetStep(stepName)
	if !ok {
		return unpersistedFailure(projectID, stepName, &StepError{
			Type:    ErrorTypeValidation,
			Message: "unknown provisioning step",
			Context: map[string]any{"projectId": projectID, "stepName": stepName},
		}), nil
	}

	step, err := e.steps.Get(ctx, projectID, stepName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return unpersistedFailure(projectID, stepName, NewNotFoundError("provisioning step has never run", map[string]any{
				"projectId": projectID,
				"stepName":  stepName,
			})), nil
		}
		return nil, err
	}

	if step.Status == model.StepStatusSuccess {
		e.logger.Info().Str("project_id", projectID).Str("step", stepName).Msg("retry requested for succeeded step, nothing to do")
		return outcomeFromStep(step), nil
	}

	if !IsRetryable(stepName, step.RetryCount) {
		retryErr := NewMaxRetriesExceededError(step.RetryCount, def.MaxRetries)
		failed, err := e.steps.MarkFailed(ctx, projectID, stepName, retryErr.Message, retryErr.Details())
		if err != nil {
			return nil, err
		}
		outcome := outcomeFromStep(failed)
		outcome.MaxRetriesExceeded = true
		return outcome, nil
	}

	retryCount, err := e.steps.ResetForRetry(ctx, projectID, stepName)
	if err != nil {
		return nil, err
	}
	e.logger.Info().Str("project_id", projectID).Str("step", stepName).Int("retry_count", retryCount).Msg("step reset for retry")

	outcome, err := e.run(ctx, projectID, stepName, e.registry.resolve(stepName))
	if err != nil {
		return nil, err
	}
	outcome.RetryCount = retryCount
	if outcome.Status == model.StepStatusFailed && !IsRetryable(stepName, retryCount) {
		outcome.MaxRetriesExceeded = true
	}
	return outcome, nil
}

// normalizeHandlerError converts an unexpected handler error into the
// structured failure form. Classified StepErrors keep their taxonomy tag;
// everything else is tagged InternalError. The step identity is folded into
// the context so the persisted row is self-describing.
func normalizeHandlerError(err error, projectID string, def StepDefinition) *StepError {
	stepErr := &StepError{Type: ErrorTypeInternal, Message: err.Error()}
	var classified *StepError
	if errors.As(err, &classified) {
		stepErr = &StepError{Type: classified.Type, Message: classified.Message, Context: classified.Context}
	}

	context := map[string]any{
		"projectId":       projectID,
		"stepName":        def.Name,
		"stepDescription": def.Description,
		"stepOrder":       def.Order,
	}
	for k, v := range stepErr.Context {
		context[k] = v
	}
	stepErr.Context = context
	return stepErr
}

// unpersistedFailure builds a failed outcome for preconditions that are
// rejected before any row exists, e.g. unknown step names.
func unpersistedFailure(projectID, stepName string, err *StepError) *model.StepRunOutcome {
	return &model.StepRunOutcome{
		ProjectID:    projectID,
		StepName:     stepName,
		Status:       model.StepStatusFailed,
		ErrorMessage: err.Message,
		ErrorDetails: err.Details(),
	}
}

func outcomeFromStep(step *model.ProvisioningStep) *model.StepRunOutcome {
	return &model.StepRunOutcome{
		ProjectID:    step.ProjectID,
		StepName:     step.StepName,
		Status:       step.Status,
		StartedAt:    step.StartedAt,
		CompletedAt:  step.CompletedAt,
		ErrorMessage: step.ErrorMessage,
		ErrorDetails: step.ErrorDetails,
		RetryCount:   step.RetryCount,
	}
}
