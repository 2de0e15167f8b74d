package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/nimbuslabs/nimbus/internal/activity"
	"github.com/nimbuslabs/nimbus/internal/model"
	"github.com/nimbuslabs/nimbus/internal/provision"
)

// stepActivityCtx bounds each step execution. Temporal-level retries are
// limited to infrastructure faults; step-level retries are owned by the
// engine's retry counter, so a retried activity never skews the count.
func stepActivityCtx(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    3,
			InitialInterval:    2 * time.Second,
			MaximumInterval:    30 * time.Second,
			BackoffCoefficient: 2.0,
		},
	})
}

// ProvisionProjectWorkflow runs the full provisioning chain for a project.
// Steps execute strictly in catalog order; a failed step is retried up to
// its ceiling before the chain stops. The chain never proceeds past an
// unresolved failure.
func ProvisionProjectWorkflow(ctx workflow.Context, projectID string) error {
	logger := workflow.GetLogger(ctx)
	ctx = stepActivityCtx(ctx)

	for _, def := range provision.OrderedSteps() {
		outcome, err := executeStepWithRetries(ctx, projectID, def)
		if err != nil {
			return err
		}
		if outcome.Status != model.StepStatusSuccess && outcome.Status != model.StepStatusSkipped {
			return fmt.Errorf("provisioning stopped at step %s: %s", def.Name, outcome.ErrorMessage)
		}
		logger.Info("provisioning step completed", "project_id", projectID, "step", def.Name)
	}

	return nil
}

// executeStepWithRetries runs one step, then drives engine-counted retries
// until the step succeeds or its retry ceiling is exhausted.
func executeStepWithRetries(ctx workflow.Context, projectID string, def provision.StepDefinition) (*model.StepRunOutcome, error) {
	params := activity.StepParams{ProjectID: projectID, StepName: def.Name}

	var outcome model.StepRunOutcome
	if err := workflow.ExecuteActivity(ctx, "RunProvisioningStep", params).Get(ctx, &outcome); err != nil {
		return nil, err
	}

	for outcome.Status == model.StepStatusFailed && !outcome.MaxRetriesExceeded {
		if !def.Retryable || outcome.RetryCount >= def.MaxRetries {
			break
		}

		if err := workflow.Sleep(ctx, retryDelay(outcome.RetryCount)); err != nil {
			return nil, err
		}

		if err := workflow.ExecuteActivity(ctx, "RetryProvisioningStep", params).Get(ctx, &outcome); err != nil {
			return nil, err
		}
	}

	return &outcome, nil
}

// retryDelay backs off linearly between engine-counted retries.
func retryDelay(retryCount int) time.Duration {
	return time.Duration(retryCount+1) * 5 * time.Second
}

// RunProjectStepWorkflow executes or retries a single step. It runs under
// the same workflow ID as the full chain, so ad-hoc runs and retries for one
// project are serialized with each other and with initial provisioning.
func RunProjectStepWorkflow(ctx workflow.Context, cmd model.StepCommand) error {
	ctx = stepActivityCtx(ctx)

	activityName := "RunProvisioningStep"
	if cmd.Retry {
		activityName = "RetryProvisioningStep"
	}

	var outcome model.StepRunOutcome
	params := activity.StepParams{ProjectID: cmd.ProjectID, StepName: cmd.StepName}
	if err := workflow.ExecuteActivity(ctx, activityName, params).Get(ctx, &outcome); err != nil {
		return err
	}

	if outcome.Status == model.StepStatusFailed {
		return fmt.Errorf("step %s failed: %s", cmd.StepName, outcome.ErrorMessage)
	}
	return nil
}
