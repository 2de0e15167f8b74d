package activity

import (
	"context"

	"github.com/nimbuslabs/nimbus/internal/model"
	"github.com/nimbuslabs/nimbus/internal/provision"
)

// StepParams identifies one provisioning step execution.
type StepParams struct {
	ProjectID string
	StepName  string
}

// Provision contains the activities that drive the step engine. All state
// transitions are persisted by the engine before the activity returns, so a
// worker crash never loses a terminal state.
type Provision struct {
	engine *provision.Engine
}

func NewProvision(engine *provision.Engine) *Provision {
	return &Provision{engine: engine}
}

// RunProvisioningStep executes one step and returns the persisted outcome.
// Step failures are reported in the outcome, not as activity errors; only
// infrastructure faults (store unreachable) error the activity.
func (a *Provision) RunProvisioningStep(ctx context.Context, params StepParams) (*model.StepRunOutcome, error) {
	return a.engine.RunStep(ctx, params.ProjectID, params.StepName)
}

// RetryProvisioningStep resets a failed step and re-runs it.
func (a *Provision) RetryProvisioningStep(ctx context.Context, params StepParams) (*model.StepRunOutcome, error) {
	return a.engine.RetryStep(ctx, params.ProjectID, params.StepName)
}
