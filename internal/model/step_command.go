package model

// Workflow and signal names shared between the API and the worker.
const (
	ProvisionProjectWorkflowName = "ProvisionProjectWorkflow"
	RunProjectStepWorkflowName   = "RunProjectStepWorkflow"
)

// StepCommand asks the worker to execute or retry one provisioning step.
type StepCommand struct {
	ProjectID string `json:"project_id"`
	StepName  string `json:"step_name"`
	Retry     bool   `json:"retry"`
}

// ProvisionWorkflowID builds the per-project workflow ID. All provisioning
// work for a project runs under this single ID, so concurrent runs and
// retries for the same project serialize instead of racing.
func ProvisionWorkflowID(projectID string) string {
	return "provision-project-" + projectID
}
