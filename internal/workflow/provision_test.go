package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/nimbuslabs/nimbus/internal/activity"
	"github.com/nimbuslabs/nimbus/internal/model"
	"github.com/nimbuslabs/nimbus/internal/provision"
)

func successOutcome(projectID, stepName string, retryCount int) *model.StepRunOutcome {
	return &model.StepRunOutcome{
		ProjectID:  projectID,
		StepName:   stepName,
		Status:     model.StepStatusSuccess,
		RetryCount: retryCount,
	}
}

func failedOutcome(projectID, stepName string, retryCount int, exceeded bool) *model.StepRunOutcome {
	return &model.StepRunOutcome{
		ProjectID:          projectID,
		StepName:           stepName,
		Status:             model.StepStatusFailed,
		ErrorMessage:       "handler failure",
		RetryCount:         retryCount,
		MaxRetriesExceeded: exceeded,
	}
}

// ---------- ProvisionProjectWorkflow ----------

type ProvisionProjectWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *ProvisionProjectWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.env.RegisterActivity(&activity.Provision{})
}

func (s *ProvisionProjectWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *ProvisionProjectWorkflowTestSuite) TestAllStepsSucceed() {
	projectID := "test-project-1"

	for _, def := range provision.OrderedSteps() {
		s.env.OnActivity("RunProvisioningStep", mock.Anything, activity.StepParams{
			ProjectID: projectID, StepName: def.Name,
		}).Return(successOutcome(projectID, def.Name, 0), nil).Once()
	}

	s.env.ExecuteWorkflow(ProvisionProjectWorkflow, projectID)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *ProvisionProjectWorkflowTestSuite) TestFailedStepIsRetriedThenChainContinues() {
	projectID := "test-project-2"
	steps := provision.OrderedSteps()
	flaky := steps[2].Name // register_auth_service

	for _, def := range steps[:2] {
		s.env.OnActivity("RunProvisioningStep", mock.Anything, activity.StepParams{
			ProjectID: projectID, StepName: def.Name,
		}).Return(successOutcome(projectID, def.Name, 0), nil).Once()
	}

	// First run fails, the engine-counted retry succeeds.
	s.env.OnActivity("RunProvisioningStep", mock.Anything, activity.StepParams{
		ProjectID: projectID, StepName: flaky,
	}).Return(failedOutcome(projectID, flaky, 0, false), nil).Once()
	s.env.OnActivity("RetryProvisioningStep", mock.Anything, activity.StepParams{
		ProjectID: projectID, StepName: flaky,
	}).Return(successOutcome(projectID, flaky, 1), nil).Once()

	for _, def := range steps[3:] {
		s.env.OnActivity("RunProvisioningStep", mock.Anything, activity.StepParams{
			ProjectID: projectID, StepName: def.Name,
		}).Return(successOutcome(projectID, def.Name, 0), nil).Once()
	}

	s.env.ExecuteWorkflow(ProvisionProjectWorkflow, projectID)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *ProvisionProjectWorkflowTestSuite) TestChainStopsWhenRetriesExhausted() {
	projectID := "test-project-3"
	first := provision.OrderedSteps()[0]

	s.env.OnActivity("RunProvisioningStep", mock.Anything, activity.StepParams{
		ProjectID: projectID, StepName: first.Name,
	}).Return(failedOutcome(projectID, first.Name, 0, false), nil).Once()

	// Retries keep failing until the engine reports the exhausted ceiling.
	s.env.OnActivity("RetryProvisioningStep", mock.Anything, activity.StepParams{
		ProjectID: projectID, StepName: first.Name,
	}).Return(failedOutcome(projectID, first.Name, 1, false), nil).Once()
	s.env.OnActivity("RetryProvisioningStep", mock.Anything, activity.StepParams{
		ProjectID: projectID, StepName: first.Name,
	}).Return(failedOutcome(projectID, first.Name, 2, false), nil).Once()
	s.env.OnActivity("RetryProvisioningStep", mock.Anything, activity.StepParams{
		ProjectID: projectID, StepName: first.Name,
	}).Return(failedOutcome(projectID, first.Name, 3, true), nil).Once()

	s.env.ExecuteWorkflow(ProvisionProjectWorkflow, projectID)
	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
	// Later steps never ran.
	s.env.AssertNotCalled(s.T(), "RunProvisioningStep", mock.Anything, activity.StepParams{
		ProjectID: projectID, StepName: provision.StepCreateTenantDatabase,
	})
}

func (s *ProvisionProjectWorkflowTestSuite) TestActivityInfrastructureErrorFailsWorkflow() {
	projectID := "test-project-4"
	first := provision.OrderedSteps()[0]

	s.env.OnActivity("RunProvisioningStep", mock.Anything, activity.StepParams{
		ProjectID: projectID, StepName: first.Name,
	}).Return(nil, errors.New("core database unreachable"))

	s.env.ExecuteWorkflow(ProvisionProjectWorkflow, projectID)
	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

func TestProvisionProjectWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(ProvisionProjectWorkflowTestSuite))
}

// ---------- RunProjectStepWorkflow ----------

type RunProjectStepWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *RunProjectStepWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.env.RegisterActivity(&activity.Provision{})
}

func (s *RunProjectStepWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *RunProjectStepWorkflowTestSuite) TestRun() {
	cmd := model.StepCommand{ProjectID: "test-project-1", StepName: provision.StepGenerateAPIKeys}

	s.env.OnActivity("RunProvisioningStep", mock.Anything, activity.StepParams{
		ProjectID: cmd.ProjectID, StepName: cmd.StepName,
	}).Return(successOutcome(cmd.ProjectID, cmd.StepName, 0), nil).Once()

	s.env.ExecuteWorkflow(RunProjectStepWorkflow, cmd)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *RunProjectStepWorkflowTestSuite) TestRetryUsesRetryActivity() {
	cmd := model.StepCommand{ProjectID: "test-project-1", StepName: provision.StepVerifyServices, Retry: true}

	s.env.OnActivity("RetryProvisioningStep", mock.Anything, activity.StepParams{
		ProjectID: cmd.ProjectID, StepName: cmd.StepName,
	}).Return(successOutcome(cmd.ProjectID, cmd.StepName, 2), nil).Once()

	s.env.ExecuteWorkflow(RunProjectStepWorkflow, cmd)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *RunProjectStepWorkflowTestSuite) TestFailedStepErrorsWorkflow() {
	cmd := model.StepCommand{ProjectID: "test-project-1", StepName: provision.StepCreateTenantSchema}

	s.env.OnActivity("RunProvisioningStep", mock.Anything, activity.StepParams{
		ProjectID: cmd.ProjectID, StepName: cmd.StepName,
	}).Return(failedOutcome(cmd.ProjectID, cmd.StepName, 3, true), nil).Once()

	s.env.ExecuteWorkflow(RunProjectStepWorkflow, cmd)
	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

func TestRunProjectStepWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(RunProjectStepWorkflowTestSuite))
}
