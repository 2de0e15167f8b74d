package provision

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nimbuslabs/nimbus/internal/model"
)

// ---------- RunStep ----------

func TestEngine_RunStep_UnknownStep(t *testing.T) {
	db := &mockDB{}
	engine := newTestEngine(db, map[string]Handler{})

	outcome, err := engine.RunStep(context.Background(), "test-project-1", "provision_coffee")
	require.NoError(t, err)
	assert.Equal(t, model.StepStatusFailed, outcome.Status)
	require.NotNil(t, outcome.ErrorDetails)
	assert.Equal(t, ErrorTypeValidation, outcome.ErrorDetails.ErrorType)
	// Rejected before any row exists.
	db.AssertNotCalled(t, "QueryRow", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_RunStep_ProjectNotFound(t *testing.T) {
	db := &mockDB{}
	engine := newTestEngine(db, map[string]Handler{})

	row := &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(row).Once()

	outcome, err := engine.RunStep(context.Background(), "missing-project", StepCreateTenantSchema)
	require.NoError(t, err)
	assert.Equal(t, model.StepStatusFailed, outcome.Status)
	require.NotNil(t, outcome.ErrorDetails)
	assert.Equal(t, ErrorTypeNotFound, outcome.ErrorDetails.ErrorType)
	assert.Equal(t, "missing-project", outcome.ErrorDetails.Context["projectId"])
	db.AssertExpectations(t)
}

func TestEngine_RunStep_Success(t *testing.T) {
	db := &mockDB{}
	engine := newTestEngine(db, map[string]Handler{})
	ctx := context.Background()

	projectRow := &mockRow{scanFunc: projectScanFunc("test-project-1", "acme", "dev")}
	runningRow := &mockRow{scanFunc: stepScanFunc("test-project-1", StepCreateTenantSchema, model.StepStatusRunning, 0, nil)}
	successRow := &mockRow{scanFunc: stepScanFunc("test-project-1", StepCreateTenantSchema, model.StepStatusSuccess, 0, nil)}
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(projectRow).Once()
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(runningRow).Once()
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(successRow).Once()

	handlerCalled := false
	handler := func(ctx context.Context, projectID string) (*model.StepResult, error) {
		handlerCalled = true
		assert.Equal(t, "test-project-1", projectID)
		return success(map[string]any{"schema": "tenant_acme"}), nil
	}

	outcome, err := engine.RunStepWithHandler(ctx, "test-project-1", StepCreateTenantSchema, handler)
	require.NoError(t, err)
	assert.True(t, handlerCalled)
	assert.Equal(t, model.StepStatusSuccess, outcome.Status)
	assert.Equal(t, "tenant_acme", outcome.Data["schema"])
	assert.Equal(t, 0, outcome.RetryCount)
	db.AssertExpectations(t)
}

func TestEngine_RunStep_StructuredFailurePersistedVerbatim(t *testing.T) {
	db := &mockDB{}
	engine := newTestEngine(db, map[string]Handler{})
	ctx := context.Background()

	var failedArgs []any
	projectRow := &mockRow{scanFunc: projectScanFunc("test-project-1", "acme", "dev")}
	runningRow := &mockRow{scanFunc: stepScanFunc("test-project-1", StepRegisterStorageService, model.StepStatusRunning, 0, nil)}
	failedRow := &mockRow{scanFunc: stepScanFunc("test-project-1", StepRegisterStorageService, model.StepStatusFailed, 0,
		[]byte(`{"error_type":"ConfigurationError"}`))}
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(projectRow).Once()
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(runningRow).Once()
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { failedArgs = args.Get(2).([]any) }).
		Return(failedRow).Once()

	handler := func(ctx context.Context, projectID string) (*model.StepResult, error) {
		return failure(NewConfigurationError("no storage credentials configured", map[string]any{
			"projectId": projectID,
		})), nil
	}

	outcome, err := engine.RunStepWithHandler(ctx, "test-project-1", StepRegisterStorageService, handler)
	require.NoError(t, err)
	assert.Equal(t, model.StepStatusFailed, outcome.Status)
	assert.Equal(t, "ConfigurationError", outcome.ErrorDetails.ErrorType)
	// The handler's message and details reach MarkFailed untouched.
	assert.Equal(t, "no storage credentials configured", failedArgs[3])
	assert.Contains(t, string(failedArgs[4].([]byte)), "ConfigurationError")
	db.AssertExpectations(t)
}

func TestEngine_RunStep_HandlerErrorNormalized(t *testing.T) {
	db := &mockDB{}
	engine := newTestEngine(db, map[string]Handler{})
	ctx := context.Background()

	var failedArgs []any
	projectRow := &mockRow{scanFunc: projectScanFunc("test-project-1", "acme", "dev")}
	runningRow := &mockRow{scanFunc: stepScanFunc("test-project-1", StepCreateTenantDatabase, model.StepStatusRunning, 0, nil)}
	failedRow := &mockRow{scanFunc: stepScanFunc("test-project-1", StepCreateTenantDatabase, model.StepStatusFailed, 0,
		[]byte(`{"error_type":"InternalError"}`))}
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(projectRow).Once()
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(runningRow).Once()
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { failedArgs = args.Get(2).([]any) }).
		Return(failedRow).Once()

	handler := func(ctx context.Context, projectID string) (*model.StepResult, error) {
		return nil, errors.New("unexpected driver fault")
	}

	outcome, err := engine.RunStepWithHandler(ctx, "test-project-1", StepCreateTenantDatabase, handler)
	require.NoError(t, err)
	assert.Equal(t, model.StepStatusFailed, outcome.Status)

	var details model.ErrorDetails
	require.NoError(t, json.Unmarshal(failedArgs[4].([]byte), &details))
	assert.Equal(t, ErrorTypeInternal, details.ErrorType)
	// Step identity is folded into the persisted context.
	assert.Equal(t, StepCreateTenantDatabase, details.Context["stepName"])
	assert.Equal(t, float64(2), details.Context["stepOrder"])
	assert.Equal(t, "unexpected driver fault", failedArgs[3])
	db.AssertExpectations(t)
}

func TestEngine_RunStep_ClassifiedHandlerErrorKeepsType(t *testing.T) {
	db := &mockDB{}
	engine := newTestEngine(db, map[string]Handler{})
	ctx := context.Background()

	var failedArgs []any
	projectRow := &mockRow{scanFunc: projectScanFunc("test-project-1", "acme", "dev")}
	runningRow := &mockRow{scanFunc: stepScanFunc("test-project-1", StepRegisterAuthService, model.StepStatusRunning, 0, nil)}
	failedRow := &mockRow{scanFunc: stepScanFunc("test-project-1", StepRegisterAuthService, model.StepStatusFailed, 0,
		[]byte(`{"error_type":"ServiceError"}`))}
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(projectRow).Once()
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(runningRow).Once()
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { failedArgs = args.Get(2).([]any) }).
		Return(failedRow).Once()

	handler := func(ctx context.Context, projectID string) (*model.StepResult, error) {
		return nil, NewServiceError("auth service rejected tenant creation", nil)
	}

	_, err := engine.RunStepWithHandler(ctx, "test-project-1", StepRegisterAuthService, handler)
	require.NoError(t, err)

	var details model.ErrorDetails
	require.NoError(t, json.Unmarshal(failedArgs[4].([]byte), &details))
	assert.Equal(t, ErrorTypeService, details.ErrorType)
	db.AssertExpectations(t)
}

// ---------- RetryStep ----------

func TestEngine_RetryStep_UnknownStep(t *testing.T) {
	db := &mockDB{}
	engine := newTestEngine(db, map[string]Handler{})

	outcome, err := engine.RetryStep(context.Background(), "test-project-1", "provision_coffee")
	require.NoError(t, err)
	assert.Equal(t, model.StepStatusFailed, outcome.Status)
	assert.Equal(t, ErrorTypeValidation, outcome.ErrorDetails.ErrorType)
	db.AssertNotCalled(t, "QueryRow", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_RetryStep_NeverRun(t *testing.T) {
	db := &mockDB{}
	engine := newTestEngine(db, map[string]Handler{})

	row := &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(row).Once()

	outcome, err := engine.RetryStep(context.Background(), "test-project-1", StepVerifyServices)
	require.NoError(t, err)
	assert.Equal(t, model.StepStatusFailed, outcome.Status)
	assert.Equal(t, ErrorTypeNotFound, outcome.ErrorDetails.ErrorType)
	db.AssertExpectations(t)
}

func TestEngine_RetryStep_SucceededStepIsNoOp(t *testing.T) {
	db := &mockDB{}
	engine := newTestEngine(db, map[string]Handler{})

	stepRow := &mockRow{scanFunc: stepScanFunc("test-project-1", StepGenerateAPIKeys, model.StepStatusSuccess, 1, nil)}
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(stepRow).Once()

	outcome, err := engine.RetryStep(context.Background(), "test-project-1", StepGenerateAPIKeys)
	require.NoError(t, err)
	assert.Equal(t, model.StepStatusSuccess, outcome.Status)
	assert.Equal(t, 1, outcome.RetryCount)
	assert.False(t, outcome.MaxRetriesExceeded)
	// Exactly one query: the handler never ran and nothing was reset.
	db.AssertNumberOfCalls(t, "QueryRow", 1)
	db.AssertExpectations(t)
}

func TestEngine_RetryStep_ExceedsCeiling(t *testing.T) {
	db := &mockDB{}
	engine := newTestEngine(db, map[string]Handler{})
	ctx := context.Background()

	var failedArgs []any
	stepRow := &mockRow{scanFunc: stepScanFunc("test-project-1", StepCreateTenantSchema, model.StepStatusFailed, 3, nil)}
	failedRow := &mockRow{scanFunc: stepScanFunc("test-project-1", StepCreateTenantSchema, model.StepStatusFailed, 3,
		[]byte(`{"error_type":"MaxRetriesExceededError","context":{"currentRetryCount":3,"maxRetries":3}}`))}
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(stepRow).Once()
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { failedArgs = args.Get(2).([]any) }).
		Return(failedRow).Once()

	outcome, err := engine.RetryStep(ctx, "test-project-1", StepCreateTenantSchema)
	require.NoError(t, err)
	assert.Equal(t, model.StepStatusFailed, outcome.Status)
	assert.True(t, outcome.MaxRetriesExceeded)
	assert.Equal(t, ErrorTypeMaxRetriesExceeded, outcome.ErrorDetails.ErrorType)
	// Retry count is not incremented past the ceiling.
	assert.Equal(t, 3, outcome.RetryCount)

	var details model.ErrorDetails
	require.NoError(t, json.Unmarshal(failedArgs[4].([]byte), &details))
	assert.Equal(t, float64(3), details.Context["maxRetries"])
	db.AssertExpectations(t)
}

func TestEngine_RetryStep_ResetsAndReruns(t *testing.T) {
	db := &mockDB{}
	handlerCalls := 0
	engine := newTestEngine(db, map[string]Handler{
		StepRegisterAuthService: func(ctx context.Context, projectID string) (*model.StepResult, error) {
			handlerCalls++
			return success(map[string]any{"registered": true}), nil
		},
	})
	ctx := context.Background()

	stepRow := &mockRow{scanFunc: stepScanFunc("test-project-1", StepRegisterAuthService, model.StepStatusFailed, 1, nil)}
	resetRow := &mockRow{scanFunc: intScanFunc(2)}
	projectRow := &mockRow{scanFunc: projectScanFunc("test-project-1", "acme", "dev")}
	runningRow := &mockRow{scanFunc: stepScanFunc("test-project-1", StepRegisterAuthService, model.StepStatusRunning, 2, nil)}
	successRow := &mockRow{scanFunc: stepScanFunc("test-project-1", StepRegisterAuthService, model.StepStatusSuccess, 2, nil)}
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(stepRow).Once()
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(resetRow).Once()
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(projectRow).Once()
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(runningRow).Once()
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(successRow).Once()

	outcome, err := engine.RetryStep(ctx, "test-project-1", StepRegisterAuthService)
	require.NoError(t, err)
	assert.Equal(t, 1, handlerCalls)
	assert.Equal(t, model.StepStatusSuccess, outcome.Status)
	assert.Equal(t, 2, outcome.RetryCount)
	assert.False(t, outcome.MaxRetriesExceeded)
	assert.Equal(t, true, outcome.Data["registered"])
	db.AssertExpectations(t)
}

func TestEngine_RetryStep_FailureAtCeilingFlagsExceeded(t *testing.T) {
	db := &mockDB{}
	engine := newTestEngine(db, map[string]Handler{
		StepCreateTenantSchema: func(ctx context.Context, projectID string) (*model.StepResult, error) {
			return failure(NewServiceError("still broken", nil)), nil
		},
	})
	ctx := context.Background()

	// Third and final permitted retry fails again: the outcome flags the
	// exhausted ceiling so callers stop retrying.
	stepRow := &mockRow{scanFunc: stepScanFunc("test-project-1", StepCreateTenantSchema, model.StepStatusFailed, 2, nil)}
	resetRow := &mockRow{scanFunc: intScanFunc(3)}
	projectRow := &mockRow{scanFunc: projectScanFunc("test-project-1", "acme", "dev")}
	runningRow := &mockRow{scanFunc: stepScanFunc("test-project-1", StepCreateTenantSchema, model.StepStatusRunning, 3, nil)}
	failedRow := &mockRow{scanFunc: stepScanFunc("test-project-1", StepCreateTenantSchema, model.StepStatusFailed, 3,
		[]byte(`{"error_type":"ServiceError"}`))}
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(stepRow).Once()
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(resetRow).Once()
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(projectRow).Once()
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(runningRow).Once()
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(failedRow).Once()

	outcome, err := engine.RetryStep(ctx, "test-project-1", StepCreateTenantSchema)
	require.NoError(t, err)
	assert.Equal(t, model.StepStatusFailed, outcome.Status)
	assert.Equal(t, 3, outcome.RetryCount)
	assert.True(t, outcome.MaxRetriesExceeded)
	db.AssertExpectations(t)
}
