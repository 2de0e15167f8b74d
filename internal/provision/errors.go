package provision

import (
	"github.com/nimbuslabs/nimbus/internal/model"
)

// Error taxonomy tags persisted in error_details.error_type. Failures are
// classified by tag, not by Go error type, so the persisted rows stay
// meaningful to API consumers.
const (
	ErrorTypeNotFound           = "NotFoundError"
	ErrorTypeValidation         = "ValidationError"
	ErrorTypeConfiguration      = "ConfigurationError"
	ErrorTypeService            = "ServiceError"
	ErrorTypeConnection         = "ConnectionError"
	ErrorTypeServiceHealthCheck = "ServiceHealthCheckError"
	ErrorTypeMaxRetriesExceeded = "MaxRetriesExceededError"
	ErrorTypeInternal           = "InternalError"
)

// StepError is a classified provisioning failure. It is used both as a
// returned error (engine preconditions) and as the payload of a structured
// handler failure result.
type StepError struct {
	Type    string
	Message string
	Context map[string]any
}

func (e *StepError) Error() string {
	return e.Message
}

// Details converts the error into the persisted structured form.
func (e *StepError) Details() *model.ErrorDetails {
	return &model.ErrorDetails{
		ErrorType: e.Type,
		Context:   e.Context,
	}
}

func NewNotFoundError(message string, context map[string]any) *StepError {
	return &StepError{Type: ErrorTypeNotFound, Message: message, Context: context}
}

func NewValidationError(message string, context map[string]any) *StepError {
	return &StepError{Type: ErrorTypeValidation, Message: message, Context: context}
}

func NewConfigurationError(message string, context map[string]any) *StepError {
	return &StepError{Type: ErrorTypeConfiguration, Message: message, Context: context}
}

func NewServiceError(message string, context map[string]any) *StepError {
	return &StepError{Type: ErrorTypeService, Message: message, Context: context}
}

func NewMaxRetriesExceededError(currentRetryCount, maxRetries int) *StepError {
	return &StepError{
		Type:    ErrorTypeMaxRetriesExceeded,
		Message: "maximum retries exceeded",
		Context: map[string]any{
			"currentRetryCount": currentRetryCount,
			"maxRetries":        maxRetries,
		},
	}
}

// failure builds the structured handler result for an expected failure.
// Handlers return these instead of Go errors; only unexpected faults
// propagate as errors, and the engine normalizes those at its boundary.
func failure(err *StepError) *model.StepResult {
	return &model.StepResult{
		Success:      false,
		Error:        err.Message,
		ErrorDetails: err.Details(),
	}
}

func success(data map[string]any) *model.StepResult {
	return &model.StepResult{Success: true, Data: data}
}
