package provision

import (
	"context"
	"fmt"

	"github.com/nimbuslabs/nimbus/internal/model"
)

// Handler executes one provisioning step's side effects. Handlers are
// idempotent: re-running a handler against the same project must not
// duplicate side effects. Expected business failures are returned as a
// structured result; only unexpected faults return an error.
type Handler func(ctx context.Context, projectID string) (*model.StepResult, error)

// UnknownStepError is returned by GetHandler for a step name with no
// registered handler.
type UnknownStepError struct {
	StepName string
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("no handler registered for step %q", e.StepName)
}

// Registry maps catalog step names to their handlers. The table is sealed at
// construction; entries cannot be added or replaced afterwards.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds the sealed step-name to handler table.
func NewRegistry(h *Handlers) *Registry {
	return &Registry{
		handlers: map[string]Handler{
			StepCreateTenantSchema:      h.CreateTenantSchema,
			StepCreateTenantDatabase:    h.CreateTenantDatabase,
			StepRegisterAuthService:     h.RegisterAuthService,
			StepRegisterRealtimeService: h.RegisterRealtimeService,
			StepRegisterStorageService:  h.RegisterStorageService,
			StepGenerateAPIKeys:         h.GenerateAPIKeys,
			StepVerifyServices:          h.VerifyServices,
		},
	}
}

// GetHandler returns the handler for a step name, or UnknownStepError.
func (r *Registry) GetHandler(stepName string) (Handler, error) {
	h, ok := r.handlers[stepName]
	if !ok {
		return nil, &UnknownStepError{StepName: stepName}
	}
	return h, nil
}

// HasHandler reports whether a dedicated handler exists for the step name.
func (r *Registry) HasHandler(stepName string) bool {
	_, ok := r.handlers[stepName]
	return ok
}

// resolve returns the handler for a step name, substituting the default
// success handler when none is registered. The fallback exists purely for
// forward/backward compatibility while new catalog steps are rolled out.
func (r *Registry) resolve(stepName string) Handler {
	if h, ok := r.handlers[stepName]; ok {
		return h
	}
	return defaultSuccessHandler
}

// defaultSuccessHandler is a stand-in for steps without a dedicated handler
// yet. It performs no provisioning action and must never be registered for a
// real step.
func defaultSuccessHandler(ctx context.Context, projectID string) (*model.StepResult, error) {
	return success(map[string]any{"handler": "default"}), nil
}
