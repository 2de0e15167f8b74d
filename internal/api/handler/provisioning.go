package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.temporal.io/api/serviceerror"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/nimbuslabs/nimbus/internal/api/request"
	"github.com/nimbuslabs/nimbus/internal/api/response"
	"github.com/nimbuslabs/nimbus/internal/core"
	"github.com/nimbuslabs/nimbus/internal/model"
	"github.com/nimbuslabs/nimbus/internal/provision"
)

type Provisioning struct {
	steps *core.ProvisioningStepService
	tc    temporalclient.Client
}

func NewProvisioning(steps *core.ProvisioningStepService, tc temporalclient.Client) *Provisioning {
	return &Provisioning{steps: steps, tc: tc}
}

// Catalog lists the step definitions in execution order.
func (h *Provisioning) Catalog(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, provision.OrderedSteps())
}

// Status returns the persisted step state for a project plus a completion
// summary.
func (h *Provisioning) Status(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	steps, err := h.steps.ListByProject(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	completed, err := h.steps.AllCompleted(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{
		"steps":         steps,
		"all_completed": completed,
	})
}

// RunStep enqueues execution of a single step for a project.
func (h *Provisioning) RunStep(w http.ResponseWriter, r *http.Request) {
	h.enqueueStep(w, r, false)
}

// RetryStep enqueues a retry of a previously failed step.
func (h *Provisioning) RetryStep(w http.ResponseWriter, r *http.Request) {
	h.enqueueStep(w, r, true)
}

// enqueueStep starts the single-step workflow under the project's workflow
// ID. A second enqueue while one is in flight is rejected with 409, which
// keeps concurrent retries of the same project serialized.
func (h *Provisioning) enqueueStep(w http.ResponseWriter, r *http.Request, retry bool) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	stepName := chi.URLParam(r, "stepName")
	if !provision.IsValidStepName(stepName) {
		response.WriteError(w, http.StatusBadRequest, "unknown provisioning step")
		return
	}

	cmd := model.StepCommand{ProjectID: id, StepName: stepName, Retry: retry}
	_, err = h.tc.ExecuteWorkflow(r.Context(), temporalclient.StartWorkflowOptions{
		ID:        model.ProvisionWorkflowID(id),
		TaskQueue: taskQueue,
	}, model.RunProjectStepWorkflowName, cmd)
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			response.WriteError(w, http.StatusConflict, "provisioning already in progress for project")
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusAccepted, map[string]any{
		"project_id": id,
		"step_name":  stepName,
		"retry":      retry,
	})
}
