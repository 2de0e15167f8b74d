package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/nimbuslabs/nimbus/internal/api/request"
	"github.com/nimbuslabs/nimbus/internal/api/response"
	"github.com/nimbuslabs/nimbus/internal/core"
	"github.com/nimbuslabs/nimbus/internal/model"
	"github.com/nimbuslabs/nimbus/internal/platform"
)

const taskQueue = "nimbus-tasks"

type Project struct {
	svc *core.ProjectService
	tc  temporalclient.Client
}

func NewProject(svc *core.ProjectService, tc temporalclient.Client) *Project {
	return &Project{svc: svc, tc: tc}
}

func (h *Project) List(w http.ResponseWriter, r *http.Request) {
	p := request.ParsePagination(r)
	status := r.URL.Query().Get("status")

	projects, hasMore, err := h.svc.List(r.Context(), p.Limit, p.Cursor, status)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	nextCursor := ""
	if hasMore && len(projects) > 0 {
		nextCursor = projects[len(projects)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, projects, nextCursor, hasMore)
}

// Create inserts the project in created status and kicks off the
// provisioning chain on the worker.
func (h *Project) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slug        string `json:"slug" validate:"required,slug"`
		Name        string `json:"name" validate:"required"`
		TenantID    string `json:"tenant_id" validate:"required"`
		Environment string `json:"environment" validate:"omitempty,oneof=dev staging prod"`
	}
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	env := req.Environment
	if env == "" {
		env = model.EnvDev
	}

	now := time.Now()
	project := &model.Project{
		ID:          platform.NewID(),
		Slug:        req.Slug,
		Name:        req.Name,
		TenantID:    req.TenantID,
		Environment: env,
		Status:      model.StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.svc.Create(r.Context(), project); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	_, err := h.tc.ExecuteWorkflow(r.Context(), temporalclient.StartWorkflowOptions{
		ID:        model.ProvisionWorkflowID(project.ID),
		TaskQueue: taskQueue,
	}, model.ProvisionProjectWorkflowName, project.ID)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusCreated, project)
}

func (h *Project) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	project, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, project)
}

// TransitionStatus moves a project between lifecycle states, subject to the
// transition table.
func (h *Project) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Status string `json:"status" validate:"required"`
	}
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	project, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	if !model.CanTransition(project.Status, req.Status) {
		response.WriteError(w, http.StatusConflict, "transition not permitted")
		return
	}

	if err := h.svc.TransitionStatus(r.Context(), id, project.Status, req.Status); err != nil {
		response.WriteError(w, http.StatusConflict, err.Error())
		return
	}

	project.Status = req.Status
	response.WriteJSON(w, http.StatusOK, project)
}

// Delete marks the project as deleting. Actual teardown is asynchronous.
func (h *Project) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	project, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	if err := h.svc.TransitionStatus(r.Context(), id, project.Status, model.StatusDeleting); err != nil {
		response.WriteError(w, http.StatusConflict, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
