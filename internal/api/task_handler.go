package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/avelines/taskwatch/internal/api/shared"
	"github.com/avelines/taskwatch/internal/task"
)

// TaskService is the tracker surface the handler depends on.
type TaskService interface {
	Launch(ctx context.Context, entityID string, taskType task.Type, payload map[string]any) (task.Descriptor, error)
	ActiveTasks() []task.Descriptor
	StatusOf(entityID string, taskType task.Type) (task.Status, bool)
	ApplyStatuses(entities []task.StatusCarrier)
	Cancel(entityID string, taskType task.Type) bool
	CancelAll()
}

// TaskHandler serves the task-tracking endpoints.
type TaskHandler struct {
	service  TaskService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(service TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger.With("component", "task_handler"),
	}
}

// RegisterRoutes mounts the handler's routes on the router.
func (h *TaskHandler) RegisterRoutes(r chi.Router) {
	r.Get("/tasks", h.ListTasks)
	r.Post("/tasks", h.LaunchTask)
	r.Delete("/tasks", h.CancelAll)
	r.Delete("/tasks/{entityID}/{taskType}", h.CancelTask)
	r.Get("/entities/{entityID}/status", h.EntityStatus)
	r.Post("/entities/statuses", h.ApplyStatuses)
}

// ListTasks handles GET /tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	active := h.service.ActiveTasks()
	resp := TaskListResponse{Tasks: make([]TaskResponse, 0, len(active))}
	for _, d := range active {
		resp.Tasks = append(resp.Tasks, toTaskResponse(d))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// LaunchTask handles POST /tasks.
func (h *TaskHandler) LaunchTask(w http.ResponseWriter, r *http.Request) {
	var req LaunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "entity_id and task_type are required")
		return
	}

	d, err := h.service.Launch(r.Context(), req.EntityID, task.Type(req.TaskType), req.Payload)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, toTaskResponse(d))
}

// CancelTask handles DELETE /tasks/{entityID}/{taskType}.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")
	taskType := task.Type(chi.URLParam(r, "taskType"))

	if !h.service.Cancel(entityID, taskType) {
		shared.RespondWithError(w, r, http.StatusNotFound,
			"No active task for the entity and task type")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelAll handles DELETE /tasks.
func (h *TaskHandler) CancelAll(w http.ResponseWriter, r *http.Request) {
	h.service.CancelAll()
	w.WriteHeader(http.StatusNoContent)
}

// EntityStatus handles GET /entities/{entityID}/status, producing the
// projected indexing and quality-analysis statuses. Initialization shares
// the indexing slot, the way the content service reports it: a terminal
// initialization fills an empty slot, a still-active one overrides whatever
// an earlier indexing run left behind.
func (h *TaskHandler) EntityStatus(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")

	resp := EntityStatusResponse{EntityID: entityID}
	if status, ok := h.service.StatusOf(entityID, task.TypeIndexing); ok {
		resp.IndexingStatus = &status
	}
	if status, ok := h.service.StatusOf(entityID, task.TypeInitialization); ok {
		if resp.IndexingStatus == nil || !status.Terminal() {
			resp.IndexingStatus = &status
		}
	}
	if status, ok := h.service.StatusOf(entityID, task.TypeQualityAnalysis); ok {
		resp.QAStatus = &status
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// ApplyStatuses handles POST /entities/statuses: the caller sends batches of
// freshly fetched source and collection records and gets them back with
// tracked statuses overlaid wherever the tracker holds a more recent
// projection than the record's own timestamp.
func (h *TaskHandler) ApplyStatuses(w http.ResponseWriter, r *http.Request) {
	var req ApplyStatusesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	carriers := make([]task.StatusCarrier, 0, len(req.Sources)+len(req.Collections))
	for i := range req.Sources {
		carriers = append(carriers, &req.Sources[i])
	}
	for i := range req.Collections {
		carriers = append(carriers, &req.Collections[i])
	}
	h.service.ApplyStatuses(carriers)

	shared.RespondWithJSON(w, r, http.StatusOK, ApplyStatusesResponse{
		Sources:     req.Sources,
		Collections: req.Collections,
	})
}
