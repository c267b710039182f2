package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/solvenet/recaptcha-api/internal/api/shared"
	"github.com/solvenet/recaptcha-api/internal/domain"
	"github.com/solvenet/recaptcha-api/internal/proxy"
	"github.com/solvenet/recaptcha-api/internal/service"
	"github.com/solvenet/recaptcha-api/internal/store"
)

// defaultListLimit bounds the recent-task listing when the caller does
// not pass an explicit limit.
const defaultListLimit = 100

// TaskHandler handles task-related HTTP requests.
type TaskHandler struct {
	taskService *service.TaskService
	taskStore   store.TaskStore
	logger      *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(taskService *service.TaskService, taskStore store.TaskStore, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		taskStore:   taskStore,
		logger:      logger,
	}
}

// SubmitTask handles POST /recaptcha/in requests.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusUnprocessableEntity, "Validation error: siteKey and pageURL are required")
		return
	}

	var explicitProxy *domain.Proxy
	if req.Proxy != "" {
		parsed, err := proxy.Parse(req.Proxy)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusUnprocessableEntity, "Invalid proxy format")
			return
		}
		explicitProxy = parsed
	}

	taskID, err := h.taskService.Submit(r.Context(), req.SiteKey, req.PageURL, explicitProxy)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, SubmitTaskResponse{
		TaskID: taskID.String(),
		Status: domain.TaskStatusProcessing,
	})
}

// GetTaskResult handles GET /recaptcha/res?taskId= requests.
func (h *TaskHandler) GetTaskResult(w http.ResponseWriter, r *http.Request) {
	rawID := r.URL.Query().Get("taskId")
	if rawID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "taskId query parameter is required")
		return
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	snapshot, err := h.taskService.Query(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
			return
		}
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, snapshot)
}

// DeleteTask handles DELETE /tasks/{id} requests.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "id")

	id, err := uuid.Parse(rawID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	removed, err := h.taskService.Remove(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	if !removed {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, DeleteTaskResponse{
		Message: "Task deleted successfully",
	})
}

// ListTasks handles GET /tasks?limit=&status= requests.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	var status domain.TaskStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status = domain.TaskStatus(raw)
		switch status {
		case domain.TaskStatusProcessing, domain.TaskStatusReady, domain.TaskStatusError:
		default:
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid status filter")
			return
		}
	}

	tasks, err := h.taskStore.List(r.Context(), limit, status)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	summaries := make([]TaskSummary, 0, len(tasks))
	for _, task := range tasks {
		summaries = append(summaries, TaskSummary{
			TaskID:    task.ID.String(),
			SiteKey:   task.SiteKey,
			PageURL:   task.PageURL,
			Status:    task.Status,
			CreatedAt: task.CreatedAt,
			UpdatedAt: task.UpdatedAt,
		})
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ListTasksResponse{
		Tasks: summaries,
		Count: len(summaries),
	})
}
