package adaptor

import (
	"errors"
	"net/http"
	"strings"

	"isp-portal/internal/usecase"
	"isp-portal/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type TaskHandler struct {
	service usecase.TaskService
	log     *zap.Logger
}

func NewTaskHandler(service usecase.TaskService, log *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service: service,
		log:     log.With(zap.String("handler", "task")),
	}
}

// List handles GET /api/admin/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := utils.PageParams(r)
	status := strings.ToUpper(r.URL.Query().Get("status"))

	res, err := h.service.ListTasks(r.Context(), status, page, perPage)
	if err != nil {
		h.handleServiceError(w, err, "list tasks")
		return
	}

	utils.ResponseSuccess(w, "Tasks retrieved", res)
}

// Retry handles POST /api/admin/tasks/{id}/retry
func (h *TaskHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid task ID", nil)
		return
	}

	res, err := h.service.RetryTask(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err, "retry task")
		return
	}

	utils.ResponseSuccess(w, "Task rescheduled", res)
}

func (h *TaskHandler) handleServiceError(w http.ResponseWriter, err error, operation string) {
	if verr, details, ok := asValidation(err); ok {
		utils.ResponseBadRequest(w, verr.Message, details)
		return
	}

	switch {
	case errors.Is(err, usecase.ErrTaskNotFound):
		h.log.Warn(operation+" failed - not found", zap.Error(err))
		utils.ResponseNotFound(w, err.Error())

	case errors.Is(err, usecase.ErrTaskNotFailed):
		utils.ResponseConflict(w, err.Error())

	default:
		h.log.Error("Failed to "+operation, zap.Error(err), zap.String("operation", operation))
		utils.ResponseInternalError(w, "Internal server error")
	}
}
