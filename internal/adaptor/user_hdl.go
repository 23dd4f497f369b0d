package adaptor

import (
	"encoding/json"
	"errors"
	"net/http"

	"isp-portal/internal/dto/request"
	"isp-portal/internal/usecase"
	"isp-portal/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type UserHandler struct {
	service usecase.UserService
	log     *zap.Logger
}

func NewUserHandler(service usecase.UserService, log *zap.Logger) *UserHandler {
	return &UserHandler{
		service: service,
		log:     log.With(zap.String("handler", "user")),
	}
}

// GetProfile handles GET /api/user/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := utils.GetPrincipal(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	profile, err := h.service.GetProfile(r.Context(), principal.UserID)
	if err != nil {
		h.handleServiceError(w, err, "get profile")
		return
	}

	utils.ResponseSuccess(w, "Profile retrieved", profile)
}

// ListOperators handles GET /api/admin/users
func (h *UserHandler) ListOperators(w http.ResponseWriter, r *http.Request) {
	page, perPage := utils.PageParams(r)

	res, err := h.service.ListOperators(r.Context(), page, perPage)
	if err != nil {
		h.handleServiceError(w, err, "list operators")
		return
	}

	utils.ResponseSuccess(w, "Operators retrieved", res)
}

// CreateOperator handles POST /api/admin/users
func (h *UserHandler) CreateOperator(w http.ResponseWriter, r *http.Request) {
	var req request.CreateOperatorRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	user, err := h.service.CreateOperator(r.Context(), &req)
	if err != nil {
		h.handleServiceError(w, err, "create operator")
		return
	}

	utils.ResponseCreated(w, "Operator created", user)
}

// DeleteOperator handles DELETE /api/admin/users/{id}
func (h *UserHandler) DeleteOperator(w http.ResponseWriter, r *http.Request) {
	principal, ok := utils.GetPrincipal(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	userID, err := utils.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid user ID", nil)
		return
	}

	if err := h.service.DeleteOperator(r.Context(), userID, principal); err != nil {
		h.handleServiceError(w, err, "delete operator")
		return
	}

	utils.ResponseSuccess(w, "Operator deleted", nil)
}

func (h *UserHandler) handleServiceError(w http.ResponseWriter, err error, operation string) {
	if verr, details, ok := asValidation(err); ok {
		h.log.Warn(operation+" validation failed", zap.String("code", verr.Code))
		utils.ResponseBadRequest(w, verr.Message, details)
		return
	}

	switch {
	case errors.Is(err, usecase.ErrUserNotFound):
		h.log.Warn(operation+" failed - not found", zap.Error(err))
		utils.ResponseNotFound(w, err.Error())

	case errors.Is(err, usecase.ErrUserExists):
		h.log.Warn(operation+" failed - already exists", zap.Error(err))
		utils.ResponseConflict(w, err.Error())

	case errors.Is(err, usecase.ErrCannotDeleteMe):
		h.log.Warn(operation+" failed - self delete", zap.Error(err))
		utils.ResponseForbidden(w, err.Error())

	default:
		h.log.Error("Failed to "+operation, zap.Error(err), zap.String("operation", operation))
		utils.ResponseInternalError(w, "Internal server error")
	}
}
