package adaptor

import (
	"encoding/json"
	"errors"
	"net/http"

	"isp-portal/internal/dto/request"
	"isp-portal/internal/usecase"
	"isp-portal/pkg/utils"

	"go.uber.org/zap"
)

type AuthHandler struct {
	service usecase.AuthService
	log     *zap.Logger
}

func NewAuthHandler(service usecase.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		log:     log.With(zap.String("handler", "auth")),
	}
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req request.LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	res, err := h.service.Login(r.Context(), &req, usecase.LoginMeta{
		UserAgent: r.UserAgent(),
		IPAddress: requestIP(r),
	})
	if err != nil {
		h.handleServiceError(w, err, "login")
		return
	}

	utils.ResponseSuccess(w, "Login successful", res)
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := utils.GetPrincipal(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	if err := h.service.Logout(r.Context(), principal); err != nil {
		h.handleServiceError(w, err, "logout")
		return
	}

	utils.ResponseSuccess(w, "Logout successful", nil)
}

func (h *AuthHandler) handleServiceError(w http.ResponseWriter, err error, operation string) {
	if verr, details, ok := asValidation(err); ok {
		h.log.Warn(operation+" validation failed", zap.String("code", verr.Code))
		utils.ResponseBadRequest(w, verr.Message, details)
		return
	}

	switch {
	case errors.Is(err, usecase.ErrInvalidCredentials),
		errors.Is(err, usecase.ErrUnauthorized):
		h.log.Warn(operation+" failed - invalid credentials", zap.Error(err))
		utils.ResponseUnauthorized(w, err.Error())

	case errors.Is(err, usecase.ErrAccountInactive):
		h.log.Warn(operation+" failed - account inactive", zap.Error(err))
		utils.ResponseForbidden(w, err.Error())

	default:
		h.log.Error("Failed to "+operation, zap.Error(err), zap.String("operation", operation))
		utils.ResponseInternalError(w, "Internal server error")
	}
}
