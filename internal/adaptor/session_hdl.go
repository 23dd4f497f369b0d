package adaptor

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"isp-portal/internal/dto/request"
	"isp-portal/internal/usecase"
	"isp-portal/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type SessionHandler struct {
	service usecase.SessionService
	log     *zap.Logger
}

func NewSessionHandler(service usecase.SessionService, log *zap.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		log:     log.With(zap.String("handler", "session")),
	}
}

// decodeOptional decodes a JSON body that clients may omit entirely.
func decodeOptional(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Status handles GET /api/sessions/{token}
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetSessionStatus(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.handleServiceError(w, err, "get session status")
		return
	}

	utils.ResponseSuccess(w, "Session status retrieved", res)
}

// Heartbeat handles POST /api/sessions/{token}/heartbeat
func (h *SessionHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req request.HeartbeatRequest

	if err := decodeOptional(r, &req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	res, err := h.service.RecordHeartbeat(r.Context(), chi.URLParam(r, "token"), &req)
	if err != nil {
		h.handleServiceError(w, err, "record heartbeat")
		return
	}

	utils.ResponseSuccess(w, "Heartbeat recorded", res)
}

// Device handles PUT /api/sessions/{token}/device
func (h *SessionHandler) Device(w http.ResponseWriter, r *http.Request) {
	var req request.DeviceUpdateRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	res, err := h.service.UpdateDevice(r.Context(), chi.URLParam(r, "token"), &req)
	if err != nil {
		h.handleServiceError(w, err, "update device")
		return
	}

	utils.ResponseSuccess(w, "Device updated", res)
}

// Disconnect handles POST /api/sessions/{token}/disconnect
func (h *SessionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.RecordDisconnection(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.handleServiceError(w, err, "record disconnection")
		return
	}

	utils.ResponseSuccess(w, "Disconnection recorded. Reconnect any time before expiry.", res)
}

// ReconnectByToken handles POST /api/sessions/reconnect
func (h *SessionHandler) ReconnectByToken(w http.ResponseWriter, r *http.Request) {
	var req request.ReconnectByTokenRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = requestIP(r)
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	res, err := h.service.ReconnectByToken(r.Context(), &req)
	if err != nil {
		h.handleServiceError(w, err, "reconnect by token")
		return
	}

	utils.ResponseSuccess(w, "Reconnected", res)
}

// ReconnectByCode handles POST /api/vouchers/{code}/reconnect
func (h *SessionHandler) ReconnectByCode(w http.ResponseWriter, r *http.Request) {
	var req request.ReconnectRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = requestIP(r)
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	res, err := h.service.ReconnectByCode(r.Context(), voucherCode(r), &req)
	if err != nil {
		h.handleServiceError(w, err, "reconnect by code")
		return
	}

	utils.ResponseSuccess(w, "Reconnected", res)
}

// StatusByCode handles GET /api/vouchers/{code}/session
func (h *SessionHandler) StatusByCode(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetSessionStatusByCode(r.Context(), voucherCode(r))
	if err != nil {
		h.handleServiceError(w, err, "get session by voucher")
		return
	}

	utils.ResponseSuccess(w, "Session status retrieved", res)
}

// Terminate handles POST /api/admin/sessions/{token}/terminate
func (h *SessionHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	principal, ok := utils.GetPrincipal(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	res, err := h.service.TerminateSession(r.Context(), chi.URLParam(r, "token"), principal)
	if err != nil {
		h.handleServiceError(w, err, "terminate session")
		return
	}

	utils.ResponseSuccess(w, "Session terminated", res)
}

func (h *SessionHandler) handleServiceError(w http.ResponseWriter, err error, operation string) {
	if verr, details, ok := asValidation(err); ok {
		h.log.Warn(operation+" validation failed", zap.String("code", verr.Code))
		utils.ResponseBadRequest(w, verr.Message, details)
		return
	}

	switch {
	case errors.Is(err, usecase.ErrSessionNotFound),
		errors.Is(err, usecase.ErrVoucherNotFound):
		h.log.Warn(operation+" failed - not found", zap.Error(err))
		utils.ResponseNotFound(w, err.Error())

	case errors.Is(err, usecase.ErrSessionExpired),
		errors.Is(err, usecase.ErrSessionTerminated),
		errors.Is(err, usecase.ErrVoucherExpired),
		errors.Is(err, usecase.ErrVoucherCancelled):
		h.log.Warn(operation+" failed - session closed", zap.Error(err))
		utils.ResponseGone(w, err.Error(), nil)

	case errors.Is(err, usecase.ErrVoucherUsed):
		h.log.Warn(operation+" failed - other device", zap.Error(err))
		utils.ResponseConflict(w, err.Error())

	case errors.Is(err, usecase.ErrSessionBusy):
		h.log.Warn(operation+" failed - concurrent update", zap.Error(err))
		utils.ResponseConflict(w, err.Error())

	default:
		h.log.Error("Failed to "+operation, zap.Error(err), zap.String("operation", operation))
		utils.ResponseInternalError(w, "Internal server error")
	}
}
