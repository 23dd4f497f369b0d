package adaptor

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"isp-portal/internal/dto/request"
	"isp-portal/internal/dto/response"
	"isp-portal/internal/usecase"
	"isp-portal/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type VoucherHandler struct {
	service usecase.VoucherService
	log     *zap.Logger
}

func NewVoucherHandler(service usecase.VoucherService, log *zap.Logger) *VoucherHandler {
	return &VoucherHandler{
		service: service,
		log:     log.With(zap.String("handler", "voucher")),
	}
}

func voucherCode(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "code")))
}

// Validate handles GET /api/vouchers/{code}/validate
func (h *VoucherHandler) Validate(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ValidateVoucher(r.Context(), voucherCode(r))
	if err != nil {
		h.handleServiceError(w, err, "validate voucher")
		return
	}

	switch res.State {
	case response.VoucherStateNotFound:
		utils.ResponseJSON(w, http.StatusNotFound, false, res.Message, res, nil)
	case response.VoucherStateExpired, response.VoucherStateCancelled:
		utils.ResponseGone(w, res.Message, res)
	default:
		utils.ResponseSuccess(w, res.Message, res)
	}
}

// Activate handles POST /api/vouchers/{code}/activate
func (h *VoucherHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req request.ActivateVoucherRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	// captive portals often cannot see the client's address
	if req.IPAddress == "" {
		req.IPAddress = requestIP(r)
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	res, err := h.service.ActivateVoucher(r.Context(), voucherCode(r), &req)
	if err != nil {
		h.handleServiceError(w, err, "activate voucher")
		return
	}

	if res.Reconnected {
		utils.ResponseSuccess(w, "Welcome back! Your session has been restored.", res)
		return
	}
	utils.ResponseSuccess(w, "Voucher activated. You are now connected.", res)
}

// List handles GET /api/admin/vouchers
func (h *VoucherHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := utils.PageParams(r)
	status := strings.ToUpper(r.URL.Query().Get("status"))

	res, err := h.service.ListVouchers(r.Context(), status, page, perPage)
	if err != nil {
		h.handleServiceError(w, err, "list vouchers")
		return
	}

	utils.ResponseSuccess(w, "Vouchers retrieved", res)
}

// Get handles GET /api/admin/vouchers/{code}
func (h *VoucherHandler) Get(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetVoucher(r.Context(), voucherCode(r))
	if err != nil {
		h.handleServiceError(w, err, "get voucher")
		return
	}

	utils.ResponseSuccess(w, "Voucher retrieved", res)
}

// Cancel handles POST /api/admin/vouchers/{code}/cancel
func (h *VoucherHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	principal, ok := utils.GetPrincipal(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	res, err := h.service.CancelVoucher(r.Context(), voucherCode(r), principal)
	if err != nil {
		h.handleServiceError(w, err, "cancel voucher")
		return
	}

	utils.ResponseSuccess(w, "Voucher cancelled", res)
}

// ResendSMS handles POST /api/admin/vouchers/{code}/resend-sms
func (h *VoucherHandler) ResendSMS(w http.ResponseWriter, r *http.Request) {
	principal, ok := utils.GetPrincipal(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	if err := h.service.ResendVoucherSMS(r.Context(), voucherCode(r), principal); err != nil {
		h.handleServiceError(w, err, "resend voucher sms")
		return
	}

	utils.ResponseJSON(w, http.StatusAccepted, true, "Voucher SMS queued", nil, nil)
}

func (h *VoucherHandler) handleServiceError(w http.ResponseWriter, err error, operation string) {
	if verr, details, ok := asValidation(err); ok {
		h.log.Warn(operation+" validation failed", zap.String("code", verr.Code))
		utils.ResponseBadRequest(w, verr.Message, details)
		return
	}

	switch {
	case errors.Is(err, usecase.ErrVoucherNotFound):
		h.log.Warn(operation+" failed - not found", zap.Error(err))
		utils.ResponseNotFound(w, err.Error())

	case errors.Is(err, usecase.ErrVoucherExpired),
		errors.Is(err, usecase.ErrVoucherCancelled):
		h.log.Warn(operation+" failed - voucher closed", zap.Error(err))
		utils.ResponseGone(w, err.Error(), nil)

	case errors.Is(err, usecase.ErrVoucherUsed),
		errors.Is(err, usecase.ErrActivationInProgress):
		h.log.Warn(operation+" failed - conflict", zap.Error(err))
		utils.ResponseConflict(w, err.Error())

	case errors.Is(err, usecase.ErrAccessProvisioning):
		h.log.Error(operation+" failed - access provisioning", zap.Error(err))
		utils.ResponseServiceUnavailable(w, err.Error())

	default:
		h.log.Error("Failed to "+operation, zap.Error(err), zap.String("operation", operation))
		utils.ResponseInternalError(w, "Internal server error")
	}
}
