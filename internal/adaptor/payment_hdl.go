package adaptor

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"isp-portal/internal/dto/request"
	"isp-portal/internal/usecase"
	"isp-portal/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	service usecase.PaymentService
	log     *zap.Logger
}

func NewPaymentHandler(service usecase.PaymentService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		log:     log.With(zap.String("handler", "payment")),
	}
}

// Initiate handles POST /api/payments/initiate
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req request.InitiatePaymentRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	res, err := h.service.InitiatePayment(r.Context(), &req)
	if err != nil {
		h.handleServiceError(w, err, "initiate payment")
		return
	}

	utils.ResponseCreated(w, "Payment initiated. Confirm the prompt on your phone.", res)
}

// Status handles GET /api/payments/{orderId}/status
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		utils.ResponseBadRequest(w, "Order ID is required", nil)
		return
	}

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	res, err := h.service.GetPaymentStatus(r.Context(), orderID, refresh)
	if err != nil {
		h.handleServiceError(w, err, "get payment status")
		return
	}

	utils.ResponseSuccess(w, "Payment status retrieved", res)
}

// Detail handles GET /api/admin/payments/{orderId}
func (h *PaymentHandler) Detail(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetPaymentDetail(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.handleServiceError(w, err, "get payment detail")
		return
	}

	utils.ResponseSuccess(w, "Payment retrieved", res)
}

func (h *PaymentHandler) handleServiceError(w http.ResponseWriter, err error, operation string) {
	if verr, details, ok := asValidation(err); ok {
		h.log.Warn(operation+" validation failed", zap.String("code", verr.Code))
		utils.ResponseBadRequest(w, verr.Message, details)
		return
	}

	switch {
	case errors.Is(err, usecase.ErrPackageNotFound),
		errors.Is(err, usecase.ErrPaymentNotFound):
		h.log.Warn(operation+" failed - not found", zap.Error(err))
		utils.ResponseNotFound(w, err.Error())

	case errors.Is(err, usecase.ErrPackageInactive):
		h.log.Warn(operation+" failed - package inactive", zap.Error(err))
		utils.ResponseConflict(w, err.Error())

	case errors.Is(err, usecase.ErrGatewayNotConfigured):
		h.log.Error(operation+" failed - gateway not configured")
		utils.ResponseServiceUnavailable(w, "Payments are temporarily unavailable")

	case errors.Is(err, usecase.ErrGatewayUnavailable):
		h.log.Error(operation+" failed - gateway error", zap.Error(err))
		utils.ResponseBadGateway(w, "Payment provider did not respond, please try again")

	default:
		h.log.Error("Failed to "+operation, zap.Error(err), zap.String("operation", operation))
		utils.ResponseInternalError(w, "Internal server error")
	}
}
