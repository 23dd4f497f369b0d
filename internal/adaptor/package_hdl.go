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

type PackageHandler struct {
	service usecase.PackageService
	log     *zap.Logger
}

func NewPackageHandler(service usecase.PackageService, log *zap.Logger) *PackageHandler {
	return &PackageHandler{
		service: service,
		log:     log.With(zap.String("handler", "package")),
	}
}

// List handles GET /api/packages
func (h *PackageHandler) List(w http.ResponseWriter, r *http.Request) {
	packages, err := h.service.ListActive(r.Context())
	if err != nil {
		h.handleServiceError(w, err, "list packages")
		return
	}

	utils.ResponseSuccess(w, "Packages retrieved", packages)
}

// Create handles POST /api/admin/packages
func (h *PackageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreatePackageRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	pkg, err := h.service.CreatePackage(r.Context(), &req)
	if err != nil {
		h.handleServiceError(w, err, "create package")
		return
	}

	utils.ResponseCreated(w, "Package created", pkg)
}

// SetActive handles PUT /api/admin/packages/{id}/active
func (h *PackageHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		utils.ResponseBadRequest(w, "Invalid package ID", nil)
		return
	}

	var req request.SetPackageActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	if err := h.service.SetActive(r.Context(), id, *req.Active); err != nil {
		h.handleServiceError(w, err, "set package active")
		return
	}

	utils.ResponseSuccess(w, "Package updated", map[string]any{"id": id, "active": *req.Active})
}

func (h *PackageHandler) handleServiceError(w http.ResponseWriter, err error, operation string) {
	if verr, details, ok := asValidation(err); ok {
		h.log.Warn(operation+" validation failed", zap.String("code", verr.Code))
		utils.ResponseBadRequest(w, verr.Message, details)
		return
	}

	if errors.Is(err, usecase.ErrPackageNotFound) {
		h.log.Warn(operation+" failed - not found", zap.Error(err))
		utils.ResponseNotFound(w, err.Error())
		return
	}

	h.log.Error("Failed to "+operation, zap.Error(err), zap.String("operation", operation))
	utils.ResponseInternalError(w, "Internal server error")
}
