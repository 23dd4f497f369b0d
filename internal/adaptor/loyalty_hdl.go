package adaptor

import (
	"net/http"

	"isp-portal/internal/usecase"
	"isp-portal/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type LoyaltyHandler struct {
	service usecase.LoyaltyService
	log     *zap.Logger
}

func NewLoyaltyHandler(service usecase.LoyaltyService, log *zap.Logger) *LoyaltyHandler {
	return &LoyaltyHandler{
		service: service,
		log:     log.With(zap.String("handler", "loyalty")),
	}
}

// Get handles GET /api/loyalty/{phone}
func (h *LoyaltyHandler) Get(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetLoyalty(r.Context(), chi.URLParam(r, "phone"))
	if err != nil {
		if verr, details, ok := asValidation(err); ok {
			utils.ResponseBadRequest(w, verr.Message, details)
			return
		}
		h.log.Error("Failed to get loyalty", zap.Error(err))
		utils.ResponseInternalError(w, "Internal server error")
		return
	}

	utils.ResponseSuccess(w, "Loyalty retrieved", res)
}
