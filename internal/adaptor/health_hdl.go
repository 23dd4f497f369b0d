package adaptor

import (
	"context"
	"net/http"
	"time"

	"isp-portal/pkg/utils"

	"go.uber.org/zap"
)

type HealthHandler struct {
	db  Pinger
	log *zap.Logger
}

func NewHealthHandler(db Pinger, log *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, log: log}
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	status := "skipped"
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			h.log.Error("Health check failed - database unreachable", zap.Error(err))
			utils.ResponseServiceUnavailable(w, "Database unavailable")
			return
		}
		status = "up"
	}

	utils.ResponseSuccess(w, "OK", map[string]string{"database": status})
}
