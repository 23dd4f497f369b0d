package wire

import (
	"net/http"

	"isp-portal/internal/adaptor"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireAuth(
	r chi.Router,
	authHandler *adaptor.AuthHandler,
	userHandler *adaptor.UserHandler,
	auth func(http.Handler) http.Handler,
	log *zap.Logger,
) {
	// ==================== PUBLIC ROUTES ====================
	r.Post("/api/auth/login", authHandler.Login)

	// ==================== PROTECTED ROUTES ====================
	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Post("/api/auth/logout", authHandler.Logout)
		r.Get("/api/user/profile", userHandler.GetProfile)
	})

	log.Debug("Auth routes registered")
}
