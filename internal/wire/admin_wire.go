package wire

import (
	"net/http"

	"isp-portal/internal/adaptor"
	"isp-portal/internal/data/entity"
	"isp-portal/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireAdmin(
	r chi.Router,
	handler *adaptor.Handler,
	auth func(http.Handler) http.Handler,
	log *zap.Logger,
) {
	adminOnly := middleware.RequireRole(string(entity.RoleAdmin))
	staff := middleware.RequireRole(string(entity.RoleAdmin), string(entity.RoleOperator))

	// ==================== ADMIN ROUTES ====================
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(auth)

		// Operators
		r.With(adminOnly).Get("/users", handler.User.ListOperators)
		r.With(adminOnly).Post("/users", handler.User.CreateOperator)
		r.With(adminOnly).Delete("/users/{id}", handler.User.DeleteOperator)

		// Packages
		r.With(adminOnly).Post("/packages", handler.Package.Create)
		r.With(adminOnly).Put("/packages/{id}/active", handler.Package.SetActive)

		// Vouchers
		r.With(staff).Get("/vouchers", handler.Voucher.List)
		r.With(staff).Get("/vouchers/{code}", handler.Voucher.Get)
		r.With(adminOnly).Post("/vouchers/{code}/cancel", handler.Voucher.Cancel)
		r.With(staff).Post("/vouchers/{code}/resend-sms", handler.Voucher.ResendSMS)

		// Sessions and payments
		r.With(adminOnly).Post("/sessions/{token}/terminate", handler.Session.Terminate)
		r.With(staff).Get("/payments/{orderId}", handler.Payment.Detail)

		// Background tasks
		r.With(adminOnly).Get("/tasks", handler.Task.List)
		r.With(adminOnly).Post("/tasks/{id}/retry", handler.Task.Retry)
	})

	log.Debug("Admin routes registered")
}
