package wire

import (
	"isp-portal/internal/adaptor"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// wireVoucher registers the captive portal routes. They are public: the
// voucher code or session token is the credential.
func wireVoucher(
	r chi.Router,
	voucherHandler *adaptor.VoucherHandler,
	sessionHandler *adaptor.SessionHandler,
	log *zap.Logger,
) {
	r.Route("/api/vouchers/{code}", func(r chi.Router) {
		r.Get("/validate", voucherHandler.Validate)
		r.Post("/activate", voucherHandler.Activate)
		r.Post("/reconnect", sessionHandler.ReconnectByCode)
		r.Get("/session", sessionHandler.StatusByCode)
	})

	r.Post("/api/sessions/reconnect", sessionHandler.ReconnectByToken)
	r.Route("/api/sessions/{token}", func(r chi.Router) {
		r.Get("/", sessionHandler.Status)
		r.Post("/heartbeat", sessionHandler.Heartbeat)
		r.Put("/device", sessionHandler.Device)
		r.Post("/disconnect", sessionHandler.Disconnect)
	})

	log.Debug("Portal routes registered")
}
