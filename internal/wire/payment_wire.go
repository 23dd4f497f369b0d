package wire

import (
	"isp-portal/internal/adaptor"
	"isp-portal/pkg/middleware"
	"isp-portal/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wirePayment(
	r chi.Router,
	packageHandler *adaptor.PackageHandler,
	paymentHandler *adaptor.PaymentHandler,
	webhookHandler *adaptor.WebhookHandler,
	loyaltyHandler *adaptor.LoyaltyHandler,
	config *utils.Config,
	log *zap.Logger,
) {
	// ==================== PUBLIC ROUTES ====================
	r.Get("/api/packages", packageHandler.List)

	r.Post("/api/payments/initiate", paymentHandler.Initiate)
	r.Get("/api/payments/{orderId}/status", paymentHandler.Status)

	r.Get("/api/loyalty/{phone}", loyaltyHandler.Get)

	// ==================== GATEWAY CALLBACKS ====================
	limiter := middleware.NewIPRateLimiter(config.RateLimit.WebhookRPS, config.RateLimit.WebhookBurst)
	r.With(middleware.RateLimit(limiter, log)).Post("/api/webhooks/payment", webhookHandler.Receive)
}
