package adaptor

import (
	"context"
	"errors"
	"net"
	"net/http"

	"isp-portal/internal/usecase"
	"isp-portal/pkg/utils"

	"go.uber.org/zap"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Auth    *AuthHandler
	User    *UserHandler
	Package *PackageHandler
	Payment *PaymentHandler
	Webhook *WebhookHandler
	Voucher *VoucherHandler
	Session *SessionHandler
	Loyalty *LoyaltyHandler
	Task    *TaskHandler
	Health  *HealthHandler
}

func NewHandler(service *usecase.Service, db Pinger, log *zap.Logger) *Handler {
	return &Handler{
		Auth:    NewAuthHandler(service.Auth, log),
		User:    NewUserHandler(service.User, log),
		Package: NewPackageHandler(service.Package, log),
		Payment: NewPaymentHandler(service.Payment, log),
		Webhook: NewWebhookHandler(service.Webhook, log),
		Voucher: NewVoucherHandler(service.Voucher, log),
		Session: NewSessionHandler(service.Session, log),
		Loyalty: NewLoyaltyHandler(service.Loyalty, log),
		Task:    NewTaskHandler(service.Task, log),
		Health:  NewHealthHandler(db, log),
	}
}

// asValidation unwraps a *usecase.ValidationError and shapes it for the
// response errors field.
func asValidation(err error) (*usecase.ValidationError, any, bool) {
	var verr *usecase.ValidationError
	if !errors.As(err, &verr) {
		return nil, nil, false
	}
	if len(verr.Fields) > 0 {
		return verr, verr.Fields, true
	}

	details := map[string]string{"code": verr.Code}
	if verr.Field != "" {
		details["field"] = verr.Field
	}
	return verr, details, true
}

// requestIP returns the address stored by middleware.ClientIP, falling back
// to the socket address.
func requestIP(r *http.Request) string {
	if ip := utils.GetClientIP(r.Context()); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
