// internal/wire/wire.go
package wire

import (
	"isp-portal/internal/adaptor"
	"isp-portal/internal/data/repository"
	"isp-portal/internal/usecase"
	"isp-portal/pkg/middleware"
	"isp-portal/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// App holds the router and the services behind it.
type App struct {
	Router  *chi.Mux
	Service *usecase.Service
}

// Wiring builds services, handlers and routes. db may be nil, in which case
// /health reports only liveness.
func Wiring(repo *repository.Repository, deps usecase.Deps, db adaptor.Pinger, config *utils.Config, logger *zap.Logger) *App {
	service := usecase.NewService(repo, deps, config, logger)
	handler := adaptor.NewHandler(service, db, logger)

	router := setupRouter(handler, service, config, logger)

	return &App{
		Router:  router,
		Service: service,
	}
}

func setupRouter(
	handler *adaptor.Handler,
	service *usecase.Service,
	config *utils.Config,
	logger *zap.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(middleware.ClientIP())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.CORS())

	auth := middleware.Auth(service.Auth, logger)

	// Apply routes
	wireAuth(r, handler.Auth, handler.User, auth, logger)
	wirePayment(r, handler.Package, handler.Payment, handler.Webhook, handler.Loyalty, config, logger)
	wireVoucher(r, handler.Voucher, handler.Session, logger)
	wireAdmin(r, handler, auth, logger)

	r.Get("/health", handler.Health.Check)

	return r
}
