package wire

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"isp-portal/internal/data/repository"
	"isp-portal/internal/usecase"
	"isp-portal/pkg/utils"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestApp() *App {
	config := &utils.Config{
		JWT:       utils.JWTConfig{Secret: "test-secret", ExpiryHours: 1},
		RateLimit: utils.RateLimitConfig{WebhookRPS: 1, WebhookBurst: 1},
	}
	return Wiring(&repository.Repository{}, usecase.Deps{}, nil, config, zap.NewNop())
}

func serve(app *App, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	app := newTestApp()

	tests := []struct {
		method, path string
		wantCode     int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodPost, "/api/auth/logout", http.StatusUnauthorized},
		{http.MethodGet, "/api/user/profile", http.StatusUnauthorized},
		{http.MethodGet, "/api/admin/tasks", http.StatusUnauthorized},
		{http.MethodPost, "/api/admin/vouchers/AB12CD34/cancel", http.StatusUnauthorized},
		{http.MethodDelete, "/api/admin/users/6f1c7c53-4c4e-4a57-9d7e-9a4f1a7b9a11", http.StatusUnauthorized},
		{http.MethodOptions, "/api/packages", http.StatusNoContent},
		{http.MethodGet, "/api/movies", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, serve(app, tt.method, tt.path, "").Code)
		})
	}
}

func TestRouter_WebhookIsRateLimited(t *testing.T) {
	app := newTestApp()

	first := serve(app, http.MethodPost, "/api/webhooks/payment", "not json")
	second := serve(app, http.MethodPost, "/api/webhooks/payment", "not json")

	assert.Equal(t, http.StatusBadRequest, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
