package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"isp-portal/pkg/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAuthenticator struct {
	principal utils.Principal
	token     string
}

func (a *stubAuthenticator) Authenticate(_ context.Context, token string) (utils.Principal, error) {
	if token != a.token {
		return utils.Principal{}, errors.New("invalid token")
	}
	return a.principal, nil
}

func principalEcho(t *testing.T, want *utils.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if want != nil {
			got, ok := utils.GetPrincipal(r.Context())
			require.True(t, ok)
			assert.Equal(t, *want, got)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuth(t *testing.T) {
	principal := utils.Principal{UserID: uuid.New(), Username: "ops", Role: "operator", SessionID: uuid.New()}
	auth := &stubAuthenticator{principal: principal, token: "good-token"}

	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good-token", http.StatusUnauthorized},
		{"no token", "Bearer ", http.StatusUnauthorized},
		{"rejected token", "Bearer bad-token", http.StatusUnauthorized},
		{"valid", "Bearer good-token", http.StatusNoContent},
		{"case-insensitive scheme", "bearer good-token", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			Auth(auth, zap.NewNop())(principalEcho(t, &principal)).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	withPrincipal := func(p *utils.Principal) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/tasks", nil)
		if p != nil {
			req = req.WithContext(utils.SetPrincipal(req.Context(), *p))
		}
		return req
	}
	admin := &utils.Principal{UserID: uuid.New(), Role: "admin"}
	operator := &utils.Principal{UserID: uuid.New(), Role: "operator"}

	tests := []struct {
		name      string
		principal *utils.Principal
		roles     []string
		wantCode  int
	}{
		{"no principal", nil, []string{"admin"}, http.StatusUnauthorized},
		{"admin allowed", admin, []string{"admin"}, http.StatusNoContent},
		{"operator refused", operator, []string{"admin"}, http.StatusForbidden},
		{"operator allowed on staff route", operator, []string{"admin", "operator"}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RequireRole(tt.roles...)(principalEcho(t, nil)).ServeHTTP(rec, withPrincipal(tt.principal))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestIPRateLimiter(t *testing.T) {
	limiter := NewIPRateLimiter(1, 2)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	limiter.lastSweep = now

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"), "buckets are per IP")

	now = now.Add(time.Second)
	assert.True(t, limiter.Allow("10.0.0.1"))

	// idle buckets are evicted on the next sweep
	now = now.Add(limiterIdleTTL + limiterSweepPeriod)
	limiter.Allow("10.0.0.3")
	assert.Equal(t, 1, limiter.size())
}

func TestRateLimit_Returns429(t *testing.T) {
	handler := RateLimit(NewIPRateLimiter(1, 1), zap.NewNop())(principalEcho(t, nil))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payment", nil)
		req.Header.Set("X-Forwarded-For", "41.59.1.1, 10.0.0.1")
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"socket address", nil, "192.0.2.1"},
		{"forwarded for", map[string]string{"X-Forwarded-For": "41.59.1.1, 10.0.0.1"}, "41.59.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "41.59.2.2"}, "41.59.2.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			var got string
			ClientIP()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = utils.GetClientIP(r.Context())
			})).ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	handler := CORS()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/packages", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)
}

func TestRecover(t *testing.T) {
	handler := Recover(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/packages", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status":false,"message":"Internal server error"}`, rec.Body.String())
}
