package adaptor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"isp-portal/internal/dto/request"
	"isp-portal/internal/dto/response"
	"isp-portal/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSessionService struct {
	usecase.SessionService
	err error

	token     string
	heartbeat *request.HeartbeatRequest
	reconnect *request.ReconnectByTokenRequest
}

func (s *stubSessionService) RecordHeartbeat(_ context.Context, token string, req *request.HeartbeatRequest) (*response.SessionStatusResponse, error) {
	s.token = token
	s.heartbeat = req
	if s.err != nil {
		return nil, s.err
	}
	return &response.SessionStatusResponse{SessionToken: token, IsConnected: true}, nil
}

func (s *stubSessionService) ReconnectByToken(_ context.Context, req *request.ReconnectByTokenRequest) (*response.SessionStatusResponse, error) {
	s.reconnect = req
	if s.err != nil {
		return nil, s.err
	}
	return &response.SessionStatusResponse{SessionToken: req.SessionToken}, nil
}

func sessionRouter(h *SessionHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/api/sessions/reconnect", h.ReconnectByToken)
	r.Post("/api/sessions/{token}/heartbeat", h.Heartbeat)
	return r
}

func TestSessionHeartbeat_EmptyBodyIsAllowed(t *testing.T) {
	svc := &stubSessionService{}
	rec := httptest.NewRecorder()

	sessionRouter(NewSessionHandler(svc, zap.NewNop())).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/AB12CD34_1700000000_abc/heartbeat", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "AB12CD34_1700000000_abc", svc.token)
	assert.Empty(t, svc.heartbeat.MacAddress)
}

func TestSessionHeartbeat_ErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
	}{
		{usecase.ErrSessionNotFound, http.StatusNotFound},
		{usecase.ErrSessionExpired, http.StatusGone},
		{usecase.ErrSessionTerminated, http.StatusGone},
		{usecase.ErrSessionBusy, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			sessionRouter(NewSessionHandler(&stubSessionService{err: tt.err}, zap.NewNop())).
				ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/tok/heartbeat", strings.NewReader(`{}`)))

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestSessionReconnectByToken(t *testing.T) {
	svc := &stubSessionService{}
	rec := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/reconnect",
		strings.NewReader(`{"session_token":"AB12CD34_1700000000_abc","mac_address":"aa:bb:cc:dd:ee:01"}`))
	req.Header.Set("X-Real-IP", "10.1.1.1")
	sessionRouter(NewSessionHandler(svc, zap.NewNop())).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	// X-Real-IP is only honoured by middleware.ClientIP
	assert.Equal(t, "192.0.2.1", svc.reconnect.IPAddress)

	rec = httptest.NewRecorder()
	sessionRouter(NewSessionHandler(&stubSessionService{err: usecase.ErrVoucherUsed}, zap.NewNop())).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/reconnect",
			strings.NewReader(`{"session_token":"AB12CD34_1700000000_abc","mac_address":"aa:bb:cc:dd:ee:02","ip_address":"10.0.0.9"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
