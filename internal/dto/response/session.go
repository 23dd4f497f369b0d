package response

import (
	"time"

	"isp-portal/internal/data/entity"
)

// SessionStatusResponse is the device-facing session contract. It is also
// the value cached per token.
type SessionStatusResponse struct {
	SessionToken      string               `json:"session_token"`
	VoucherCode       string               `json:"voucher_code"`
	Status            entity.SessionStatus `json:"status"`
	IsConnected       bool                 `json:"is_connected"`
	RemainingSeconds  int64                `json:"remaining_seconds"`
	ElapsedSeconds    int64                `json:"elapsed_seconds"`
	ExpiresAt         time.Time            `json:"expires_at"`
	MacAddress        string               `json:"mac_address"`
	IPAddress         string               `json:"ip_address"`
	MacChangesCount   int                  `json:"mac_changes_count"`
	IPChangesCount    int                  `json:"ip_changes_count"`
	HeartbeatInterval int                  `json:"heartbeat_interval_seconds"`
	LastHeartbeatTime *time.Time           `json:"last_heartbeat_time,omitempty"`
	PersistentSession bool                 `json:"persistent_session"`
	NoReauthRequired  bool                 `json:"no_reauthentication_required"`
}

func SessionToResponse(s *entity.VoucherSession, now time.Time) SessionStatusResponse {
	return SessionStatusResponse{
		SessionToken:      s.SessionToken,
		VoucherCode:       s.VoucherCode,
		Status:            s.Status,
		IsConnected:       s.IsConnected,
		RemainingSeconds:  s.RemainingSeconds(now),
		ElapsedSeconds:    s.ElapsedSeconds(now),
		ExpiresAt:         s.ExpiresAt,
		MacAddress:        s.MacAddress,
		IPAddress:         s.IPAddress,
		MacChangesCount:   s.MacChangesCount,
		IPChangesCount:    s.IPChangesCount,
		HeartbeatInterval: s.HeartbeatInterval,
		LastHeartbeatTime: s.LastHeartbeatTime,
		PersistentSession: s.PersistentSession,
		NoReauthRequired:  s.NoReauthRequired,
	}
}
