package entity

import (
	"time"

	"github.com/google/uuid"
)

// Session records an issued operator JWT. The ID doubles as the token jti
// so logout can revoke it.
type Session struct {
	BaseSimple
	UserID    uuid.UUID  `db:"user_id"`
	UserAgent *string    `db:"user_agent"`
	IPAddress *string    `db:"ip_address"`
	ExpiresAt time.Time  `db:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at"`
}

func (s *Session) IsValid(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
