package utils

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	clientIPKey  contextKey = "client_ip"
)

// Principal is the authenticated operator behind a request.
type Principal struct {
	UserID    uuid.UUID
	Username  string
	Role      string
	SessionID uuid.UUID
}

func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// Actor is the identifier written to audit columns.
func (p Principal) Actor() string {
	if p.Username != "" {
		return p.Username
	}
	return p.UserID.String()
}

func SetPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok || p.UserID == uuid.Nil {
		return Principal{}, false
	}
	return p, true
}

func SetClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func GetClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
