package repository

import (
	"context"
	"errors"
	"fmt"

	"isp-portal/internal/data/entity"
	"isp-portal/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// SessionRepository stores operator login sessions (JWT ids).
type SessionRepository interface {
	Create(ctx context.Context, session *entity.Session) error
	FindValidSession(ctx context.Context, id uuid.UUID) (*entity.Session, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeAllUserSessions(ctx context.Context, userID uuid.UUID) error
	CleanExpiredSessions(ctx context.Context) (int64, error)
}

type sessionRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewSessionRepository(db database.Querier, log *zap.Logger) SessionRepository {
	return &sessionRepository{
		db:  db,
		log: log.With(zap.String("repository", "session")),
	}
}

func (r *sessionRepository) Create(ctx context.Context, session *entity.Session) error {
	query := `
		INSERT INTO auth_sessions (id, user_id, user_agent, ip_address, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
		session.CreatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create session",
			zap.Error(err),
			zap.String("user_id", session.UserID.String()),
		)
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

func (r *sessionRepository) FindValidSession(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	query := `
		SELECT id, user_id, user_agent, ip_address, expires_at, revoked_at, created_at
		FROM auth_sessions
		WHERE id = $1
		  AND revoked_at IS NULL
		  AND expires_at > NOW()
	`

	var session entity.Session
	err := r.db.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.UserID,
		&session.UserAgent,
		&session.IPAddress,
		&session.ExpiresAt,
		&session.RevokedAt,
		&session.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find valid session",
			zap.Error(err),
			zap.String("session_id", id.String()),
		)
		return nil, fmt.Errorf("find session %s: %w", id.String(), err)
	}

	return &session, nil
}

func (r *sessionRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE auth_sessions
		SET revoked_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL
	`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.log.Error("Failed to revoke session",
			zap.Error(err),
			zap.String("session_id", id.String()),
		)
		return fmt.Errorf("revoke session %s: %w", id.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("session not found or already revoked")
	}

	return nil
}

func (r *sessionRepository) RevokeAllUserSessions(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE auth_sessions
		SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL
	`

	if _, err := r.db.Exec(ctx, query, userID); err != nil {
		r.log.Error("Failed to revoke all user sessions",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return fmt.Errorf("revoke sessions for %s: %w", userID.String(), err)
	}

	return nil
}

func (r *sessionRepository) CleanExpiredSessions(ctx context.Context) (int64, error) {
	query := `DELETE FROM auth_sessions WHERE expires_at < NOW() - INTERVAL '7 days'`

	result, err := r.db.Exec(ctx, query)
	if err != nil {
		r.log.Error("Failed to clean expired sessions", zap.Error(err))
		return 0, fmt.Errorf("clean sessions: %w", err)
	}

	return result.RowsAffected(), nil
}
