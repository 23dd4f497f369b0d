package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"isp-portal/internal/data/entity"
	"isp-portal/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrLiveSessionExists is returned when a second non-terminal session is
// created for the same voucher.
var ErrLiveSessionExists = errors.New("voucher already has a live session")

// ErrSessionChanged is returned by Update when the row was written or closed
// after it was read.
var ErrSessionChanged = errors.New("session changed since it was read")

type VoucherSessionRepository interface {
	Create(ctx context.Context, s *entity.VoucherSession) error
	// Update writes s only if the row still carries updated_at == seen and is
	// not closed.
	Update(ctx context.Context, s *entity.VoucherSession, seen time.Time) error
	FindByToken(ctx context.Context, token string) (*entity.VoucherSession, error)
	FindByTokenForUpdate(ctx context.Context, token string) (*entity.VoucherSession, error)
	FindLiveByVoucher(ctx context.Context, code string) (*entity.VoucherSession, error)
	FindLiveByVoucherForUpdate(ctx context.Context, code string) (*entity.VoucherSession, error)
	FindLatestByVoucher(ctx context.Context, code string) (*entity.VoucherSession, error)

	// Monitor queries
	ListExpiredLive(ctx context.Context, now time.Time, limit int) ([]*entity.VoucherSession, error)
	ListConnectedActive(ctx context.Context, limit int) ([]*entity.VoucherSession, error)
}

type voucherSessionRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewVoucherSessionRepository(db database.Querier, log *zap.Logger) VoucherSessionRepository {
	return &voucherSessionRepository{
		db:  db,
		log: log.With(zap.String("repository", "voucher_session")),
	}
}

const voucherSessionColumns = `id, session_token, voucher_code, phone_number, package_id, package_duration_days,
	mac_address, ip_address, last_mac_address, last_ip_address, allowed_mac_addresses, allowed_ip_addresses,
	mac_changes_count, ip_changes_count, device_fingerprint_hash, fingerprint_last_seen, radius_username,
	session_start, session_end, expires_at, last_activity_time, session_status, is_connected,
	disconnection_count, terminated_by, heartbeat_interval_seconds, last_heartbeat_time,
	missed_heartbeats, max_missed_heartbeats, persistent_session, no_reauthentication_required,
	auto_reconnect_enabled, created_at, updated_at`

const liveSessionStatuses = `('ACTIVE', 'PAUSED', 'RECONNECTING')`

func scanVoucherSession(row pgx.Row) (*entity.VoucherSession, error) {
	var s entity.VoucherSession
	err := row.Scan(
		&s.ID,
		&s.SessionToken,
		&s.VoucherCode,
		&s.PhoneNumber,
		&s.PackageID,
		&s.PackageDurationDays,
		&s.MacAddress,
		&s.IPAddress,
		&s.LastMacAddress,
		&s.LastIPAddress,
		&s.AllowedMacAddresses,
		&s.AllowedIPAddresses,
		&s.MacChangesCount,
		&s.IPChangesCount,
		&s.FingerprintHash,
		&s.FingerprintLastSeen,
		&s.RadiusUsername,
		&s.SessionStart,
		&s.SessionEnd,
		&s.ExpiresAt,
		&s.LastActivityTime,
		&s.Status,
		&s.IsConnected,
		&s.DisconnectionCount,
		&s.TerminatedBy,
		&s.HeartbeatInterval,
		&s.LastHeartbeatTime,
		&s.MissedHeartbeats,
		&s.MaxMissedHeartbeats,
		&s.PersistentSession,
		&s.NoReauthRequired,
		&s.AutoReconnect,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return &s, err
}

func (r *voucherSessionRepository) Create(ctx context.Context, s *entity.VoucherSession) error {
	query := `INSERT INTO voucher_sessions (` + voucherSessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		        $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34)`

	_, err := r.db.Exec(ctx, query,
		s.ID,
		s.SessionToken,
		s.VoucherCode,
		s.PhoneNumber,
		s.PackageID,
		s.PackageDurationDays,
		s.MacAddress,
		s.IPAddress,
		s.LastMacAddress,
		s.LastIPAddress,
		s.AllowedMacAddresses,
		s.AllowedIPAddresses,
		s.MacChangesCount,
		s.IPChangesCount,
		s.FingerprintHash,
		s.FingerprintLastSeen,
		s.RadiusUsername,
		s.SessionStart,
		s.SessionEnd,
		s.ExpiresAt,
		s.LastActivityTime,
		s.Status,
		s.IsConnected,
		s.DisconnectionCount,
		s.TerminatedBy,
		s.HeartbeatInterval,
		s.LastHeartbeatTime,
		s.MissedHeartbeats,
		s.MaxMissedHeartbeats,
		s.PersistentSession,
		s.NoReauthRequired,
		s.AutoReconnect,
		s.CreatedAt,
		s.UpdatedAt,
	)

	if IsUniqueViolation(err) {
		return ErrLiveSessionExists
	}
	if err != nil {
		r.log.Error("Failed to create voucher session",
			zap.Error(err),
			zap.String("voucher_code", s.VoucherCode),
		)
		return fmt.Errorf("create session for voucher %s: %w", s.VoucherCode, err)
	}

	return nil
}

// Update writes back every mutable column of the session.
func (r *voucherSessionRepository) Update(ctx context.Context, s *entity.VoucherSession, seen time.Time) error {
	query := `
		UPDATE voucher_sessions SET
			mac_address                  = $2,
			ip_address                   = $3,
			last_mac_address             = $4,
			last_ip_address              = $5,
			allowed_mac_addresses        = $6,
			allowed_ip_addresses         = $7,
			mac_changes_count            = $8,
			ip_changes_count             = $9,
			device_fingerprint_hash      = $10,
			fingerprint_last_seen        = $11,
			session_end                  = $12,
			expires_at                   = $13,
			last_activity_time           = $14,
			session_status               = $15,
			is_connected                 = $16,
			disconnection_count          = $17,
			terminated_by                = $18,
			last_heartbeat_time          = $19,
			missed_heartbeats            = $20,
			updated_at                   = $21
		WHERE id = $1
		  AND updated_at = $22
		  AND session_status NOT IN ('EXPIRED', 'TERMINATED')
	`

	result, err := r.db.Exec(ctx, query,
		s.ID,
		s.MacAddress,
		s.IPAddress,
		s.LastMacAddress,
		s.LastIPAddress,
		s.AllowedMacAddresses,
		s.AllowedIPAddresses,
		s.MacChangesCount,
		s.IPChangesCount,
		s.FingerprintHash,
		s.FingerprintLastSeen,
		s.SessionEnd,
		s.ExpiresAt,
		s.LastActivityTime,
		s.Status,
		s.IsConnected,
		s.DisconnectionCount,
		s.TerminatedBy,
		s.LastHeartbeatTime,
		s.MissedHeartbeats,
		s.UpdatedAt,
		seen,
	)

	if IsUniqueViolation(err) {
		return ErrLiveSessionExists
	}
	if err != nil {
		r.log.Error("Failed to update voucher session",
			zap.Error(err),
			zap.String("session_id", s.ID.String()),
		)
		return fmt.Errorf("update session %s: %w", s.ID.String(), err)
	}

	if result.RowsAffected() == 0 {
		r.log.Debug("Session write lost to a concurrent change", zap.String("session_id", s.ID.String()))
		return ErrSessionChanged
	}

	return nil
}

func (r *voucherSessionRepository) FindByToken(ctx context.Context, token string) (*entity.VoucherSession, error) {
	return r.findOne(ctx, `WHERE session_token = $1`, token)
}

func (r *voucherSessionRepository) FindByTokenForUpdate(ctx context.Context, token string) (*entity.VoucherSession, error) {
	return r.findOne(ctx, `WHERE session_token = $1 FOR UPDATE`, token)
}

func (r *voucherSessionRepository) FindLiveByVoucher(ctx context.Context, code string) (*entity.VoucherSession, error) {
	return r.findOne(ctx, `WHERE voucher_code = $1 AND session_status IN `+liveSessionStatuses+`
		ORDER BY created_at DESC LIMIT 1`, code)
}

func (r *voucherSessionRepository) FindLiveByVoucherForUpdate(ctx context.Context, code string) (*entity.VoucherSession, error) {
	return r.findOne(ctx, `WHERE voucher_code = $1 AND session_status IN `+liveSessionStatuses+`
		ORDER BY created_at DESC LIMIT 1 FOR UPDATE`, code)
}

func (r *voucherSessionRepository) FindLatestByVoucher(ctx context.Context, code string) (*entity.VoucherSession, error) {
	return r.findOne(ctx, `WHERE voucher_code = $1 ORDER BY created_at DESC LIMIT 1`, code)
}

func (r *voucherSessionRepository) findOne(ctx context.Context, where, arg string) (*entity.VoucherSession, error) {
	query := `SELECT ` + voucherSessionColumns + ` FROM voucher_sessions ` + where

	s, err := scanVoucherSession(r.db.QueryRow(ctx, query, arg))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find voucher session",
			zap.Error(err),
			zap.String("key", arg),
		)
		return nil, fmt.Errorf("find voucher session %s: %w", arg, err)
	}

	return s, nil
}

func (r *voucherSessionRepository) ListExpiredLive(ctx context.Context, now time.Time, limit int) ([]*entity.VoucherSession, error) {
	query := `SELECT ` + voucherSessionColumns + ` FROM voucher_sessions
		WHERE session_status IN ` + liveSessionStatuses + ` AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`

	return r.list(ctx, query, now, limit)
}

func (r *voucherSessionRepository) ListConnectedActive(ctx context.Context, limit int) ([]*entity.VoucherSession, error) {
	query := `SELECT ` + voucherSessionColumns + ` FROM voucher_sessions
		WHERE session_status = 'ACTIVE' AND is_connected = TRUE
		ORDER BY last_heartbeat_time NULLS FIRST
		LIMIT $1`

	return r.list(ctx, query, limit)
}

func (r *voucherSessionRepository) list(ctx context.Context, query string, args ...any) ([]*entity.VoucherSession, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to list voucher sessions", zap.Error(err))
		return nil, fmt.Errorf("list voucher sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*entity.VoucherSession
	for rows.Next() {
		s, err := scanVoucherSession(rows)
		if err != nil {
			r.log.Error("Failed to scan voucher session row", zap.Error(err))
			return nil, fmt.Errorf("scan voucher session row: %w", err)
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}
