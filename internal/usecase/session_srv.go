package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"isp-portal/internal/data/entity"
	"isp-portal/internal/data/repository"
	"isp-portal/internal/dto/request"
	"isp-portal/internal/dto/response"
	"isp-portal/pkg/broker"
	"isp-portal/pkg/cache"
	"isp-portal/pkg/utils"

	"go.uber.org/zap"
)

const (
	monitorBatchSize       = 200
	persistentSessionDays  = 7
	voucherExpiryBatchSize = 100
	removeReasonExpired    = "expired"
	removeReasonTerminated = "terminated"
	removeReasonCancelled  = "cancelled"
)

// MonitorResult summarizes one monitor pass.
type MonitorResult struct {
	SessionsExpired  int `json:"sessions_expired"`
	HeartbeatsMissed int `json:"heartbeats_missed"`
	SessionsPaused   int `json:"sessions_paused"`
	VouchersExpired  int `json:"vouchers_expired"`
}

// SessionEventData is the body of session.* events.
type SessionEventData struct {
	SessionToken string    `json:"session_token"`
	VoucherCode  string    `json:"voucher_code"`
	Phone        string    `json:"phone"`
	Status       string    `json:"status"`
	Actor        string    `json:"actor,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type SessionService interface {
	RecordHeartbeat(ctx context.Context, token string, req *request.HeartbeatRequest) (*response.SessionStatusResponse, error)
	UpdateDevice(ctx context.Context, token string, req *request.DeviceUpdateRequest) (*response.SessionStatusResponse, error)
	ReconnectByCode(ctx context.Context, code string, req *request.ReconnectRequest) (*response.SessionStatusResponse, error)
	ReconnectByToken(ctx context.Context, req *request.ReconnectByTokenRequest) (*response.SessionStatusResponse, error)
	GetSessionStatus(ctx context.Context, token string) (*response.SessionStatusResponse, error)
	GetSessionStatusByCode(ctx context.Context, code string) (*response.SessionStatusResponse, error)
	RecordDisconnection(ctx context.Context, token string) (*response.SessionStatusResponse, error)
	TerminateSession(ctx context.Context, token string, principal utils.Principal) (*response.SessionStatusResponse, error)
	MonitorSessions(ctx context.Context) (*MonitorResult, error)
}

type sessionService struct {
	repo  *repository.Repository
	tasks TaskService
	cache cache.SessionCache
	log   *zap.Logger
}

func NewSessionService(
	repo *repository.Repository,
	tasks TaskService,
	sessionCache cache.SessionCache,
	log *zap.Logger,
) SessionService {
	return &sessionService{
		repo:  repo,
		tasks: tasks,
		cache: sessionCache,
		log:   log.With(zap.String("service", "session")),
	}
}

func (s *sessionService) RecordHeartbeat(ctx context.Context, token string, req *request.HeartbeatRequest) (*response.SessionStatusResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fieldErrors(errs)
	}

	now := time.Now()
	session, err := s.findUsable(ctx, token, now)
	if err != nil {
		return nil, err
	}

	applyReconnect(session, req.MacAddress, req.IPAddress, req.DeviceFingerprint, now)

	return s.save(ctx, session, now)
}

func (s *sessionService) UpdateDevice(ctx context.Context, token string, req *request.DeviceUpdateRequest) (*response.SessionStatusResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fieldErrors(errs)
	}

	now := time.Now()
	session, err := s.findUsable(ctx, token, now)
	if err != nil {
		return nil, err
	}

	if session.ApplyDevice(strings.ToUpper(req.MacAddress), req.IPAddress) {
		s.log.Info("Session device changed",
			zap.String("voucher_code", session.VoucherCode),
			zap.Int("mac_changes", session.MacChangesCount),
			zap.Int("ip_changes", session.IPChangesCount),
		)
	}
	session.Status = entity.SessionActive
	session.IsConnected = true
	session.LastActivityTime = &now

	return s.save(ctx, session, now)
}

func (s *sessionService) ReconnectByCode(ctx context.Context, code string, req *request.ReconnectRequest) (*response.SessionStatusResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fieldErrors(errs)
	}

	code = normalizeCode(code)
	session, err := s.repo.VoucherSess.FindLiveByVoucher(ctx, code)
	if err != nil {
		return nil, err
	}
	if session == nil {
		latest, err := s.repo.VoucherSess.FindLatestByVoucher(ctx, code)
		if err != nil {
			return nil, err
		}
		return nil, terminalSessionError(latest)
	}

	return s.reconnect(ctx, session, req.MacAddress, req.IPAddress)
}

func (s *sessionService) ReconnectByToken(ctx context.Context, req *request.ReconnectByTokenRequest) (*response.SessionStatusResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fieldErrors(errs)
	}

	session, err := s.repo.VoucherSess.FindByToken(ctx, req.SessionToken)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.Status.IsTerminal() {
		return nil, terminalSessionError(session)
	}

	return s.reconnect(ctx, session, req.MacAddress, req.IPAddress)
}

// reconnect resumes a live session on a (possibly new) device without
// re-authentication. Expired sessions are closed instead.
func (s *sessionService) reconnect(ctx context.Context, session *entity.VoucherSession, mac, ip string) (*response.SessionStatusResponse, error) {
	now := time.Now()

	if session.IsExpired(now) {
		if err := s.expire(ctx, s.repo, session, now); err != nil {
			return nil, s.lostRace(ctx, session.SessionToken, err)
		}
		s.invalidate(ctx, session.SessionToken)
		return nil, ErrSessionExpired
	}

	applyReconnect(session, mac, ip, "", now)

	s.log.Info("Session reconnected",
		zap.String("voucher_code", session.VoucherCode),
		zap.String("mac_address", session.MacAddress),
	)
	return s.save(ctx, session, now)
}

func (s *sessionService) GetSessionStatus(ctx context.Context, token string) (*response.SessionStatusResponse, error) {
	var cached response.SessionStatusResponse
	hit, err := s.cache.Get(ctx, token, &cached)
	if err != nil {
		s.log.Warn("Session cache read failed", zap.Error(err))
	}
	if hit {
		return &cached, nil
	}

	session, err := s.repo.VoucherSess.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	resp := response.SessionToResponse(session, time.Now())
	if err := s.cache.Set(ctx, token, resp); err != nil {
		s.log.Warn("Session cache write failed", zap.Error(err))
	}
	return &resp, nil
}

func (s *sessionService) GetSessionStatusByCode(ctx context.Context, code string) (*response.SessionStatusResponse, error) {
	code = normalizeCode(code)
	session, err := s.repo.VoucherSess.FindLiveByVoucher(ctx, code)
	if err != nil {
		return nil, err
	}
	if session == nil {
		if session, err = s.repo.VoucherSess.FindLatestByVoucher(ctx, code); err != nil {
			return nil, err
		}
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	resp := response.SessionToResponse(session, time.Now())
	return &resp, nil
}

func (s *sessionService) RecordDisconnection(ctx context.Context, token string) (*response.SessionStatusResponse, error) {
	now := time.Now()
	session, err := s.findUsable(ctx, token, now)
	if err != nil {
		return nil, err
	}

	session.IsConnected = false
	session.DisconnectionCount++
	session.Status = entity.SessionPaused
	session.LastActivityTime = &now

	return s.save(ctx, session, now)
}

func (s *sessionService) TerminateSession(ctx context.Context, token string, principal utils.Principal) (*response.SessionStatusResponse, error) {
	now := time.Now()
	actor := principal.Actor()

	var session *entity.VoucherSession
	err := s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		var err error
		session, err = tx.VoucherSess.FindByTokenForUpdate(ctx, token)
		if err != nil {
			return err
		}
		if session == nil {
			return ErrSessionNotFound
		}
		if session.Status.IsTerminal() {
			return terminalSessionError(session)
		}
		return terminateSession(ctx, tx, s.tasks, session, actor, removeReasonTerminated, now)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, token)
	s.tasks.Nudge()

	s.log.Info("Session terminated",
		zap.String("voucher_code", session.VoucherCode),
		zap.String("terminated_by", actor),
	)

	resp := response.SessionToResponse(session, now)
	return &resp, nil
}

// MonitorSessions expires overdue sessions, counts missed heartbeats and
// expires vouchers nobody activated in time.
func (s *sessionService) MonitorSessions(ctx context.Context) (*MonitorResult, error) {
	now := time.Now()
	result := &MonitorResult{}

	// 1. Expire sessions past their end
	expired, err := s.repo.VoucherSess.ListExpiredLive(ctx, now, monitorBatchSize)
	if err != nil {
		return nil, err
	}
	for _, session := range expired {
		err := s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
			if err := s.expire(ctx, tx, session, now); err != nil {
				return err
			}
			if err := tx.Voucher.Expire(ctx, session.VoucherCode); err != nil {
				return err
			}
			_, err := enqueueRadiusRemove(ctx, s.tasks, tx.Task, "voucher_"+session.VoucherCode, removeReasonExpired)
			return err
		})
		if errors.Is(err, repository.ErrSessionChanged) {
			continue
		}
		if err != nil {
			s.log.Error("Failed to expire session",
				zap.Error(err),
				zap.String("voucher_code", session.VoucherCode),
			)
			continue
		}
		s.invalidate(ctx, session.SessionToken)
		result.SessionsExpired++
	}

	// 2. Missed heartbeats
	connected, err := s.repo.VoucherSess.ListConnectedActive(ctx, monitorBatchSize)
	if err != nil {
		return nil, err
	}
	for _, session := range connected {
		if !session.HeartbeatOverdue(now) {
			continue
		}

		seen := session.UpdatedAt
		session.MissedHeartbeats++

		maxMissed := session.MaxMissedHeartbeats
		if maxMissed <= 0 {
			maxMissed = entity.DefaultMaxMissedHeartbeats
		}
		paused := session.MissedHeartbeats >= maxMissed
		if paused {
			session.Status = entity.SessionPaused
			session.IsConnected = false
		}
		session.UpdatedAt = now

		if err := s.repo.VoucherSess.Update(ctx, session, seen); err != nil {
			if errors.Is(err, repository.ErrSessionChanged) {
				// a heartbeat or close landed since the listing
				continue
			}
			s.log.Error("Failed to record missed heartbeat",
				zap.Error(err),
				zap.String("voucher_code", session.VoucherCode),
			)
			continue
		}
		result.HeartbeatsMissed++
		if paused {
			result.SessionsPaused++
		}
		s.invalidate(ctx, session.SessionToken)
	}

	// 3. Unused vouchers past validity
	count, err := expireOverdueVouchers(ctx, s.repo, s.tasks, now)
	if err != nil {
		return nil, err
	}
	result.VouchersExpired = count

	if result.SessionsExpired > 0 || result.VouchersExpired > 0 {
		s.tasks.Nudge()
	}

	return result, nil
}

// ==================== helpers ====================

// findUsable loads a session a device may still act on. Expired sessions are
// closed on the way out.
func (s *sessionService) findUsable(ctx context.Context, token string, now time.Time) (*entity.VoucherSession, error) {
	session, err := s.repo.VoucherSess.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.Status.IsTerminal() {
		return nil, terminalSessionError(session)
	}
	if session.IsExpired(now) {
		if err := s.expire(ctx, s.repo, session, now); err != nil {
			return nil, s.lostRace(ctx, token, err)
		}
		s.invalidate(ctx, token)
		return nil, ErrSessionExpired
	}
	return session, nil
}

func (s *sessionService) expire(ctx context.Context, repo *repository.Repository, session *entity.VoucherSession, now time.Time) error {
	seen := session.UpdatedAt
	session.Status = entity.SessionExpired
	session.IsConnected = false
	session.SessionEnd = &now
	session.UpdatedAt = now
	if err := repo.VoucherSess.Update(ctx, session, seen); err != nil {
		return err
	}
	_, err := enqueueRadiusRemove(ctx, s.tasks, repo.Task, session.RadiusUsername, removeReasonExpired)
	return err
}

func (s *sessionService) save(ctx context.Context, session *entity.VoucherSession, now time.Time) (*response.SessionStatusResponse, error) {
	seen := session.UpdatedAt
	session.UpdatedAt = now
	if err := s.repo.VoucherSess.Update(ctx, session, seen); err != nil {
		return nil, s.lostRace(ctx, session.SessionToken, err)
	}
	s.invalidate(ctx, session.SessionToken)

	resp := response.SessionToResponse(session, now)
	return &resp, nil
}

// lostRace turns a write that lost to a concurrent change into what the
// caller should see now: the close reason, or a retryable conflict.
func (s *sessionService) lostRace(ctx context.Context, token string, err error) error {
	if !errors.Is(err, repository.ErrSessionChanged) {
		return err
	}
	s.invalidate(ctx, token)

	current, ferr := s.repo.VoucherSess.FindByToken(ctx, token)
	if ferr != nil {
		return ferr
	}
	if current == nil || current.Status.IsTerminal() {
		return terminalSessionError(current)
	}
	return ErrSessionBusy
}

func (s *sessionService) invalidate(ctx context.Context, token string) {
	if err := s.cache.Invalidate(ctx, token); err != nil {
		s.log.Warn("Session cache invalidation failed", zap.Error(err))
	}
}

func terminalSessionError(session *entity.VoucherSession) error {
	if session == nil {
		return ErrSessionNotFound
	}
	switch session.Status {
	case entity.SessionTerminated:
		return ErrSessionTerminated
	case entity.SessionExpired:
		return ErrSessionExpired
	}
	return ErrSessionNotFound
}

// newVoucherSession builds the session opened by a first activation.
func newVoucherSession(v *entity.Voucher, mac, ip, fingerprint string, durationDays int, now time.Time) *entity.VoucherSession {
	expires := now.AddDate(0, 0, durationDays)
	if v.ActivatedAt != nil && v.ExpiresAt.Before(expires) {
		expires = v.ExpiresAt
	}

	session := &entity.VoucherSession{
		BaseNoDelete:        entity.BaseNoDelete{ID: utils.GenerateUUID(), CreatedAt: now, UpdatedAt: now},
		SessionToken:        utils.GenerateSessionToken(v.VoucherCode),
		VoucherCode:         v.VoucherCode,
		PhoneNumber:         v.CustomerPhone,
		PackageID:           v.PackageID,
		PackageDurationDays: durationDays,
		MacAddress:          mac,
		IPAddress:           ip,
		AllowedMacAddresses: []string{mac},
		AllowedIPAddresses:  []string{ip},
		RadiusUsername:      sessionRadiusUsername(v),
		SessionStart:        now,
		ExpiresAt:           expires,
		LastActivityTime:    &now,
		Status:              entity.SessionActive,
		IsConnected:         true,
		HeartbeatInterval:   entity.HeartbeatIntervalFor(durationDays),
		LastHeartbeatTime:   &now,
		MaxMissedHeartbeats: entity.DefaultMaxMissedHeartbeats,
		PersistentSession:   durationDays >= persistentSessionDays,
		NoReauthRequired:    durationDays >= persistentSessionDays,
		AutoReconnect:       true,
	}

	if fingerprint != "" {
		hash := utils.HashFingerprint(fingerprint)
		session.FingerprintHash = &hash
		session.FingerprintLastSeen = &now
	}

	return session
}

// applyReconnect marks a session live again on the given device.
func applyReconnect(session *entity.VoucherSession, mac, ip, fingerprint string, now time.Time) {
	session.ApplyDevice(strings.ToUpper(mac), ip)
	session.Status = entity.SessionActive
	session.IsConnected = true
	session.MissedHeartbeats = 0
	session.LastHeartbeatTime = &now
	session.LastActivityTime = &now

	if fingerprint != "" {
		hash := utils.HashFingerprint(fingerprint)
		session.FingerprintHash = &hash
		session.FingerprintLastSeen = &now
	}
}

func terminateSession(
	ctx context.Context,
	tx *repository.Repository,
	tasks TaskService,
	session *entity.VoucherSession,
	actor, reason string,
	now time.Time,
) error {
	session.Status = entity.SessionTerminated
	session.IsConnected = false
	session.SessionEnd = &now
	seen := session.UpdatedAt
	session.TerminatedBy = &actor
	session.UpdatedAt = now

	if err := tx.VoucherSess.Update(ctx, session, seen); err != nil {
		return err
	}

	if _, err := enqueueRadiusRemove(ctx, tasks, tx.Task, session.RadiusUsername, reason); err != nil {
		return err
	}

	_, err := enqueueEvent(ctx, tasks, tx.Task, broker.EventSessionTerminated, session.SessionToken, SessionEventData{
		SessionToken: session.SessionToken,
		VoucherCode:  session.VoucherCode,
		Phone:        session.PhoneNumber,
		Status:       string(entity.SessionTerminated),
		Actor:        actor,
		OccurredAt:   now,
	})
	return err
}

// expireOverdueVouchers expires unused vouchers whose validity lapsed and
// queues removal of their hotspot logins in the same transaction.
func expireOverdueVouchers(ctx context.Context, repo *repository.Repository, tasks TaskService, now time.Time) (int, error) {
	var count int
	err := repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		codes, err := tx.Voucher.ExpireOverdueUnused(ctx, now, voucherExpiryBatchSize)
		if err != nil {
			return err
		}

		for _, code := range codes {
			if _, err := enqueueRadiusRemove(ctx, tasks, tx.Task, "voucher_"+code, removeReasonExpired); err != nil {
				return fmt.Errorf("queue radius removal for voucher %s: %w", code, err)
			}
		}

		count = len(codes)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func sessionRadiusUsername(v *entity.Voucher) string {
	return v.CustomerPhone + "_" + v.VoucherCode
}
