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

const secondsPerDay = 86400

// VoucherEventData is the body of voucher.* events.
type VoucherEventData struct {
	VoucherCode  string    `json:"voucher_code"`
	OrderID      string    `json:"order_id"`
	Phone        string    `json:"phone"`
	PackageID    int64     `json:"package_id"`
	SessionToken string    `json:"session_token"`
	MacAddress   string    `json:"mac_address"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type VoucherService interface {
	ValidateVoucher(ctx context.Context, code string) (*response.VoucherValidationResponse, error)
	ActivateVoucher(ctx context.Context, code string, req *request.ActivateVoucherRequest) (*response.ActivationResponse, error)
	GetVoucher(ctx context.Context, code string) (*response.VoucherResponse, error)
	ListVouchers(ctx context.Context, status string, page, perPage int) (*response.PaginatedResponse[response.VoucherResponse], error)
	CancelVoucher(ctx context.Context, code string, principal utils.Principal) (*response.VoucherResponse, error)
	ResendVoucherSMS(ctx context.Context, code string, principal utils.Principal) error
	// ProvisionVoucherAccess creates the voucher's hotspot login and marks
	// the voucher access-ready.
	ProvisionVoucherAccess(ctx context.Context, code string) error
	ExpireOverdue(ctx context.Context) (int, error)
}

type voucherService struct {
	repo   *repository.Repository
	tasks  TaskService
	notify NotificationService
	locker cache.Locker
	cache  cache.SessionCache
	config *utils.Config
	log    *zap.Logger
}

func NewVoucherService(
	repo *repository.Repository,
	tasks TaskService,
	notify NotificationService,
	locker cache.Locker,
	sessionCache cache.SessionCache,
	config *utils.Config,
	log *zap.Logger,
) VoucherService {
	return &voucherService{
		repo:   repo,
		tasks:  tasks,
		notify: notify,
		locker: locker,
		cache:  sessionCache,
		config: config,
		log:    log.With(zap.String("service", "voucher")),
	}
}

func (s *voucherService) ValidateVoucher(ctx context.Context, code string) (*response.VoucherValidationResponse, error) {
	code = normalizeCode(code)
	if !utils.IsValidVoucherCode(code) {
		return &response.VoucherValidationResponse{State: response.VoucherStateNotFound, Message: "Voucher code not found"}, nil
	}

	voucher, err := s.repo.Voucher.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if voucher == nil {
		return &response.VoucherValidationResponse{State: response.VoucherStateNotFound, Message: "Voucher code not found"}, nil
	}

	info := response.VoucherToResponse(voucher)
	resp := &response.VoucherValidationResponse{
		AccessReady: voucher.AccessReady(),
		Voucher:     &info,
	}

	switch {
	case voucher.Status == entity.VoucherCancelled:
		resp.State = response.VoucherStateCancelled
		resp.Message = "Voucher code has been cancelled"
	case voucher.IsExpired(time.Now()):
		resp.State = response.VoucherStateExpired
		resp.Message = "Voucher code has expired"
	case voucher.UsageStatus == entity.VoucherUsed:
		resp.State = response.VoucherStateUsed
		resp.Message = "Voucher code has already been used"
	default:
		resp.Valid = true
		resp.State = response.VoucherStateValid
		resp.Message = "Voucher code is valid"
	}

	return resp, nil
}

func (s *voucherService) ActivateVoucher(ctx context.Context, code string, req *request.ActivateVoucherRequest) (*response.ActivationResponse, error) {
	// 1. Validate input
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fieldErrors(errs)
	}

	code = normalizeCode(code)
	if !utils.IsValidVoucherCode(code) {
		return nil, ErrVoucherNotFound
	}
	mac := strings.ToUpper(req.MacAddress)

	// 2. One activation per code at a time
	lock, err := s.locker.TryLock(ctx, "activation:"+code, s.config.Voucher.ActivationLockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, ErrActivationInProgress
		}
		return nil, fmt.Errorf("acquire activation lock %s: %w", code, err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("Failed to release activation lock", zap.Error(err), zap.String("voucher_code", code))
		}
	}()

	var (
		session     *entity.VoucherSession
		reconnected bool
	)

	// 3. Re-validate under row lock, open session, provision access
	err = s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		session, reconnected = nil, false
		now := time.Now()

		voucher, err := tx.Voucher.FindByCodeForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if voucher == nil {
			return ErrVoucherNotFound
		}
		if voucher.Status == entity.VoucherCancelled {
			return ErrVoucherCancelled
		}
		if voucher.IsExpired(now) {
			return ErrVoucherExpired
		}

		live, err := tx.VoucherSess.FindLiveByVoucherForUpdate(ctx, code)
		if err != nil {
			return err
		}

		if voucher.UsageStatus == entity.VoucherUsed {
			// same device coming back is a reconnect, anyone else is refused
			if live == nil || !live.IsKnownDevice(mac) {
				return ErrVoucherUsed
			}
			if live.IsExpired(now) {
				return ErrSessionExpired
			}
			seen := live.UpdatedAt
			applyReconnect(live, mac, req.IPAddress, req.DeviceFingerprint, now)
			live.UpdatedAt = now
			if err := tx.VoucherSess.Update(ctx, live, seen); err != nil {
				return err
			}
			session, reconnected = live, true
			return nil
		}

		pkg, err := tx.Package.FindByID(ctx, voucher.PackageID)
		if err != nil {
			return err
		}

		durationDays := voucher.DurationDays
		if durationDays <= 0 {
			durationDays = s.config.Voucher.DefaultDurationDays
		}

		if live != nil {
			seen := live.UpdatedAt
			applyReconnect(live, mac, req.IPAddress, req.DeviceFingerprint, now)
			live.UpdatedAt = now
			if err := tx.VoucherSess.Update(ctx, live, seen); err != nil {
				return err
			}
			session, reconnected = live, true
		} else {
			session = newVoucherSession(voucher, mac, req.IPAddress, req.DeviceFingerprint, durationDays, now)
			if err := tx.VoucherSess.Create(ctx, session); err != nil {
				if errors.Is(err, repository.ErrLiveSessionExists) {
					return ErrActivationInProgress
				}
				return err
			}
		}

		// 4. RADIUS credential for the session, fatal on failure
		if err := tx.Radius.ProvisionUser(ctx, radiusUserFor(session.RadiusUsername, code, session.ExpiresAt, durationDays, pkg, now)); err != nil {
			return fmt.Errorf("%w: %v", ErrAccessProvisioning, err)
		}

		// 5. Voucher consumed
		used, err := tx.Voucher.MarkUsed(ctx, code, mac, now)
		if err != nil {
			return err
		}
		if !used {
			return ErrVoucherUsed
		}

		_, err = enqueueEvent(ctx, s.tasks, tx.Task, broker.EventVoucherActivated, code, VoucherEventData{
			VoucherCode:  code,
			OrderID:      voucher.OrderID,
			Phone:        voucher.CustomerPhone,
			PackageID:    voucher.PackageID,
			SessionToken: session.SessionToken,
			MacAddress:   mac,
			OccurredAt:   now,
		})
		return err
	})
	if err != nil {
		if !isVoucherStateError(err) {
			s.log.Error("Voucher activation failed", zap.Error(err), zap.String("voucher_code", code))
		}
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, session.SessionToken); err != nil {
		s.log.Warn("Session cache invalidation failed", zap.Error(err))
	}
	s.tasks.Nudge()

	s.log.Info("Voucher activated",
		zap.String("voucher_code", code),
		zap.String("mac_address", mac),
		zap.Bool("reconnected", reconnected),
	)

	return &response.ActivationResponse{
		Reconnected: reconnected,
		Session:     response.SessionToResponse(session, time.Now()),
	}, nil
}

func (s *voucherService) GetVoucher(ctx context.Context, code string) (*response.VoucherResponse, error) {
	voucher, err := s.repo.Voucher.FindByCode(ctx, normalizeCode(code))
	if err != nil {
		return nil, err
	}
	if voucher == nil {
		return nil, ErrVoucherNotFound
	}

	resp := response.VoucherToResponse(voucher)
	return &resp, nil
}

func (s *voucherService) ListVouchers(ctx context.Context, status string, page, perPage int) (*response.PaginatedResponse[response.VoucherResponse], error) {
	offset := utils.CalculateOffset(page, perPage)

	vouchers, err := s.repo.Voucher.List(ctx, status, perPage, offset)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.Voucher.Count(ctx, status)
	if err != nil {
		return nil, err
	}

	data := make([]response.VoucherResponse, 0, len(vouchers))
	for _, v := range vouchers {
		data = append(data, response.VoucherToResponse(v))
	}

	return response.NewPaginatedResponse(data, page, perPage, total), nil
}

func (s *voucherService) CancelVoucher(ctx context.Context, code string, principal utils.Principal) (*response.VoucherResponse, error) {
	code = normalizeCode(code)
	actor := principal.Actor()

	var terminatedToken string
	err := s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		terminatedToken = ""
		now := time.Now()

		voucher, err := tx.Voucher.FindByCodeForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if voucher == nil {
			return ErrVoucherNotFound
		}

		switch voucher.Status {
		case entity.VoucherCancelled:
			return ErrVoucherCancelled
		case entity.VoucherExpired:
			return ErrVoucherExpired
		}

		if _, err := tx.Voucher.Cancel(ctx, code, actor); err != nil {
			return err
		}
		if _, err := enqueueRadiusRemove(ctx, s.tasks, tx.Task, voucher.RadiusUsername(), removeReasonCancelled); err != nil {
			return err
		}

		// a cancelled voucher takes its live session down with it
		live, err := tx.VoucherSess.FindLiveByVoucherForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if live != nil {
			if err := terminateSession(ctx, tx, s.tasks, live, actor, removeReasonCancelled, now); err != nil {
				return err
			}
			terminatedToken = live.SessionToken
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if terminatedToken != "" {
		if err := s.cache.Invalidate(ctx, terminatedToken); err != nil {
			s.log.Warn("Session cache invalidation failed", zap.Error(err))
		}
	}
	s.tasks.Nudge()

	s.log.Info("Voucher cancelled", zap.String("voucher_code", code), zap.String("cancelled_by", actor))

	return s.GetVoucher(ctx, code)
}

func (s *voucherService) ResendVoucherSMS(ctx context.Context, code string, principal utils.Principal) error {
	code = normalizeCode(code)

	voucher, err := s.repo.Voucher.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if voucher == nil {
		return ErrVoucherNotFound
	}
	if voucher.Status == entity.VoucherCancelled {
		return ErrVoucherCancelled
	}
	if voucher.IsExpired(time.Now()) {
		return ErrVoucherExpired
	}

	// every resend is its own message
	dedupeKey := fmt.Sprintf("%s:%s:%s:%s", entity.TaskSMSSend, SMSKindVoucherResend, code, utils.GenerateUUID())
	if _, err := s.tasks.Enqueue(ctx, s.repo.Task, entity.TaskSMSSend, dedupeKey, SMSPayload{
		Phone:   voucher.CustomerPhone,
		Message: s.notify.VoucherResendMessage(voucher),
		Kind:    SMSKindVoucherResend,
	}); err != nil {
		return err
	}
	s.tasks.Nudge()

	s.log.Info("Voucher SMS resend queued",
		zap.String("voucher_code", code),
		zap.String("requested_by", principal.Actor()),
	)
	return nil
}

func (s *voucherService) ProvisionVoucherAccess(ctx context.Context, code string) error {
	return s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		// locked so a concurrent cancel cannot slip in between the check and
		// the credential write
		voucher, err := tx.Voucher.FindByCodeForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if voucher == nil {
			return ErrVoucherNotFound
		}

		now := time.Now()
		if voucher.Status == entity.VoucherCancelled || voucher.IsExpired(now) {
			s.log.Info("Skipping access provisioning for closed voucher",
				zap.String("voucher_code", code),
				zap.String("status", string(voucher.Status)),
			)
			return nil
		}

		pkg, err := tx.Package.FindByID(ctx, voucher.PackageID)
		if err != nil {
			return err
		}

		user := radiusUserFor(voucher.RadiusUsername(), code, voucher.ExpiresAt, voucher.DurationDays, pkg, now)
		if err := tx.Radius.ProvisionUser(ctx, user); err != nil {
			return err
		}
		return tx.Voucher.MarkAccessReady(ctx, code, now)
	})
}

func (s *voucherService) ExpireOverdue(ctx context.Context) (int, error) {
	count, err := expireOverdueVouchers(ctx, s.repo, s.tasks, time.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Info("Expired unused vouchers", zap.Int("count", count))
		s.tasks.Nudge()
	}
	return count, nil
}

// radiusUserFor builds the credential for a hotspot login. Session-Timeout
// is what is left until expiry, never more than the package duration.
func radiusUserFor(username, password string, expiresAt time.Time, durationDays int, pkg *entity.Package, now time.Time) entity.RadiusUser {
	timeout := int64(expiresAt.Sub(now).Seconds())
	if maxTimeout := int64(durationDays) * secondsPerDay; durationDays > 0 && timeout > maxTimeout {
		timeout = maxTimeout
	}
	if timeout < 0 {
		timeout = 0
	}

	user := entity.RadiusUser{
		Username:       username,
		Password:       password,
		ExpiresAt:      expiresAt,
		SessionTimeout: timeout,
	}
	if pkg != nil {
		user.DownloadBps = int64(pkg.DownloadKbps) * 1000
		user.UploadBps = int64(pkg.UploadKbps) * 1000
	}
	return user
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func isVoucherStateError(err error) bool {
	return errors.Is(err, ErrVoucherNotFound) ||
		errors.Is(err, ErrVoucherExpired) ||
		errors.Is(err, ErrVoucherUsed) ||
		errors.Is(err, ErrVoucherCancelled) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrActivationInProgress)
}
