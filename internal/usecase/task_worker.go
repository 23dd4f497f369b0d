package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"isp-portal/internal/data/entity"
	"isp-portal/internal/data/repository"
	"isp-portal/pkg/broker"
	"isp-portal/pkg/utils"

	"go.uber.org/zap"
)

type taskHandler func(ctx context.Context, task *entity.Task) error

// Worker drains the task table. Several workers may run against the same
// database; claims are leased so a crashed worker's tasks come back.
type Worker struct {
	repo      *repository.Repository
	svc       *Service
	publisher broker.Publisher
	config    utils.WorkerConfig
	handlers  map[entity.TaskType]taskHandler
	log       *zap.Logger
}

func NewWorker(repo *repository.Repository, svc *Service, publisher broker.Publisher, config *utils.Config, log *zap.Logger) *Worker {
	w := &Worker{
		repo:      repo,
		svc:       svc,
		publisher: publisher,
		config:    config.Worker,
		log:       log.With(zap.String("component", "worker")),
	}
	if w.config.PollInterval <= 0 {
		w.config.PollInterval = 5 * time.Second
	}
	if w.config.BatchSize <= 0 {
		w.config.BatchSize = 20
	}
	if w.config.Lease <= 0 {
		w.config.Lease = time.Minute
	}
	if w.config.MonitorInterval <= 0 {
		w.config.MonitorInterval = time.Minute
	}

	w.handlers = map[entity.TaskType]taskHandler{
		entity.TaskRadiusProvisionVoucher: w.provisionVoucher,
		entity.TaskRadiusRemove:           w.removeRadiusUser,
		entity.TaskLoyaltyAward:           w.awardLoyalty,
		entity.TaskSMSSend:                w.sendSMS,
		entity.TaskEventPublish:           w.publishEvent,
	}
	return w
}

// Run polls for due tasks until ctx is cancelled. A Nudge skips the wait.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Task worker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize),
	)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		n, err := w.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.log.Error("Task poll failed", zap.Error(err))
		}

		// a full batch means more is probably waiting
		if n == w.config.BatchSize && ctx.Err() == nil {
			continue
		}

		select {
		case <-ctx.Done():
			w.log.Info("Task worker stopped")
			return nil
		case <-ticker.C:
		case <-w.svc.Task.Wakeups():
		}
	}
}

// RunOnce claims one batch of due tasks and executes them in order. It
// returns how many were claimed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	tasks, err := w.repo.Task.ClaimDue(ctx, time.Now(), w.config.BatchSize, w.config.Lease)
	if err != nil {
		return 0, err
	}

	for _, task := range tasks {
		if ctx.Err() != nil {
			// unfinished claims come back once the lease lapses
			return len(tasks), ctx.Err()
		}
		w.execute(ctx, task)
	}

	return len(tasks), nil
}

func (w *Worker) execute(ctx context.Context, task *entity.Task) {
	log := w.log.With(
		zap.String("task_id", task.ID.String()),
		zap.String("task_type", string(task.Type)),
		zap.String("dedupe_key", task.DedupeKey),
		zap.Int("attempt", task.Attempts+1),
	)

	handler, ok := w.handlers[task.Type]
	if !ok {
		w.fail(ctx, task, task.Attempts+1, fmt.Sprintf("unknown task type %q", task.Type), log)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, w.config.Lease)
	err := handler(runCtx, task)
	cancel()

	if err == nil {
		if err := w.repo.Task.MarkDone(ctx, task.ID); err != nil {
			log.Error("Failed to mark task done", zap.Error(err))
			return
		}
		log.Debug("Task done")
		return
	}

	attempts := task.Attempts + 1
	maxAttempts := task.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = w.config.MaxAttempts
	}

	if isPermanent(err) || attempts >= maxAttempts {
		w.fail(ctx, task, attempts, err.Error(), log)
		return
	}

	runAt := time.Now().Add(TaskBackoff(attempts))
	if err := w.repo.Task.Reschedule(ctx, task.ID, attempts, runAt, err.Error()); err != nil {
		log.Error("Failed to reschedule task", zap.Error(err))
		return
	}
	log.Warn("Task failed, will retry", zap.Error(err), zap.Time("run_at", runAt))
}

func (w *Worker) fail(ctx context.Context, task *entity.Task, attempts int, lastErr string, log *zap.Logger) {
	if err := w.repo.Task.MarkFailed(ctx, task.ID, attempts, lastErr); err != nil {
		log.Error("Failed to mark task failed", zap.Error(err))
		return
	}
	log.Error("Task failed permanently", zap.String("last_error", lastErr))
}

// isPermanent reports errors that no retry can fix.
func isPermanent(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) || errors.Is(err, ErrVoucherNotFound)
}

// ==================== Handlers ====================

func decodePayload(task *entity.Task, dst any) error {
	if err := json.Unmarshal(task.Payload, dst); err != nil {
		return newValidationError(CodeInvalidPayload, "payload", fmt.Sprintf("undecodable %s payload: %v", task.Type, err))
	}
	return nil
}

func (w *Worker) provisionVoucher(ctx context.Context, task *entity.Task) error {
	var p RadiusProvisionPayload
	if err := decodePayload(task, &p); err != nil {
		return err
	}
	return w.svc.Voucher.ProvisionVoucherAccess(ctx, p.VoucherCode)
}

func (w *Worker) removeRadiusUser(ctx context.Context, task *entity.Task) error {
	var p RadiusRemovePayload
	if err := decodePayload(task, &p); err != nil {
		return err
	}
	return w.repo.Radius.RemoveUser(ctx, p.Username)
}

func (w *Worker) awardLoyalty(ctx context.Context, task *entity.Task) error {
	var p LoyaltyAwardPayload
	if err := decodePayload(task, &p); err != nil {
		return err
	}
	_, err := w.svc.Loyalty.AwardPoints(ctx, p.Phone, p.OrderID, p.Amount)
	return err
}

func (w *Worker) sendSMS(ctx context.Context, task *entity.Task) error {
	var p SMSPayload
	if err := decodePayload(task, &p); err != nil {
		return err
	}
	// the dedupe key doubles as the provider message id
	return w.svc.Notification.Send(ctx, p.Phone, p.Message, task.DedupeKey)
}

func (w *Worker) publishEvent(ctx context.Context, task *entity.Task) error {
	var p EventPayload
	if err := decodePayload(task, &p); err != nil {
		return err
	}
	return w.publisher.Publish(ctx, p.Event, p.Key, p.Data)
}

// ==================== Session monitor ====================

// RunMonitor sweeps sessions and vouchers every MonitorInterval until ctx is
// cancelled.
func (w *Worker) RunMonitor(ctx context.Context) error {
	w.log.Info("Session monitor started", zap.Duration("interval", w.config.MonitorInterval))

	ticker := time.NewTicker(w.config.MonitorInterval)
	defer ticker.Stop()

	for {
		w.sweep(ctx)

		select {
		case <-ctx.Done():
			w.log.Info("Session monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	result, err := w.svc.Session.MonitorSessions(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.log.Error("Session monitor sweep failed", zap.Error(err))
		}
		return
	}

	if result.SessionsExpired > 0 || result.SessionsPaused > 0 || result.VouchersExpired > 0 {
		w.log.Info("Session monitor sweep",
			zap.Int("sessions_expired", result.SessionsExpired),
			zap.Int("heartbeats_missed", result.HeartbeatsMissed),
			zap.Int("sessions_paused", result.SessionsPaused),
			zap.Int("vouchers_expired", result.VouchersExpired),
		)
	}
}
