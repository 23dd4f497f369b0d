package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"isp-portal/internal/data/entity"
	"isp-portal/internal/data/repository"
	"isp-portal/internal/dto/response"
	"isp-portal/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	taskBaseBackoff = 5 * time.Second
	taskMaxBackoff  = 10 * time.Minute
)

// ==================== Task payloads ====================

type RadiusProvisionPayload struct {
	VoucherCode string `json:"voucher_code"`
}

type RadiusRemovePayload struct {
	Username string `json:"username"`
}

type LoyaltyAwardPayload struct {
	Phone   string          `json:"phone"`
	OrderID string          `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
}

type SMSPayload struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

type EventPayload struct {
	Event string          `json:"event"`
	Key   string          `json:"key"`
	Data  json.RawMessage `json:"data"`
}

// TaskBackoff is the delay before the next attempt: 5s doubling per
// attempt, capped at 10 minutes.
func TaskBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := taskBaseBackoff
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= taskMaxBackoff {
			return taskMaxBackoff
		}
	}
	return d
}

type TaskService interface {
	// Enqueue writes a task through repo, which may be bound to the caller's
	// transaction. It reports false when the dedupe key already exists.
	Enqueue(ctx context.Context, repo repository.TaskRepository, taskType entity.TaskType, dedupeKey string, payload any) (bool, error)
	ListTasks(ctx context.Context, status string, page, perPage int) (*response.PaginatedResponse[response.TaskResponse], error)
	RetryTask(ctx context.Context, id uuid.UUID) (*response.TaskResponse, error)
	// Nudge wakes the worker early. It never blocks.
	Nudge()
	Wakeups() <-chan struct{}
}

type taskService struct {
	repo        *repository.Repository
	maxAttempts int
	wake        chan struct{}
	log         *zap.Logger
}

func NewTaskService(repo *repository.Repository, config *utils.Config, log *zap.Logger) TaskService {
	maxAttempts := config.Worker.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	return &taskService{
		repo:        repo,
		maxAttempts: maxAttempts,
		wake:        make(chan struct{}, 1),
		log:         log.With(zap.String("service", "task")),
	}
}

func (s *taskService) Enqueue(ctx context.Context, repo repository.TaskRepository, taskType entity.TaskType, dedupeKey string, payload any) (bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encode %s payload: %w", taskType, err)
	}

	now := time.Now()
	task := &entity.Task{
		ID:          utils.GenerateUUID(),
		Type:        taskType,
		DedupeKey:   dedupeKey,
		Payload:     raw,
		Status:      entity.TaskPending,
		MaxAttempts: s.maxAttempts,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := repo.Enqueue(ctx, task)
	if err != nil {
		return false, err
	}

	if !created {
		s.log.Debug("Task already queued", zap.String("dedupe_key", dedupeKey))
	}
	return created, nil
}

func (s *taskService) ListTasks(ctx context.Context, status string, page, perPage int) (*response.PaginatedResponse[response.TaskResponse], error) {
	offset := utils.CalculateOffset(page, perPage)

	tasks, err := s.repo.Task.List(ctx, status, perPage, offset)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.Task.Count(ctx, status)
	if err != nil {
		return nil, err
	}

	data := make([]response.TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		data = append(data, response.TaskToResponse(t))
	}

	return response.NewPaginatedResponse(data, page, perPage, total), nil
}

func (s *taskService) RetryTask(ctx context.Context, id uuid.UUID) (*response.TaskResponse, error) {
	task, err := s.repo.Task.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	if task.Status != entity.TaskFailed {
		return nil, ErrTaskNotFailed
	}

	ok, err := s.repo.Task.Requeue(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		// someone else requeued it first
		return nil, ErrTaskNotFailed
	}

	s.log.Info("Task requeued", zap.String("task_id", id.String()), zap.String("task_type", string(task.Type)))
	s.Nudge()

	task, err = s.repo.Task.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}

	resp := response.TaskToResponse(task)
	return &resp, nil
}

func (s *taskService) Nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *taskService) Wakeups() <-chan struct{} {
	return s.wake
}

// ==================== Enqueue helpers ====================

func enqueueEvent(ctx context.Context, tasks TaskService, repo repository.TaskRepository, event, key string, data any) (bool, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("encode %s event: %w", event, err)
	}
	return tasks.Enqueue(ctx, repo, entity.TaskEventPublish,
		fmt.Sprintf("%s:%s:%s", entity.TaskEventPublish, event, key),
		EventPayload{Event: event, Key: key, Data: raw},
	)
}

func enqueueRadiusRemove(ctx context.Context, tasks TaskService, repo repository.TaskRepository, username, reason string) (bool, error) {
	return tasks.Enqueue(ctx, repo, entity.TaskRadiusRemove,
		fmt.Sprintf("%s:%s:%s", entity.TaskRadiusRemove, username, reason),
		RadiusRemovePayload{Username: username},
	)
}

// queuedStep renders an Enqueue outcome for the webhook steps map.
func queuedStep(created bool) string {
	if created {
		return "queued"
	}
	return "already_queued"
}
