package response

import (
	"encoding/json"
	"time"

	"isp-portal/internal/data/entity"
)

type TaskResponse struct {
	ID          string            `json:"id"`
	Type        entity.TaskType   `json:"task_type"`
	DedupeKey   string            `json:"dedupe_key"`
	Payload     json.RawMessage   `json:"payload"`
	Status      entity.TaskStatus `json:"status"`
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"max_attempts"`
	RunAt       time.Time         `json:"run_at"`
	LastError   *string           `json:"last_error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func TaskToResponse(t *entity.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID.String(),
		Type:        t.Type,
		DedupeKey:   t.DedupeKey,
		Payload:     t.Payload,
		Status:      t.Status,
		Attempts:    t.Attempts,
		MaxAttempts: t.MaxAttempts,
		RunAt:       t.RunAt,
		LastError:   t.LastError,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}
