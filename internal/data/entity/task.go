package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskPending TaskStatus = "PENDING"
	TaskRunning TaskStatus = "RUNNING"
	TaskDone    TaskStatus = "DONE"
	TaskFailed  TaskStatus = "FAILED"
)

type TaskType string

const (
	TaskRadiusProvisionVoucher TaskType = "radius.provision_voucher"
	TaskRadiusRemove           TaskType = "radius.remove"
	TaskLoyaltyAward           TaskType = "loyalty.award"
	TaskSMSSend                TaskType = "sms.send"
	TaskEventPublish           TaskType = "event.publish"
)

// Task is a queued side effect. Rows are written in the same transaction
// as the state change that caused them.
type Task struct {
	ID          uuid.UUID       `db:"id"`
	Type        TaskType        `db:"task_type"`
	DedupeKey   string          `db:"dedupe_key"`
	Payload     json.RawMessage `db:"payload"`
	Status      TaskStatus      `db:"status"`
	Attempts    int             `db:"attempts"`
	MaxAttempts int             `db:"max_attempts"`
	RunAt       time.Time       `db:"run_at"`
	LockedUntil *time.Time      `db:"locked_until"`
	LastError   *string         `db:"last_error"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}
