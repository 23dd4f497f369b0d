package repository

import (
	"context"
	"fmt"
	"time"

	"isp-portal/internal/data/entity"
	"isp-portal/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// WebhookEventRepository is the idempotency ledger for gateway callbacks.
type WebhookEventRepository interface {
	// Reserve inserts the event and reports whether this call owns it. A
	// concurrent reservation of the same key blocks until the owner commits.
	Reserve(ctx context.Context, e *entity.WebhookEvent) (bool, error)
	FindByKey(ctx context.Context, orderID, eventKey string) (*entity.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, resultStatus string, result []byte, errMsg *string, at time.Time) error
}

type webhookEventRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewWebhookEventRepository(db database.Querier, log *zap.Logger) WebhookEventRepository {
	return &webhookEventRepository{
		db:  db,
		log: log.With(zap.String("repository", "webhook_event")),
	}
}

func (r *webhookEventRepository) Reserve(ctx context.Context, e *entity.WebhookEvent) (bool, error) {
	query := `
		INSERT INTO webhook_events (id, order_id, event_key, payment_status, gateway, transaction_id, ip_address, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (order_id, event_key) DO NOTHING
	`

	result, err := r.db.Exec(ctx, query,
		e.ID,
		e.OrderID,
		e.EventKey,
		e.PaymentStatus,
		e.Gateway,
		e.TransactionID,
		e.IPAddress,
		[]byte(e.Payload),
		e.CreatedAt,
	)

	if err != nil {
		r.log.Error("Failed to reserve webhook event",
			zap.Error(err),
			zap.String("order_id", e.OrderID),
			zap.String("event_key", e.EventKey),
		)
		return false, fmt.Errorf("reserve webhook event %s/%s: %w", e.OrderID, e.EventKey, err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *webhookEventRepository) FindByKey(ctx context.Context, orderID, eventKey string) (*entity.WebhookEvent, error) {
	query := `
		SELECT id, order_id, event_key, payment_status, gateway, transaction_id, ip_address, payload,
		       processed, result_status, result, error_message, processed_at, created_at
		FROM webhook_events
		WHERE order_id = $1 AND event_key = $2
	`

	var (
		e       entity.WebhookEvent
		payload []byte
		result  []byte
	)
	err := r.db.QueryRow(ctx, query, orderID, eventKey).Scan(
		&e.ID,
		&e.OrderID,
		&e.EventKey,
		&e.PaymentStatus,
		&e.Gateway,
		&e.TransactionID,
		&e.IPAddress,
		&payload,
		&e.Processed,
		&e.ResultStatus,
		&result,
		&e.ErrorMessage,
		&e.ProcessedAt,
		&e.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find webhook event",
			zap.Error(err),
			zap.String("order_id", orderID),
			zap.String("event_key", eventKey),
		)
		return nil, fmt.Errorf("find webhook event %s/%s: %w", orderID, eventKey, err)
	}

	e.Payload = payload
	e.Result = result
	return &e, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID, resultStatus string, result []byte, errMsg *string, at time.Time) error {
	query := `
		UPDATE webhook_events
		SET processed = TRUE, result_status = $2, result = $3, error_message = $4, processed_at = $5
		WHERE id = $1
	`

	if _, err := r.db.Exec(ctx, query, id, resultStatus, result, errMsg, at); err != nil {
		r.log.Error("Failed to mark webhook event processed",
			zap.Error(err),
			zap.String("event_id", id.String()),
		)
		return fmt.Errorf("mark webhook event %s processed: %w", id.String(), err)
	}

	return nil
}
