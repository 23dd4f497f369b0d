package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is the idempotency record for one gateway delivery, keyed by
// (order id, event key).
type WebhookEvent struct {
	ID            uuid.UUID       `db:"id"`
	OrderID       string          `db:"order_id"`
	EventKey      string          `db:"event_key"`
	PaymentStatus string          `db:"payment_status"`
	Gateway       string          `db:"gateway"`
	TransactionID *string         `db:"transaction_id"`
	IPAddress     *string         `db:"ip_address"`
	Payload       json.RawMessage `db:"payload"`
	Processed     bool            `db:"processed"`
	ResultStatus  *string         `db:"result_status"`
	Result        json.RawMessage `db:"result"`
	ErrorMessage  *string         `db:"error_message"`
	ProcessedAt   *time.Time      `db:"processed_at"`
	CreatedAt     time.Time       `db:"created_at"`
}
