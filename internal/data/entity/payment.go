package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

const (
	PaymentMethodMobileMoney = "MOBILE_MONEY"
	GatewayZenoPay           = "ZENOPAY"
)

type Payment struct {
	BaseNoDelete
	OrderID              string          `db:"order_id"`
	InvoiceID            *uuid.UUID      `db:"invoice_id"`
	CustomerID           *uuid.UUID      `db:"customer_id"`
	Amount               decimal.Decimal `db:"amount"`
	Currency             string          `db:"currency"`
	Method               string          `db:"method"`
	Gateway              string          `db:"gateway"`
	PhoneNumber          string          `db:"phone_number"`
	Status               PaymentStatus   `db:"status"`
	GatewayTransactionID *string         `db:"gateway_transaction_id"`
	GatewayReference     *string         `db:"gateway_reference"`
	PaymentChannel       *string         `db:"payment_channel"`
	FailureReason        *string         `db:"failure_reason"`
	ProcessedAt          *time.Time      `db:"processed_at"`
	ConfirmedAt          *time.Time      `db:"confirmed_at"`
}
