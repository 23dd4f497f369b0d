package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type CorrelationStatus string

const (
	CorrelationInitiated CorrelationStatus = "INITIATED"
	CorrelationCompleted CorrelationStatus = "COMPLETED"
	CorrelationFailed    CorrelationStatus = "FAILED"
)

// OrderCorrelation ties a gateway order id to the phone and package chosen
// when the payment was initiated.
type OrderCorrelation struct {
	OrderID          string            `db:"order_id"`
	PhoneNumber      string            `db:"phone_number"`
	PackageID        int64             `db:"package_id"`
	Amount           decimal.Decimal   `db:"amount"`
	CustomerName     *string           `db:"customer_name"`
	Email            *string           `db:"email"`
	Gateway          string            `db:"gateway"`
	GatewayReference *string           `db:"gateway_reference"`
	PaymentURL       *string           `db:"payment_url"`
	Status           CorrelationStatus `db:"status"`
	CreatedAt        time.Time         `db:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at"`
}
