package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const InvoiceStatusPaid InvoiceStatus = "PAID"

type Invoice struct {
	BaseSimple
	InvoiceNumber string          `db:"invoice_number"`
	OrderID       string          `db:"order_id"`
	CustomerID    uuid.UUID       `db:"customer_id"`
	PackageID     int64           `db:"package_id"`
	Amount        decimal.Decimal `db:"amount"`
	Currency      string          `db:"currency"`
	Status        InvoiceStatus   `db:"status"`
	IssuedAt      time.Time       `db:"issued_at"`
}
