package response

import (
	"time"

	"isp-portal/internal/data/entity"

	"github.com/shopspring/decimal"
)

type InitiatePaymentResponse struct {
	OrderID          string          `json:"order_id"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	PaymentURL       string          `json:"payment_url,omitempty"`
	PackageID        int64           `json:"package_id"`
	PackageName      string          `json:"package_name"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	Message          string          `json:"message,omitempty"`
}

// PaymentStatusResponse is what the captive portal polls while the customer
// confirms on their handset.
type PaymentStatusResponse struct {
	OrderID         string     `json:"order_id"`
	Status          string     `json:"status"`
	VoucherCode     *string    `json:"voucher_code,omitempty"`
	FailureReason   *string    `json:"failure_reason,omitempty"`
	CustomerMessage string     `json:"customer_message,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

type PaymentResponse struct {
	ID                   string               `json:"id"`
	OrderID              string               `json:"order_id"`
	Amount               decimal.Decimal      `json:"amount"`
	Currency             string               `json:"currency"`
	Method               string               `json:"method"`
	Gateway              string               `json:"gateway"`
	PhoneNumber          string               `json:"phone_number"`
	Status               entity.PaymentStatus `json:"status"`
	GatewayTransactionID *string              `json:"gateway_transaction_id,omitempty"`
	GatewayReference     *string              `json:"gateway_reference,omitempty"`
	PaymentChannel       *string              `json:"payment_channel,omitempty"`
	FailureReason        *string              `json:"failure_reason,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	ConfirmedAt          *time.Time           `json:"confirmed_at,omitempty"`
}

type InvoiceResponse struct {
	InvoiceNumber string               `json:"invoice_number"`
	Amount        decimal.Decimal      `json:"amount"`
	Currency      string               `json:"currency"`
	Status        entity.InvoiceStatus `json:"status"`
	IssuedAt      time.Time            `json:"issued_at"`
}

type PaymentDetailResponse struct {
	OrderID           string           `json:"order_id"`
	PackageID         *int64           `json:"package_id,omitempty"`
	CorrelationStatus *string          `json:"correlation_status,omitempty"`
	Payment           *PaymentResponse `json:"payment,omitempty"`
	Invoice           *InvoiceResponse `json:"invoice,omitempty"`
	Voucher           *VoucherResponse `json:"voucher,omitempty"`
}

// Helper converters
func PaymentToResponse(p *entity.Payment) PaymentResponse {
	return PaymentResponse{
		ID:                   p.ID.String(),
		OrderID:              p.OrderID,
		Amount:               p.Amount,
		Currency:             p.Currency,
		Method:               p.Method,
		Gateway:              p.Gateway,
		PhoneNumber:          p.PhoneNumber,
		Status:               p.Status,
		GatewayTransactionID: p.GatewayTransactionID,
		GatewayReference:     p.GatewayReference,
		PaymentChannel:       p.PaymentChannel,
		FailureReason:        p.FailureReason,
		CreatedAt:            p.CreatedAt,
		ConfirmedAt:          p.ConfirmedAt,
	}
}

func InvoiceToResponse(i *entity.Invoice) InvoiceResponse {
	return InvoiceResponse{
		InvoiceNumber: i.InvoiceNumber,
		Amount:        i.Amount,
		Currency:      i.Currency,
		Status:        i.Status,
		IssuedAt:      i.IssuedAt,
	}
}
