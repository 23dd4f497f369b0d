package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type VoucherStatus string

const (
	// VoucherIssuedAccessPending means the voucher exists but its RADIUS
	// credential has not been confirmed yet.
	VoucherIssuedAccessPending VoucherStatus = "ISSUED_ACCESS_PENDING"
	VoucherActive              VoucherStatus = "ACTIVE"
	VoucherExpired             VoucherStatus = "EXPIRED"
	VoucherCancelled           VoucherStatus = "CANCELLED"
)

type VoucherUsage string

const (
	VoucherUnused      VoucherUsage = "UNUSED"
	VoucherUsed        VoucherUsage = "USED"
	VoucherUsageExpire VoucherUsage = "EXPIRED"
)

type Voucher struct {
	BaseNoDelete
	VoucherCode      string          `db:"voucher_code"`
	OrderID          string          `db:"order_id"`
	PackageID        int64           `db:"package_id"`
	PackageName      string          `db:"package_name"`
	DurationDays     int             `db:"duration_days"`
	Amount           decimal.Decimal `db:"amount"`
	Currency         string          `db:"currency"`
	CustomerName     *string         `db:"customer_name"`
	CustomerPhone    string          `db:"customer_phone"`
	CustomerEmail    *string         `db:"customer_email"`
	Status           VoucherStatus   `db:"status"`
	UsageStatus      VoucherUsage    `db:"usage_status"`
	ExpiresAt        time.Time       `db:"expires_at"`
	ActivatedAt      *time.Time      `db:"activated_at"`
	ActivatedBy      *string         `db:"activated_by"`
	AccessReadyAt    *time.Time      `db:"access_ready_at"`
	CancelledBy      *string         `db:"cancelled_by"`
	PaymentReference *string         `db:"payment_reference"`
	TransactionID    *string         `db:"transaction_id"`
	PaymentChannel   *string         `db:"payment_channel"`
}

func (v *Voucher) IsExpired(now time.Time) bool {
	return v.Status == VoucherExpired || v.UsageStatus == VoucherUsageExpire || !now.Before(v.ExpiresAt)
}

func (v *Voucher) AccessReady() bool {
	return v.AccessReadyAt != nil
}

// RadiusUsername is the hotspot login created at issuance.
func (v *Voucher) RadiusUsername() string {
	return "voucher_" + v.VoucherCode
}
