package response

import (
	"time"

	"isp-portal/internal/data/entity"

	"github.com/shopspring/decimal"
)

// Voucher validation states.
const (
	VoucherStateValid     = "VALID"
	VoucherStateExpired   = "EXPIRED"
	VoucherStateUsed      = "USED"
	VoucherStateNotFound  = "NOT_FOUND"
	VoucherStateCancelled = "CANCELLED"
)

type VoucherResponse struct {
	VoucherCode    string               `json:"voucher_code"`
	OrderID        string               `json:"order_id"`
	PackageID      int64                `json:"package_id"`
	PackageName    string               `json:"package_name"`
	DurationDays   int                  `json:"duration_days"`
	Amount         decimal.Decimal      `json:"amount"`
	Currency       string               `json:"currency"`
	CustomerName   *string              `json:"customer_name,omitempty"`
	CustomerPhone  string               `json:"customer_phone"`
	Status         entity.VoucherStatus `json:"status"`
	UsageStatus    entity.VoucherUsage  `json:"usage_status"`
	AccessReady    bool                 `json:"access_ready"`
	ExpiresAt      time.Time            `json:"expires_at"`
	ActivatedAt    *time.Time           `json:"activated_at,omitempty"`
	ActivatedBy    *string              `json:"activated_by,omitempty"`
	CancelledBy    *string              `json:"cancelled_by,omitempty"`
	PaymentChannel *string              `json:"payment_channel,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

type VoucherValidationResponse struct {
	Valid       bool             `json:"valid"`
	State       string           `json:"state"`
	Message     string           `json:"message"`
	AccessReady bool             `json:"access_ready"`
	Voucher     *VoucherResponse `json:"voucher,omitempty"`
}

type ActivationResponse struct {
	Reconnected bool                  `json:"reconnected"`
	Session     SessionStatusResponse `json:"session"`
}

// Helper converters
func VoucherToResponse(v *entity.Voucher) VoucherResponse {
	return VoucherResponse{
		VoucherCode:    v.VoucherCode,
		OrderID:        v.OrderID,
		PackageID:      v.PackageID,
		PackageName:    v.PackageName,
		DurationDays:   v.DurationDays,
		Amount:         v.Amount,
		Currency:       v.Currency,
		CustomerName:   v.CustomerName,
		CustomerPhone:  v.CustomerPhone,
		Status:         v.Status,
		UsageStatus:    v.UsageStatus,
		AccessReady:    v.AccessReady(),
		ExpiresAt:      v.ExpiresAt,
		ActivatedAt:    v.ActivatedAt,
		ActivatedBy:    v.ActivatedBy,
		CancelledBy:    v.CancelledBy,
		PaymentChannel: v.PaymentChannel,
		CreatedAt:      v.CreatedAt,
	}
}
