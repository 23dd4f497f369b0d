package response

// Webhook result statuses.
const (
	WebhookSuccess  = "success"
	WebhookFailed   = "failed"
	WebhookPending  = "pending"
	WebhookRejected = "rejected"
	WebhookIgnored  = "ignored"
	WebhookError    = "error"
)

// WebhookResult is stored with the webhook event and replayed verbatim to
// duplicate deliveries.
type WebhookResult struct {
	Status          string            `json:"status"`
	Message         string            `json:"message,omitempty"`
	OrderID         string            `json:"order_id,omitempty"`
	VoucherCode     string            `json:"voucher_code,omitempty"`
	SmsStatus       string            `json:"sms_status,omitempty"`
	FailureReason   string            `json:"failure_reason,omitempty"`
	CustomerMessage string            `json:"customer_message,omitempty"`
	ErrorCode       string            `json:"error_code,omitempty"`
	Duplicate       bool              `json:"duplicate"`
	Steps           map[string]string `json:"steps,omitempty"`
}
