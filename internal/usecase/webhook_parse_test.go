package usecase

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBody() map[string]any {
	return map[string]any{
		"order_id":       "PKG_1700000000000_6789_5",
		"payment_status": "COMPLETED",
		"amount":         "2000",
		"msisdn":         "255766123456",
	}
}

func TestParseWebhookPayload_Valid(t *testing.T) {
	p, verr := ParseWebhookPayload(validBody())
	require.Nil(t, verr)

	assert.Equal(t, "PKG_1700000000000_6789_5", p.OrderID)
	assert.Equal(t, "COMPLETED", p.PaymentStatus)
	assert.Equal(t, "2000", p.Amount.String())
	assert.Equal(t, "255766123456", p.Phone)
	assert.Equal(t, OutcomeSuccess, p.Outcome())
	assert.Equal(t, "status:COMPLETED", p.EventKey())
}

func TestParseWebhookPayload_Aliases(t *testing.T) {
	var body map[string]any
	raw := `{"orderId":"PKG_1700000000000_1234_3","status":"success","total":1500.5,
		"phoneNumber":"+255 766-123-456","transid":"TX998877","packageId":"3",
		"buyer_name":"Juma","buyer_email":"j@example.com","payment_channel":"MPESA"}`
	require.NoError(t, json.Unmarshal([]byte(raw), &body))

	p, verr := ParseWebhookPayload(body)
	require.Nil(t, verr)

	assert.Equal(t, "SUCCESS", p.PaymentStatus)
	assert.Equal(t, "1500.5", p.Amount.String())
	assert.Equal(t, "255766123456", p.Phone)
	assert.Equal(t, "TX998877", p.TransactionID)
	assert.Equal(t, "tx:TX998877:SUCCESS", p.EventKey())
	assert.Equal(t, int64(3), p.PackageID)
	assert.Equal(t, "Juma", p.CustomerName)
	assert.Equal(t, "j@example.com", p.Email)
	assert.Equal(t, "MPESA", p.Channel)
}

func TestParseWebhookPayload_ValidationOrder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		code   string
	}{
		{"missing order id", func(b map[string]any) { delete(b, "order_id") }, CodeMissingOrderID},
		{"missing status beats missing amount", func(b map[string]any) {
			delete(b, "payment_status")
			delete(b, "amount")
		}, CodeMissingPaymentStatus},
		{"missing amount", func(b map[string]any) { b["amount"] = "" }, CodeMissingAmount},
		{"missing msisdn", func(b map[string]any) { delete(b, "msisdn") }, CodeMissingMsisdn},
		{"bad prefix", func(b map[string]any) { b["order_id"] = "ORD_1700000000000_1_1" }, CodeInvalidOrderID},
		{"too short", func(b map[string]any) { b["order_id"] = "PKG_12" }, CodeInvalidOrderID},
		{"unknown status", func(b map[string]any) { b["payment_status"] = "REFUNDED" }, CodeInvalidPaymentStatus},
		{"zero amount", func(b map[string]any) { b["amount"] = "0" }, CodeInvalidAmount},
		{"negative amount", func(b map[string]any) { b["amount"] = -5.0 }, CodeInvalidAmount},
		{"garbage amount", func(b map[string]any) { b["amount"] = "abc" }, CodeInvalidAmount},
		{"short phone", func(b map[string]any) { b["msisdn"] = "12345" }, CodeInvalidMsisdn},
		{"letters in phone", func(b map[string]any) { b["msisdn"] = "2557abc23456" }, CodeInvalidMsisdn},
		{"short transaction id", func(b map[string]any) { b["transaction_id"] = "T1" }, CodeInvalidTransactionID},
		{"invalid order id beats invalid amount", func(b map[string]any) {
			b["order_id"] = "X"
			b["amount"] = "0"
		}, CodeInvalidOrderID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := validBody()
			tt.mutate(body)

			p, verr := ParseWebhookPayload(body)
			assert.Nil(t, p)
			require.NotNil(t, verr)
			assert.Equal(t, tt.code, verr.Code)
		})
	}
}

func TestStatusFamilies(t *testing.T) {
	for _, s := range []string{"SUCCESS", "COMPLETED"} {
		assert.Equal(t, OutcomeSuccess, (&WebhookPayload{PaymentStatus: s}).Outcome(), s)
	}
	assert.Equal(t, OutcomePending, (&WebhookPayload{PaymentStatus: "PENDING"}).Outcome())
	for _, s := range []string{"FAILED", "CANCELLED", "INSUFFICIENT_BALANCE", "INVALID_PIN", "USER_CANCELLED", "EXPIRED", "TIMEOUT", "NETWORK_ERROR", "ERROR"} {
		assert.Equal(t, OutcomeFailure, (&WebhookPayload{PaymentStatus: s}).Outcome(), s)
	}
}

func TestFailureMessages(t *testing.T) {
	tests := []struct {
		status  string
		reason  string
		message string
	}{
		{"INSUFFICIENT_BALANCE", "INSUFFICIENT_BALANCE", "Insufficient balance! Please top up your mobile money account."},
		{"INVALID_PIN", "INVALID_PIN", "Invalid PIN! Please try again with the correct PIN."},
		{"USER_CANCELLED", "USER_CANCELLED", "Payment cancelled. Please try again."},
		{"CANCELLED", "CANCELLED", "Payment cancelled. Please try again."},
		{"EXPIRED", "EXPIRED", "Payment expired. Please initiate a new payment."},
		{"TIMEOUT", "TIMEOUT", "Payment timed out. Please try again."},
		{"NETWORK_ERROR", "NETWORK_ERROR", "Network error. Please check your connection and try again."},
		{"FAILED", "FAILED", "Payment failed. Please try again."},
		{"ERROR", "FAILED", "Payment failed. Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			reason := FailureReason(tt.status)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, tt.message, FailureMessage(reason))
		})
	}
}

func TestLegacyPackageID(t *testing.T) {
	id, ok := legacyPackageID("PKG_1700000000000_6789_5")
	assert.True(t, ok)
	assert.Equal(t, int64(5), id)

	_, ok = legacyPackageID("PKG_1700000000000_6789")
	assert.False(t, ok)

	_, ok = legacyPackageID("PKG_1700000000000_6789_x")
	assert.False(t, ok)
}
