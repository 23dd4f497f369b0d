package usecase

import (
	"encoding/json"
	"strconv"
	"strings"

	"isp-portal/pkg/utils"

	"github.com/shopspring/decimal"
)

const (
	orderIDPrefix    = "PKG_"
	minOrderIDLength = 10
	minTxIDLength    = 5
)

// field aliases accepted from the gateway, in lookup order
var (
	orderIDKeys   = []string{"order_id", "orderId", "reference", "order_reference"}
	statusKeys    = []string{"payment_status", "status", "paymentStatus", "result"}
	amountKeys    = []string{"amount", "total", "amount_paid", "amountPaid"}
	msisdnKeys    = []string{"msisdn", "phone", "phone_number", "buyer_phone", "phoneNumber"}
	txIDKeys      = []string{"transaction_id", "transid", "transactionId", "tx_id"}
	gatewayRefKey = []string{"payment_reference", "gateway_reference", "reference_id"}
	packageKeys   = []string{"package_id", "packageId"}
	nameKeys      = []string{"customer_name", "buyer_name", "name"}
	emailKeys     = []string{"email", "buyer_email"}
	channelKeys   = []string{"channel", "payment_channel"}
)

type PaymentOutcome int

const (
	OutcomeSuccess PaymentOutcome = iota + 1
	OutcomePending
	OutcomeFailure
)

var statusFamilies = map[string]PaymentOutcome{
	"SUCCESS":              OutcomeSuccess,
	"COMPLETED":            OutcomeSuccess,
	"PENDING":              OutcomePending,
	"FAILED":               OutcomeFailure,
	"CANCELLED":            OutcomeFailure,
	"INSUFFICIENT_BALANCE": OutcomeFailure,
	"INVALID_PIN":          OutcomeFailure,
	"USER_CANCELLED":       OutcomeFailure,
	"EXPIRED":              OutcomeFailure,
	"TIMEOUT":              OutcomeFailure,
	"NETWORK_ERROR":        OutcomeFailure,
	"ERROR":                OutcomeFailure,
}

var failureMessages = map[string]string{
	"INSUFFICIENT_BALANCE": "Insufficient balance! Please top up your mobile money account.",
	"INVALID_PIN":          "Invalid PIN! Please try again with the correct PIN.",
	"USER_CANCELLED":       "Payment cancelled. Please try again.",
	"CANCELLED":            "Payment cancelled. Please try again.",
	"EXPIRED":              "Payment expired. Please initiate a new payment.",
	"TIMEOUT":              "Payment timed out. Please try again.",
	"NETWORK_ERROR":        "Network error. Please check your connection and try again.",
}

const defaultFailureMessage = "Payment failed. Please try again."

// WebhookPayload is a validated, alias-resolved gateway callback.
type WebhookPayload struct {
	OrderID          string
	PaymentStatus    string
	Amount           decimal.Decimal
	Msisdn           string
	Phone            string
	TransactionID    string
	GatewayReference string
	PackageID        int64
	CustomerName     string
	Email            string
	Channel          string
}

func (p *WebhookPayload) Outcome() PaymentOutcome {
	return statusFamilies[p.PaymentStatus]
}

// EventKey identifies one delivery for idempotency: the gateway transaction
// id plus the normalized status when an id is present, otherwise the status
// alone. A later status for the same transaction is a new event.
func (p *WebhookPayload) EventKey() string {
	if p.TransactionID != "" {
		return "tx:" + p.TransactionID + ":" + p.PaymentStatus
	}
	return "status:" + p.PaymentStatus
}

// FailureReason maps a failure-family status to the reason stored on the
// payment. Generic failures collapse to FAILED.
func FailureReason(status string) string {
	if _, ok := failureMessages[status]; ok {
		return status
	}
	return "FAILED"
}

// FailureMessage is the customer-facing text for a failure reason.
func FailureMessage(reason string) string {
	if msg, ok := failureMessages[reason]; ok {
		return msg
	}
	return defaultFailureMessage
}

// ParseWebhookPayload resolves field aliases and validates the callback.
// Checks run in a fixed order and the first failure is returned.
func ParseWebhookPayload(body map[string]any) (*WebhookPayload, *ValidationError) {
	orderID := lookup(body, orderIDKeys)
	status := lookup(body, statusKeys)
	amount := lookup(body, amountKeys)
	msisdn := lookup(body, msisdnKeys)
	txID := lookup(body, txIDKeys)

	switch {
	case orderID == "":
		return nil, newValidationError(CodeMissingOrderID, "order_id", "Order ID is required")
	case status == "":
		return nil, newValidationError(CodeMissingPaymentStatus, "payment_status", "Payment status is required")
	case amount == "":
		return nil, newValidationError(CodeMissingAmount, "amount", "Amount is required")
	case msisdn == "":
		return nil, newValidationError(CodeMissingMsisdn, "msisdn", "Phone number is required")
	}

	if !strings.HasPrefix(orderID, orderIDPrefix) || len(orderID) < minOrderIDLength {
		return nil, newValidationError(CodeInvalidOrderID, "order_id", "Order ID format is invalid")
	}

	status = strings.ToUpper(status)
	if _, ok := statusFamilies[status]; !ok {
		return nil, newValidationError(CodeInvalidPaymentStatus, "payment_status", "Unsupported payment status "+status)
	}

	parsedAmount, err := decimal.NewFromString(amount)
	if err != nil || !parsedAmount.IsPositive() {
		return nil, newValidationError(CodeInvalidAmount, "amount", "Amount must be a positive number")
	}

	if !utils.IsValidMSISDN(msisdn) {
		return nil, newValidationError(CodeInvalidMsisdn, "msisdn", "Phone number must have 9 to 15 digits")
	}

	if txID != "" && len(txID) < minTxIDLength {
		return nil, newValidationError(CodeInvalidTransactionID, "transaction_id", "Transaction ID is too short")
	}

	payload := &WebhookPayload{
		OrderID:          orderID,
		PaymentStatus:    status,
		Amount:           parsedAmount,
		Msisdn:           msisdn,
		Phone:            utils.NormalizePhone(msisdn),
		TransactionID:    txID,
		GatewayReference: lookup(body, gatewayRefKey),
		CustomerName:     lookup(body, nameKeys),
		Email:            lookup(body, emailKeys),
		Channel:          lookup(body, channelKeys),
	}

	if raw := lookup(body, packageKeys); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			payload.PackageID = id
		}
	}

	return payload, nil
}

// legacyPackageID reads the package id from the last "_" segment of an
// order id (PKG_<millis>_<last4>_<package>).
func legacyPackageID(orderID string) (int64, bool) {
	parts := strings.Split(orderID, "_")
	if len(parts) < 4 {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// lookup returns the first non-empty alias value rendered as a string.
// JSON numbers and strings are both accepted.
func lookup(body map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := body[k]
		if !ok || v == nil {
			continue
		}

		s, ok := renderValue(v)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func renderValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}
