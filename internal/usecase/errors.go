package usecase

import (
	"errors"
	"fmt"

	"isp-portal/pkg/utils"
)

var (
	ErrPackageNotFound = errors.New("package not found")
	ErrPackageInactive = errors.New("package is not available")

	ErrPaymentNotFound      = errors.New("payment not found")
	ErrInvalidSignature     = errors.New("webhook signature mismatch")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrGatewayNotConfigured = errors.New("payment gateway not configured")

	ErrVoucherNotFound      = errors.New("voucher not found")
	ErrVoucherExpired       = errors.New("voucher has expired")
	ErrVoucherUsed          = errors.New("voucher already used on another device")
	ErrVoucherCancelled     = errors.New("voucher has been cancelled")
	ErrActivationInProgress = errors.New("voucher activation already in progress")
	ErrAccessProvisioning   = errors.New("network access could not be provisioned, try again")

	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExpired    = errors.New("session has expired")
	ErrSessionTerminated = errors.New("session was terminated")
	ErrSessionBusy       = errors.New("session was updated concurrently, retry")

	ErrTaskNotFound   = errors.New("task not found")
	ErrTaskNotFailed  = errors.New("only failed tasks can be retried")
	ErrUserNotFound   = errors.New("user not found")
	ErrUserExists     = errors.New("username or email already registered")
	ErrCannotDeleteMe = errors.New("operators cannot delete their own account")

	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrUnauthorized       = errors.New("authentication required")
)

// Webhook rejection codes.
const (
	CodeMissingOrderID       = "MISSING_ORDER_ID"
	CodeMissingPaymentStatus = "MISSING_PAYMENT_STATUS"
	CodeMissingAmount        = "MISSING_AMOUNT"
	CodeMissingMsisdn        = "MISSING_MSISDN"
	CodeInvalidOrderID       = "INVALID_ORDER_ID"
	CodeInvalidPaymentStatus = "INVALID_PAYMENT_STATUS"
	CodeInvalidAmount        = "INVALID_AMOUNT"
	CodeInvalidMsisdn        = "INVALID_MSISDN"
	CodeInvalidTransactionID = "INVALID_TRANSACTION_ID"
	CodeUnknownPackage       = "UNKNOWN_PACKAGE"
	CodeAmountMismatch       = "AMOUNT_MISMATCH"
	CodeInvalidSignature     = "INVALID_SIGNATURE"
	CodeInvalidPayload       = "INVALID_PAYLOAD"
	CodeValidation           = "VALIDATION_ERROR"
)

// ValidationError is a permanent client error carrying a machine-readable
// code. Handlers answer it with 400.
type ValidationError struct {
	Code    string
	Field   string
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s", e.Code, utils.FormatValidationErrors(e.Fields))
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newValidationError(code, field, message string) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: message}
}

// fieldErrors wraps validator output for request DTOs.
func fieldErrors(errs map[string]string) *ValidationError {
	return &ValidationError{Code: CodeValidation, Message: "Validation failed", Fields: errs}
}
