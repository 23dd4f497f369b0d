package usecase

import (
	"context"
	"errors"
	"testing"

	"isp-portal/internal/data/entity"
	"isp-portal/internal/dto/response"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrderID = "PKG_1700000000000_3456_1"

func successBody(orderID string) map[string]any {
	return map[string]any{
		"order_id":       orderID,
		"payment_status": "COMPLETED",
		"amount":         "2000",
		"msisdn":         "0766123456",
		"transaction_id": "TX1234567",
		"channel":        "MPESA",
	}
}

func failureBody(orderID, status string) map[string]any {
	return map[string]any{
		"order_id":       orderID,
		"payment_status": status,
		"amount":         "2000",
		"msisdn":         "255766123456",
	}
}

func gatewayMeta() WebhookMeta {
	return WebhookMeta{Source: WebhookSourceGateway, IPAddress: "10.0.0.1"}
}

func TestHandleWebhook_SuccessIssuesVoucher(t *testing.T) {
	f := newFixture()
	pkg := f.store.addPackage("Monthly", 2000, 30)

	res, err := f.svc.Webhook.HandleWebhook(context.Background(), successBody(testOrderID), gatewayMeta())
	require.NoError(t, err)

	assert.Equal(t, response.WebhookSuccess, res.Status)
	assert.False(t, res.Duplicate)
	require.Len(t, res.VoucherCode, 8)
	assert.Equal(t, "queued", res.SmsStatus)
	assert.Equal(t, "created", res.Steps["customer"])

	voucher := f.store.voucher(res.VoucherCode)
	assert.Equal(t, entity.VoucherIssuedAccessPending, voucher.Status)
	assert.Equal(t, entity.VoucherUnused, voucher.UsageStatus)
	assert.Equal(t, pkg.ID, voucher.PackageID)
	assert.Equal(t, "255766123456", voucher.CustomerPhone)
	assert.Equal(t, 30, voucher.DurationDays)

	payment, err := f.repo.Payment.FindByOrderID(context.Background(), testOrderID)
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, entity.PaymentStatusCompleted, payment.Status)
	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(2000)))

	invoice, err := f.repo.Invoice.FindByOrderID(context.Background(), testOrderID)
	require.NoError(t, err)
	require.NotNil(t, invoice)
	assert.Equal(t, entity.InvoiceStatusPaid, invoice.Status)

	assert.Len(t, f.store.tasksOfType(entity.TaskRadiusProvisionVoucher), 1)
	assert.Len(t, f.store.tasksOfType(entity.TaskLoyaltyAward), 1)
	assert.Len(t, f.store.tasksOfType(entity.TaskSMSSend), 1)
	assert.Len(t, f.store.tasksOfType(entity.TaskEventPublish), 1)
}

func TestHandleWebhook_ReplayReturnsStoredResult(t *testing.T) {
	f := newFixture()
	f.store.addPackage("Monthly", 2000, 30)
	ctx := context.Background()

	first, err := f.svc.Webhook.HandleWebhook(ctx, successBody(testOrderID), gatewayMeta())
	require.NoError(t, err)

	second, err := f.svc.Webhook.HandleWebhook(ctx, successBody(testOrderID), gatewayMeta())
	require.NoError(t, err)

	assert.Equal(t, response.WebhookSuccess, second.Status)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.VoucherCode, second.VoucherCode)

	// no second voucher, no second round of side effects
	assert.Len(t, f.store.vouchers, 1)
	assert.Len(t, f.store.tasksOfType(entity.TaskSMSSend), 1)
}

func TestHandleWebhook_SecondSuccessWithNewTransactionIsDuplicate(t *testing.T) {
	f := newFixture()
	f.store.addPackage("Monthly", 2000, 30)
	ctx := context.Background()

	first, err := f.svc.Webhook.HandleWebhook(ctx, successBody(testOrderID), gatewayMeta())
	require.NoError(t, err)

	body := successBody(testOrderID)
	body["transaction_id"] = "TX7654321"
	second, err := f.svc.Webhook.HandleWebhook(ctx, body, gatewayMeta())
	require.NoError(t, err)

	assert.Equal(t, response.WebhookSuccess, second.Status)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.VoucherCode, second.VoucherCode)
	assert.Len(t, f.store.vouchers, 1)
}

func TestHandleWebhook_FailureForKnownCustomerQueuesSMS(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.repo.Customer.Upsert(ctx, &entity.Customer{PhoneNumber: "255766123456"})
	require.NoError(t, err)

	res, err := f.svc.Webhook.HandleWebhook(ctx, failureBody(testOrderID, "INSUFFICIENT_BALANCE"), gatewayMeta())
	require.NoError(t, err)

	assert.Equal(t, response.WebhookFailed, res.Status)
	assert.Equal(t, "INSUFFICIENT_BALANCE", res.FailureReason)
	assert.Contains(t, res.CustomerMessage, "Insufficient balance")
	assert.Equal(t, "queued", res.SmsStatus)

	payment, err := f.repo.Payment.FindByOrderID(ctx, testOrderID)
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, entity.PaymentStatusFailed, payment.Status)
	assert.Equal(t, "INSUFFICIENT_BALANCE", *payment.FailureReason)

	sms := f.store.tasksOfType(entity.TaskSMSSend)
	require.Len(t, sms, 1)
	assert.Equal(t, "sms.send:payment_failed:"+testOrderID, sms[0].DedupeKey)
	assert.Empty(t, f.store.vouchers)
}

func TestHandleWebhook_FailureForUnknownPhoneCreatesNoCustomer(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Webhook.HandleWebhook(ctx, failureBody(testOrderID, "USER_CANCELLED"), gatewayMeta())
	require.NoError(t, err)

	assert.Equal(t, response.WebhookFailed, res.Status)
	assert.Equal(t, "skipped", res.SmsStatus)
	assert.Empty(t, f.store.customers)
	assert.Empty(t, f.store.tasksOfType(entity.TaskSMSSend))
}

func TestHandleWebhook_GenericFailureReason(t *testing.T) {
	f := newFixture()

	res, err := f.svc.Webhook.HandleWebhook(context.Background(), failureBody(testOrderID, "ERROR"), gatewayMeta())
	require.NoError(t, err)

	assert.Equal(t, "FAILED", res.FailureReason)
	assert.Equal(t, "Payment failed. Please try again.", res.CustomerMessage)
}

func TestHandleWebhook_RepeatedFailureIsDuplicate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.repo.Customer.Upsert(ctx, &entity.Customer{PhoneNumber: "255766123456"})
	require.NoError(t, err)

	_, err = f.svc.Webhook.HandleWebhook(ctx, failureBody(testOrderID, "TIMEOUT"), gatewayMeta())
	require.NoError(t, err)

	res, err := f.svc.Webhook.HandleWebhook(ctx, failureBody(testOrderID, "CANCELLED"), gatewayMeta())
	require.NoError(t, err)

	assert.Equal(t, response.WebhookFailed, res.Status)
	assert.True(t, res.Duplicate)
	assert.Equal(t, "TIMEOUT", res.FailureReason)
	assert.Len(t, f.store.tasksOfType(entity.TaskSMSSend), 1)
}

func TestHandleWebhook_FailureAfterSuccessIsIgnored(t *testing.T) {
	f := newFixture()
	f.store.addPackage("Monthly", 2000, 30)
	ctx := context.Background()

	_, err := f.svc.Webhook.HandleWebhook(ctx, successBody(testOrderID), gatewayMeta())
	require.NoError(t, err)

	res, err := f.svc.Webhook.HandleWebhook(ctx, failureBody(testOrderID, "FAILED"), gatewayMeta())
	require.NoError(t, err)

	assert.Equal(t, response.WebhookIgnored, res.Status)
	assert.Equal(t, ReasonTerminalState, res.FailureReason)

	payment, err := f.repo.Payment.FindByOrderID(ctx, testOrderID)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusCompleted, payment.Status)
}

func TestHandleWebhook_SuccessAfterFailureIsIgnored(t *testing.T) {
	f := newFixture()
	f.store.addPackage("Monthly", 2000, 30)
	ctx := context.Background()

	_, err := f.svc.Webhook.HandleWebhook(ctx, failureBody(testOrderID, "EXPIRED"), gatewayMeta())
	require.NoError(t, err)

	res, err := f.svc.Webhook.HandleWebhook(ctx, successBody(testOrderID), gatewayMeta())
	require.NoError(t, err)

	assert.Equal(t, response.WebhookIgnored, res.Status)
	assert.Equal(t, ReasonTerminalState, res.FailureReason)
	assert.Empty(t, f.store.vouchers)
}

func TestHandleWebhook_PendingIsIgnored(t *testing.T) {
	f := newFixture()

	res, err := f.svc.Webhook.HandleWebhook(context.Background(), failureBody(testOrderID, "PENDING"), gatewayMeta())
	require.NoError(t, err)

	assert.Equal(t, response.WebhookIgnored, res.Status)
	assert.Empty(t, f.store.payments)
}

func TestHandleWebhook_UnknownPackageRollsBack(t *testing.T) {
	f := newFixture()
	// order id names package 1, which does not exist
	res, err := f.svc.Webhook.HandleWebhook(context.Background(), successBody(testOrderID), gatewayMeta())

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, CodeUnknownPackage, verr.Code)
	assert.Equal(t, response.WebhookRejected, res.Status)
	assert.Equal(t, CodeUnknownPackage, res.ErrorCode)

	assert.Empty(t, f.store.events)
	assert.Empty(t, f.store.payments)
	assert.Empty(t, f.store.customers)
	assert.Empty(t, f.store.tasks)
}

func TestHandleWebhook_PackageResolution(t *testing.T) {
	t.Run("correlation wins over order id", func(t *testing.T) {
		f := newFixture()
		f.store.addPackage("Daily", 500, 1)
		weekly := f.store.addPackage("Weekly", 3000, 7)
		require.NoError(t, f.repo.Correlation.Create(context.Background(), &entity.OrderCorrelation{
			OrderID:     testOrderID,
			PhoneNumber: "255766123456",
			PackageID:   weekly.ID,
			Status:      entity.CorrelationInitiated,
		}))

		res, err := f.svc.Webhook.HandleWebhook(context.Background(), successBody(testOrderID), gatewayMeta())
		require.NoError(t, err)
		assert.Equal(t, weekly.ID, f.store.voucher(res.VoucherCode).PackageID)
		assert.Equal(t, entity.CorrelationCompleted, f.store.correlations[testOrderID].Status)
	})

	t.Run("configured default as last resort", func(t *testing.T) {
		f := newFixture()
		f.store.addPackage("Daily", 500, 1)
		weekly := f.store.addPackage("Weekly", 3000, 7)
		f.config.Voucher.DefaultPackageID = weekly.ID

		res, err := f.svc.Webhook.HandleWebhook(context.Background(), successBody("PKG_1700000000000_3456_99"), gatewayMeta())
		require.NoError(t, err)
		assert.Equal(t, weekly.ID, f.store.voucher(res.VoucherCode).PackageID)
	})
}

func TestHandleWebhook_Rejections(t *testing.T) {
	f := newFixture()

	body := successBody(testOrderID)
	body["amount"] = "-5"

	res, err := f.svc.Webhook.HandleWebhook(context.Background(), body, gatewayMeta())
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, CodeInvalidAmount, verr.Code)
	assert.Equal(t, response.WebhookRejected, res.Status)
	assert.Equal(t, testOrderID, res.OrderID)
	assert.Empty(t, f.store.events)
}

func TestHandleWebhook_PendingThenCompletedSameTransaction(t *testing.T) {
	f := newFixture()
	f.store.addPackage("Monthly", 2000, 30)
	ctx := context.Background()

	pending := successBody(testOrderID)
	pending["payment_status"] = "PENDING"
	first, err := f.svc.Webhook.HandleWebhook(ctx, pending, gatewayMeta())
	require.NoError(t, err)
	assert.Equal(t, response.WebhookIgnored, first.Status)

	second, err := f.svc.Webhook.HandleWebhook(ctx, successBody(testOrderID), gatewayMeta())
	require.NoError(t, err)

	assert.Equal(t, response.WebhookSuccess, second.Status)
	assert.False(t, second.Duplicate)
	require.Len(t, second.VoucherCode, 8)
	assert.Len(t, f.store.vouchers, 1)
	assert.Len(t, f.store.events, 2)
}

func TestHandleWebhook_PaidBelowOrderAmountRejected(t *testing.T) {
	f := newFixture()
	pkg := f.store.addPackage("Monthly", 2000, 30)
	ctx := context.Background()
	require.NoError(t, f.repo.Correlation.Create(ctx, &entity.OrderCorrelation{
		OrderID:     testOrderID,
		PhoneNumber: "255766123456",
		PackageID:   pkg.ID,
		Amount:      decimal.NewFromInt(2000),
		Status:      entity.CorrelationInitiated,
	}))

	body := successBody(testOrderID)
	body["amount"] = "1"
	res, err := f.svc.Webhook.HandleWebhook(ctx, body, gatewayMeta())

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, CodeAmountMismatch, verr.Code)
	assert.Equal(t, response.WebhookRejected, res.Status)
	assert.Empty(t, f.store.vouchers)
	assert.Empty(t, f.store.payments)
	assert.Empty(t, f.store.events)

	// the full amount still goes through afterwards
	ok, err := f.svc.Webhook.HandleWebhook(ctx, successBody(testOrderID), gatewayMeta())
	require.NoError(t, err)
	assert.Equal(t, response.WebhookSuccess, ok.Status)
}

func TestHandleWebhook_Signature(t *testing.T) {
	f := newFixture()
	f.store.addPackage("Monthly", 2000, 30)
	f.config.Gateway.WebhookSecret = "shared-secret"
	ctx := context.Background()

	t.Run("missing signature is rejected", func(t *testing.T) {
		res, err := f.svc.Webhook.HandleWebhook(ctx, successBody(testOrderID), gatewayMeta())
		require.ErrorIs(t, err, ErrInvalidSignature)
		assert.Equal(t, CodeInvalidSignature, res.ErrorCode)
		assert.Empty(t, f.store.events)
	})

	t.Run("tampered amount is rejected", func(t *testing.T) {
		body := successBody(testOrderID)
		meta := gatewayMeta()
		meta.Signature = WebhookSignature(body, "shared-secret")
		body["amount"] = "1"

		_, err := f.svc.Webhook.HandleWebhook(ctx, body, meta)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("signature in the body is accepted", func(t *testing.T) {
		body := successBody(testOrderID)
		body["signature"] = WebhookSignature(body, "shared-secret")

		res, err := f.svc.Webhook.HandleWebhook(ctx, body, gatewayMeta())
		require.NoError(t, err)
		assert.Equal(t, response.WebhookSuccess, res.Status)
	})

	t.Run("poll deliveries are not signed", func(t *testing.T) {
		res, err := f.svc.Webhook.HandleWebhook(ctx, successBody(testOrderID), WebhookMeta{Source: WebhookSourcePoll})
		require.NoError(t, err)
		assert.True(t, res.Duplicate)
	})
}
