package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"isp-portal/internal/data/entity"
	"isp-portal/internal/data/repository"
	"isp-portal/internal/dto/response"
	"isp-portal/pkg/broker"
	"isp-portal/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxVoucherCodeAttempts = 10

// Webhook sources.
const (
	WebhookSourceGateway = "gateway"
	WebhookSourcePoll    = "poll"
)

// Terminal-state failure reason reported when a delivery contradicts the
// stored payment.
const ReasonTerminalState = "TERMINAL_STATE"

// WebhookMeta describes where a delivery came from.
type WebhookMeta struct {
	IPAddress string
	Source    string
	// Signature from the request header; the body's signature field is
	// used when empty.
	Signature string
}

// PaymentEventData is the body of payment.* events.
type PaymentEventData struct {
	OrderID       string          `json:"order_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Phone         string          `json:"phone"`
	PackageID     int64           `json:"package_id,omitempty"`
	VoucherCode   string          `json:"voucher_code,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

type WebhookService interface {
	// HandleWebhook validates a raw callback body and processes it. A
	// *ValidationError is returned alongside a rejected result.
	HandleWebhook(ctx context.Context, body map[string]any, meta WebhookMeta) (*response.WebhookResult, error)
	Process(ctx context.Context, payload *WebhookPayload, raw []byte, meta WebhookMeta) (*response.WebhookResult, error)
}

type webhookService struct {
	repo   *repository.Repository
	tasks  TaskService
	notify NotificationService
	config *utils.Config
	log    *zap.Logger
}

func NewWebhookService(
	repo *repository.Repository,
	tasks TaskService,
	notify NotificationService,
	config *utils.Config,
	log *zap.Logger,
) WebhookService {
	return &webhookService{
		repo:   repo,
		tasks:  tasks,
		notify: notify,
		config: config,
		log:    log.With(zap.String("service", "webhook")),
	}
}

func (s *webhookService) HandleWebhook(ctx context.Context, body map[string]any, meta WebhookMeta) (*response.WebhookResult, error) {
	secret := s.config.Gateway.WebhookSecret
	if secret != "" && meta.Source != WebhookSourcePoll && !VerifyWebhookSignature(body, meta.Signature, secret) {
		s.log.Warn("Webhook signature mismatch",
			zap.String("order_id", lookup(body, orderIDKeys)),
			zap.String("ip", meta.IPAddress),
		)
		return &response.WebhookResult{
			Status:    response.WebhookRejected,
			Message:   "Invalid webhook signature",
			OrderID:   lookup(body, orderIDKeys),
			ErrorCode: CodeInvalidSignature,
		}, ErrInvalidSignature
	}

	payload, verr := ParseWebhookPayload(body)
	if verr != nil {
		s.log.Warn("Webhook rejected",
			zap.String("error_code", verr.Code),
			zap.String("field", verr.Field),
			zap.String("source", meta.Source),
			zap.String("ip", meta.IPAddress),
		)
		return rejectedResult(lookup(body, orderIDKeys), verr), verr
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return errorResult(payload.OrderID), fmt.Errorf("encode webhook payload: %w", err)
	}

	return s.Process(ctx, payload, raw, meta)
}

func (s *webhookService) Process(ctx context.Context, payload *WebhookPayload, raw []byte, meta WebhookMeta) (*response.WebhookResult, error) {
	log := s.log.With(
		zap.String("order_id", payload.OrderID),
		zap.String("payment_status", payload.PaymentStatus),
		zap.String("event_key", payload.EventKey()),
		zap.String("source", meta.Source),
	)

	var (
		result *response.WebhookResult
		queued bool
	)

	err := s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		// reset on transaction replay
		result, queued = nil, false
		now := time.Now()

		// 1. Idempotency guard
		eventID, stored, err := s.reserveEvent(ctx, tx, payload, raw, meta, now)
		if err != nil {
			return err
		}
		if stored != nil {
			result = stored
			return nil
		}

		// 2. Dispatch by status family
		switch payload.Outcome() {
		case OutcomeSuccess:
			result, queued, err = s.processSuccess(ctx, tx, payload, now, log)
		case OutcomeFailure:
			result, queued, err = s.processFailure(ctx, tx, payload, now, log)
		default:
			result = &response.WebhookResult{
				Status:  response.WebhookIgnored,
				Message: "Payment is still pending",
				OrderID: payload.OrderID,
			}
		}
		if err != nil {
			return err
		}

		// 3. Store the outcome for replays
		encoded, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode webhook result: %w", err)
		}
		return tx.WebhookEvent.MarkProcessed(ctx, eventID, result.Status, encoded, nil, now)
	})

	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			log.Warn("Webhook rejected during processing", zap.String("error_code", verr.Code))
			return rejectedResult(payload.OrderID, verr), verr
		}

		log.Error("Webhook processing failed", zap.Error(err))
		return errorResult(payload.OrderID), fmt.Errorf("process webhook %s: %w", payload.OrderID, err)
	}

	if queued {
		s.tasks.Nudge()
	}

	log.Info("Webhook processed",
		zap.String("result", result.Status),
		zap.Bool("duplicate", result.Duplicate),
		zap.String("voucher_code", result.VoucherCode),
	)
	return result, nil
}

// reserveEvent claims (order id, event key). When an earlier delivery already
// finished, its stored result is returned flagged as a duplicate.
func (s *webhookService) reserveEvent(
	ctx context.Context,
	tx *repository.Repository,
	payload *WebhookPayload,
	raw []byte,
	meta WebhookMeta,
	now time.Time,
) (uuid.UUID, *response.WebhookResult, error) {
	event := &entity.WebhookEvent{
		ID:            utils.GenerateUUID(),
		OrderID:       payload.OrderID,
		EventKey:      payload.EventKey(),
		PaymentStatus: payload.PaymentStatus,
		Gateway:       entity.GatewayZenoPay,
		TransactionID: optionalString(payload.TransactionID),
		IPAddress:     optionalString(meta.IPAddress),
		Payload:       raw,
		CreatedAt:     now,
	}

	reserved, err := tx.WebhookEvent.Reserve(ctx, event)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if reserved {
		return event.ID, nil, nil
	}

	existing, err := tx.WebhookEvent.FindByKey(ctx, payload.OrderID, payload.EventKey())
	if err != nil {
		return uuid.Nil, nil, err
	}
	if existing == nil {
		return uuid.Nil, nil, fmt.Errorf("webhook event %s/%s vanished after conflict", payload.OrderID, payload.EventKey())
	}

	if existing.Processed && len(existing.Result) > 0 {
		var stored response.WebhookResult
		if err := json.Unmarshal(existing.Result, &stored); err != nil {
			return uuid.Nil, nil, fmt.Errorf("decode stored webhook result: %w", err)
		}
		stored.Duplicate = true
		return existing.ID, &stored, nil
	}

	// reserved earlier but never finished, take it over
	return existing.ID, nil, nil
}

// ==================== Success path ====================

func (s *webhookService) processSuccess(
	ctx context.Context,
	tx *repository.Repository,
	p *WebhookPayload,
	now time.Time,
	log *zap.Logger,
) (*response.WebhookResult, bool, error) {
	payment, err := tx.Payment.FindByOrderIDForUpdate(ctx, p.OrderID)
	if err != nil {
		return nil, false, err
	}

	if payment != nil {
		switch payment.Status {
		case entity.PaymentStatusCompleted:
			res := &response.WebhookResult{
				Status:    response.WebhookSuccess,
				Message:   "Payment already processed",
				OrderID:   p.OrderID,
				Duplicate: true,
			}
			voucher, err := tx.Voucher.FindByOrderID(ctx, p.OrderID)
			if err != nil {
				return nil, false, err
			}
			if voucher != nil {
				res.VoucherCode = voucher.VoucherCode
			}
			return res, false, nil

		case entity.PaymentStatusFailed:
			log.Warn("Success delivery for a failed payment ignored")
			return terminalResult(p.OrderID, "Payment already failed"), false, nil
		}
	}

	steps := make(map[string]string)

	// 1. Package
	correlation, err := tx.Correlation.FindByOrderID(ctx, p.OrderID)
	if err != nil {
		return nil, false, err
	}

	if correlation != nil && correlation.Amount.IsPositive() && p.Amount.LessThan(correlation.Amount) {
		log.Warn("Paid amount below order amount",
			zap.String("paid", p.Amount.String()),
			zap.String("expected", correlation.Amount.String()),
		)
		return nil, false, newValidationError(CodeAmountMismatch, "amount", "Paid amount is below the order amount")
	}

	pkg, err := s.resolvePackage(ctx, tx, p, correlation, log)
	if err != nil {
		return nil, false, err
	}

	// 2. Customer
	customer := &entity.Customer{
		BaseNoDelete: entity.BaseNoDelete{ID: utils.GenerateUUID(), CreatedAt: now, UpdatedAt: now},
		PhoneNumber:  p.Phone,
		FullName:     firstNonEmpty(p.CustomerName, correlationName(correlation)),
		Email:        firstNonEmpty(p.Email, correlationEmail(correlation)),
	}
	created, err := tx.Customer.Upsert(ctx, customer)
	if err != nil {
		return nil, false, err
	}
	if created {
		steps["customer"] = "created"
	} else {
		steps["customer"] = "existing"
	}

	currency := pkg.Currency
	if currency == "" {
		currency = s.config.Gateway.Currency
	}

	// 3. Invoice
	invoice := &entity.Invoice{
		BaseSimple:    entity.BaseSimple{ID: utils.GenerateUUID(), CreatedAt: now},
		InvoiceNumber: utils.GenerateInvoiceNumber(now),
		OrderID:       p.OrderID,
		CustomerID:    customer.ID,
		PackageID:     pkg.ID,
		Amount:        p.Amount,
		Currency:      currency,
		Status:        entity.InvoiceStatusPaid,
		IssuedAt:      now,
	}
	if err := tx.Invoice.Create(ctx, invoice); err != nil {
		return nil, false, err
	}
	steps["invoice"] = "created"

	// 4. Payment
	paymentID := utils.GenerateUUID()
	if payment != nil {
		paymentID = payment.ID
	}
	gatewayRef := p.GatewayReference
	if gatewayRef == "" && correlation != nil && correlation.GatewayReference != nil {
		gatewayRef = *correlation.GatewayReference
	}
	completed, err := tx.Payment.Complete(ctx, &entity.Payment{
		BaseNoDelete:         entity.BaseNoDelete{ID: paymentID, CreatedAt: now, UpdatedAt: now},
		OrderID:              p.OrderID,
		InvoiceID:            &invoice.ID,
		CustomerID:           &customer.ID,
		Amount:               p.Amount,
		Currency:             currency,
		Method:               entity.PaymentMethodMobileMoney,
		Gateway:              entity.GatewayZenoPay,
		PhoneNumber:          p.Phone,
		Status:               entity.PaymentStatusCompleted,
		GatewayTransactionID: optionalString(p.TransactionID),
		GatewayReference:     optionalString(gatewayRef),
		PaymentChannel:       optionalString(p.Channel),
		ProcessedAt:          &now,
		ConfirmedAt:          &now,
	})
	if err != nil {
		return nil, false, err
	}
	if !completed {
		// a concurrent delivery finalized the payment, the gateway retry will
		// land on the terminal branch above
		return nil, false, fmt.Errorf("payment %s changed state concurrently", p.OrderID)
	}
	steps["payment"] = "completed"

	// 5. Voucher
	voucher, err := s.issueVoucher(ctx, tx, p, pkg, customer, currency, gatewayRef, now)
	if err != nil {
		return nil, false, err
	}
	steps["voucher"] = "issued"

	if correlation != nil {
		if err := tx.Correlation.UpdateStatus(ctx, p.OrderID, entity.CorrelationCompleted); err != nil {
			return nil, false, err
		}
	}

	// 6. Follow-up tasks
	ok, err := s.tasks.Enqueue(ctx, tx.Task, entity.TaskRadiusProvisionVoucher,
		fmt.Sprintf("%s:%s", entity.TaskRadiusProvisionVoucher, p.OrderID),
		RadiusProvisionPayload{VoucherCode: voucher.VoucherCode},
	)
	if err != nil {
		return nil, false, err
	}
	steps["radius"] = queuedStep(ok)

	ok, err = s.tasks.Enqueue(ctx, tx.Task, entity.TaskLoyaltyAward,
		fmt.Sprintf("%s:%s", entity.TaskLoyaltyAward, p.OrderID),
		LoyaltyAwardPayload{Phone: p.Phone, OrderID: p.OrderID, Amount: p.Amount},
	)
	if err != nil {
		return nil, false, err
	}
	steps["loyalty"] = queuedStep(ok)

	ok, err = s.tasks.Enqueue(ctx, tx.Task, entity.TaskSMSSend,
		fmt.Sprintf("%s:%s:%s", entity.TaskSMSSend, SMSKindVoucherIssued, p.OrderID),
		SMSPayload{Phone: p.Phone, Message: s.notify.VoucherIssuedMessage(voucher), Kind: SMSKindVoucherIssued},
	)
	if err != nil {
		return nil, false, err
	}
	steps["sms"] = queuedStep(ok)

	ok, err = enqueueEvent(ctx, s.tasks, tx.Task, broker.EventPaymentCompleted, p.OrderID, PaymentEventData{
		OrderID:     p.OrderID,
		Status:      string(entity.PaymentStatusCompleted),
		Amount:      p.Amount,
		Phone:       p.Phone,
		PackageID:   pkg.ID,
		VoucherCode: voucher.VoucherCode,
		OccurredAt:  now,
	})
	if err != nil {
		return nil, false, err
	}
	steps["event"] = queuedStep(ok)

	return &response.WebhookResult{
		Status:      response.WebhookSuccess,
		Message:     "Payment processed, voucher issued",
		OrderID:     p.OrderID,
		VoucherCode: voucher.VoucherCode,
		SmsStatus:   steps["sms"],
		Steps:       steps,
	}, true, nil
}

// resolvePackage prefers the stored correlation, then the payload, then the
// legacy order id segment, then the configured default.
func (s *webhookService) resolvePackage(
	ctx context.Context,
	tx *repository.Repository,
	p *WebhookPayload,
	correlation *entity.OrderCorrelation,
	log *zap.Logger,
) (*entity.Package, error) {
	type candidate struct {
		id     int64
		source string
	}

	var candidates []candidate
	if correlation != nil {
		candidates = append(candidates, candidate{correlation.PackageID, "correlation"})
	}
	if p.PackageID > 0 {
		candidates = append(candidates, candidate{p.PackageID, "payload"})
	}
	if id, ok := legacyPackageID(p.OrderID); ok {
		candidates = append(candidates, candidate{id, "order_id"})
	}
	if s.config.Voucher.DefaultPackageID > 0 {
		candidates = append(candidates, candidate{s.config.Voucher.DefaultPackageID, "default"})
	}

	for _, c := range candidates {
		pkg, err := tx.Package.FindByID(ctx, c.id)
		if err != nil {
			return nil, err
		}
		if pkg == nil {
			log.Warn("Package candidate not found", zap.Int64("package_id", c.id), zap.String("source", c.source))
			continue
		}

		switch c.source {
		case "order_id":
			log.Warn("Package resolved from legacy order id", zap.Int64("package_id", pkg.ID))
		case "default":
			log.Warn("Package resolved from configured default", zap.Int64("package_id", pkg.ID))
		}
		return pkg, nil
	}

	return nil, newValidationError(CodeUnknownPackage, "package_id", "Package could not be determined for this order")
}

// issueVoucher inserts a voucher with a fresh code, retrying on code
// collisions.
func (s *webhookService) issueVoucher(
	ctx context.Context,
	tx *repository.Repository,
	p *WebhookPayload,
	pkg *entity.Package,
	customer *entity.Customer,
	currency, gatewayRef string,
	now time.Time,
) (*entity.Voucher, error) {
	days := pkg.EffectiveDurationDays(s.config.Voucher.DefaultDurationDays)

	voucher := &entity.Voucher{
		BaseNoDelete:     entity.BaseNoDelete{CreatedAt: now, UpdatedAt: now},
		OrderID:          p.OrderID,
		PackageID:        pkg.ID,
		PackageName:      pkg.Name,
		DurationDays:     days,
		Amount:           p.Amount,
		Currency:         currency,
		CustomerName:     customer.FullName,
		CustomerPhone:    p.Phone,
		CustomerEmail:    customer.Email,
		Status:           entity.VoucherIssuedAccessPending,
		UsageStatus:      entity.VoucherUnused,
		ExpiresAt:        now.AddDate(0, 0, days),
		PaymentReference: optionalString(gatewayRef),
		TransactionID:    optionalString(p.TransactionID),
		PaymentChannel:   optionalString(p.Channel),
	}

	for attempt := 1; attempt <= maxVoucherCodeAttempts; attempt++ {
		voucher.ID = utils.GenerateUUID()
		voucher.VoucherCode = utils.GenerateVoucherCode(s.config.Voucher.CodeLength)

		inserted, err := tx.Voucher.Create(ctx, voucher)
		if err != nil {
			return nil, err
		}
		if inserted {
			return voucher, nil
		}

		s.log.Warn("Voucher code collision, regenerating",
			zap.String("order_id", p.OrderID),
			zap.Int("attempt", attempt),
		)
	}

	return nil, fmt.Errorf("no unique voucher code for order %s after %d attempts", p.OrderID, maxVoucherCodeAttempts)
}

// ==================== Failure path ====================

func (s *webhookService) processFailure(
	ctx context.Context,
	tx *repository.Repository,
	p *WebhookPayload,
	now time.Time,
	log *zap.Logger,
) (*response.WebhookResult, bool, error) {
	payment, err := tx.Payment.FindByOrderIDForUpdate(ctx, p.OrderID)
	if err != nil {
		return nil, false, err
	}

	if payment != nil {
		switch payment.Status {
		case entity.PaymentStatusCompleted:
			log.Warn("Failure delivery for a completed payment ignored")
			return terminalResult(p.OrderID, "Payment already completed"), false, nil

		case entity.PaymentStatusFailed:
			reason := "FAILED"
			if payment.FailureReason != nil {
				reason = *payment.FailureReason
			}
			return &response.WebhookResult{
				Status:          response.WebhookFailed,
				Message:         "Payment failure already recorded",
				OrderID:         p.OrderID,
				FailureReason:   reason,
				CustomerMessage: FailureMessage(reason),
				Duplicate:       true,
			}, false, nil
		}
	}

	reason := FailureReason(p.PaymentStatus)
	message := FailureMessage(reason)

	paymentID := utils.GenerateUUID()
	if payment != nil {
		paymentID = payment.ID
	}
	failed, err := tx.Payment.Fail(ctx, &entity.Payment{
		BaseNoDelete:         entity.BaseNoDelete{ID: paymentID, CreatedAt: now, UpdatedAt: now},
		OrderID:              p.OrderID,
		Amount:               p.Amount,
		Currency:             s.config.Gateway.Currency,
		Method:               entity.PaymentMethodMobileMoney,
		Gateway:              entity.GatewayZenoPay,
		PhoneNumber:          p.Phone,
		Status:               entity.PaymentStatusFailed,
		GatewayTransactionID: optionalString(p.TransactionID),
		GatewayReference:     optionalString(p.GatewayReference),
		PaymentChannel:       optionalString(p.Channel),
		FailureReason:        &reason,
	})
	if err != nil {
		return nil, false, err
	}
	if !failed {
		return terminalResult(p.OrderID, "Payment already finalized"), false, nil
	}

	correlation, err := tx.Correlation.FindByOrderID(ctx, p.OrderID)
	if err != nil {
		return nil, false, err
	}
	if correlation != nil {
		if err := tx.Correlation.UpdateStatus(ctx, p.OrderID, entity.CorrelationFailed); err != nil {
			return nil, false, err
		}
	}

	// customers are only looked up here, never created
	smsStatus := "skipped"
	customer, err := tx.Customer.FindByPhone(ctx, p.Phone)
	if err != nil {
		return nil, false, err
	}
	if customer != nil {
		ok, err := s.tasks.Enqueue(ctx, tx.Task, entity.TaskSMSSend,
			fmt.Sprintf("%s:%s:%s", entity.TaskSMSSend, SMSKindPaymentFailed, p.OrderID),
			SMSPayload{Phone: p.Phone, Message: s.notify.PaymentFailedMessage(reason), Kind: SMSKindPaymentFailed},
		)
		if err != nil {
			return nil, false, err
		}
		smsStatus = queuedStep(ok)
	}

	if _, err := enqueueEvent(ctx, s.tasks, tx.Task, broker.EventPaymentFailed, p.OrderID, PaymentEventData{
		OrderID:       p.OrderID,
		Status:        string(entity.PaymentStatusFailed),
		Amount:        p.Amount,
		Phone:         p.Phone,
		FailureReason: reason,
		OccurredAt:    now,
	}); err != nil {
		return nil, false, err
	}

	return &response.WebhookResult{
		Status:          response.WebhookFailed,
		Message:         "Payment failure recorded",
		OrderID:         p.OrderID,
		FailureReason:   reason,
		CustomerMessage: message,
		SmsStatus:       smsStatus,
	}, true, nil
}

// ==================== Results ====================

func rejectedResult(orderID string, verr *ValidationError) *response.WebhookResult {
	return &response.WebhookResult{
		Status:    response.WebhookRejected,
		Message:   verr.Message,
		OrderID:   orderID,
		ErrorCode: verr.Code,
	}
}

func errorResult(orderID string) *response.WebhookResult {
	return &response.WebhookResult{
		Status:  response.WebhookError,
		Message: "Webhook could not be processed, retry later",
		OrderID: orderID,
	}
}

func terminalResult(orderID, message string) *response.WebhookResult {
	return &response.WebhookResult{
		Status:        response.WebhookIgnored,
		Message:       message,
		OrderID:       orderID,
		FailureReason: ReasonTerminalState,
	}
}

func correlationName(c *entity.OrderCorrelation) string {
	if c == nil || c.CustomerName == nil {
		return ""
	}
	return *c.CustomerName
}

func correlationEmail(c *entity.OrderCorrelation) string {
	if c == nil || c.Email == nil {
		return ""
	}
	return *c.Email
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) *string {
	for _, v := range values {
		if v != "" {
			return &v
		}
	}
	return nil
}
