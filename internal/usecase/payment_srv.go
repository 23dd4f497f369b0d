package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"isp-portal/internal/data/entity"
	"isp-portal/internal/data/repository"
	"isp-portal/internal/dto/request"
	"isp-portal/internal/dto/response"
	"isp-portal/internal/gateway"
	"isp-portal/pkg/utils"

	"go.uber.org/zap"
)

const (
	ReasonGatewayError = "GATEWAY_ERROR"
	buyerEmailDomain   = "ggwifi.co.tz"
	defaultBuyerName   = "GGWiFi Customer"
)

type PaymentService interface {
	InitiatePayment(ctx context.Context, req *request.InitiatePaymentRequest) (*response.InitiatePaymentResponse, error)
	GetPaymentStatus(ctx context.Context, orderID string, refresh bool) (*response.PaymentStatusResponse, error)
	GetPaymentDetail(ctx context.Context, orderID string) (*response.PaymentDetailResponse, error)
}

type paymentService struct {
	repo    *repository.Repository
	gateway gateway.Gateway
	webhook WebhookService
	config  *utils.Config
	log     *zap.Logger
}

// NewPaymentService builds the payment service. gw may be nil when no
// gateway is configured; initiation then fails with ErrGatewayNotConfigured.
func NewPaymentService(
	repo *repository.Repository,
	gw gateway.Gateway,
	webhook WebhookService,
	config *utils.Config,
	log *zap.Logger,
) PaymentService {
	return &paymentService{
		repo:    repo,
		gateway: gw,
		webhook: webhook,
		config:  config,
		log:     log.With(zap.String("service", "payment")),
	}
}

func (s *paymentService) InitiatePayment(ctx context.Context, req *request.InitiatePaymentRequest) (*response.InitiatePaymentResponse, error) {
	// 1. Validate input
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fieldErrors(errs)
	}

	if s.gateway == nil {
		return nil, ErrGatewayNotConfigured
	}

	// 2. Package must exist and be on sale
	pkg, err := s.repo.Package.FindByID(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, ErrPackageNotFound
	}
	if !pkg.IsActive {
		return nil, ErrPackageInactive
	}

	// 3. Correlation + pending payment in one transaction
	now := time.Now()
	phone := utils.NormalizePhone(req.PhoneNumber)
	orderID := utils.GenerateOrderID(phone, pkg.ID, now)
	currency := pkg.Currency
	if currency == "" {
		currency = s.config.Gateway.Currency
	}

	err = s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		if err := tx.Correlation.Create(ctx, &entity.OrderCorrelation{
			OrderID:      orderID,
			PhoneNumber:  phone,
			PackageID:    pkg.ID,
			Amount:       pkg.Price,
			CustomerName: req.CustomerName,
			Email:        req.Email,
			Gateway:      entity.GatewayZenoPay,
			Status:       entity.CorrelationInitiated,
			CreatedAt:    now,
			UpdatedAt:    now,
		}); err != nil {
			return err
		}

		return tx.Payment.CreatePending(ctx, &entity.Payment{
			BaseNoDelete: entity.BaseNoDelete{ID: utils.GenerateUUID(), CreatedAt: now, UpdatedAt: now},
			OrderID:      orderID,
			Amount:       pkg.Price,
			Currency:     currency,
			Method:       entity.PaymentMethodMobileMoney,
			Gateway:      entity.GatewayZenoPay,
			PhoneNumber:  phone,
			Status:       entity.PaymentStatusPending,
		})
	})
	if err != nil {
		return nil, err
	}

	// 4. Call the gateway
	buyerName := defaultBuyerName
	if req.CustomerName != nil && strings.TrimSpace(*req.CustomerName) != "" {
		buyerName = strings.TrimSpace(*req.CustomerName)
	}
	buyerEmail := fmt.Sprintf("%s@%s", phone, buyerEmailDomain)
	if req.Email != nil && *req.Email != "" {
		buyerEmail = *req.Email
	}

	result, err := s.gateway.InitiatePayment(ctx, gateway.InitiateRequest{
		OrderID:    orderID,
		BuyerEmail: buyerEmail,
		BuyerName:  buyerName,
		BuyerPhone: phone,
		Amount:     pkg.Price,
		WebhookURL: s.config.Gateway.WebhookURL,
	})
	if err != nil {
		s.log.Error("Gateway initiation failed",
			zap.Error(err),
			zap.String("order_id", orderID),
			zap.String("phone", utils.MaskPhone(phone)),
		)
		s.markInitiationFailed(ctx, orderID, phone, currency, pkg)
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	// 5. Remember the gateway reference
	if result.PaymentReference != "" || result.PaymentURL != "" {
		if err := s.repo.Correlation.UpdateGateway(ctx, orderID, result.PaymentReference, result.PaymentURL); err != nil {
			s.log.Warn("Failed to store gateway reference on correlation", zap.Error(err), zap.String("order_id", orderID))
		}
	}
	if result.PaymentReference != "" {
		if err := s.repo.Payment.UpdateGatewayReference(ctx, orderID, result.PaymentReference); err != nil {
			s.log.Warn("Failed to store gateway reference on payment", zap.Error(err), zap.String("order_id", orderID))
		}
	}

	s.log.Info("Payment initiated",
		zap.String("order_id", orderID),
		zap.Int64("package_id", pkg.ID),
		zap.String("amount", pkg.Price.String()),
	)

	return &response.InitiatePaymentResponse{
		OrderID:          orderID,
		PaymentReference: result.PaymentReference,
		PaymentURL:       result.PaymentURL,
		PackageID:        pkg.ID,
		PackageName:      pkg.Name,
		Amount:           pkg.Price,
		Currency:         currency,
		Status:           string(entity.PaymentStatusPending),
		Message:          result.Message,
	}, nil
}

func (s *paymentService) markInitiationFailed(ctx context.Context, orderID, phone, currency string, pkg *entity.Package) {
	now := time.Now()
	reason := ReasonGatewayError

	if _, err := s.repo.Payment.Fail(ctx, &entity.Payment{
		BaseNoDelete:  entity.BaseNoDelete{ID: utils.GenerateUUID(), CreatedAt: now, UpdatedAt: now},
		OrderID:       orderID,
		Amount:        pkg.Price,
		Currency:      currency,
		Method:        entity.PaymentMethodMobileMoney,
		Gateway:       entity.GatewayZenoPay,
		PhoneNumber:   phone,
		Status:        entity.PaymentStatusFailed,
		FailureReason: &reason,
	}); err != nil {
		s.log.Error("Failed to mark payment failed after gateway error", zap.Error(err), zap.String("order_id", orderID))
	}

	if err := s.repo.Correlation.UpdateStatus(ctx, orderID, entity.CorrelationFailed); err != nil {
		s.log.Error("Failed to mark correlation failed", zap.Error(err), zap.String("order_id", orderID))
	}
}

func (s *paymentService) GetPaymentStatus(ctx context.Context, orderID string, refresh bool) (*response.PaymentStatusResponse, error) {
	payment, err := s.repo.Payment.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if refresh && s.gateway != nil && (payment == nil || payment.Status == entity.PaymentStatusPending) {
		if s.reconcile(ctx, orderID) {
			if payment, err = s.repo.Payment.FindByOrderID(ctx, orderID); err != nil {
				return nil, err
			}
		}
	}

	// no row yet means the payment is still in flight
	if payment == nil {
		return &response.PaymentStatusResponse{
			OrderID:         orderID,
			Status:          string(entity.PaymentStatusPending),
			CustomerMessage: "Waiting for payment confirmation.",
		}, nil
	}

	resp := &response.PaymentStatusResponse{
		OrderID:   orderID,
		Status:    string(payment.Status),
		UpdatedAt: &payment.UpdatedAt,
	}

	switch payment.Status {
	case entity.PaymentStatusCompleted:
		voucher, err := s.repo.Voucher.FindByOrderID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if voucher != nil {
			resp.VoucherCode = &voucher.VoucherCode
		}
		resp.CustomerMessage = "Payment received. Your voucher is ready."

	case entity.PaymentStatusFailed:
		resp.FailureReason = payment.FailureReason
		reason := ""
		if payment.FailureReason != nil {
			reason = *payment.FailureReason
		}
		resp.CustomerMessage = FailureMessage(reason)

	default:
		resp.CustomerMessage = "Waiting for payment confirmation."
	}

	return resp, nil
}

// reconcile asks the gateway for the order and feeds a terminal answer
// through the webhook pipeline. Reports whether anything was processed.
func (s *paymentService) reconcile(ctx context.Context, orderID string) bool {
	correlation, err := s.repo.Correlation.FindByOrderID(ctx, orderID)
	if err != nil || correlation == nil {
		return false
	}

	status, err := s.gateway.CheckOrderStatus(ctx, orderID)
	if err != nil {
		s.log.Warn("Order status poll failed", zap.Error(err), zap.String("order_id", orderID))
		return false
	}

	payload := &WebhookPayload{PaymentStatus: strings.ToUpper(status.PaymentStatus)}
	if payload.Outcome() != OutcomeSuccess && payload.Outcome() != OutcomeFailure {
		return false
	}

	amount := status.Amount
	if amount == "" {
		amount = correlation.Amount.String()
	}
	msisdn := status.Msisdn
	if msisdn == "" {
		msisdn = correlation.PhoneNumber
	}

	body := map[string]any{
		"order_id":          orderID,
		"payment_status":    payload.PaymentStatus,
		"amount":            amount,
		"msisdn":            msisdn,
		"transaction_id":    status.TransactionID,
		"payment_reference": status.Reference,
		"channel":           status.Channel,
		"package_id":        correlation.PackageID,
	}

	result, err := s.webhook.HandleWebhook(ctx, body, WebhookMeta{Source: WebhookSourcePoll})
	if err != nil {
		s.log.Warn("Reconciliation from poll failed", zap.Error(err), zap.String("order_id", orderID))
		return false
	}

	s.log.Info("Payment reconciled from gateway poll",
		zap.String("order_id", orderID),
		zap.String("result", result.Status),
	)
	return true
}

func (s *paymentService) GetPaymentDetail(ctx context.Context, orderID string) (*response.PaymentDetailResponse, error) {
	payment, err := s.repo.Payment.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	correlation, err := s.repo.Correlation.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment == nil && correlation == nil {
		return nil, ErrPaymentNotFound
	}

	detail := &response.PaymentDetailResponse{OrderID: orderID}

	if correlation != nil {
		status := string(correlation.Status)
		detail.CorrelationStatus = &status
		detail.PackageID = &correlation.PackageID
	}

	if payment != nil {
		p := response.PaymentToResponse(payment)
		detail.Payment = &p
	}

	invoice, err := s.repo.Invoice.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if invoice != nil {
		i := response.InvoiceToResponse(invoice)
		detail.Invoice = &i
		detail.PackageID = &invoice.PackageID
	}

	voucher, err := s.repo.Voucher.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if voucher != nil {
		v := response.VoucherToResponse(voucher)
		detail.Voucher = &v
	}

	return detail, nil
}
