package usecase

import (
	"context"
	"fmt"

	"isp-portal/internal/data/entity"
	"isp-portal/internal/sms"
	"isp-portal/pkg/utils"

	"go.uber.org/zap"
)

// SMS kinds, recorded on sms.send payloads.
const (
	SMSKindVoucherIssued = "voucher_issued"
	SMSKindPaymentFailed = "payment_failed"
	SMSKindVoucherResend = "voucher_resend"
)

type NotificationService interface {
	VoucherIssuedMessage(v *entity.Voucher) string
	VoucherResendMessage(v *entity.Voucher) string
	PaymentFailedMessage(reason string) string
	Send(ctx context.Context, phone, message, messageID string) error
}

type notificationService struct {
	sender sms.Sender
	log    *zap.Logger
}

func NewNotificationService(sender sms.Sender, log *zap.Logger) NotificationService {
	return &notificationService{
		sender: sender,
		log:    log.With(zap.String("service", "notification")),
	}
}

func (s *notificationService) VoucherIssuedMessage(v *entity.Voucher) string {
	return fmt.Sprintf(
		"Your internet package is ready!\nPackage: %s\nVoucher Code: %s\nValidity: %s\nExpires: %s\nConnect to GGWiFi and enter the voucher code.",
		v.PackageName, v.VoucherCode, validityText(v.DurationDays), v.ExpiresAt.Format("02 Jan 2006 15:04"),
	)
}

func (s *notificationService) VoucherResendMessage(v *entity.Voucher) string {
	return fmt.Sprintf(
		"GGWiFi: Your voucher code is %s (%s). Valid until %s.",
		v.VoucherCode, v.PackageName, v.ExpiresAt.Format("02 Jan 2006 15:04"),
	)
}

func (s *notificationService) PaymentFailedMessage(reason string) string {
	return "GGWiFi: " + FailureMessage(reason)
}

func (s *notificationService) Send(ctx context.Context, phone, message, messageID string) error {
	normalized := utils.NormalizePhone(phone)
	if !utils.IsValidMSISDN(normalized) {
		return newValidationError(CodeInvalidMsisdn, "phone", "Cannot send SMS to "+utils.MaskPhone(normalized))
	}

	providerID, err := s.sender.Send(ctx, normalized, message, messageID)
	if err != nil {
		s.log.Warn("SMS delivery failed",
			zap.Error(err),
			zap.String("phone", utils.MaskPhone(normalized)),
			zap.String("message_id", messageID),
		)
		return fmt.Errorf("send sms %s: %w", messageID, err)
	}

	s.log.Debug("SMS delivered",
		zap.String("phone", utils.MaskPhone(normalized)),
		zap.String("provider_id", providerID),
	)
	return nil
}

func validityText(days int) string {
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
