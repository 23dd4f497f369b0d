package adaptor

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"isp-portal/internal/dto/response"
	"isp-portal/internal/usecase"
	"isp-portal/pkg/utils"

	"go.uber.org/zap"
)

const (
	maxWebhookBody  = 64 << 10
	signatureHeader = "X-Webhook-Signature"
)

type WebhookHandler struct {
	service usecase.WebhookService
	log     *zap.Logger
}

func NewWebhookHandler(service usecase.WebhookService, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		log:     log.With(zap.String("handler", "webhook")),
	}
}

// Receive handles POST /api/webhooks/payment
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)

	body, err := decodeWebhookBody(r)
	if err != nil {
		h.log.Warn("Unreadable webhook body", zap.String("ip", requestIP(r)), zap.Error(err))
		utils.ResponseJSON(w, http.StatusBadRequest, false, "Invalid webhook payload", &response.WebhookResult{
			Status:    response.WebhookRejected,
			Message:   "Invalid webhook payload",
			ErrorCode: usecase.CodeInvalidPayload,
		}, nil)
		return
	}

	result, err := h.service.HandleWebhook(r.Context(), body, usecase.WebhookMeta{
		IPAddress: requestIP(r),
		Source:    usecase.WebhookSourceGateway,
		Signature: r.Header.Get(signatureHeader),
	})
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidSignature) {
			utils.ResponseJSON(w, http.StatusUnauthorized, false, "Invalid webhook signature", result, nil)
			return
		}
		if verr, details, ok := asValidation(err); ok {
			h.log.Warn("Webhook rejected",
				zap.String("code", verr.Code),
				zap.String("field", verr.Field),
				zap.String("ip", requestIP(r)),
			)
			utils.ResponseJSON(w, http.StatusBadRequest, false, verr.Message, result, details)
			return
		}

		h.log.Error("Failed to process webhook", zap.Error(err))
		utils.ResponseJSON(w, http.StatusInternalServerError, false, "Webhook processing failed", result, nil)
		return
	}

	utils.ResponseJSON(w, http.StatusOK, true, webhookMessage(result), result, nil)
}

func webhookMessage(result *response.WebhookResult) string {
	if result.Message != "" {
		return result.Message
	}
	switch result.Status {
	case response.WebhookSuccess:
		return "Payment processed"
	case response.WebhookFailed:
		return "Payment failure recorded"
	default:
		return "Webhook acknowledged"
	}
}

// decodeWebhookBody accepts JSON, and form-encoded bodies from gateways that
// post forms. Numbers stay json.Number so amounts keep their precision.
func decodeWebhookBody(r *http.Request) (map[string]any, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("empty body")
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, err
		}
		body := make(map[string]any, len(values))
		for key := range values {
			body[key] = values.Get(key)
		}
		return body, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errors.New("body is not an object")
	}
	return body, nil
}
