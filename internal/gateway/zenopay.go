// Package gateway talks to the ZenoPay mobile money API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	initiatePath    = "/api/payments/mobile_money_tanzania"
	orderStatusPath = "/api/payments/order-status"
)

var ErrNotConfigured = errors.New("payment gateway is not configured")

// StatusError is a non-2xx gateway response.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway responded %d: %s", e.StatusCode, e.Body)
}

// Gateway is the payment provider surface the services depend on.
type Gateway interface {
	InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	CheckOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error)
}

type InitiateRequest struct {
	OrderID    string
	BuyerEmail string
	BuyerName  string
	BuyerPhone string
	Amount     decimal.Decimal
	WebhookURL string
}

type InitiateResult struct {
	OrderID          string `json:"order_id"`
	PaymentReference string `json:"payment_reference"`
	PaymentURL       string `json:"payment_url"`
	Message          string `json:"message"`
}

// OrderStatus is the gateway's view of one order.
type OrderStatus struct {
	OrderID       string
	PaymentStatus string
	Amount        string
	Channel       string
	TransactionID string
	Reference     string
	Msisdn        string
}

type ZenoPayClient struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	log         *zap.Logger
	retryDelays []time.Duration
}

func NewZenoPayClient(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *ZenoPayClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ZenoPayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log:         log.With(zap.String("client", "zenopay")),
		retryDelays: []time.Duration{500 * time.Millisecond, 1 * time.Second, 2 * time.Second},
	}
}

func (c *ZenoPayClient) InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	body := map[string]any{
		"order_id":    req.OrderID,
		"buyer_email": req.BuyerEmail,
		"buyer_name":  req.BuyerName,
		"buyer_phone": req.BuyerPhone,
		// whole shillings only
		"amount": req.Amount.IntPart(),
	}
	if req.WebhookURL != "" {
		body["webhook_url"] = req.WebhookURL
	}

	raw, err := c.post(ctx, initiatePath, body)
	if err != nil {
		return nil, fmt.Errorf("initiate payment %s: %w", req.OrderID, err)
	}

	var result InitiateResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode initiate response: %w", err)
	}
	if result.OrderID == "" {
		result.OrderID = req.OrderID
	}

	c.log.Info("Payment initiated",
		zap.String("order_id", req.OrderID),
		zap.String("payment_reference", result.PaymentReference),
	)
	return &result, nil
}

func (c *ZenoPayClient) CheckOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	raw, err := c.post(ctx, orderStatusPath, map[string]any{"order_id": orderID})
	if err != nil {
		return nil, fmt.Errorf("check order status %s: %w", orderID, err)
	}

	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode order status: %w", err)
	}

	// the order may be reported at the top level or as the first item of "data"
	fields := envelope
	if data, ok := envelope["data"].([]any); ok && len(data) > 0 {
		if first, ok := data[0].(map[string]any); ok {
			fields = first
		}
	}

	status := &OrderStatus{
		OrderID:       firstString(fields, "order_id"),
		PaymentStatus: firstString(fields, "payment_status", "status"),
		Amount:        firstString(fields, "amount"),
		Channel:       firstString(fields, "channel"),
		TransactionID: firstString(fields, "transid", "transaction_id"),
		Reference:     firstString(fields, "reference", "payment_reference"),
		Msisdn:        firstString(fields, "msisdn", "buyer_phone"),
	}
	if status.OrderID == "" {
		status.OrderID = orderID
	}

	return status, nil
}

// post sends a JSON request, retrying transport errors and 5xx responses.
func (c *ZenoPayClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	if c == nil || c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= len(c.retryDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelays[attempt-1]):
			}
		}

		raw, err := c.do(ctx, path, body)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, err
		}
		c.log.Warn("Gateway call failed, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	return nil, lastErr
}

func (c *ZenoPayClient) do(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 256)}
		if resp.StatusCode == http.StatusTooManyRequests {
			if v := resp.Header.Get("Retry-After"); v != "" {
				if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
					statusErr.RetryAfter = time.Duration(seconds) * time.Second
				}
			}
		}
		return nil, statusErr
	}

	return raw, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}
	return true
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
