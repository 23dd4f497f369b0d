// Package sms sends text messages through the bulk SMS HTTP API.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrRejected is returned when the provider answers without status "success".
var ErrRejected = errors.New("sms rejected by provider")

// Sender delivers one message. messageID is our idempotency reference and is
// forwarded to the provider.
type Sender interface {
	Send(ctx context.Context, phone, message, messageID string) (string, error)
}

type Client struct {
	baseURL    string
	apiKey     string
	senderID   string
	httpClient *http.Client
	log        *zap.Logger
}

type sendRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
	SenderID    string `json:"sender_id"`
	MessageID   string `json:"message_id"`
}

type sendResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

func NewClient(baseURL, apiKey, senderID string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		senderID: senderID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log.With(zap.String("client", "sms")),
	}
}

func (c *Client) Send(ctx context.Context, phone, message, messageID string) (string, error) {
	body, err := json.Marshal(sendRequest{
		PhoneNumber: phone,
		Message:     message,
		SenderID:    c.senderID,
		MessageID:   messageID,
	})
	if err != nil {
		return "", fmt.Errorf("encode sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("sms provider responded %d", resp.StatusCode)
	}

	var out sendResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode sms response: %w", err)
	}
	if out.Status != "success" {
		return "", fmt.Errorf("%w: %s", ErrRejected, out.Error)
	}

	c.log.Info("SMS sent",
		zap.String("message_id", messageID),
		zap.String("provider_id", out.MessageID),
	)
	return out.MessageID, nil
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log.With(zap.String("client", "sms-log"))}
}

func (s *LogSender) Send(_ context.Context, phone, message, messageID string) (string, error) {
	s.log.Info("SMS (not sent, provider disabled)",
		zap.String("phone", phone),
		zap.String("message_id", messageID),
		zap.String("message", message),
	)
	return messageID, nil
}
