package usecase

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
)

const signatureField = "signature"

// WebhookSignature signs a callback body with the shared gateway secret:
// HMAC-SHA256 over key=value pairs sorted by key and joined with "&",
// base64 encoded. The signature field itself is left out.
func WebhookSignature(body map[string]any, secret string) string {
	keys := make([]string, 0, len(body))
	for k := range body {
		if strings.EqualFold(k, signatureField) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+canonicalValue(body[k]))
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks provided, falling back to the body's own
// signature field when provided is empty.
func VerifyWebhookSignature(body map[string]any, provided, secret string) bool {
	if provided == "" {
		provided, _ = body[signatureField].(string)
	}
	if provided == "" {
		return false
	}
	expected := WebhookSignature(body, secret)
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(provided)))
}

func canonicalValue(v any) string {
	if v == nil {
		return "null"
	}
	if s, ok := renderValue(v); ok {
		return s
	}
	return fmt.Sprint(v)
}
