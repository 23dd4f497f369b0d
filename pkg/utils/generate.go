package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

const voucherAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	MinVoucherCodeLength = 6
	MaxVoucherCodeLength = 8
)

// ==================== UUID & TOKEN ====================

func GenerateUUID() uuid.UUID {
	return uuid.New()
}

func ParseUUID(uuidStr string) (uuid.UUID, error) {
	return uuid.Parse(uuidStr)
}

// GenerateSessionToken builds a device session token: a dashless uuid
// followed by the first four characters of the voucher code, uppercased.
func GenerateSessionToken(voucherCode string) string {
	suffix := voucherCode
	if len(suffix) > 4 {
		suffix = suffix[:4]
	}
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "") + suffix)
}

// ==================== VOUCHER ====================

// GenerateVoucherCode returns a random code over A-Z0-9. Length is clamped
// to the accepted voucher range.
func GenerateVoucherCode(length int) string {
	if length < MinVoucherCodeLength {
		length = MinVoucherCodeLength
	}
	if length > MaxVoucherCodeLength {
		length = MaxVoucherCodeLength
	}

	max := big.NewInt(int64(len(voucherAlphabet)))
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(fmt.Sprintf("voucher code entropy: %v", err))
		}
		code[i] = voucherAlphabet[n.Int64()]
	}

	return string(code)
}

// ==================== ORDER ID ====================

// GenerateOrderID creates an order id the gateway echoes back in webhooks.
// Format: PKG_<unix millis>_<last 4 phone digits>_<package id>
func GenerateOrderID(phone string, packageID int64, now time.Time) string {
	return fmt.Sprintf("PKG_%d_%s_%d", now.UnixMilli(), LastDigits(phone, 4), packageID)
}

// GenerateInvoiceNumber creates INV-YYYYMMDD-XXXXXX.
func GenerateInvoiceNumber(now time.Time) string {
	return fmt.Sprintf("INV-%s-%s", now.Format("20060102"), GenerateVoucherCode(6))
}

// ==================== FINGERPRINT ====================

// HashFingerprint returns the hex SHA-256 of raw device fingerprint data.
func HashFingerprint(raw string) string {
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
