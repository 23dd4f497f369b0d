package utils

import (
	"strconv"
	"strings"
)

// ParseInt converts string to int with default value
func ParseInt(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}

	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	if result < 1 {
		return defaultValue
	}

	return result
}

// DigitsOnly strips everything but 0-9.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidMSISDN accepts phone numbers carrying 9 to 15 digits. Only a leading
// plus, spaces and dashes are tolerated as separators.
func IsValidMSISDN(phone string) bool {
	cleaned := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))
	cleaned = strings.TrimPrefix(cleaned, "+")
	if cleaned == "" {
		return false
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(cleaned) >= 9 && len(cleaned) <= 15
}

// NormalizePhone returns the international form used as the customer key.
// Local numbers (0XXXXXXXXX or 9 bare digits) get the Tanzanian 255 prefix.
func NormalizePhone(phone string) string {
	digits := DigitsOnly(phone)
	switch {
	case len(digits) == 10 && strings.HasPrefix(digits, "0"):
		return "255" + digits[1:]
	case len(digits) == 9:
		return "255" + digits
	default:
		return digits
	}
}

// LastDigits returns the last n digits of phone, or all of them when shorter.
func LastDigits(phone string, n int) string {
	digits := DigitsOnly(phone)
	if len(digits) <= n {
		return digits
	}
	return digits[len(digits)-n:]
}

// MaskPhone hides the middle of a phone number for logs.
func MaskPhone(phone string) string {
	if len(phone) < 7 {
		return phone
	}
	return phone[:3] + strings.Repeat("*", len(phone)-6) + phone[len(phone)-3:]
}
