package utils

import (
	"fmt"
	"net"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

var voucherCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{6,8}$`)

func newValidator() *validator.Validate {
	v := validator.New()

	// msisdn: 9..15 digits once separators and leading + are stripped
	_ = v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
		return IsValidMSISDN(fl.Field().String())
	})
	_ = v.RegisterValidation("vouchercode", func(fl validator.FieldLevel) bool {
		return voucherCodePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("macaddr", func(fl validator.FieldLevel) bool {
		_, err := net.ParseMAC(fl.Field().String())
		return err == nil
	})

	return v
}

func ValidateStruct(data any) map[string]string {
	err := validate.Struct(data)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, err := range validationErrors {
			errors[err.Field()] = getErrorMessage(err)
		}
	}

	return errors
}

// IsValidVoucherCode reports whether code has the issued voucher shape.
func IsValidVoucherCode(code string) bool {
	return voucherCodePattern.MatchString(code)
}

// converts validator errors to human-readable messages
func getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		return fmt.Sprintf("Minimum length is %s", err.Param())
	case "max":
		return fmt.Sprintf("Maximum length is %s", err.Param())
	case "len":
		return fmt.Sprintf("Must be exactly %s characters", err.Param())
	case "oneof":
		options := strings.ReplaceAll(err.Param(), " ", ", ")
		return fmt.Sprintf("Must be one of: %s", options)
	case "uuid":
		return "Must be a valid UUID"
	case "msisdn":
		return "Must be a phone number with 9 to 15 digits"
	case "vouchercode":
		return "Must be 6 to 8 letters or digits"
	case "macaddr":
		return "Must be a valid MAC address"
	case "ip":
		return "Must be a valid IP address"
	case "gt":
		return fmt.Sprintf("Must be greater than %s", err.Param())
	default:
		return fmt.Sprintf("Invalid %s field", err.Field())
	}
}

// formats validation errors map into single string
func FormatValidationErrors(errors map[string]string) string {
	var msgs []string
	for field, msg := range errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}
