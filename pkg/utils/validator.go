package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	nonDigits       = regexp.MustCompile(`\D`)
	controlChars    = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	serviceCodeExpr = regexp.MustCompile(`^\d{1,2}(\.\d{2}){1,2}$`)
)

// NormalizePhone reduces a phone number to E.164 digits without the plus sign.
// Numbers without a leading "+" and with 10 or 11 digits are local and get
// defaultCountry prepended.
func NormalizePhone(phone, defaultCountry string) (string, error) {
	international := strings.HasPrefix(strings.TrimSpace(phone), "+")
	digits := nonDigits.ReplaceAllString(phone, "")
	digits = strings.TrimLeft(digits, "0")

	if digits == "" {
		return "", fmt.Errorf("phone number is empty")
	}
	if !international && (len(digits) == 10 || len(digits) == 11) {
		digits = defaultCountry + digits
	}

	if len(digits) < 11 || len(digits) > 15 {
		return "", fmt.Errorf("invalid phone number: %s", phone)
	}
	return digits, nil
}

// ValidateServiceCode checks a municipal service list code such as "14.01" or "7.02.01"
func ValidateServiceCode(code string) error {
	if !serviceCodeExpr.MatchString(code) {
		return fmt.Errorf("invalid service code format: %s", code)
	}
	return nil
}

// ValidateAmount validates a monetary amount
func ValidateAmount(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive: %.2f", amount)
	}

	if amount > 1000000 {
		return fmt.Errorf("amount exceeds maximum limit: %.2f", amount)
	}

	return nil
}

// SanitizeString removes control characters, keeping tabs and line breaks
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}
