package utils

import (
	"net/mail"
	"strings"
)

const (
	MinPasswordLength = 8
	MinPANLength      = 13
	MaxPANLength      = 19
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidateEmail accepts a bare address such as ana@example.com.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &ValidationError{Field: "email", Message: "Email is required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &ValidationError{Field: "email", Message: "Email address is invalid"}
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return &ValidationError{Field: "password", Message: "Password must be at least 8 characters"}
	}
	return nil
}

// NormalizePAN strips spaces and dashes from a card number.
func NormalizePAN(pan string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(pan))
}

// ValidatePAN checks length, digits and the Luhn checksum.
func ValidatePAN(pan string) error {
	if len(pan) < MinPANLength || len(pan) > MaxPANLength {
		return &ValidationError{Field: "primary_account_number", Message: "Card number must be 13 to 19 digits"}
	}
	sum := 0
	double := false
	for i := len(pan) - 1; i >= 0; i-- {
		c := pan[i]
		if c < '0' || c > '9' {
			return &ValidationError{Field: "primary_account_number", Message: "Card number must contain digits only"}
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	if sum%10 != 0 {
		return &ValidationError{Field: "primary_account_number", Message: "Card number checksum is invalid"}
	}
	return nil
}

// Last4 returns the last four digits of pan.
func Last4(pan string) string {
	if len(pan) <= 4 {
		return pan
	}
	return pan[len(pan)-4:]
}
