package directory

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidInput marks registration input rejections.
var ErrInvalidInput = errors.New("invalid input")

var (
	mobileRe = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)
	emailRe  = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)
)

func validateMobileNumber(number string) (string, error) {
	number = strings.TrimSpace(number)
	if !mobileRe.MatchString(number) {
		return "", fmt.Errorf("%w: mobile number must be in E.164 format (e.g. +92...)", ErrInvalidInput)
	}
	return number, nil
}

func validateEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailRe.MatchString(email) {
		return "", fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	return email, nil
}

// validatePIN accepts 4-6 digit PINs and rejects near-constant ones.
func validatePIN(pin string) error {
	if len(pin) < 4 || len(pin) > 6 {
		return fmt.Errorf("%w: PIN must be 4-6 digits", ErrInvalidInput)
	}
	distinct := make(map[rune]bool)
	for _, r := range pin {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: PIN must be 4-6 digits", ErrInvalidInput)
		}
		distinct[r] = true
	}
	if len(distinct) <= 2 {
		return fmt.Errorf("%w: PIN is too simple (avoid repeated digits)", ErrInvalidInput)
	}
	return nil
}
