package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	// ErrInvalidInput indicates the input failed validation
	ErrInvalidInput = errors.New("invalid input")

	// Names become path segments in metric names and URLs, so "/" and
	// whitespace are excluded.
	nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,99}$`)
)

// SanitizeString removes potentially dangerous characters and trims whitespace
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters except newline and tab
	var builder strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) || r == '\n' || r == '\t' {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}

// ValidateName checks an operational string, service or SLA name. kind
// prefixes the error message.
func ValidateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%w: %s name cannot be empty", ErrInvalidInput, kind)
	}
	if len(name) > 100 {
		return fmt.Errorf("%w: %s name must not exceed 100 characters", ErrInvalidInput, kind)
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("%w: %s name %q must start with alphanumeric and contain only letters, numbers, dots, hyphens, and underscores",
			ErrInvalidInput, kind, name)
	}
	return nil
}

// ValidateUsername checks if a username is valid
func ValidateUsername(username string) error {
	username = SanitizeString(username)

	if username == "" {
		return errors.New("username cannot be empty")
	}

	if len(username) < 3 {
		return errors.New("username must be at least 3 characters")
	}

	if len(username) > 50 {
		return errors.New("username must not exceed 50 characters")
	}

	return nil
}

// ValidatePassword checks if a password meets security requirements
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	if len(password) > 72 {
		// bcrypt ignores everything past 72 bytes
		return errors.New("password must not exceed 72 characters")
	}

	var (
		hasUpper   bool
		hasLower   bool
		hasNumber  bool
		hasSpecial bool
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	if !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return errors.New("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return errors.New("password must contain at least one number")
	}
	if !hasSpecial {
		return errors.New("password must contain at least one special character")
	}

	return nil
}
