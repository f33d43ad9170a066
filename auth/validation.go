package auth

import (
	"strings"

	"github.com/pkg/errors"
)

// Validate checks login credentials before any network call is made.
func (c LoginCredentials) Validate() error {
	return validateCredentials(c.Email, c.Password)
}

// Validate checks registration credentials before any network call is made.
func (c RegisterCredentials) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.Wrap(ErrRequestConfiguration, "name is required")
	}
	if strings.TrimSpace(c.City) == "" {
		return errors.Wrap(ErrRequestConfiguration, "city is required")
	}
	return validateCredentials(c.Email, c.Password)
}

func validateCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.Wrap(ErrRequestConfiguration, "email is required")
	}

	// Basic email format validation
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return errors.Wrap(ErrRequestConfiguration, "invalid email format")
	}

	if password == "" {
		return errors.Wrap(ErrRequestConfiguration, "password is required")
	}

	return nil
}
