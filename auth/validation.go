package auth

import (
	"fmt"
	"strings"
)

const (
	minPasswordLength = 8
	minStateLength    = 8
)

// ValidateCredentials checks login input before it is sent
func ValidateCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", InvalidCredentialsErr)
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("%w: invalid email format", InvalidCredentialsErr)
	}
	if password == "" {
		return fmt.Errorf("%w: password is required", InvalidCredentialsErr)
	}
	return nil
}

// ValidatePassword enforces the minimum strength for new passwords
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", WeakPasswordErr, minPasswordLength)
	}
	if strings.TrimSpace(password) != password {
		return fmt.Errorf("%w: must not start or end with whitespace", WeakPasswordErr)
	}
	return nil
}

// ValidateSignup checks a signup request before it is sent
func ValidateSignup(req SignupRequest) error {
	if err := ValidateCredentials(req.Email, req.Password); err != nil {
		return err
	}
	return ValidatePassword(req.Password)
}

// ValidateState checks the OAuth state parameter
func ValidateState(state string) error {
	if len(state) < minStateLength {
		return fmt.Errorf("%w: state must be at least %d characters", InvalidStateErr, minStateLength)
	}
	if strings.TrimSpace(state) != state {
		return fmt.Errorf("%w: state must not contain leading/trailing whitespace", InvalidStateErr)
	}
	return nil
}
