package oauth2

import (
	"time"

	"github.com/jrsteele09/go-auth-client/users"
)

// RefreshRequest is the body sent to the refresh endpoint.
type RefreshRequest struct {
	// RefreshToken is the opaque long-lived credential held by the session.
	// Example: "tGzv3JOkF0XG5Qx2TlKWIA"
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse represents the response from the refresh endpoint.
// Field names follow the RFC 6749 token endpoint response.
type TokenResponse struct {
	// AccessToken is the short-lived credential attached to every outbound request.
	// Example: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."
	// Usage: Sent as "Authorization: Bearer <access_token>"
	AccessToken string `json:"access_token"`

	// TokenType indicates how to use the access token (always "bearer").
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// Example: 900 (for 15 minutes)
	// Note: Zero means the server did not say; the JWT "exp" claim is used instead
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is the rotated refresh token.
	// Only present: When the server rotates refresh tokens on use
	RefreshToken *string `json:"refresh_token,omitempty"`
}

// Lifetime returns ExpiresIn as a duration (zero when absent)
func (t TokenResponse) Lifetime() time.Duration {
	return time.Duration(t.ExpiresIn) * time.Second
}

// RotatedRefreshToken returns the new refresh token, if the server issued one
func (t TokenResponse) RotatedRefreshToken() (string, bool) {
	if t.RefreshToken == nil || *t.RefreshToken == "" {
		return "", false
	}
	return *t.RefreshToken, true
}

// AuthResponse is returned by the login, signup and OAuth callback endpoints.
type AuthResponse struct {
	// User is the signed-in identity. Its role is validated while decoding.
	User *users.User `json:"user"`

	// AccessToken is the short-lived credential for the new session.
	AccessToken string `json:"access_token"`

	// RefreshToken is optional. Its absence disables the refresh path for the session.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresIn is optional on auth endpoints; see TokenResponse.ExpiresIn.
	ExpiresIn int `json:"expires_in,omitempty"`
}

// Lifetime returns ExpiresIn as a duration (zero when absent)
func (a AuthResponse) Lifetime() time.Duration {
	return time.Duration(a.ExpiresIn) * time.Second
}

// ErrorResponse is the error body returned by the API for 4xx responses.
type ErrorResponse struct {
	// Error is a machine readable code.
	// Example: "invalid_credentials", "token_expired"
	Error string `json:"error"`

	// Message is the human readable text shown to the user as-is.
	// Example: "Email or password is incorrect"
	Message string `json:"message,omitempty"`

	// Fields holds per-field validation messages for form errors.
	Fields map[string]string `json:"fields,omitempty"`
}
