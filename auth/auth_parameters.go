package auth

// LoginRequest is the body of the login endpoint.
type LoginRequest struct {
	// Email identifies the account.
	// Example: "dispatch@carrier.example"
	Email string `json:"email"`

	// Password is sent once and never stored by the console.
	Password string `json:"password"`
}

// SignupRequest is the body of the signup endpoint.
type SignupRequest struct {
	// Email becomes the login identifier of the new account.
	// Required: Yes
	Email string `json:"email"`

	// Password for the new account.
	// Required: Yes
	// Validated: At least minPasswordLength characters before the request is sent
	Password string `json:"password"`

	// FirstName and LastName are shown in the console header.
	// Required: No
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`

	// Company is the customer or carrier the account belongs to.
	// Required: No
	// Example: "Northwind Freight"
	Company string `json:"company,omitempty"`

	// Phone is an optional contact number.
	Phone string `json:"phone,omitempty"`

	// Role requests the account type. The server decides which roles may self-register.
	// Example: "client" or "vendor"
	Role string `json:"role,omitempty"`
}

// OAuthCallbackRequest forwards the provider's callback to the API.
type OAuthCallbackRequest struct {
	// Code is the authorization code returned by the provider.
	Code string `json:"code"`

	// State is echoed back by the provider and matched against the pending flow.
	// Security: Prevents CSRF on the callback
	State string `json:"state"`

	// CodeVerifier is the PKCE secret generated in AuthCodeURL.
	// Security: Proves this console started the flow (RFC 7636)
	CodeVerifier string `json:"code_verifier,omitempty"`

	// RedirectURI must equal the one sent to the provider.
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// LogoutRequest lets the server revoke the refresh token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ForgotPasswordRequest asks the server to send a reset link.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest completes a reset with the token from the emailed link.
type ResetPasswordRequest struct {
	// Token is the single-use reset token.
	Token string `json:"token"`

	// Password is the new password.
	Password string `json:"password"`
}

// MessageResponse is returned by endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message,omitempty"`
}
