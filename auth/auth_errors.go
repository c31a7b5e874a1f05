package auth

import "errors"

var (
	MissingUserErr        = errors.New("auth response has no user")
	MissingAccessTokenErr = errors.New("auth response has no access token")
	InvalidStateErr       = errors.New("invalid or expired oauth state")
	InvalidCredentialsErr = errors.New("invalid credentials")
	WeakPasswordErr       = errors.New("password too weak")
	OAuthNotConfiguredErr = errors.New("oauth provider not configured")
)
