package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryFromJWT reads the exp claim of an access token without verifying its signature.
// The client never holds the signing key; the claim is only used to schedule expiry.
func ExpiryFromJWT(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// ResolveLifetime picks the access token lifetime: the server supplied expires_in when
// present, otherwise the remaining time until the JWT exp claim, otherwise fallback.
func ResolveLifetime(expiresIn time.Duration, accessToken string, now time.Time, fallback time.Duration) time.Duration {
	if expiresIn > 0 {
		return expiresIn
	}
	if exp, ok := ExpiryFromJWT(accessToken); ok {
		if remaining := exp.Sub(now); remaining > 0 {
			return remaining
		}
		return 0
	}
	return fallback
}
