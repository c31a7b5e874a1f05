package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Signer signs and verifies JWT access tokens
type Signer interface {
	// Sign creates a signed JWT token from claims
	Sign(claims jwt.MapClaims) (string, error)

	// GetVerificationKey returns the key used to verify a parsed token
	GetVerificationKey(token *jwt.Token) (any, error)
}

// HMACSigner implements Signer using symmetric HMAC-SHA256
type HMACSigner struct {
	secret []byte
}

var _ Signer = (*HMACSigner)(nil)

// NewHMACSigner creates a new HMAC signer with the given secret
func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{
		secret: []byte(secret),
	}
}

func (h *HMACSigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(h.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token with HMAC: %w", err)
	}
	return signedToken, nil
}

func (h *HMACSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

// AccessTokenClaims are the claims minted into an access token
type AccessTokenClaims struct {
	Subject  string
	Role     string
	IssuedAt time.Time
	TTL      time.Duration
}

// CreateAccessToken signs an access token carrying sub, role, iat, exp and a unique jti
func CreateAccessToken(signer Signer, c AccessTokenClaims) (string, error) {
	claims := jwt.MapClaims{
		"sub":  c.Subject,
		"role": c.Role,
		"iat":  c.IssuedAt.Unix(),
		"exp":  c.IssuedAt.Add(c.TTL).Unix(),
		"jti":  uuid.New().String(),
	}
	return signer.Sign(claims)
}

// Verify parses and validates a signed access token, returning its subject
func Verify(signer Signer, raw string, now time.Time) (string, error) {
	parsed, err := jwt.Parse(raw, signer.GetVerificationKey, jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("invalid token subject: %w", err)
	}
	return sub, nil
}
