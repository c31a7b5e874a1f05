package sessions

import (
	"time"

	"github.com/jrsteele09/go-auth-client/users"
)

// Session is the signed-in state of the console. The zero value is the empty session.
type Session struct {
	User              *users.User // Identity record. Only Role is interpreted by the core
	AccessToken       string      // Short-lived credential; may be retained after expiry
	AccessTokenExpiry time.Time   // Instant after which AccessToken is never read as valid
	RefreshToken      string      // Optional. Empty disables the refresh path
}

// Tokens are the credentials handed to SetSession by login, signup and OAuth callbacks.
type Tokens struct {
	AccessToken  string
	RefreshToken string        // Optional
	ExpiresIn    time.Duration // Used to compute AccessTokenExpiry
}

// IsAuthenticated is derived, never stored
func (s Session) IsAuthenticated() bool {
	return s.User != nil && s.AccessToken != ""
}

// IsAccessTokenExpired reports whether the access token can no longer be used at now.
// A missing token counts as expired.
func (s Session) IsAccessTokenExpired(now time.Time) bool {
	if s.AccessToken == "" {
		return true
	}
	return !now.Before(s.AccessTokenExpiry)
}

// HasRefreshToken reports whether the refresh path is available
func (s Session) HasRefreshToken() bool {
	return s.RefreshToken != ""
}

func (s Session) clone() Session {
	s.User = s.User.Clone()
	return s
}

// Snapshot is the persisted form of a session
type Snapshot struct {
	User              *users.User `json:"user"`
	AccessToken       string      `json:"access_token"`
	AccessTokenExpiry time.Time   `json:"access_token_expiry"`
	RefreshToken      string      `json:"refresh_token,omitempty"`
	SavedAt           time.Time   `json:"saved_at"`
}

func (s Session) snapshot(now time.Time) *Snapshot {
	return &Snapshot{
		User:              s.User.Clone(),
		AccessToken:       s.AccessToken,
		AccessTokenExpiry: s.AccessTokenExpiry,
		RefreshToken:      s.RefreshToken,
		SavedAt:           now,
	}
}

func (snap *Snapshot) session() Session {
	return Session{
		User:              snap.User.Clone(),
		AccessToken:       snap.AccessToken,
		AccessTokenExpiry: snap.AccessTokenExpiry,
		RefreshToken:      snap.RefreshToken,
	}
}
