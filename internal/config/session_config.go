package config

import "time"

// StoreBackend selects the persistence adapter behind the session store.
type StoreBackend string

const (
	StoreBackendMemory StoreBackend = "memory"
	StoreBackendFile   StoreBackend = "file"
	StoreBackendRedis  StoreBackend = "redis"
)

type SessionConfig interface {
	GetStoreBackend() StoreBackend
	GetSessionFile() string
	GetDefaultAccessTokenTTL() time.Duration
	GetRefreshMaxTries() uint
	GetRefreshInitialBackoff() time.Duration
	GetEndpoints() Endpoints
}

// Endpoints are the auth API paths, relative to the API base URL.
type Endpoints struct {
	Login          string
	Signup         string
	OAuthCallback  string
	Refresh        string
	Logout         string
	Profile        string
	ForgotPassword string
	ResetPassword  string
}

var defaultEndpoints = Endpoints{
	Login:          "/auth/login",
	Signup:         "/auth/signup",
	OAuthCallback:  "/auth/oauth/callback",
	Refresh:        "/auth/refresh",
	Logout:         "/auth/logout",
	Profile:        "/auth/profile",
	ForgotPassword: "/auth/forgot-password",
	ResetPassword:  "/auth/reset-password",
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetStoreBackend() StoreBackend {
	return StoreBackend(GetEnv("STORE_BACKEND", string(StoreBackendFile)))
}

func (Session) GetSessionFile() string {
	return GetEnv("SESSION_FILE", "./data/session.json")
}

// GetDefaultAccessTokenTTL is used when neither expires_in nor a JWT exp claim is available
func (Session) GetDefaultAccessTokenTTL() time.Duration {
	return GetDurationEnv("DEFAULT_ACCESS_TOKEN_TTL", 15*time.Minute)
}

func (Session) GetRefreshMaxTries() uint {
	tries := GetIntEnv("REFRESH_MAX_TRIES", 3)
	if tries < 1 {
		return 1
	}
	return uint(tries)
}

func (Session) GetRefreshInitialBackoff() time.Duration {
	return GetDurationEnv("REFRESH_INITIAL_BACKOFF", 200*time.Millisecond)
}

func (Session) GetEndpoints() Endpoints {
	return defaultEndpoints
}
