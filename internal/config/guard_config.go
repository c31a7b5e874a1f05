package config

import "time"

type GuardConfig interface {
	GetLoginPath() string
	GetForbiddenPath() string
	GetHydrationTimeout() time.Duration
}

type Guard struct{}

var _ GuardConfig = Guard{}

func (Guard) GetLoginPath() string {
	return GetEnv("LOGIN_PATH", "/login")
}

func (Guard) GetForbiddenPath() string {
	return GetEnv("FORBIDDEN_PATH", "/forbidden")
}

// GetHydrationTimeout bounds how long a guarded route waits for the persisted session to load
func (Guard) GetHydrationTimeout() time.Duration {
	return GetDurationEnv("HYDRATION_TIMEOUT", 2*time.Second)
}
