package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar        = "PORT"
	appNameVar        = "APP_NAME"
	apiBaseURLEnvVar  = "API_BASE_URL"
	envEnvVar         = "ENV"
	authBackendEnvVar = "AUTH_BACKEND"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Billing Console")
}

// GetAPIBaseURL returns the base URL of the billing API (e.g., "https://api.example.com").
// Auth and refresh endpoint paths are resolved against it.
func (EnvVars) GetAPIBaseURL() string {
	return strings.TrimRight(GetEnv(apiBaseURLEnvVar, "http://localhost:9000"), "/")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv(envEnvVar)
	if env == "" {
		return "DEV"
	}
	return env
}

func (e EnvVars) IsDev() bool {
	return e.GetEnv() == "DEV"
}

// UseFakeAuthBackend starts the in-process auth API instead of calling API_BASE_URL.
// Only honoured in DEV.
func (e EnvVars) UseFakeAuthBackend() bool {
	return e.IsDev() && strings.EqualFold(GetEnv(authBackendEnvVar, ""), "fake")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDurationEnv parses a Go duration ("15m", "2s"); invalid values fall back to the default.
func GetDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func GetIntEnv(envVar string, defaultValue int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}
