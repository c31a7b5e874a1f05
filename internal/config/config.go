package config

type Config interface {
	EnvConfig
	SessionConfig
	GuardConfig
	OAuthConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetAPIBaseURL() string
	GetEnv() string
	IsDev() bool
	UseFakeAuthBackend() bool
}

type mainConfig struct {
	EnvVars
	Session
	Guard
	OAuth
}

func New() Config {
	return mainConfig{}
}
