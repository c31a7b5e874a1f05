package config

import "strings"

type OAuthConfig interface {
	GetOAuthClientID() string
	GetOAuthAuthURL() string
	GetOAuthTokenURL() string
	GetOAuthRedirectURL() string
	GetOAuthScopes() []string
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetOAuthClientID() string {
	return GetEnv("OAUTH_CLIENT_ID", "billing-console")
}

func (OAuth) GetOAuthAuthURL() string {
	return GetEnv("OAUTH_AUTH_URL", "")
}

func (OAuth) GetOAuthTokenURL() string {
	return GetEnv("OAUTH_TOKEN_URL", "")
}

func (OAuth) GetOAuthRedirectURL() string {
	return GetEnv("OAUTH_REDIRECT_URL", "http://localhost:8080/oauth/callback")
}

func (OAuth) GetOAuthScopes() []string {
	return strings.Fields(GetEnv("OAUTH_SCOPES", "openid profile email"))
}
