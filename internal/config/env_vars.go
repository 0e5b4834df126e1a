package config

import (
	"os"

	"github.com/jrsteele09/go-sso-client/internal/utils"
)

const (
	serverURLVar    = "SSO_SERVER_URL"
	clientIDVar     = "SSO_CLIENT_ID"
	clientSecretVar = "SSO_CLIENT_SECRET"
	redirectURIVar  = "SSO_REDIRECT_URI"
	scopesVar       = "SSO_SCOPES"
	appNameVar      = "APP_NAME"
)

type EnvVars struct{}

var _ ClientConfig = EnvVars{}

func (EnvVars) GetServerURL() string {
	return GetEnv(serverURLVar, "http://localhost:8080")
}

func (EnvVars) GetClientID() string {
	return GetEnv(clientIDVar, "")
}

func (EnvVars) GetClientSecret() string {
	return GetEnv(clientSecretVar, "")
}

func (EnvVars) GetRedirectURI() string {
	return GetEnv(redirectURIVar, "http://localhost:3000/auth/callback")
}

func (EnvVars) GetScopes() []string {
	return utils.SplitScopes(GetEnv(scopesVar, "openid profile email"))
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Go SSO Client")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
