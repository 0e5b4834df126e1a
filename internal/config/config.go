package config

import "time"

type Config interface {
	ClientConfig
	SessionConfig
	StorageConfig
}

// ClientConfig supplies the relying-party identity handed to the SSO core.
// The core never reads the environment itself; values are loaded once here
// and passed in as plain read-only inputs.
type ClientConfig interface {
	GetServerURL() string
	GetClientID() string
	GetClientSecret() string
	GetRedirectURI() string
	GetScopes() []string
	GetAppName() string
	GetEnv() string
}

type SessionConfig interface {
	GetSessionTimeout() time.Duration
	GetAutoRefresh() bool
}

type StorageConfig interface {
	GetStorageBackend() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type mainConfig struct {
	EnvVars
	Session
	Storage
}

func New() Config {
	return mainConfig{}
}
