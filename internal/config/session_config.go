package config

import (
	"strconv"
	"time"
)

type Session struct{}

var _ SessionConfig = Session{}

// GetSessionTimeout returns the local session lifetime. Defaults to one hour.
func (Session) GetSessionTimeout() time.Duration {
	raw := GetEnv("SSO_SESSION_TIMEOUT_SECONDS", "3600")
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		secs = 3600
	}
	return time.Duration(secs) * time.Second
}

// GetAutoRefresh reports whether proactive token refresh is enabled.
func (Session) GetAutoRefresh() bool {
	return GetEnv("SSO_AUTO_REFRESH", "true") != "false"
}
