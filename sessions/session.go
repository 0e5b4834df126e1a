// Package sessions owns the authenticated session record and its lifecycle:
// creation, activity tracking, sliding expiry and teardown.
package sessions

import "time"

// Session is the persisted session record. One session per client context;
// creating a new one replaces the old.
type Session struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ClientID        string    `json:"client_id"`
	ProviderID      string    `json:"provider_id"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	LastActivity    time.Time `json:"last_activity"`

	// Active distinguishes a live session from one the server has marked
	// inactive. An inactive session is terminal, same as an expired one.
	Active bool `json:"active"`

	RememberMe bool   `json:"remember_me"`
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
}

// Expired reports whether the session has passed its expiry instant.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
