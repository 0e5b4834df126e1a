// Package broadcast synchronizes authentication state across cooperating
// processes of the same client context: one process's logout or token
// refresh is applied by the others, and a starting process can ask its
// peers whether a session already exists.
package broadcast

import (
	"time"

	"github.com/jrsteele09/go-sso-client/token"
)

// MessageType identifies a sync message.
type MessageType string

const (
	// SessionRequest asks peers whether an authenticated session exists.
	SessionRequest MessageType = "session_request"
	// SessionResponse answers a SessionRequest.
	SessionResponse MessageType = "session_response"
	// Logout tells peers to clear their local authentication state.
	Logout MessageType = "logout"
	// TokenRefresh shares a freshly refreshed token with peers.
	TokenRefresh MessageType = "token_refresh"
)

// Message is one sync message on the bus. Origin identifies the sending
// deployment; receivers drop messages from origins they do not trust.
type Message struct {
	Type     MessageType `json:"type"`
	Origin   string      `json:"origin"`
	SenderID string      `json:"sender_id"`

	// RequestID ties a SessionResponse to the SessionRequest it answers.
	RequestID string `json:"request_id,omitempty"`

	Authenticated bool         `json:"authenticated,omitempty"`
	SessionID     string       `json:"session_id,omitempty"`
	Token         *token.Token `json:"token,omitempty"`
	ExpiresAt     time.Time    `json:"expires_at,omitempty"`
}
