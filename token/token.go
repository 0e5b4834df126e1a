// Package token owns the stored OAuth2 token record and its lifecycle:
// structural validation, lazy expiry, proactive refresh and revocation.
package token

import "time"

// Token is the persisted token record. It is owned exclusively by the
// Manager and replaced wholesale on every mutation, never edited in place.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`

	// ProviderID binds the record to the provider that issued it, so
	// refresh and revocation hit the same endpoints the token came from.
	ProviderID string `json:"provider_id"`

	// ExpiresIn is the relative lifetime in seconds as received on the
	// wire; the Manager derives ExpiresAt from it at store time.
	ExpiresIn int `json:"-"`

	ExpiresAt time.Time `json:"expires_at"`
	StoredAt  time.Time `json:"stored_at"`
}

// Expired reports whether the access token has passed its expiry instant.
// Tokens without an expiry never expire locally.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}
