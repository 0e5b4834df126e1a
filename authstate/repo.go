// Package authstate stores the short-lived per-attempt flow record (PKCE
// verifier, nonce and provider binding) keyed by the state parameter.
// Records are single-use: Consume removes the record as it is read, so a
// replayed state can never resolve twice.
package authstate

import (
	"context"
	"time"
)

// Flow is the state persisted between building an authorization URL and
// handling its callback. It lives in short-lived storage and is destroyed on
// first use, successful or not.
type Flow struct {
	ProviderID   string    `json:"provider_id"`
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	Nonce        string    `json:"nonce"`
	RedirectURI  string    `json:"redirect_uri"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repo persists auth flow records keyed by state.
type Repo interface {
	Upsert(ctx context.Context, state string, flow *Flow) error
	Get(ctx context.Context, state string) (*Flow, error)
	// Consume atomically retrieves and deletes the record, enforcing the
	// single-use state invariant.
	Consume(ctx context.Context, state string) (*Flow, error)
	Delete(ctx context.Context, state string) error
}
