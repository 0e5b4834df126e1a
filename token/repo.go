package token

import (
	"context"
	"time"
)

// Repo persists the single token record for this client context. Get returns
// ErrNoToken when nothing is stored; Delete is idempotent.
type Repo interface {
	Get(ctx context.Context) (*Token, error)
	Upsert(ctx context.Context, tok *Token) error
	Delete(ctx context.Context) error
}

// Refresher performs the provider-facing half of refresh and revocation.
// It is implemented by the client core; the Manager never reaches into
// provider configuration itself.
type Refresher interface {
	Refresh(ctx context.Context, providerID, refreshToken string) (Token, error)
	Revoke(ctx context.Context, providerID, rawToken string) error
}

// Denylist records explicitly revoked tokens until their natural expiry, so
// a revoked credential read back from shared storage is never handed out.
type Denylist interface {
	Add(ctx context.Context, rawToken string, exp time.Time) error
	Contains(ctx context.Context, rawToken string) bool
	Cleanup(ctx context.Context)
}
