package sessions

import "context"

// Repo persists the single session record for this client context. Get
// returns ErrSessionNotFound when nothing is stored; Delete is idempotent.
type Repo interface {
	Get(ctx context.Context) (*Session, error)
	Upsert(ctx context.Context, s *Session) error
	Delete(ctx context.Context) error
}
