package sessions

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
)

// InMemoryRepo is a thread-safe in-memory implementation of Repo.
type InMemoryRepo struct {
	mu      sync.RWMutex
	session *Session
}

// NewInMemoryRepo creates a new in-memory session repository.
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{}
}

// Get returns a copy of the stored record so callers never share a mutable
// pointer with the repository.
func (r *InMemoryRepo) Get(ctx context.Context) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.session == nil {
		return nil, ssoerrors.ErrSessionNotFound
	}
	copied := *r.session
	return &copied, nil
}

func (r *InMemoryRepo) Upsert(ctx context.Context, s *Session) error {
	if s == nil {
		return errors.New("[InMemoryRepo.Upsert] session cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *s
	r.session = &copied
	return nil
}

func (r *InMemoryRepo) Delete(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.session = nil
	return nil
}
