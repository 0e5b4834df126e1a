package token

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
)

// InMemoryRepo is a thread-safe in-memory implementation of Repo.
type InMemoryRepo struct {
	mu  sync.RWMutex
	tok *Token
}

// NewInMemoryRepo creates a new in-memory token repository.
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{}
}

// Get returns a copy of the stored record, so callers always decide on a
// fresh read rather than a shared mutable pointer.
func (r *InMemoryRepo) Get(ctx context.Context) (*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.tok == nil {
		return nil, ssoerrors.ErrNoToken
	}
	copied := *r.tok
	return &copied, nil
}

func (r *InMemoryRepo) Upsert(ctx context.Context, tok *Token) error {
	if tok == nil {
		return errors.New("[InMemoryRepo.Upsert] token cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *tok
	r.tok = &copied
	return nil
}

func (r *InMemoryRepo) Delete(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tok = nil
	return nil
}

// InMemoryDenylist keeps SHA-256 digests of revoked tokens until expiry.
// Digests, not raw credentials, so the denylist never extends a token's
// exposure.
type InMemoryDenylist struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	nowFunc func() time.Time
}

// NewInMemoryDenylist creates an empty denylist.
func NewInMemoryDenylist() *InMemoryDenylist {
	return &InMemoryDenylist{
		revoked: make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

func (d *InMemoryDenylist) Add(ctx context.Context, rawToken string, exp time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.revoked[digest(rawToken)] = exp
	return nil
}

func (d *InMemoryDenylist) Contains(ctx context.Context, rawToken string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	exp, exists := d.revoked[digest(rawToken)]
	if !exists {
		return false
	}
	return d.nowFunc().Before(exp)
}

// Cleanup removes entries whose tokens have expired on their own.
func (d *InMemoryDenylist) Cleanup(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.nowFunc()
	for key, exp := range d.revoked {
		if now.After(exp) {
			delete(d.revoked, key)
		}
	}
}
