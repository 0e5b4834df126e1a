package authstate

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
)

// defaultFlowTTL bounds how long an outstanding authorization attempt stays
// redeemable. Matches the usual authorization-code lifetime.
const defaultFlowTTL = 15 * time.Minute

// InMemoryRepo is a thread-safe in-memory implementation of Repo.
type InMemoryRepo struct {
	mu      sync.Mutex
	flows   map[string]*Flow
	ttl     time.Duration
	nowFunc func() time.Time
}

// InMemoryRepoOption modifies an InMemoryRepo.
type InMemoryRepoOption func(*InMemoryRepo)

// WithFlowTTL overrides the flow lifetime.
func WithFlowTTL(ttl time.Duration) InMemoryRepoOption {
	return func(r *InMemoryRepo) {
		r.ttl = ttl
	}
}

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) InMemoryRepoOption {
	return func(r *InMemoryRepo) {
		r.nowFunc = now
	}
}

// NewInMemoryRepo creates a new in-memory auth flow repository.
func NewInMemoryRepo(options ...InMemoryRepoOption) *InMemoryRepo {
	r := &InMemoryRepo{
		flows:   make(map[string]*Flow),
		ttl:     defaultFlowTTL,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Upsert stores or updates a flow record. Stale records are swept on the way
// in so abandoned attempts do not accumulate.
func (r *InMemoryRepo) Upsert(ctx context.Context, state string, flow *Flow) error {
	if state == "" {
		return errors.New("[InMemoryRepo.Upsert] state cannot be empty")
	}
	if flow == nil {
		return errors.New("[InMemoryRepo.Upsert] flow cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweepLocked()

	copied := *flow
	r.flows[state] = &copied
	return nil
}

// Get retrieves a flow record without consuming it.
func (r *InMemoryRepo) Get(ctx context.Context, state string) (*Flow, error) {
	if state == "" {
		return nil, errors.New("[InMemoryRepo.Get] state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	flow, exists := r.flows[state]
	if !exists || r.expiredLocked(flow) {
		return nil, ssoerrors.ErrStateNotFound
	}

	copied := *flow
	return &copied, nil
}

// Consume retrieves and deletes in one step.
func (r *InMemoryRepo) Consume(ctx context.Context, state string) (*Flow, error) {
	if state == "" {
		return nil, errors.New("[InMemoryRepo.Consume] state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	flow, exists := r.flows[state]
	if !exists {
		return nil, ssoerrors.ErrStateNotFound
	}
	delete(r.flows, state)

	if r.expiredLocked(flow) {
		return nil, ssoerrors.ErrStateNotFound
	}

	copied := *flow
	return &copied, nil
}

// Delete removes a flow record. Missing records are not an error.
func (r *InMemoryRepo) Delete(ctx context.Context, state string) error {
	if state == "" {
		return errors.New("[InMemoryRepo.Delete] state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.flows, state)
	return nil
}

func (r *InMemoryRepo) expiredLocked(flow *Flow) bool {
	return r.nowFunc().Sub(flow.CreatedAt) > r.ttl
}

func (r *InMemoryRepo) sweepLocked() {
	for state, flow := range r.flows {
		if r.expiredLocked(flow) {
			delete(r.flows, state)
		}
	}
}
