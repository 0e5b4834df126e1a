package token_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-sso-client/events"
	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/jrsteele09/go-sso-client/token"
)

type fakeRefresher struct {
	mu           sync.Mutex
	refreshCalls int32
	revokeCalls  int32
	delay        time.Duration
	refreshErr   error
	next         token.Token
}

func (f *fakeRefresher) Refresh(ctx context.Context, providerID, refreshToken string) (token.Token, error) {
	atomic.AddInt32(&f.refreshCalls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.refreshErr != nil {
		return token.Token{}, f.refreshErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next, nil
}

func (f *fakeRefresher) Revoke(ctx context.Context, providerID, rawToken string) error {
	atomic.AddInt32(&f.revokeCalls, 1)
	return nil
}

func newTestManager(t *testing.T, refresher *fakeRefresher, options ...token.ManagerOption) *token.Manager {
	t.Helper()
	m, err := token.NewManager(token.NewInMemoryRepo(), refresher, options...)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestManagerSetAndAccessToken(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &fakeRefresher{}, token.WithAutoRefresh(false))

	require.NoError(t, m.Set(ctx, token.Token{
		AccessToken: "access-abc",
		TokenType:   "Bearer",
		ProviderID:  "acme",
		ExpiresIn:   3600,
	}))

	access, err := m.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "access-abc", access)

	stored, err := m.Token(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "acme", stored.ProviderID)
	require.False(t, stored.ExpiresAt.IsZero(), "ExpiresAt should be derived from ExpiresIn")
	require.False(t, stored.StoredAt.IsZero())
}

func TestManagerRejectsStructurallyInvalidTokens(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &fakeRefresher{}, token.WithAutoRefresh(false))

	t.Run("missing access token", func(t *testing.T) {
		err := m.Set(ctx, token.Token{TokenType: "Bearer"})
		require.ErrorIs(t, err, ssoerrors.ErrInvalidToken)
	})

	t.Run("missing token type", func(t *testing.T) {
		err := m.Set(ctx, token.Token{AccessToken: "abc"})
		require.ErrorIs(t, err, ssoerrors.ErrInvalidToken)
	})

	t.Run("already expired", func(t *testing.T) {
		err := m.Set(ctx, token.Token{
			AccessToken: "abc",
			TokenType:   "Bearer",
			ExpiresAt:   time.Now().Add(-time.Minute),
		})
		require.ErrorIs(t, err, ssoerrors.ErrTokenExpired)
	})
}

func TestManagerLazyExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := &now
	var mu sync.Mutex
	nowFunc := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return *clock
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		*clock = clock.Add(d)
	}

	t.Run("without refresh token the record is cleared", func(t *testing.T) {
		m := newTestManager(t, &fakeRefresher{}, token.WithAutoRefresh(false), token.WithNowFunc(nowFunc))
		require.NoError(t, m.Set(ctx, token.Token{
			AccessToken: "short-lived",
			TokenType:   "Bearer",
			ExpiresIn:   60,
		}))

		advance(2 * time.Minute)

		access, err := m.AccessToken(ctx)
		require.NoError(t, err)
		require.Empty(t, access)

		stored, err := m.Token(ctx)
		require.NoError(t, err)
		require.Nil(t, stored)
	})

	t.Run("with refresh token the record survives for redemption", func(t *testing.T) {
		m := newTestManager(t, &fakeRefresher{}, token.WithAutoRefresh(false), token.WithNowFunc(nowFunc))
		require.NoError(t, m.Set(ctx, token.Token{
			AccessToken:  "short-lived",
			RefreshToken: "refresh-xyz",
			TokenType:    "Bearer",
			ExpiresIn:    60,
		}))

		advance(2 * time.Minute)

		access, err := m.AccessToken(ctx)
		require.NoError(t, err)
		require.Empty(t, access)

		stored, err := m.Token(ctx)
		require.NoError(t, err)
		require.NotNil(t, stored)
		require.Equal(t, "refresh-xyz", stored.RefreshToken)
	})
}

func TestManagerExpiredThenRefreshRecovers(t *testing.T) {
	ctx := context.Background()
	refresher := &fakeRefresher{next: token.Token{
		AccessToken: "fresh-access",
		TokenType:   "Bearer",
		ExpiresIn:   3600,
	}}
	m := newTestManager(t, refresher, token.WithAutoRefresh(false))

	require.NoError(t, m.Set(ctx, token.Token{
		AccessToken:  "stale-access",
		RefreshToken: "refresh-xyz",
		TokenType:    "Bearer",
		ProviderID:   "acme",
		ExpiresAt:    time.Now().Add(50 * time.Millisecond),
	}))

	time.Sleep(100 * time.Millisecond)

	access, err := m.AccessToken(ctx)
	require.NoError(t, err)
	require.Empty(t, access, "expired access token must not be handed out")

	refreshed, err := m.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, "fresh-access", refreshed.AccessToken)
	require.Equal(t, "refresh-xyz", refreshed.RefreshToken, "non-rotating refresh token carries forward")
	require.Equal(t, "acme", refreshed.ProviderID)

	access, err = m.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "fresh-access", access)
}

func TestManagerRefreshWithoutRefreshToken(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing stored", func(t *testing.T) {
		m := newTestManager(t, &fakeRefresher{}, token.WithAutoRefresh(false))
		_, err := m.Refresh(ctx)
		require.ErrorIs(t, err, ssoerrors.ErrNoRefreshToken)
	})

	t.Run("stored token lacks refresh_token", func(t *testing.T) {
		m := newTestManager(t, &fakeRefresher{}, token.WithAutoRefresh(false))
		require.NoError(t, m.Set(ctx, token.Token{
			AccessToken: "abc",
			TokenType:   "Bearer",
			ExpiresIn:   3600,
		}))
		_, err := m.Refresh(ctx)
		require.ErrorIs(t, err, ssoerrors.ErrNoRefreshToken)
	})
}

func TestManagerConcurrentRefreshDeduplicates(t *testing.T) {
	ctx := context.Background()
	refresher := &fakeRefresher{
		delay: 100 * time.Millisecond,
		next: token.Token{
			AccessToken: "fresh-access",
			TokenType:   "Bearer",
			ExpiresIn:   3600,
		},
	}
	m := newTestManager(t, refresher, token.WithAutoRefresh(false))

	require.NoError(t, m.Set(ctx, token.Token{
		AccessToken:  "stale-access",
		RefreshToken: "refresh-xyz",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
	}))

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*token.Token, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Refresh(ctx)
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&refresher.refreshCalls), "concurrent callers must share one refresh request")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "fresh-access", results[i].AccessToken)
	}
}

func TestManagerScheduledRefreshFiresImmediatelyWhenInsideMargin(t *testing.T) {
	ctx := context.Background()
	refresher := &fakeRefresher{next: token.Token{
		AccessToken: "fresh-access",
		TokenType:   "Bearer",
		ExpiresIn:   3600,
	}}
	m := newTestManager(t, refresher) // autoRefresh on, default 5m margin

	// Expiry inside the margin: the computed delay is negative, so the
	// refresh must fire straight away rather than being skipped.
	require.NoError(t, m.Set(ctx, token.Token{
		AccessToken:  "stale-access",
		RefreshToken: "refresh-xyz",
		TokenType:    "Bearer",
		ExpiresIn:    60,
	}))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&refresher.refreshCalls) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		access, err := m.AccessToken(ctx)
		return err == nil && access == "fresh-access"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManagerRevoke(t *testing.T) {
	ctx := context.Background()
	refresher := &fakeRefresher{}
	m := newTestManager(t, refresher, token.WithAutoRefresh(false))

	require.NoError(t, m.Set(ctx, token.Token{
		AccessToken:  "access-abc",
		RefreshToken: "refresh-xyz",
		TokenType:    "Bearer",
		ProviderID:   "acme",
		ExpiresIn:    3600,
	}))

	require.NoError(t, m.Revoke(ctx, ""))
	require.EqualValues(t, 1, atomic.LoadInt32(&refresher.revokeCalls))

	stored, err := m.Token(ctx)
	require.NoError(t, err)
	require.Nil(t, stored, "local state is cleared regardless of remote outcome")

	// Second revoke with nothing stored is a no-op, not an error.
	require.NoError(t, m.Revoke(ctx, ""))
	require.EqualValues(t, 1, atomic.LoadInt32(&refresher.revokeCalls))
}

func TestManagerRevokeDenylistsToken(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &fakeRefresher{}, token.WithAutoRefresh(false))

	require.NoError(t, m.Set(ctx, token.Token{
		AccessToken: "access-abc",
		TokenType:   "Bearer",
		ExpiresIn:   3600,
	}))
	require.NoError(t, m.Revoke(ctx, ""))

	// Re-storing the revoked credential (e.g. read back from shared storage)
	// must not hand it out again.
	require.NoError(t, m.Set(ctx, token.Token{
		AccessToken: "access-abc",
		TokenType:   "Bearer",
		ExpiresIn:   3600,
	}))
	access, err := m.AccessToken(ctx)
	require.NoError(t, err)
	require.Empty(t, access)
}

func TestManagerPublishesLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	stream := events.NewStream()

	var mu sync.Mutex
	var seen []events.Type
	cancel := stream.Subscribe(func(e events.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Type)
	})
	defer cancel()

	m := newTestManager(t, &fakeRefresher{}, token.WithAutoRefresh(false), token.WithEvents(stream))

	require.NoError(t, m.Set(ctx, token.Token{
		AccessToken: "access-abc",
		TokenType:   "Bearer",
		ExpiresIn:   3600,
	}))
	require.NoError(t, m.Clear(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []events.Type{events.TokenStored, events.TokenCleared}, seen)
}
