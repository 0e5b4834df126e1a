package broadcast_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-sso-client/broadcast"
	"github.com/jrsteele09/go-sso-client/sessions"
	"github.com/jrsteele09/go-sso-client/token"
)

type noopRefresher struct{}

func (noopRefresher) Refresh(ctx context.Context, providerID, refreshToken string) (token.Token, error) {
	return token.Token{}, nil
}

func (noopRefresher) Revoke(ctx context.Context, providerID, rawToken string) error {
	return nil
}

func newTokenManager(t *testing.T) *token.Manager {
	t.Helper()
	m, err := token.NewManager(token.NewInMemoryRepo(), noopRefresher{}, token.WithAutoRefresh(false))
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func newSessionManager(t *testing.T) *sessions.Manager {
	t.Helper()
	m, err := sessions.NewManager(sessions.NewInMemoryRepo())
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func startSyncer(t *testing.T, bus broadcast.Bus, origin string, options ...broadcast.SyncerOption) *broadcast.Syncer {
	t.Helper()
	s, err := broadcast.NewSyncer(bus, origin, options...)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(s.Close)
	return s
}

func TestSyncerLogoutClearsPeerState(t *testing.T) {
	ctx := context.Background()
	bus := broadcast.NewInMemoryBus()

	peerTokens := newTokenManager(t)
	peerSessions := newSessionManager(t)
	require.NoError(t, peerTokens.Set(ctx, token.Token{
		AccessToken: "access-abc",
		TokenType:   "Bearer",
		ExpiresIn:   3600,
	}))
	_, err := peerSessions.Create(ctx, sessions.Session{UserID: "user-1"})
	require.NoError(t, err)

	origin := "https://app.example.com"
	sender := startSyncer(t, bus, origin)
	startSyncer(t, bus, origin,
		broadcast.WithTokenManager(peerTokens),
		broadcast.WithSessionManager(peerSessions),
	)

	require.NoError(t, sender.BroadcastLogout(ctx))

	access, err := peerTokens.AccessToken(ctx)
	require.NoError(t, err)
	require.Empty(t, access)

	ok, err := peerSessions.Validate(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSyncerDropsMessagesFromUnrecognizedOrigins(t *testing.T) {
	ctx := context.Background()
	bus := broadcast.NewInMemoryBus()

	peerTokens := newTokenManager(t)
	require.NoError(t, peerTokens.Set(ctx, token.Token{
		AccessToken: "access-abc",
		TokenType:   "Bearer",
		ExpiresIn:   3600,
	}))

	startSyncer(t, bus, "https://app.example.com", broadcast.WithTokenManager(peerTokens))
	rogue := startSyncer(t, bus, "https://rogue.example.net")

	require.NoError(t, rogue.BroadcastLogout(ctx))

	access, err := peerTokens.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "access-abc", access, "logout from an unrecognized origin must be ignored")
}

func TestSyncerAcceptsAllowListedOrigins(t *testing.T) {
	ctx := context.Background()
	bus := broadcast.NewInMemoryBus()

	peerTokens := newTokenManager(t)
	require.NoError(t, peerTokens.Set(ctx, token.Token{
		AccessToken: "access-abc",
		TokenType:   "Bearer",
		ExpiresIn:   3600,
	}))

	startSyncer(t, bus, "https://app.example.com",
		broadcast.WithTokenManager(peerTokens),
		broadcast.WithAllowedOrigins([]string{"https://admin.example.com"}),
	)
	admin := startSyncer(t, bus, "https://admin.example.com")

	require.NoError(t, admin.BroadcastLogout(ctx))

	access, err := peerTokens.AccessToken(ctx)
	require.NoError(t, err)
	require.Empty(t, access)
}

func TestSyncerSessionStatusRequest(t *testing.T) {
	ctx := context.Background()
	origin := "https://app.example.com"

	t.Run("peer with a live session answers true", func(t *testing.T) {
		bus := broadcast.NewInMemoryBus()
		peerSessions := newSessionManager(t)
		_, err := peerSessions.Create(ctx, sessions.Session{UserID: "user-1"})
		require.NoError(t, err)

		asker := startSyncer(t, bus, origin, broadcast.WithRequestTimeout(time.Second))
		startSyncer(t, bus, origin, broadcast.WithSessionManager(peerSessions))

		authenticated, err := asker.RequestSessionStatus(ctx)
		require.NoError(t, err)
		require.True(t, authenticated)
	})

	t.Run("authenticated answer shares the peer's token", func(t *testing.T) {
		bus := broadcast.NewInMemoryBus()
		peerTokens := newTokenManager(t)
		peerSessions := newSessionManager(t)
		require.NoError(t, peerTokens.Set(ctx, token.Token{
			AccessToken: "peer-access",
			TokenType:   "Bearer",
			ProviderID:  "acme",
			ExpiresIn:   3600,
		}))
		_, err := peerSessions.Create(ctx, sessions.Session{UserID: "user-1"})
		require.NoError(t, err)

		askerTokens := newTokenManager(t)
		asker := startSyncer(t, bus, origin,
			broadcast.WithRequestTimeout(time.Second),
			broadcast.WithTokenManager(askerTokens),
		)
		startSyncer(t, bus, origin,
			broadcast.WithSessionManager(peerSessions),
			broadcast.WithTokenManager(peerTokens),
		)

		authenticated, err := asker.RequestSessionStatus(ctx)
		require.NoError(t, err)
		require.True(t, authenticated)

		// The fresh process adopted the peer's token instead of starting
		// a new authorization flow.
		adopted, err := askerTokens.Token(ctx)
		require.NoError(t, err)
		require.NotNil(t, adopted)
		require.Equal(t, "peer-access", adopted.AccessToken)
		require.Equal(t, "acme", adopted.ProviderID)
	})

	t.Run("no peers resolves false after the timeout", func(t *testing.T) {
		bus := broadcast.NewInMemoryBus()
		asker := startSyncer(t, bus, origin, broadcast.WithRequestTimeout(50*time.Millisecond))

		start := time.Now()
		authenticated, err := asker.RequestSessionStatus(ctx)
		require.NoError(t, err)
		require.False(t, authenticated)
		require.Less(t, time.Since(start), time.Second, "must resolve promptly, not hang")
	})
}

func TestSyncerTokenRefreshAppliesNewerAndSkipsStale(t *testing.T) {
	ctx := context.Background()
	bus := broadcast.NewInMemoryBus()
	origin := "https://app.example.com"

	peerTokens := newTokenManager(t)
	require.NoError(t, peerTokens.Set(ctx, token.Token{
		AccessToken: "current-access",
		TokenType:   "Bearer",
		ExpiresIn:   3600,
	}))
	current, err := peerTokens.Token(ctx)
	require.NoError(t, err)

	sender := startSyncer(t, bus, origin)
	startSyncer(t, bus, origin, broadcast.WithTokenManager(peerTokens))

	t.Run("stale message is skipped", func(t *testing.T) {
		stale := token.Token{
			AccessToken: "stale-access",
			TokenType:   "Bearer",
			ExpiresIn:   3600,
			StoredAt:    current.StoredAt.Add(-time.Minute),
		}
		require.NoError(t, sender.BroadcastTokenRefresh(ctx, stale))

		access, err := peerTokens.AccessToken(ctx)
		require.NoError(t, err)
		require.Equal(t, "current-access", access)
	})

	t.Run("newer message replaces the record", func(t *testing.T) {
		fresh := token.Token{
			AccessToken: "fresh-access",
			TokenType:   "Bearer",
			ExpiresIn:   3600,
			StoredAt:    current.StoredAt.Add(time.Minute),
		}
		require.NoError(t, sender.BroadcastTokenRefresh(ctx, fresh))

		access, err := peerTokens.AccessToken(ctx)
		require.NoError(t, err)
		require.Equal(t, "fresh-access", access)
	})
}
