package authstate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-sso-client/authstate"
	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
)

func testFlow(state string, createdAt time.Time) *authstate.Flow {
	return &authstate.Flow{
		ProviderID:   "local",
		State:        state,
		CodeVerifier: "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk",
		Nonce:        "nonce-1",
		RedirectURI:  "http://localhost:3000/auth/callback",
		CreatedAt:    createdAt,
	}
}

func TestInMemoryRepo_Consume(t *testing.T) {
	ctx := context.Background()

	t.Run("single use", func(t *testing.T) {
		repo := authstate.NewInMemoryRepo()
		require.NoError(t, repo.Upsert(ctx, "state-1", testFlow("state-1", time.Now())))

		flow, err := repo.Consume(ctx, "state-1")
		require.NoError(t, err)
		require.Equal(t, "local", flow.ProviderID)

		_, err = repo.Consume(ctx, "state-1")
		require.ErrorIs(t, err, ssoerrors.ErrStateNotFound)
	})

	t.Run("unknown state", func(t *testing.T) {
		repo := authstate.NewInMemoryRepo()
		_, err := repo.Consume(ctx, "never-stored")
		require.ErrorIs(t, err, ssoerrors.ErrStateNotFound)
	})

	t.Run("expired flow is gone", func(t *testing.T) {
		now := time.Now()
		repo := authstate.NewInMemoryRepo(
			authstate.WithFlowTTL(time.Minute),
			authstate.WithNowFunc(func() time.Time { return now }),
		)
		require.NoError(t, repo.Upsert(ctx, "state-1", testFlow("state-1", now)))

		now = now.Add(2 * time.Minute)
		_, err := repo.Consume(ctx, "state-1")
		require.ErrorIs(t, err, ssoerrors.ErrStateNotFound)
	})
}

func TestInMemoryRepo_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := authstate.NewInMemoryRepo()
	require.NoError(t, repo.Upsert(ctx, "state-1", testFlow("state-1", time.Now())))

	first, err := repo.Get(ctx, "state-1")
	require.NoError(t, err)
	first.CodeVerifier = "mutated"

	second, err := repo.Get(ctx, "state-1")
	require.NoError(t, err)
	require.NotEqual(t, "mutated", second.CodeVerifier)
}

func TestInMemoryRepo_DeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := authstate.NewInMemoryRepo()
	require.NoError(t, repo.Upsert(ctx, "state-1", testFlow("state-1", time.Now())))

	require.NoError(t, repo.Delete(ctx, "state-1"))
	require.NoError(t, repo.Delete(ctx, "state-1"))
}
