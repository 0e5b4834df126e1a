package providers_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/jrsteele09/go-sso-client/providers"
)

func validConfig(id string) providers.Config {
	return providers.Config{
		ID:               id,
		ClientID:         "client-1",
		AuthorizationURL: "https://sso.example.com/oauth/authorize",
		TokenURL:         "https://sso.example.com/oauth/token",
		RedirectURI:      "http://localhost:3000/auth/callback",
		Scopes:           []string{"openid", "profile"},
	}
}

func TestNewRegistry(t *testing.T) {
	t.Run("get and list preserve registration", func(t *testing.T) {
		r, err := providers.NewRegistry(validConfig("local"), validConfig("github"))
		require.NoError(t, err)

		cfg, err := r.Get("github")
		require.NoError(t, err)
		require.Equal(t, "github", cfg.ID)

		list := r.List()
		require.Len(t, list, 2)
		require.Equal(t, "local", list[0].ID)
		require.Equal(t, "github", list[1].ID)
	})

	t.Run("duplicate ID rejected", func(t *testing.T) {
		_, err := providers.NewRegistry(validConfig("local"), validConfig("local"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "duplicate provider")
	})

	t.Run("missing client ID rejected", func(t *testing.T) {
		cfg := validConfig("local")
		cfg.ClientID = ""
		_, err := providers.NewRegistry(cfg)
		require.ErrorIs(t, err, ssoerrors.ErrMissingClientID)
	})

	t.Run("unknown provider", func(t *testing.T) {
		r, err := providers.NewRegistry(validConfig("local"))
		require.NoError(t, err)

		_, err = r.Get("missing")
		require.ErrorIs(t, err, ssoerrors.ErrProviderNotFound)
	})
}

func TestConfigPublic(t *testing.T) {
	cfg := validConfig("local")
	require.True(t, cfg.Public())

	cfg.ClientSecret = "s3cret"
	require.False(t, cfg.Public())
}

func TestDefaultConfig(t *testing.T) {
	cfg := providers.DefaultConfig("local", "https://sso.example.com/", "client-1", "", "http://localhost:3000/cb", nil)

	require.Equal(t, "https://sso.example.com/oauth/authorize", cfg.AuthorizationURL)
	require.Equal(t, "https://sso.example.com/oauth/token", cfg.TokenURL)
	require.Equal(t, "https://sso.example.com/oauth/userinfo", cfg.UserInfoURL)
	require.Equal(t, "https://sso.example.com/oauth/revoke", cfg.RevokeURL)
	require.Equal(t, "https://sso.example.com/oauth/logout", cfg.EndSessionURL)
	require.Equal(t, []string{"openid", "profile", "email"}, cfg.Scopes)
	require.NoError(t, cfg.Validate())
}
