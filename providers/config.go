// Package providers holds per-identity-provider configuration and the
// registry the SSO client resolves providers from. Configs are immutable
// values; the registry is constructor-injected, never a package singleton.
package providers

import (
	"github.com/pkg/errors"
	xoauth2 "golang.org/x/oauth2"

	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
)

// Config is the static configuration for one identity provider. It is looked
// up by ID both when building an authorization URL and again at token
// exchange. The same provider must serve both halves of an attempt, since
// the PKCE verifier is bound to it.
type Config struct {
	ID          string
	DisplayName string

	// Issuer is the OIDC issuer URL. When set, ID tokens from this provider
	// are verified against the issuer's JWKS before any claim is trusted.
	// Providers without an issuer never contribute ID-token claims.
	Issuer string

	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string
	RevokeURL        string
	IntrospectURL    string
	EndSessionURL    string

	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	// AuthStyle selects how client credentials are sent to the token
	// endpoint. Zero value lets the oauth2 library detect and cache it.
	AuthStyle xoauth2.AuthStyle
}

// Public reports whether the provider is configured as a public client.
// PKCE is mandatory either way; the distinction only controls whether
// client_secret accompanies token requests.
func (c Config) Public() bool {
	return c.ClientSecret == ""
}

// Validate checks the fields every flow depends on.
func (c Config) Validate() error {
	if c.ID == "" {
		return errors.Wrap(ssoerrors.ErrInvalidProvider, "[Config.Validate] provider ID is required")
	}
	if c.ClientID == "" {
		return errors.Wrap(ssoerrors.ErrMissingClientID, "[Config.Validate] provider "+c.ID)
	}
	if c.AuthorizationURL == "" {
		return errors.Wrap(ssoerrors.ErrInvalidProvider, "[Config.Validate] provider "+c.ID+" has no authorization URL")
	}
	if c.TokenURL == "" {
		return errors.Wrap(ssoerrors.ErrInvalidProvider, "[Config.Validate] provider "+c.ID+" has no token URL")
	}
	if c.RedirectURI == "" {
		return errors.Wrap(ssoerrors.ErrInvalidProvider, "[Config.Validate] provider "+c.ID+" has no redirect URI")
	}
	return nil
}

// OAuth2 bridges the provider to a golang.org/x/oauth2 Config for the
// exchange and refresh grants.
func (c Config) OAuth2() *xoauth2.Config {
	return &xoauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURI,
		Scopes:       c.Scopes,
		Endpoint: xoauth2.Endpoint{
			AuthURL:   c.AuthorizationURL,
			TokenURL:  c.TokenURL,
			AuthStyle: c.AuthStyle,
		},
	}
}
