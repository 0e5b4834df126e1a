package providers

import (
	"context"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
)

// Discover builds a provider Config from the issuer's OIDC discovery
// document. clientID/clientSecret/redirectURI/scopes are the relying-party
// half the document cannot supply. Servers that publish no document fall
// back to DefaultConfig's conventional paths.
func Discover(ctx context.Context, id, issuer, clientID, clientSecret, redirectURI string, scopes []string) (Config, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		// No discovery document: fall back to conventional endpoint paths.
		// The Issuer stays unset, so no ID-token verification is promised
		// that cannot be delivered.
		return DefaultConfig(id, issuer, clientID, clientSecret, redirectURI, scopes), nil
	}

	// Endpoints beyond authorize/token are optional extensions.
	var extra struct {
		UserInfoEndpoint      string `json:"userinfo_endpoint"`
		RevocationEndpoint    string `json:"revocation_endpoint"`
		IntrospectionEndpoint string `json:"introspection_endpoint"`
		EndSessionEndpoint    string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return Config{}, errors.Wrapf(err, "[Discover] provider %q discovery claims", id)
	}

	endpoint := provider.Endpoint()
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return Config{
		ID:               id,
		DisplayName:      id,
		Issuer:           issuer,
		AuthorizationURL: endpoint.AuthURL,
		TokenURL:         endpoint.TokenURL,
		UserInfoURL:      extra.UserInfoEndpoint,
		RevokeURL:        extra.RevocationEndpoint,
		IntrospectURL:    extra.IntrospectionEndpoint,
		EndSessionURL:    extra.EndSessionEndpoint,
		ClientID:         clientID,
		ClientSecret:     clientSecret,
		RedirectURI:      redirectURI,
		Scopes:           scopes,
	}, nil
}

// DefaultConfig builds a Config against the conventional endpoint paths of
// an SSO server that publishes no discovery document.
func DefaultConfig(id, serverURL, clientID, clientSecret, redirectURI string, scopes []string) Config {
	base := strings.TrimRight(serverURL, "/")
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return Config{
		ID:               id,
		DisplayName:      id,
		AuthorizationURL: base + "/oauth/authorize",
		TokenURL:         base + "/oauth/token",
		UserInfoURL:      base + "/oauth/userinfo",
		RevokeURL:        base + "/oauth/revoke",
		IntrospectURL:    base + "/oauth/introspect",
		EndSessionURL:    base + "/oauth/logout",
		ClientID:         clientID,
		ClientSecret:     clientSecret,
		RedirectURI:      redirectURI,
		Scopes:           scopes,
	}
}
