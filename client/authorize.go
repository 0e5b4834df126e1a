package client

import (
	"context"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-sso-client/authstate"
	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/jrsteele09/go-sso-client/pkce"
)

// AuthorizeOptions are per-attempt overrides merged over the provider's
// configured defaults. The zero value uses the provider config as-is.
type AuthorizeOptions struct {
	RedirectURI  string
	Scopes       []string
	ResponseMode oauth2.ResponseModeType
	Prompt       string
	LoginHint    string
	MaxAge       int
	UILocales    []string
	ACRValues    []string

	// Extra carries provider specific parameters appended verbatim.
	Extra map[string]string
}

// AuthorizationURL builds the URL to send the user agent to. Every call
// binds a fresh state and PKCE pair to the attempt and persists them before
// the URL is returned, so the callback can always resolve what it belongs
// to. The S256 challenge is attached for every provider and client type.
func (c *Client) AuthorizationURL(ctx context.Context, providerID string, opts AuthorizeOptions) (string, error) {
	cfg, err := c.registry.Get(providerID)
	if err != nil {
		return "", ssoerrors.Configuration("provider_not_found", "unknown provider "+providerID, err)
	}

	state, err := pkce.GenerateState()
	if err != nil {
		return "", errors.Wrap(err, "[Client.AuthorizationURL] generate state")
	}
	pair, err := pkce.NewPair()
	if err != nil {
		return "", errors.Wrap(err, "[Client.AuthorizationURL] generate PKCE pair")
	}
	nonce, err := pkce.GenerateState()
	if err != nil {
		return "", errors.Wrap(err, "[Client.AuthorizationURL] generate nonce")
	}

	redirectURI := cfg.RedirectURI
	if opts.RedirectURI != "" {
		redirectURI = opts.RedirectURI
	}
	scopes := cfg.Scopes
	if len(opts.Scopes) > 0 {
		scopes = opts.Scopes
	}

	flow := &authstate.Flow{
		ProviderID:   cfg.ID,
		State:        state,
		CodeVerifier: pair.Verifier,
		Nonce:        nonce,
		RedirectURI:  redirectURI,
		CreatedAt:    c.nowFunc(),
	}
	if err := c.flows.Upsert(ctx, state, flow); err != nil {
		return "", errors.Wrap(err, "[Client.AuthorizationURL] persist flow state")
	}

	request := oauth2.AuthorizationRequest{
		ClientID:            cfg.ClientID,
		RedirectURI:         redirectURI,
		ResponseType:        oauth2.CodeResponseType,
		Scopes:              scopes,
		State:               state,
		ResponseMode:        opts.ResponseMode,
		CodeChallenge:       pair.Challenge,
		CodeChallengeMethod: oauth2.CodeMethodTypeS256,
		Nonce:               nonce,
		Prompt:              opts.Prompt,
		LoginHint:           opts.LoginHint,
		MaxAge:              opts.MaxAge,
		UILocales:           opts.UILocales,
		ACRValues:           opts.ACRValues,
		Extra:               opts.Extra,
	}

	separator := "?"
	if strings.Contains(cfg.AuthorizationURL, "?") {
		separator = "&"
	}
	return cfg.AuthorizationURL + separator + request.Values().Encode(), nil
}

// CallbackParams are the authorization response parameters the provider
// redirected back with.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// ParseCallback extracts callback parameters from redirect query values.
func ParseCallback(query url.Values) CallbackParams {
	return CallbackParams{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}
}

// IsCallback reports whether the query values represent an authorization
// callback rather than a fresh navigation: a code or an error parameter is
// present. Callback handling takes precedence when both contexts apply.
func IsCallback(query url.Values) bool {
	return query.Get("code") != "" || query.Get("error") != ""
}
