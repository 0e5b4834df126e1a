package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/jrsteele09/go-sso-client/oauth2"
)

// IntrospectToken asks the provider whether the stored access token is
// still active (RFC 7662). An inactive answer for a token we still hold
// means it was revoked or expired server-side; local state is cleared so
// the next check does not repeat the question.
func (c *Client) IntrospectToken(ctx context.Context) (*oauth2.IntrospectionResponse, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, ssoerrors.Token("no_token", "no token stored", ssoerrors.ErrNoToken)
	}

	cfg, err := c.registry.Get(tok.ProviderID)
	if err != nil {
		return nil, ssoerrors.Configuration("provider_not_found", "unknown provider "+tok.ProviderID, err)
	}
	if cfg.IntrospectURL == "" {
		return nil, ssoerrors.Configuration("no_introspection_endpoint", "provider "+cfg.ID+" has no introspection endpoint", nil)
	}

	form := url.Values{}
	form.Set("token", tok.AccessToken)
	form.Set("token_type_hint", "access_token")
	form.Set("client_id", cfg.ClientID)
	if cfg.ClientSecret != "" {
		form.Set("client_secret", cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.IntrospectURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, ssoerrors.Network("introspect_request", "failed to build introspection request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ssoerrors.Network("introspect_unreachable", "introspection request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, ssoerrors.Network("introspect_failed", fmt.Sprintf("introspection returned %d: %s", resp.StatusCode, body), nil)
	}

	var response oauth2.IntrospectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, ssoerrors.Network("introspect_malformed", "failed to decode introspection response", err)
	}

	if !response.Active {
		if err := c.tokens.Clear(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("failed to clear introspected-inactive token")
		}
		return &response, ssoerrors.Token("token_inactive", "provider reports the token is no longer active", ssoerrors.ErrTokenRevoked)
	}
	return &response, nil
}
