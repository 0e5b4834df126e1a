package client

import (
	"context"
	"net/url"

	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
)

// LogoutRequest tunes teardown. The zero value clears local state and
// broadcasts the logout without revoking remotely.
type LogoutRequest struct {
	// RevokeToken also revokes the access token at the provider.
	RevokeToken bool

	// PostLogoutRedirectURI is appended to the end-session URL when the
	// provider supports RP-initiated logout.
	PostLogoutRedirectURI string
}

// Logout tears the authenticated state down everywhere this client can
// reach: session, tokens, peers. Local state is always cleared, whatever
// the network does. The returned URL, when non-empty, is the provider's
// end-session endpoint to send the user agent to.
func (c *Client) Logout(ctx context.Context, req LogoutRequest) (string, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("could not read token during logout; continuing teardown")
	}

	endSessionURL := ""
	if tok != nil {
		if cfg, cfgErr := c.registry.Get(tok.ProviderID); cfgErr == nil && cfg.EndSessionURL != "" {
			endSessionURL = buildEndSessionURL(cfg.EndSessionURL, tok.IDToken, req.PostLogoutRedirectURI)
		}
	}

	if err := c.sessionMgr.Destroy(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("session teardown failed during logout")
	}

	if req.RevokeToken {
		err = c.tokens.Revoke(ctx, "")
	} else {
		err = c.tokens.Clear(ctx)
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("token teardown failed during logout")
	}

	if c.syncer != nil {
		if err := c.syncer.BroadcastLogout(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("failed to broadcast logout to peers")
		}
	}

	return endSessionURL, nil
}

// CheckSession reports whether an authenticated session exists, checking
// locally first, then the server, then peers. An unreachable server with a
// valid local session counts as authenticated; degraded beats logged out.
func (c *Client) CheckSession(ctx context.Context) (bool, error) {
	ok, err := c.sessionMgr.Validate(ctx)
	if err != nil {
		return false, err
	}

	if ok {
		if c.notifier == nil {
			return true, nil
		}
		session, err := c.sessionMgr.Current(ctx)
		if err != nil {
			if ssoerrors.Is(err, ssoerrors.ErrSessionNotFound) ||
				ssoerrors.Is(err, ssoerrors.ErrSessionExpired) ||
				ssoerrors.Is(err, ssoerrors.ErrSessionInactive) {
				return false, nil
			}
			return false, err
		}
		alive, err := c.notifier.Alive(ctx, session.ID)
		if err != nil {
			c.logger.Warn().Err(err).Msg("session check could not reach the server; trusting local session")
			return true, nil
		}
		if !alive {
			if err := c.sessionMgr.Destroy(ctx); err != nil {
				c.logger.Warn().Err(err).Msg("failed to destroy remotely-ended session")
			}
			return false, nil
		}
		return true, nil
	}

	// No local session; maybe a peer process holds one.
	if c.syncer != nil {
		return c.syncer.RequestSessionStatus(ctx)
	}
	return false, nil
}

// clearAuthState drops local tokens and the session after the provider has
// definitively rejected the credentials. No remote calls, no broadcast; the
// caller surfaces the error that got us here.
func (c *Client) clearAuthState(ctx context.Context) {
	if err := c.tokens.Clear(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to clear tokens after rejected credentials")
	}
	if err := c.sessionMgr.Destroy(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to destroy session after rejected credentials")
	}
}

func buildEndSessionURL(endpoint, idTokenHint, postLogoutRedirectURI string) string {
	values := url.Values{}
	if idTokenHint != "" {
		values.Set("id_token_hint", idTokenHint)
	}
	if postLogoutRedirectURI != "" {
		values.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	}
	if len(values) == 0 {
		return endpoint
	}
	return endpoint + "?" + values.Encode()
}
