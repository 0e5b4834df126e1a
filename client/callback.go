package client

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	xoauth2 "golang.org/x/oauth2"

	"github.com/jrsteele09/go-sso-client/authstate"
	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/jrsteele09/go-sso-client/providers"
	"github.com/jrsteele09/go-sso-client/sessions"
	"github.com/jrsteele09/go-sso-client/token"
)

// LoginResult is what a completed authentication hands back: the normalized
// user, the stored token record and the created session.
type LoginResult struct {
	User    *SSOUser
	Token   *token.Token
	Session *sessions.Session
}

// HandleCallback completes an authorization attempt from the provider's
// redirect parameters. The state is consumed atomically before anything
// else happens, so a replayed or forged callback can never reach the token
// endpoint.
func (c *Client) HandleCallback(ctx context.Context, params CallbackParams) (*LoginResult, error) {
	if params.Error != "" {
		// Clean up the attempt the provider just failed, if we can tell
		// which one it was.
		if params.State != "" {
			if _, err := c.flows.Consume(ctx, params.State); err != nil {
				c.logger.Debug().Err(err).Msg("no flow state to clean up after provider error")
			}
		}
		return nil, ssoerrors.Protocol(params.Error, params.ErrorDescription, ssoerrors.ErrProviderRedirect)
	}

	if params.State == "" {
		return nil, ssoerrors.Protocol("invalid_state", "callback carries no state parameter", ssoerrors.ErrStateNotFound)
	}

	flow, err := c.flows.Consume(ctx, params.State)
	if err != nil {
		// Unknown or already-used state is indistinguishable from a CSRF
		// attempt and is rejected before any token endpoint call.
		return nil, ssoerrors.Protocol("invalid_state", "state unknown or already used", ssoerrors.ErrStateNotFound)
	}

	if params.Code == "" {
		return nil, ssoerrors.Protocol("missing_code", "callback carries neither code nor error", ssoerrors.ErrMissingCode)
	}
	if flow.CodeVerifier == "" {
		return nil, ssoerrors.Protocol("missing_verifier", "flow state lost its PKCE verifier", ssoerrors.ErrMissingVerifier)
	}

	cfg, err := c.registry.Get(flow.ProviderID)
	if err != nil {
		return nil, ssoerrors.Configuration("provider_not_found", "provider "+flow.ProviderID+" vanished between authorize and callback", err)
	}

	return c.exchange(ctx, cfg, flow, params.Code)
}

// exchange redeems the code, verifies what came back and establishes the
// authenticated state. Any failure after the token store was written rolls
// it back; exchange never leaves a half-authenticated client behind.
func (c *Client) exchange(ctx context.Context, cfg providers.Config, flow *authstate.Flow, code string) (*LoginResult, error) {
	ocfg := cfg.OAuth2()
	if flow.RedirectURI != "" {
		ocfg.RedirectURL = flow.RedirectURI
	}

	oauthToken, err := ocfg.Exchange(c.oauthContext(ctx), code,
		xoauth2.SetAuthURLParam("code_verifier", flow.CodeVerifier),
	)
	if err != nil {
		return nil, exchangeError(err)
	}

	rawIDToken, _ := oauthToken.Extra("id_token").(string)
	var verifiedClaims map[string]any
	if cfg.Issuer != "" && rawIDToken != "" {
		verifiedClaims, err = c.verifyIDToken(ctx, cfg, flow.Nonce, rawIDToken)
		if err != nil {
			return nil, err
		}
	}

	record := token.Token{
		AccessToken:  oauthToken.AccessToken,
		RefreshToken: oauthToken.RefreshToken,
		TokenType:    oauthToken.TokenType,
		IDToken:      rawIDToken,
		ProviderID:   cfg.ID,
		ExpiresAt:    oauthToken.Expiry,
	}
	if scope, ok := oauthToken.Extra("scope").(string); ok {
		record.Scope = scope
	}
	if err := c.tokens.Set(ctx, record); err != nil {
		return nil, ssoerrors.Token("store_failed", "failed to store exchanged token", err)
	}

	user, err := c.resolveUser(ctx, cfg, oauthToken.AccessToken, verifiedClaims)
	if err != nil {
		c.rollbackTokens(ctx)
		return nil, err
	}

	session, err := c.sessionMgr.Create(ctx, sessions.Session{
		UserID:     user.Sub,
		ClientID:   cfg.ClientID,
		ProviderID: cfg.ID,
	})
	if err != nil {
		c.rollbackTokens(ctx)
		return nil, ssoerrors.Token("session_failed", "failed to create session", err)
	}

	stored, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, ssoerrors.Token("store_failed", "failed to re-read stored token", err)
	}
	return &LoginResult{User: user, Token: stored, Session: session}, nil
}

// verifyIDToken checks signature, issuer, audience, expiry and nonce against
// the provider's JWKS before any ID-token claim is trusted.
func (c *Client) verifyIDToken(ctx context.Context, cfg providers.Config, nonce, rawIDToken string) (map[string]any, error) {
	provider, err := c.oidcProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	idToken, err := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}).Verify(c.oauthContext(ctx), rawIDToken)
	if err != nil {
		return nil, ssoerrors.Token("invalid_id_token", "ID token verification failed", err)
	}
	if nonce != "" && idToken.Nonce != nonce {
		return nil, ssoerrors.Protocol("invalid_nonce", "ID token nonce does not match this attempt", ssoerrors.ErrStateMismatch)
	}

	claims := map[string]any{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, ssoerrors.Token("invalid_id_token", "failed to extract ID token claims", err)
	}
	return claims, nil
}

// resolveUser prefers the userinfo endpoint and falls back to verified
// ID-token claims when the provider has no userinfo URL or it is
// unreachable but claims are available.
func (c *Client) resolveUser(ctx context.Context, cfg providers.Config, accessToken string, verifiedClaims map[string]any) (*SSOUser, error) {
	if cfg.UserInfoURL != "" {
		user, err := c.UserInfo(ctx, cfg.ID, accessToken)
		if err == nil {
			return user, nil
		}
		if len(verifiedClaims) == 0 {
			return nil, err
		}
		c.logger.Warn().Err(err).Msg("userinfo fetch failed; using verified ID token claims")
	}
	if len(verifiedClaims) > 0 {
		return normalizeUser(verifiedClaims), nil
	}
	return nil, ssoerrors.Protocol("no_identity", "provider supplied neither userinfo nor a verified ID token", nil)
}

func (c *Client) rollbackTokens(ctx context.Context) {
	if err := c.tokens.Clear(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to roll back stored token")
	}
}

// exchangeError maps token endpoint failures: a structured OAuth2 error
// response is a protocol failure, everything else is network trouble.
func exchangeError(err error) error {
	var retrieveErr *xoauth2.RetrieveError
	if ssoerrors.As(err, &retrieveErr) {
		code := retrieveErr.ErrorCode
		if code == "" {
			code = "invalid_grant"
		}
		return ssoerrors.Protocol(code, retrieveErr.ErrorDescription, err)
	}
	return ssoerrors.Network("token_endpoint_unreachable", "token exchange failed", err)
}
