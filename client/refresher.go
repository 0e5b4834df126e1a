package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	xoauth2 "golang.org/x/oauth2"

	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/jrsteele09/go-sso-client/token"
)

// Refresh implements token.Refresher: it redeems the refresh token at the
// issuing provider's token endpoint.
func (c *Client) Refresh(ctx context.Context, providerID, refreshToken string) (token.Token, error) {
	cfg, err := c.registry.Get(providerID)
	if err != nil {
		return token.Token{}, ssoerrors.Configuration("provider_not_found", "unknown provider "+providerID, err)
	}

	source := cfg.OAuth2().TokenSource(c.oauthContext(ctx), &xoauth2.Token{RefreshToken: refreshToken})
	oauthToken, err := source.Token()
	if err != nil {
		var retrieveErr *xoauth2.RetrieveError
		if ssoerrors.As(err, &retrieveErr) {
			code := retrieveErr.ErrorCode
			if code == "" {
				code = "invalid_grant"
			}
			return token.Token{}, ssoerrors.Token(code, retrieveErr.ErrorDescription, err)
		}
		return token.Token{}, ssoerrors.Network("token_endpoint_unreachable", "token refresh failed", err)
	}

	record := token.Token{
		AccessToken:  oauthToken.AccessToken,
		RefreshToken: oauthToken.RefreshToken,
		TokenType:    oauthToken.TokenType,
		ProviderID:   providerID,
		ExpiresAt:    oauthToken.Expiry,
	}
	if idToken, ok := oauthToken.Extra("id_token").(string); ok {
		record.IDToken = idToken
	}
	if scope, ok := oauthToken.Extra("scope").(string); ok {
		record.Scope = scope
	}
	return record, nil
}

// Revoke implements token.Refresher: RFC 7009 revocation at the provider.
// Providers without a revocation endpoint make this a no-op; the caller
// clears local state regardless.
func (c *Client) Revoke(ctx context.Context, providerID, rawToken string) error {
	cfg, err := c.registry.Get(providerID)
	if err != nil || cfg.RevokeURL == "" {
		return nil
	}

	form := url.Values{}
	form.Set("token", rawToken)
	form.Set("client_id", cfg.ClientID)
	if cfg.ClientSecret != "" {
		form.Set("client_secret", cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return ssoerrors.Network("revoke_request", "failed to build revocation request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ssoerrors.Network("revoke_unreachable", "revocation request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ssoerrors.Network("revoke_failed", fmt.Sprintf("revocation returned %d: %s", resp.StatusCode, body), nil)
	}
	return nil
}

// RefreshToken forces a refresh of the stored token.
func (c *Client) RefreshToken(ctx context.Context) (*token.Token, error) {
	return c.tokens.Refresh(ctx)
}

// RevokeToken revokes the stored token remotely and clears it locally.
func (c *Client) RevokeToken(ctx context.Context) error {
	return c.tokens.Revoke(ctx, "")
}

// AccessToken returns the current access token, or "" when none is valid.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	return c.tokens.AccessToken(ctx)
}

// ValidateAccessToken checks the stored token's structural validity.
func (c *Client) ValidateAccessToken(ctx context.Context) error {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	if tok == nil {
		return ssoerrors.Token("no_token", "no token stored", ssoerrors.ErrNoToken)
	}
	return c.tokens.Validate(*tok)
}
