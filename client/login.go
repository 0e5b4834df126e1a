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
	"github.com/jrsteele09/go-sso-client/internal/utils"
	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/jrsteele09/go-sso-client/sessions"
	"github.com/jrsteele09/go-sso-client/token"
)

// LoginRequest selects the authentication path: a callback completion when
// Callback is set, otherwise a direct username/password login against the
// provider's token endpoint.
type LoginRequest struct {
	ProviderID string
	Username   string
	Password   string
	Callback   *CallbackParams
}

// Login authenticates and establishes the full local state (token +
// session), whichever path the request selects. Both paths resolve to the
// same LoginResult contract.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if req.Callback != nil {
		return c.HandleCallback(ctx, *req.Callback)
	}
	if req.Username != "" {
		return c.passwordLogin(ctx, req)
	}
	return nil, ssoerrors.Protocol("invalid_request", "login needs either callback parameters or credentials", nil)
}

// passwordLogin runs the resource-owner password grant. Only meaningful
// against a first-party SSO server; public identity providers do not offer
// it.
func (c *Client) passwordLogin(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	cfg, err := c.registry.Get(req.ProviderID)
	if err != nil {
		return nil, ssoerrors.Configuration("provider_not_found", "unknown provider "+req.ProviderID, err)
	}

	form := url.Values{}
	form.Set("grant_type", string(oauth2.PasswordGrant))
	form.Set("username", req.Username)
	form.Set("password", req.Password)
	form.Set("client_id", cfg.ClientID)
	if cfg.ClientSecret != "" {
		form.Set("client_secret", cfg.ClientSecret)
	}
	if len(cfg.Scopes) > 0 {
		form.Set("scope", utils.JoinScopes(cfg.Scopes))
	}

	response, err := c.postTokenEndpoint(ctx, cfg.TokenURL, form)
	if err != nil {
		return nil, err
	}
	if response.Error != "" {
		return nil, ssoerrors.Protocol(response.Error, response.ErrorDescription, nil)
	}
	if utils.Value(response.AccessToken) == "" {
		return nil, ssoerrors.Protocol("invalid_response", "token endpoint returned neither token nor error", nil)
	}

	record := token.Token{
		AccessToken:  utils.Value(response.AccessToken),
		RefreshToken: utils.Value(response.RefreshToken),
		IDToken:      utils.Value(response.IdToken),
		TokenType:    response.TokenType,
		Scope:        response.Scope,
		ExpiresIn:    response.ExpiresIn,
		ProviderID:   cfg.ID,
	}
	if err := c.tokens.Set(ctx, record); err != nil {
		return nil, ssoerrors.Token("store_failed", "failed to store token", err)
	}

	user, err := c.UserInfo(ctx, cfg.ID, record.AccessToken)
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

// postTokenEndpoint sends a form-encoded token request and decodes the RFC
// 6749 response, error payloads included.
func (c *Client) postTokenEndpoint(ctx context.Context, tokenURL string, form url.Values) (*oauth2.TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, ssoerrors.Network("token_request", "failed to build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ssoerrors.Network("token_endpoint_unreachable", "token request failed", err)
	}
	defer resp.Body.Close()

	var response oauth2.TokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&response); err != nil {
		return nil, ssoerrors.Network("token_malformed", fmt.Sprintf("failed to decode token response (status %d)", resp.StatusCode), err)
	}
	return &response, nil
}
