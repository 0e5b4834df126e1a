package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/jrsteele09/go-sso-client/internal/utils"
	"github.com/jrsteele09/go-sso-client/providers"
)

// SSOUser is the provider-independent identity shape. Providers disagree on
// claim names; normalization folds the common aliases into one struct and
// keeps everything else in CustomClaims.
type SSOUser struct {
	Sub               string         `json:"sub"`
	Name              string         `json:"name,omitempty"`
	PreferredUsername string         `json:"preferred_username,omitempty"`
	Email             string         `json:"email,omitempty"`
	EmailVerified     bool           `json:"email_verified,omitempty"`
	Picture           string         `json:"picture,omitempty"`
	Groups            []string       `json:"groups,omitempty"`
	CustomClaims      map[string]any `json:"custom_claims,omitempty"`
}

// UserInfo fetches and normalizes the user's claims from the provider's
// userinfo endpoint. A rejected access token triggers one refresh followed
// by one retry; a second rejection clears local authentication state.
func (c *Client) UserInfo(ctx context.Context, providerID, accessToken string) (*SSOUser, error) {
	cfg, err := c.registry.Get(providerID)
	if err != nil {
		return nil, ssoerrors.Configuration("provider_not_found", "unknown provider "+providerID, err)
	}
	if cfg.UserInfoURL == "" {
		return nil, ssoerrors.Configuration("no_userinfo_endpoint", "provider "+providerID+" has no userinfo endpoint", nil)
	}

	user, err := c.fetchUserInfo(ctx, cfg, accessToken)
	if err == nil || !ssoerrors.Is(err, ssoerrors.ErrInvalidToken) {
		return user, err
	}

	refreshed, refreshErr := c.tokens.Refresh(ctx)
	if refreshErr != nil {
		c.clearAuthState(ctx)
		return nil, err
	}

	user, retryErr := c.fetchUserInfo(ctx, cfg, refreshed.AccessToken)
	if retryErr != nil && ssoerrors.Is(retryErr, ssoerrors.ErrInvalidToken) {
		c.clearAuthState(ctx)
	}
	return user, retryErr
}

func (c *Client) fetchUserInfo(ctx context.Context, cfg providers.Config, accessToken string) (*SSOUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.UserInfoURL, nil)
	if err != nil {
		return nil, ssoerrors.Network("userinfo_request", "failed to build userinfo request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ssoerrors.Network("userinfo_unreachable", "userinfo request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ssoerrors.Token("invalid_token", "userinfo rejected the access token", ssoerrors.ErrInvalidToken)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, ssoerrors.Network("userinfo_failed", fmt.Sprintf("userinfo returned %d: %s", resp.StatusCode, body), nil)
	}

	claims := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, ssoerrors.Network("userinfo_malformed", "failed to decode userinfo response", err)
	}
	return normalizeUser(claims), nil
}

// normalizeUser folds raw claims into SSOUser. Alias order matters: the
// standard OIDC claim wins, then the GitHub-style fallback.
func normalizeUser(claims map[string]any) *SSOUser {
	user := &SSOUser{
		Sub:               stringClaim(claims, "sub", "id", "user_id"),
		Name:              stringClaim(claims, "name", "login"),
		PreferredUsername: stringClaim(claims, "preferred_username", "login", "username"),
		Email:             stringClaim(claims, "email"),
		Picture:           stringClaim(claims, "picture", "avatar_url"),
		CustomClaims:      map[string]any{},
	}

	if verified, ok := claims["email_verified"].(bool); ok {
		user.EmailVerified = verified
	}
	for _, alias := range []string{"groups", "roles"} {
		if raw, ok := claims[alias].([]any); ok {
			user.Groups = utils.ToStringSlice(raw)
			break
		}
	}

	known := map[string]struct{}{
		"sub": {}, "id": {}, "user_id": {}, "name": {}, "login": {},
		"preferred_username": {}, "username": {}, "email": {},
		"email_verified": {}, "picture": {}, "avatar_url": {},
		"groups": {}, "roles": {},
	}
	for key, value := range claims {
		if _, reserved := known[key]; !reserved {
			user.CustomClaims[key] = value
		}
	}
	return user
}

// stringClaim returns the first present alias rendered as a string. Numeric
// ids (GitHub) are formatted without an exponent.
func stringClaim(claims map[string]any, aliases ...string) string {
	for _, alias := range aliases {
		switch v := claims[alias].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		case json.Number:
			return v.String()
		}
	}
	return ""
}
