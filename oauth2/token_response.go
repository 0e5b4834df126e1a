package oauth2

// TokenResponse represents the response from an OAuth2 token request as
// defined in RFC 6749 §5.1. Returned by the token endpoint for both the
// authorization_code and refresh_token grants.
type TokenResponse struct {
	// AccessToken is the opaque or JWT credential used against protected
	// resources. Sent as "Authorization: Bearer <access_token>".
	AccessToken *string `json:"access_token,omitempty"`

	// IdToken is the OpenID Connect ID token carrying identity claims.
	// Only present when the "openid" scope was granted. Claims are never
	// trusted before signature verification against the issuer's JWKS.
	IdToken *string `json:"id_token,omitempty"`

	// TokenType indicates how to present the access token, normally
	// "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the access token lifetime in seconds, relative to the
	// moment the response was issued. The absolute expiry instant is derived
	// locally as now + ExpiresIn.
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is the opaque credential used to obtain new access
	// tokens. May be absent; may rotate on each refresh.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// Scope is the space separated list of granted scopes. May be narrower
	// than requested.
	Scope string `json:"scope,omitempty"`

	// Error and ErrorDescription are populated instead of the token fields
	// when the request failed (RFC 6749 §5.2).
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}
