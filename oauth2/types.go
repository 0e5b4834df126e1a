package oauth2

// ResponseType represents the OAuth 2.0 response type requested from the
// authorization endpoint.
type ResponseType string

const (
	// CodeResponseType requests the authorization code flow. The redirect
	// carries a short-lived code that is exchanged at the token endpoint.
	CodeResponseType ResponseType = "code"

	// TokenResponseType requests the implicit flow; the access token is
	// returned directly in the redirect fragment. Kept for providers that
	// still offer it; new integrations should use the code flow with PKCE.
	TokenResponseType ResponseType = "token"

	// IDTokenResponseType requests the hybrid/implicit OIDC variant where an
	// ID token is returned from the authorization endpoint.
	IDTokenResponseType ResponseType = "id_token"
)

// ResponseModeType denotes how authorization response parameters come back
// to the redirect URI.
type ResponseModeType string

const (
	// QueryResponseMode returns parameters in the URL query string.
	QueryResponseMode ResponseModeType = "query"

	// FragmentResponseMode returns parameters in the URL fragment.
	FragmentResponseMode ResponseModeType = "fragment"

	// FormPostResponseMode returns parameters via an auto-submitting form.
	FormPostResponseMode ResponseModeType = "form_post"
)

// CodeMethodType represents the PKCE code challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256 hashes the verifier with SHA-256:
	// code_challenge = BASE64URL(SHA256(code_verifier)).
	// The only method this client emits.
	CodeMethodTypeS256 CodeMethodType = "S256"

	// CodeMethodTypeNone sends the verifier in the clear ("plain").
	// Accepted when verifying legacy challenges, never generated.
	CodeMethodTypeNone CodeMethodType = "plain"
)

// GrantType represents the OAuth 2.0 grant used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenGrant exchanges a refresh token for a new access token.
	RefreshTokenGrant GrantType = "refresh_token"

	// PasswordGrant exchanges resource-owner credentials directly. Used only
	// for the local username/password login path against the SSO server.
	PasswordGrant GrantType = "password"
)
