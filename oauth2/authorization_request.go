package oauth2

import (
	"net/url"
	"strconv"
	"strings"
)

// AuthorizationRequest is the ephemeral parameter set for one authorization
// redirect. A fresh State (and PKCE challenge) is bound to every attempt;
// neither is ever reused across attempts.
type AuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        ResponseType
	Scopes              []string
	State               string
	ResponseMode        ResponseModeType
	CodeChallenge       string
	CodeChallengeMethod CodeMethodType
	Nonce               string
	Prompt              string
	LoginHint           string
	MaxAge              int
	UILocales           []string
	ACRValues           []string

	// Extra carries provider specific additions appended verbatim.
	Extra map[string]string
}

// Values renders the request as authorization endpoint query parameters.
// Optional fields are omitted when unset.
func (r AuthorizationRequest) Values() url.Values {
	v := url.Values{}
	v.Set("client_id", r.ClientID)
	v.Set("redirect_uri", r.RedirectURI)
	v.Set("response_type", string(r.ResponseType))
	v.Set("scope", strings.Join(r.Scopes, " "))
	v.Set("state", r.State)

	if r.ResponseMode != "" {
		v.Set("response_mode", string(r.ResponseMode))
	}
	if r.CodeChallenge != "" {
		v.Set("code_challenge", r.CodeChallenge)
		v.Set("code_challenge_method", string(r.CodeChallengeMethod))
	}
	if r.Nonce != "" {
		v.Set("nonce", r.Nonce)
	}
	if r.Prompt != "" {
		v.Set("prompt", r.Prompt)
	}
	if r.LoginHint != "" {
		v.Set("login_hint", r.LoginHint)
	}
	if r.MaxAge > 0 {
		v.Set("max_age", strconv.Itoa(r.MaxAge))
	}
	if len(r.UILocales) > 0 {
		v.Set("ui_locales", strings.Join(r.UILocales, " "))
	}
	if len(r.ACRValues) > 0 {
		v.Set("acr_values", strings.Join(r.ACRValues, " "))
	}
	for key, value := range r.Extra {
		v.Set(key, value)
	}
	return v
}
