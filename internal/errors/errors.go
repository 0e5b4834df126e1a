package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide whether the operation is
// retryable, fatal to the login attempt, or a startup problem.
type Kind string

const (
	// KindProtocol covers state mismatches, missing codes and provider error
	// redirects. Always fatal to the current login attempt, never retried.
	KindProtocol Kind = "protocol_error"

	// KindToken covers expired, malformed or revoked tokens. Triggers at
	// most one refresh-then-retry; a second failure forces logout.
	KindToken Kind = "token_error"

	// KindNetwork covers unreachable endpoints. Retryable by the caller.
	KindNetwork Kind = "network_error"

	// KindConfiguration covers missing client id / redirect URI / server
	// URL. Fatal at initialization.
	KindConfiguration Kind = "configuration_error"
)

// Common error values for the SSO client
var (
	// Protocol errors
	ErrStateMismatch    = errors.New("state parameter mismatch")
	ErrStateNotFound    = errors.New("state parameter unknown or already used")
	ErrMissingCode      = errors.New("authorization code missing")
	ErrMissingVerifier  = errors.New("PKCE code verifier missing")
	ErrProviderRedirect = errors.New("authorization server returned an error")

	// Token errors
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenRevoked   = errors.New("token revoked")
	ErrNoToken        = errors.New("no token stored")
	ErrNoRefreshToken = errors.New("no refresh token available")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionInactive = errors.New("session inactive")

	// Configuration errors
	ErrProviderNotFound = errors.New("provider not registered")
	ErrInvalidProvider  = errors.New("invalid provider configuration")
	ErrMissingClientID  = errors.New("client ID is required")
	ErrMissingServerURL = errors.New("server URL is required")
)

// SSOError is the structured error surfaced by the client core. Code is
// machine-readable (OAuth2 error codes where the server supplied one),
// Description is diagnostic text. UI layers own end-user prose.
type SSOError struct {
	Kind        Kind
	Code        string
	Description string
	Err         error
}

func (e *SSOError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Code, e.Description)
}

func (e *SSOError) Unwrap() error {
	return e.Err
}

// Protocol builds a fatal protocol-level SSOError.
func Protocol(code, description string, err error) *SSOError {
	return &SSOError{Kind: KindProtocol, Code: code, Description: description, Err: err}
}

// Token builds a token-lifecycle SSOError.
func Token(code, description string, err error) *SSOError {
	return &SSOError{Kind: KindToken, Code: code, Description: description, Err: err}
}

// Network builds a retryable network SSOError.
func Network(code, description string, err error) *SSOError {
	return &SSOError{Kind: KindNetwork, Code: code, Description: description, Err: err}
}

// Configuration builds an initialization SSOError.
func Configuration(code, description string, err error) *SSOError {
	return &SSOError{Kind: KindConfiguration, Code: code, Description: description, Err: err}
}

// KindOf returns the Kind of err if it carries one, or "" otherwise.
func KindOf(err error) Kind {
	var se *SSOError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
