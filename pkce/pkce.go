// Package pkce implements RFC 7636 Proof Key for Code Exchange material and
// the random state tokens used for CSRF binding.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-sso-client/oauth2"
)

// Verifier alphabet per RFC 7636 §4.1: unreserved URI characters only.
const allowedChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

const (
	// VerifierMinLength and VerifierMaxLength bound code_verifier per RFC 7636.
	VerifierMinLength = 43
	VerifierMaxLength = 128

	// challengeLength is the Base64URL length of a SHA-256 digest.
	challengeLength = 43

	defaultVerifierLength = 128
	stateLength           = 32
)

// Pair holds one code_verifier and its derived S256 code_challenge. A pair
// is bound to a single authorization attempt and consumed exactly once at
// token exchange.
type Pair struct {
	Verifier  string
	Challenge string
}

// GenerateRandomString returns a cryptographically random string of the given
// length drawn only from the RFC 7636 verifier alphabet.
func GenerateRandomString(length int) (string, error) {
	if length < VerifierMinLength || length > VerifierMaxLength {
		return "", errors.Errorf("[GenerateRandomString] length %d outside %d-%d", length, VerifierMinLength, VerifierMaxLength)
	}

	// Rejection sampling: only bytes below the largest multiple of the
	// alphabet size map uniformly, the rest are redrawn.
	limit := byte(256 - 256%len(allowedChars))

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", errors.Wrap(err, "[GenerateRandomString] rand.Read")
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, allowedChars[int(b)%len(allowedChars)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// Challenge derives the S256 code_challenge for a verifier:
// Base64URL(SHA256(verifier)), unpadded.
func Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// NewPair generates a fresh verifier/challenge pair. A challenge that is not
// exactly 43 characters indicates a broken digest and is an error, never a
// warning.
func NewPair() (Pair, error) {
	verifier, err := GenerateRandomString(defaultVerifierLength)
	if err != nil {
		return Pair{}, errors.Wrap(err, "[NewPair] verifier")
	}

	challenge := Challenge(verifier)
	if len(challenge) != challengeLength {
		return Pair{}, errors.Errorf("[NewPair] code_challenge length %d, want %d", len(challenge), challengeLength)
	}

	return Pair{Verifier: verifier, Challenge: challenge}, nil
}

// GenerateState returns an unguessable single-use token binding an
// authorization redirect to the attempt that initiated it.
func GenerateState() (string, error) {
	bytes := make([]byte, stateLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", errors.Wrap(err, "[GenerateState] rand.Read")
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// VerifyChallenge reports whether verifier satisfies the stored challenge
// under the given method. Comparisons are constant time.
func VerifyChallenge(challenge, verifier string, method oauth2.CodeMethodType) bool {
	if challenge == "" && verifier == "" {
		return true
	}
	switch method {
	case oauth2.CodeMethodTypeS256:
		return subtle.ConstantTimeCompare([]byte(Challenge(verifier)), []byte(challenge)) == 1
	case oauth2.CodeMethodTypeNone:
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	}
	return false
}
