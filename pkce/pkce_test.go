package pkce_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/jrsteele09/go-sso-client/pkce"
)

const (
	// RFC 7636 appendix B reference vector
	rfcVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	rfcChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func TestChallenge_RFCVector(t *testing.T) {
	require.Equal(t, rfcChallenge, pkce.Challenge(rfcVerifier))
}

func TestNewPair(t *testing.T) {
	pair, err := pkce.NewPair()
	require.NoError(t, err)

	require.Len(t, pair.Verifier, 128)
	require.Len(t, pair.Challenge, 43)
	require.Equal(t, pkce.Challenge(pair.Verifier), pair.Challenge)

	for _, r := range pair.Verifier {
		require.Contains(t, "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~", string(r))
	}
}

func TestGenerateRandomString(t *testing.T) {
	t.Run("length bounds", func(t *testing.T) {
		_, err := pkce.GenerateRandomString(42)
		require.Error(t, err)

		_, err = pkce.GenerateRandomString(129)
		require.Error(t, err)

		s, err := pkce.GenerateRandomString(43)
		require.NoError(t, err)
		require.Len(t, s, 43)
	})

	t.Run("alphabet", func(t *testing.T) {
		s, err := pkce.GenerateRandomString(128)
		require.NoError(t, err)
		for _, r := range s {
			require.True(t, strings.ContainsRune("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~", r), "character %q outside RFC 7636 alphabet", r)
		}
	})

	t.Run("uniform over the alphabet", func(t *testing.T) {
		// Every alphabet character should appear across enough draws.
		// 400*128 samples make a missing character astronomically
		// unlikely unless the sampling itself is skewed.
		seen := map[rune]int{}
		for i := 0; i < 400; i++ {
			s, err := pkce.GenerateRandomString(128)
			require.NoError(t, err)
			for _, r := range s {
				seen[r]++
			}
		}
		for _, r := range "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~" {
			require.Positive(t, seen[r], "character %q never drawn", r)
		}
		require.Len(t, seen, 66)
	})

	t.Run("not constant", func(t *testing.T) {
		a, err := pkce.GenerateRandomString(64)
		require.NoError(t, err)
		b, err := pkce.GenerateRandomString(64)
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})
}

func TestGenerateState(t *testing.T) {
	a, err := pkce.GenerateState()
	require.NoError(t, err)
	b, err := pkce.GenerateState()
	require.NoError(t, err)

	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}

func TestVerifyChallenge(t *testing.T) {
	t.Run("S256 match", func(t *testing.T) {
		require.True(t, pkce.VerifyChallenge(rfcChallenge, rfcVerifier, oauth2.CodeMethodTypeS256))
	})

	t.Run("S256 mismatch", func(t *testing.T) {
		require.False(t, pkce.VerifyChallenge(rfcChallenge, "wrong-verifier-wrong-verifier-wrong-verifier", oauth2.CodeMethodTypeS256))
	})

	t.Run("plain", func(t *testing.T) {
		require.True(t, pkce.VerifyChallenge(rfcVerifier, rfcVerifier, oauth2.CodeMethodTypeNone))
		require.False(t, pkce.VerifyChallenge(rfcVerifier, rfcChallenge, oauth2.CodeMethodTypeNone))
	})

	t.Run("no PKCE on either side", func(t *testing.T) {
		require.True(t, pkce.VerifyChallenge("", "", oauth2.CodeMethodTypeS256))
	})

	t.Run("unknown method", func(t *testing.T) {
		require.False(t, pkce.VerifyChallenge(rfcChallenge, rfcVerifier, "md5"))
	})
}
