package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastParams = Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestHashAndVerify(t *testing.T) {
	encoded, err := fastParams.Hash("Password123!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$"))

	ok, err := VerifyPassword("Password123!", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	for _, encoded := range []string{"", "plain", "$bcrypt$v=19$m=1,t=1,p=1$aa$bb", "$argon2id$v=19$m=x$aa$bb"} {
		_, err := VerifyPassword("x", encoded)
		assert.True(t, errors.Is(err, ErrInvalidHash), encoded)
	}
}

func TestNeedsRehash(t *testing.T) {
	weak, err := fastParams.Hash("secret")
	require.NoError(t, err)

	assert.True(t, DefaultParams.NeedsRehash(weak))
	assert.False(t, fastParams.NeedsRehash(weak))
	assert.True(t, DefaultParams.NeedsRehash("garbage"))
}

func TestTokens(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
	assert.Equal(t, HashToken(a), HashToken(a))
	assert.NotEqual(t, HashToken(a), a)

	session, err := NewSessionTokens()
	require.NoError(t, err)
	assert.Equal(t, HashToken(session.Token), session.TokenHash)
	assert.NotEqual(t, session.Token, session.CSRF)
}
