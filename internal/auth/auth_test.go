package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("baton")
	require.NoError(t, err)
	require.NoError(t, ValidateHash(hash))

	assert.NoError(t, ComparePassword("baton", hash))
	assert.ErrorIs(t, ComparePassword("Baton", hash), ErrPasswordMismatch)

	other, err := HashPassword("baton")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salts differ")
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
}

func TestMalformedHash(t *testing.T) {
	for _, h := range []string{"", "plain", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA", "$argon2id$v=19$m=x$c2FsdA$aGFzaA"} {
		assert.Error(t, ValidateHash(h), h)
		err := ComparePassword("x", h)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrPasswordMismatch)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	now := time.Now()
	token, err := IssueToken("secret", "finish-line", now, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "finish-line", claims.Station)
	assert.Equal(t, StaffSubject, claims.Subject)

	_, err = ParseToken(token, "other-secret")
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	token, err := IssueToken("secret", "", time.Now().Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, "secret")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestIssueTokenNeedsSecret(t *testing.T) {
	_, err := IssueToken("", "", time.Now(), time.Hour)
	assert.Error(t, err)
}
