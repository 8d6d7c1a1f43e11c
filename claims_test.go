package teamauth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	teamauth "github.com/teamup-ku/go-teamauth"
)

func TestDecodeApplicationToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	claims, err := teamauth.DecodeApplicationToken(signedToken(t, "user-1", exp))
	require.NoError(t, err)

	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "user-1@korea.ac.kr", claims.Email)
	assert.True(t, claims.Expiry().Equal(exp))
	assert.False(t, claims.Expired(time.Now()))
	assert.True(t, claims.Expired(exp.Add(time.Second)))
}

func TestDecodeApplicationTokenPrefersUID(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "subject",
		"uid": "uid-7",
	}).SignedString([]byte("x"))
	require.NoError(t, err)

	claims, err := teamauth.DecodeApplicationToken(token)
	require.NoError(t, err)
	assert.Equal(t, "uid-7", claims.UserID())
	assert.True(t, claims.Expiry().IsZero())
	assert.False(t, claims.Expired(time.Now()))
}

func TestDecodeApplicationTokenMalformed(t *testing.T) {
	_, err := teamauth.DecodeApplicationToken("not-a-jwt")
	require.Error(t, err)
	assert.True(t, teamauth.IsTextCode(err, teamauth.TextCodeTokenMalformed))
}

func TestApplicationClaimsNil(t *testing.T) {
	var claims *teamauth.ApplicationClaims
	assert.Empty(t, claims.UserID())
	assert.True(t, claims.Expiry().IsZero())
}
