package enroll

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func TestInspectToken(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	valid := signedToken(t, jwt.MapClaims{
		"iss": "www.arista.io",
		"exp": now.Add(time.Hour).Unix(),
	})
	info := InspectToken(valid, now)
	assert.True(t, info.IsJWT)
	assert.Equal(t, "www.arista.io", info.Issuer)
	assert.False(t, info.Expired)
	assert.Equal(t, now.Add(time.Hour).Unix(), info.ExpiresAt.Unix())

	expired := signedToken(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()})
	info = InspectToken(expired, now)
	assert.True(t, info.IsJWT)
	assert.True(t, info.Expired)

	noExp := signedToken(t, jwt.MapClaims{"sub": "device"})
	info = InspectToken(noExp, now)
	assert.True(t, info.IsJWT)
	assert.False(t, info.Expired)
	assert.True(t, info.ExpiresAt.IsZero())
}

func TestInspectOpaqueToken(t *testing.T) {
	info := InspectToken("0123456789abcdef", time.Now())
	assert.Equal(t, TokenInfo{}, info)
}
