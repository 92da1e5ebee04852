package utils

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTimestamp_KeepsOffset(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	ts := time.Date(2024, 5, 1, 10, 30, 0, 0, loc)

	s := FormatTimestamp(ts)
	assert.Equal(t, "2024-05-01T10:30:00+07:00", s)

	back, err := ParseTimestamp(s)
	require.NoError(t, err)
	assert.True(t, back.Equal(ts))

	assert.Equal(t, "2024-05-01T03:30:00+00:00", FormatTimestamp(ts.UTC()))
}

func TestRandomDuration_Bounds(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := RandomDuration(300*time.Second, 1500*time.Second)
		assert.GreaterOrEqual(t, d, 300*time.Second)
		assert.LessOrEqual(t, d, 1500*time.Second)
	}
	assert.Equal(t, 5*time.Second, RandomDuration(5*time.Second, 5*time.Second))
}

func TestSleepWithContext(t *testing.T) {
	assert.True(t, SleepWithContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, SleepWithContext(ctx, time.Hour))
}

func TestGenerateToken(t *testing.T) {
	tokenString, err := GenerateToken("operator", time.Hour, "secret")
	require.NoError(t, err)

	var claims jwt.StandardClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, "operator", claims.Subject)
}
