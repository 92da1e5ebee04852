package utils

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/golang-jwt/jwt"
	"reelpipe/infrastructure/logger"
)

// TimestampLayout is ISO-8601 with a numeric offset, "+00:00" for UTC.
const TimestampLayout = "2006-01-02T15:04:05-07:00"

func GetCurrentTime() time.Time {
	return time.Now().UTC()
}

func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

// RandomDuration returns a uniform duration in [lo, hi].
func RandomDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}

// SleepWithContext waits for d and reports false if ctx ended first.
func SleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// GenerateToken signs an operator token accepted by the API middleware.
func GenerateToken(subject string, ttl time.Duration, secretKey string) (string, error) {
	now := GetCurrentTime()
	claims := jwt.StandardClaims{
		Subject:   subject,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
		Issuer:    "reelpipe",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		logger.GetLogger().WithError(err).Error("Error while generate token")
		return "", err
	}
	return tokenString, nil
}
