// Package tokentest mints unsigned-for-production test tokens shaped like the
// backend's access and refresh tokens.
package tokentest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testKey = []byte("connectly-test-key")

// Mint returns an HS256 token for userID expiring at exp.
func Mint(t testing.TB, userID int, exp time.Time) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":    userID,
		"token_type": "access",
		"exp":        exp.Unix(),
	})
	s, err := tok.SignedString(testKey)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return s
}

// MintFresh returns a token for userID valid for the next hour.
func MintFresh(t testing.TB, userID int) string {
	t.Helper()
	return Mint(t, userID, time.Now().Add(time.Hour))
}
