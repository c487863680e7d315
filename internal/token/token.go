// Package token decodes the claims carried by the backend's bearer tokens.
//
// Tokens are opaque to the client: it never verifies signatures (it does not
// hold the signing key) and only reads the subject and expiry for display and
// bookkeeping.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SubjectClaim is the claim the backend uses for the user id.
const SubjectClaim = "user_id"

var ErrMalformed = errors.New("malformed token")

// Claims are the parts of a token the client cares about.
type Claims struct {
	SubjectID string
	ExpiresAt time.Time
}

// Parse decodes raw without verifying its signature.
func Parse(raw string) (Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var out Claims
	if exp != nil {
		out.ExpiresAt = exp.Time
	}

	switch v := claims[SubjectClaim].(type) {
	case string:
		out.SubjectID = v
	case float64:
		out.SubjectID = strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		out.SubjectID = v.String()
	default:
		if sub, err := claims.GetSubject(); err == nil {
			out.SubjectID = sub
		}
	}

	return out, nil
}

// ExpiresAtMillis returns the token expiry in milliseconds since epoch.
func ExpiresAtMillis(raw string) (int64, bool) {
	c, err := Parse(raw)
	if err != nil || c.ExpiresAt.IsZero() {
		return 0, false
	}
	return c.ExpiresAt.UnixMilli(), true
}
