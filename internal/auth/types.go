package auth

import (
	"errors"
	"fmt"
)

// TokenRefreshRequest is the token-exchange request body
type TokenRefreshRequest struct {
	Refresh string `json:"refresh"`
}

// TokenRefreshResponse is the token-exchange response body. Refresh is only
// set when the backend rotates refresh tokens.
type TokenRefreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

var (
	// ErrRefreshFailed marks a terminal refresh failure: credentials were
	// cleared and the caller must re-authenticate.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrNoRefreshToken means there was nothing to exchange.
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrMalformedResponse means the exchange answered 2xx with a body that
	// could not be decoded or carried no access token.
	ErrMalformedResponse = errors.New("malformed token refresh response")
)

// ExchangeError is a non-2xx answer from the token-exchange endpoint.
type ExchangeError struct {
	StatusCode int
	Body       string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token refresh failed with status %d: %s", e.StatusCode, e.Body)
}
