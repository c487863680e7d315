package httpclient

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBody is a caller error: the body and Content-Type cannot be
	// encoded together. Nothing was sent.
	ErrInvalidBody = errors.New("invalid request body")
	// ErrSessionExpired means a 401 could not be recovered because the
	// refresh exchange failed. Stored credentials have been cleared.
	ErrSessionExpired = errors.New("session expired")
)

// SessionExpiredError carries the original unauthorized response that
// triggered the failed refresh. It matches ErrSessionExpired and unwraps to
// the refresh failure.
type SessionExpiredError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired (status %d): %v", e.StatusCode, e.Err)
}

func (e *SessionExpiredError) Unwrap() error {
	return e.Err
}

func (e *SessionExpiredError) Is(target error) bool {
	return target == ErrSessionExpired
}
