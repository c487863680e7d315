package api

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedResponse means a 2xx response could not be decoded. It is
// distinct from an empty result.
var ErrMalformedResponse = errors.New("malformed response")

// ErrResponseTooLarge means a response body exceeded the read limit.
var ErrResponseTooLarge = errors.New("response body too large")

// StatusError is a non-2xx response from a business endpoint.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// HasStatus reports whether err is a *StatusError with the given code.
func HasStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type Credentials struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type NewUser struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type NewPost struct {
	Content string `json:"content"`
	Privacy string `json:"privacy,omitempty"`
}

type Post struct {
	ID        int       `json:"id"`
	Content   string    `json:"content"`
	Author    int       `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

type Comment struct {
	ID        int       `json:"id"`
	User      int       `json:"user"`
	Post      int       `json:"post"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Created is the backend's acknowledgement of a create call.
type Created struct {
	ID      int    `json:"id"`
	Message string `json:"message"`
}

type page[T any] struct {
	Count   int     `json:"count"`
	Next    *string `json:"next"`
	Results *[]T    `json:"results"`
}
