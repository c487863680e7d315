// Package api is the typed surface of the Connectly backend. Every call goes
// through the authenticated client, so an expired access token is refreshed
// transparently.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/connectly/connectly-client/internal/credentials"
	"github.com/connectly/connectly-client/internal/httpclient"
	"github.com/connectly/connectly-client/internal/logger"
	"github.com/connectly/connectly-client/internal/session"
	"github.com/rs/zerolog"
)

const (
	pathLogin         = "/posts/users/login/"
	pathUsers         = "/posts/users/"
	pathPosts         = "/posts/posts/"
	pathFeed          = "/posts/posts/feed/"
	pathGoogleLogin   = "/api/auth/social/google/"
	pathValidateToken = "/api/validate-token/"
	pathFollows       = "/follows/"
)

const (
	maxErrorBody = 1024
	// DefaultMaxResponseBody caps how much of a response body is read.
	DefaultMaxResponseBody = 16 << 20
)

// Doer sends a logical request. *httpclient.Client implements it.
type Doer interface {
	Do(ctx context.Context, req *httpclient.Request) (*http.Response, error)
}

type Client struct {
	http    Doer
	session *session.Controller
	logger  *zerolog.Logger
	maxBody int64
}

// New returns an API client. sess receives the pair issued by the login
// calls; it may be nil when the caller stores tokens itself.
func New(doer Doer, sess *session.Controller, l *zerolog.Logger) *Client {
	if l == nil {
		l = logger.Nop()
	}
	return &Client{http: doer, session: sess, logger: l, maxBody: DefaultMaxResponseBody}
}

// Login exchanges an email or username and a password for a token pair.
func (c *Client) Login(ctx context.Context, identifier, password string) (*Tokens, error) {
	return c.login(ctx, pathLogin, Credentials{Identifier: identifier, Password: password})
}

// GoogleLogin exchanges a Google OAuth access token for a token pair.
func (c *Client) GoogleLogin(ctx context.Context, credential string) (*Tokens, error) {
	return c.login(ctx, pathGoogleLogin, map[string]string{"access_token": credential})
}

func (c *Client) login(ctx context.Context, path string, body any) (*Tokens, error) {
	var tokens Tokens
	if err := c.call(ctx, http.MethodPost, path, body, &tokens); err != nil {
		return nil, err
	}
	if tokens.Access == "" {
		return nil, fmt.Errorf("%w: login response has no access token", ErrMalformedResponse)
	}
	if c.session != nil {
		pair := credentials.Pair{Access: tokens.Access, Refresh: tokens.Refresh}
		if err := c.session.Login(ctx, pair); err != nil {
			return nil, fmt.Errorf("failed to store credentials: %w", err)
		}
	}
	return &tokens, nil
}

func (c *Client) Signup(ctx context.Context, u NewUser) (*Created, error) {
	var out Created
	if err := c.call(ctx, http.MethodPost, pathUsers, u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Users returns the first page of users.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	return list[User](ctx, c, pathUsers)
}

// User finds a user by id in the user listing. A missing user is (nil, nil).
func (c *Client) User(ctx context.Context, id int) (*User, error) {
	users, err := c.Users(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, nil
}

// PostsByAuthor returns the posts written by authorID from the post listing.
func (c *Client) PostsByAuthor(ctx context.Context, authorID int) ([]Post, error) {
	posts, err := list[Post](ctx, c, pathPosts)
	if err != nil {
		return nil, err
	}
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if p.Author == authorID {
			out = append(out, p)
		}
	}
	return out, nil
}

// Feed returns one page of the caller's feed. page <= 0 means the first.
func (c *Client) Feed(ctx context.Context, page int) ([]Post, error) {
	return list[Post](ctx, c, withPage(pathFeed, page))
}

func (c *Client) CreatePost(ctx context.Context, p NewPost) (*Created, error) {
	var out Created
	if err := c.call(ctx, http.MethodPost, pathPosts, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Comments(ctx context.Context, postID, page int) ([]Comment, error) {
	return list[Comment](ctx, c, withPage(commentsPath(postID), page))
}

func (c *Client) CreateComment(ctx context.Context, postID int, content string) (*Created, error) {
	var out Created
	if err := c.call(ctx, http.MethodPost, commentsPath(postID), map[string]string{"content": content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Follow(ctx context.Context, userID int) (*Created, error) {
	var out Created
	if err := c.call(ctx, http.MethodPost, pathFollows, map[string]int{"following": userID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Unfollow(ctx context.Context, followID int) error {
	return c.call(ctx, http.MethodDelete, pathFollows+strconv.Itoa(followID)+"/", nil, nil)
}

// ValidateToken asks the backend whether the stored session is still good.
// A rejected token, or a session that expired while refreshing, is reported
// as false without an error.
func (c *Client) ValidateToken(ctx context.Context) (bool, error) {
	err := c.call(ctx, http.MethodGet, pathValidateToken, nil, nil)
	switch {
	case err == nil:
		return true, nil
	case HasStatus(err, http.StatusUnauthorized), errors.Is(err, httpclient.ErrSessionExpired):
		return false, nil
	default:
		return false, err
	}
}

func commentsPath(postID int) string {
	return pathPosts + strconv.Itoa(postID) + "/comments/"
}

func withPage(path string, page int) string {
	if page <= 0 {
		return path
	}
	return path + "?" + url.Values{"page": {strconv.Itoa(page)}}.Encode()
}

// list decodes either a bare JSON array or a paginated {"results": [...]}
// envelope.
func list[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return items, nil
	}

	var p page[T]
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if p.Results == nil {
		return nil, fmt.Errorf("%w: response has no results", ErrMalformedResponse)
	}
	return *p.Results, nil
}

// call sends one request and decodes a 2xx JSON body into out. out may be
// nil when the body is not needed.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.http.Do(ctx, httpclient.NewRequest(method, path, body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		return fmt.Errorf("%w: %s %s exceeds %d bytes", ErrResponseTooLarge, method, path, c.maxBody)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := data
		if len(excerpt) > maxErrorBody {
			excerpt = excerpt[:maxErrorBody]
		}
		c.logger.Warn().
			Str("method", method).
			Str("path", path).
			Int("status_code", resp.StatusCode).
			Str("response_body", string(excerpt)).
			Msg("Received error response from backend")
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(excerpt),
		}
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: empty body from %s %s", ErrMalformedResponse, method, path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
