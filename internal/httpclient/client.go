package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/connectly/connectly-client/internal/auth"
	"github.com/connectly/connectly-client/internal/credentials"
	"github.com/connectly/connectly-client/internal/logger"
	"github.com/connectly/connectly-client/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single send. The backend can be slow to wake up.
const DefaultTimeout = 90 * time.Second

// HeaderRequestID identifies one logical call. The replay after a refresh
// carries the same value.
const HeaderRequestID = "X-Request-ID"

const maxErrorBody = 1024

// HTTPClient is an interface for making HTTP requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient creates the plain client used for sends and for the refresh
// exchange.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
	}
}

// Refresher obtains a new access token after stale was rejected.
type Refresher interface {
	Refresh(ctx context.Context, stale string) (string, error)
}

// Client sends requests with the stored bearer token and recovers once from
// an expired access token.
type Client struct {
	baseURL   *url.URL
	http      HTTPClient
	store     credentials.Store
	refresher Refresher
	logger    *zerolog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Client)

func WithHTTPClient(h HTTPClient) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithLogger(l *zerolog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New builds a Client. Relative request URLs are resolved against baseURL;
// an empty baseURL requires absolute request URLs.
func New(baseURL string, store credentials.Store, refresher Refresher, opts ...Option) (*Client, error) {
	c := &Client{
		store:     store,
		refresher: refresher,
		logger:    logger.Nop(),
	}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", baseURL)
		}
		c.baseURL = u
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = NewHTTPClient(DefaultTimeout)
	}
	return c, nil
}

// Store returns the credential store the client reads from.
func (c *Client) Store() credentials.Store {
	return c.store
}

// Do sends req. The response is returned for every status, including a 401
// that could not be recovered; the caller closes its body. A failed refresh
// is reported as a *SessionExpiredError.
func (c *Client) Do(ctx context.Context, req *Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	requestID := req.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return c.send(ctx, req, requestID, credentials.AccessToken(ctx, c.store), 0)
}

func (c *Client) send(ctx context.Context, req *Request, requestID, access string, attempt int) (*http.Response, error) {
	httpReq, err := c.decorate(ctx, req, requestID, access)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("method", httpReq.Method).
		Str("url", httpReq.URL.String()).
		Str("request_id", requestID).
		Int("attempt", attempt).
		Str("authorization_preview", logger.Preview(access)).
		Msg("Sending request")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if attempt > 0 {
			return nil, fmt.Errorf("retry request failed: %w", err)
		}
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	return c.recoverUnauthorized(ctx, resp, access, attempt, true, func(fresh string) (*http.Response, error) {
		return c.send(ctx, req, requestID, fresh, attempt+1)
	})
}

// decorate builds the wire request. req itself is never modified so the
// replay starts from the caller's original headers and body.
func (c *Client) decorate(ctx context.Context, req *Request, requestID, access string) (*http.Request, error) {
	target, err := c.resolve(req.URL)
	if err != nil {
		return nil, err
	}

	header := req.Header.Clone()
	if header == nil {
		header = http.Header{}
	}

	data, contentType, err := encodeBody(req.Body, header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header = header
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	setAuthorization(header, access)
	header.Set(HeaderRequestID, requestID)
	return httpReq, nil
}

func (c *Client) resolve(raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid request URL %q: %w", raw, err)
	}
	if c.baseURL == nil || ref.IsAbs() {
		if !ref.IsAbs() {
			return "", fmt.Errorf("invalid request URL %q: no base URL configured", raw)
		}
		return ref.String(), nil
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}

// setAuthorization sets a single well-formed bearer header. A stored value
// that already carries the scheme is not prefixed twice.
func setAuthorization(h http.Header, access string) {
	bare := strings.TrimSpace(access)
	if scheme, rest, ok := strings.Cut(bare, " "); ok && strings.EqualFold(scheme, "bearer") {
		bare = strings.TrimSpace(rest)
	} else if strings.EqualFold(bare, "bearer") {
		bare = ""
	}
	if bare == "" {
		return
	}
	h.Set("Authorization", "Bearer "+bare)
}

// recoverUnauthorized applies the 401 policy to resp. used is the access
// token the failed attempt carried; replay resends with a fresh one. Only an
// anonymous 401 is returned as-is. A rejected token always goes to the
// refresher, so a store that was cleared meanwhile yields SessionExpiredError.
func (c *Client) recoverUnauthorized(ctx context.Context, resp *http.Response, used string, attempt int, replayable bool, replay func(string) (*http.Response, error)) (*http.Response, error) {
	if resp.StatusCode != http.StatusUnauthorized {
		if attempt > 0 {
			c.logger.Info().Int("status_code", resp.StatusCode).Msg("Request succeeded after token refresh")
		}
		return resp, nil
	}

	if attempt > 0 {
		c.logger.Error().Msg("Still received 401 after token refresh, giving up")
		return resp, nil
	}
	if used == "" {
		c.logger.Debug().Msg("Received 401 on an anonymous request, returning it to the caller")
		return resp, nil
	}
	if !replayable {
		c.logger.Warn().Msg("Received 401 but the request body cannot be replayed")
		return resp, nil
	}

	c.logger.Warn().Msg("Received 401 Unauthorized, attempting token refresh...")

	excerpt := drain(resp)

	fresh, err := c.refresher.Refresh(ctx, used)
	if err != nil {
		if errors.Is(err, auth.ErrRefreshFailed) {
			c.logger.Error().Err(err).Msg("Failed to refresh credentials after 401 error")
			return nil, &SessionExpiredError{
				StatusCode: resp.StatusCode,
				Body:       excerpt,
				Err:        err,
			}
		}
		return nil, err
	}

	c.metrics.Replayed()
	c.logger.Info().Msg("Successfully refreshed credentials, retrying request...")
	return replay(fresh)
}

// drain reads a bounded excerpt of the body and closes it.
func drain(resp *http.Response) string {
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return string(data)
}
