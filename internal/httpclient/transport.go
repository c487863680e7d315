package httpclient

import (
	"net/http"

	"github.com/connectly/connectly-client/internal/credentials"
	"github.com/google/uuid"
)

// Transport returns a RoundTripper that adds the bearer token and applies the
// same 401 recovery as Do. Bodies are sent as given. A request whose body
// cannot be rewound (no GetBody) gets its 401 back unrecovered.
func (c *Client) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{client: c, base: base}
}

type transport struct {
	client *Client
	base   http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	requestID := req.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	access := credentials.AccessToken(req.Context(), t.client.store)
	return t.roundTrip(req, requestID, access, 0)
}

func (t *transport) roundTrip(orig *http.Request, requestID, access string, attempt int) (*http.Response, error) {
	req := orig.Clone(orig.Context())
	if attempt > 0 && orig.GetBody != nil {
		body, err := orig.GetBody()
		if err != nil {
			return nil, err
		}
		req.Body = body
	}
	setAuthorization(req.Header, access)
	req.Header.Set(HeaderRequestID, requestID)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	replayable := orig.Body == nil || orig.Body == http.NoBody || orig.GetBody != nil
	return t.client.recoverUnauthorized(orig.Context(), resp, access, attempt, replayable, func(fresh string) (*http.Response, error) {
		return t.roundTrip(orig, requestID, fresh, attempt+1)
	})
}
