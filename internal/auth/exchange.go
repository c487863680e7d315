package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultRefreshPath is the backend's token-exchange endpoint.
const DefaultRefreshPath = "/auth/jwt/refresh/"

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 1024

// HTTPClient is an interface for making HTTP requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenExchanger trades a refresh token for a new access token.
type TokenExchanger interface {
	Exchange(ctx context.Context, refreshToken string) (*TokenRefreshResponse, error)
}

// Exchanger calls the token-exchange endpoint directly. It must be given a
// bare client, never the authenticated one, so a refresh cannot recurse into
// the recovery path.
type Exchanger struct {
	url    string
	client HTTPClient
}

func NewExchanger(url string, client HTTPClient) *Exchanger {
	if client == nil {
		client = http.DefaultClient
	}
	return &Exchanger{url: url, client: client}
}

// Exchange posts the refresh token and returns the new tokens
func (e *Exchanger) Exchange(ctx context.Context, refreshToken string) (*TokenRefreshResponse, error) {
	jsonData, err := json.Marshal(TokenRefreshRequest{Refresh: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var tokenResp TokenRefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if tokenResp.Access == "" {
		return nil, fmt.Errorf("%w: missing access token", ErrMalformedResponse)
	}

	return &tokenResp, nil
}
