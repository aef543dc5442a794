package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	// Endpoint is the GraphQL endpoint URL.
	Endpoint string

	// Token is sent as a bearer token when set.
	Token string

	// Timeout bounds a single request (default: 60s).
	Timeout time.Duration

	// RateLimit is requests per second (default: 10).
	RateLimit float64

	// RateBurst is the limiter burst size (default: 5).
	RateBurst int

	// MaxResponseBytes caps the decoded response size (default: 64MB).
	MaxResponseBytes int64

	// Transport allows injecting a custom round tripper in tests.
	Transport http.RoundTripper
}

// HTTPClient posts GraphQL documents to the store endpoint.
type HTTPClient struct {
	cfg     HTTPConfig
	http    *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient returns a rate limited store client.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 5
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = 64 << 20
	}
	return &HTTPClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Query implements Client.
func (c *HTTPClient) Query(ctx context.Context, query string, vars map[string]any) (*Response, error) {
	return c.do(ctx, query, vars)
}

// Mutate implements Client.
func (c *HTTPClient) Mutate(ctx context.Context, mutation string, vars map[string]any) (*Response, error) {
	return c.do(ctx, mutation, vars)
}

func (c *HTTPClient) do(ctx context.Context, doc string, vars map[string]any) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("store rate limiter: %w", err)
	}

	body, err := json.Marshal(gqlRequest{Query: doc, Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("encode store request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build store request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read store response: %w", err)
	}

	var out Response
	decodeErr := decodeUseNumber(raw, &out)

	// GraphQL servers often report errors with a 4xx/5xx and a JSON body.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && out.HasErrors() {
			return &out, nil
		}
		return nil, fmt.Errorf("store request: unexpected status %s: %s",
			resp.Status, Truncate(string(raw), 500))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode store response: %w", decodeErr)
	}
	return &out, nil
}
