// Package gs1 provides GTIN validation and a client for a GS1-style
// product registry.
package gs1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when the registry has no record for a GTIN.
var ErrNotFound = eris.New("gs1: product not found")

// Client defines the registry operations.
type Client interface {
	// Lookup fetches the product record for a GTIN in any accepted form.
	Lookup(ctx context.Context, gtin string) (*Product, error)
}

// Product is a registry record.
type Product struct {
	GTIN         string `json:"gtin"`
	Brand        string `json:"brand"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	CategoryCode string `json:"gpc_code"`
	Company      string `json:"company"`
	Country      string `json:"country"`
}

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gs1: unexpected status %d: %s", e.Code, e.Body)
}

// Retryable reports whether err is a throttling or server-side status.
func Retryable(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit throttles outbound requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a registry client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.gs1.example/v1",
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Lookup(ctx context.Context, gtin string) (*Product, error) {
	code, err := NormalizeGTIN(gtin)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "gs1: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/products/"+code, nil)
	if err != nil {
		return nil, eris.Wrap(err, "gs1: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "gs1: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "gs1: read response body")
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, eris.Wrapf(ErrNotFound, "gtin %s", code)
	default:
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var p Product
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, eris.Wrap(err, "gs1: unmarshal response")
	}
	if p.GTIN == "" {
		p.GTIN = code
	}
	return &p, nil
}
