// Package api is the client for the review backend's REST API.
//
// ONE CONFIGURED CLIENT:
// Every request goes through the same http.Client:
//   - a fixed base URL (API_URL, default http://localhost:5000)
//   - a cookie jar, so the backend's HttpOnly session cookie is sent with
//     every request (the browser's "withCredentials")
//   - JSON request and response bodies
//   - a middleware chain: logging, request IDs, rate limiting, and a 401
//     interceptor that logs but never redirects
//
// ERRORS:
// Non-2xx responses become *apperror.AppError with the HTTP status; the
// backend's {"message": "..."} is used as the text when present. Transport
// failures become apperror.ErrNetwork with the cause attached, so
// errors.Is(err, context.Canceled) still works for cancelled requests.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/service-review/internal/apperror"
	"github.com/sakif/service-review/internal/middleware"
	"github.com/sakif/service-review/internal/repository"
)

// DefaultBaseURL is the backend address used when none is configured.
const DefaultBaseURL = "http://localhost:5000"

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration // whole-request timeout; 0 means 15s

	// RateLimit caps requests per second; 0 disables the limit.
	RateLimit float64

	// Cookies persists the cookie jar between runs. Optional.
	Cookies repository.CookieRepository

	// OnUnauthorized is called for every 401 response. Optional.
	OnUnauthorized func(*http.Request)

	// Transport is the base RoundTripper; http.DefaultTransport if nil.
	Transport http.RoundTripper
}

// Client talks to the backend.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *slog.Logger
}

// New creates a Client and restores persisted cookies for the base URL.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api: invalid base URL %q", cfg.BaseURL)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	jar, err := newPersistentJar(cfg.Cookies, logger)
	if err != nil {
		return nil, err
	}
	if err := jar.load(ctx, base); err != nil {
		return nil, err
	}

	mws := []middleware.Middleware{
		middleware.Logger(logger),
		middleware.RequestID(),
		middleware.Unauthorized(logger, cfg.OnUnauthorized),
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		mws = append(mws, middleware.RateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)))
	}

	return &Client{
		baseURL: base,
		http: &http.Client{
			Transport: middleware.Chain(cfg.Transport, mws...),
			Jar:       jar,
			Timeout:   cfg.Timeout,
		},
		logger: logger,
	}, nil
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// errorBody is the backend's error shape. Both fields are optional.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) patch(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPatch, path, nil, body, out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// do sends one JSON request. out may be nil when the response body does not
// matter.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	op := method + " " + path

	target := c.baseURL.String() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encoding %s body: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("api: creating %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.Network("api: "+op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		return apperror.FromStatus(resp.StatusCode, eb.Message)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("api: decoding %s response: %w", op, err)
	}
	return nil
}

// segment escapes one path segment (an id or an email).
func segment(s string) string {
	return url.PathEscape(s)
}
