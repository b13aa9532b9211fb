package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultUserAgent = "narrative-radar/1.0"
	maxBodyBytes     = 8 << 20
)

// ErrSchema is returned when a payload does not match the expected shape.
var ErrSchema = errors.New("fetch: unexpected payload shape")

// Validator is implemented by decoded payloads that can check their own shape.
type Validator interface {
	Validate() error
}

// StatusError is a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s returned %d: %s", e.URL, e.StatusCode, e.Body)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusForbidden:
		return e.RetryAfter > 0 || strings.Contains(strings.ToLower(e.Body), "rate limit")
	default:
		return false
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client wraps net/http with the retry policy and an optional rate limiter.
type Client struct {
	httpClient *http.Client
	policy     Policy
	limiter    *rate.Limiter
	userAgent  string
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// New constructs a client with sane defaults.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		policy:     DefaultPolicy(),
		userAgent:  defaultUserAgent,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithHTTPClient overrides the internal HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithPolicy overrides the retry policy.
func WithPolicy(p Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithLimiter throttles every attempt through l.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Policy returns the active retry policy.
func (c *Client) Policy() Policy { return c.policy }

// Do sends the request produced by build, retrying per policy. build is called once per attempt.
func (c *Client) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*Response, error) {
	p := c.policy
	var target string
	p.Notify = func(attempt int, wait time.Duration, err error) {
		c.logger.WarnContext(ctx, "retrying request",
			"url", target,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err)
	}

	return Retry(ctx, p, func(ctx context.Context) (*Response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, Permanent(fmt.Errorf("fetch: build request: %w", err))
		}
		target = req.URL.Redacted()
		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("fetch: rate limiter: %w", err)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch: %s: %w", target, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("fetch: read %s: %w", target, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet := string(body)
			if len(snippet) > 280 {
				snippet = snippet[:280]
			}
			return nil, &StatusError{
				URL:        target,
				StatusCode: resp.StatusCode,
				Body:       snippet,
				RetryAfter: retryAfter(resp.Header, c.now()),
			}
		}
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
	})
}

// Get fetches url with optional extra headers.
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	return c.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		copyHeader(req.Header, header)
		return req, nil
	})
}

// GetJSON fetches url and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	h := http.Header{"Accept": []string{"application/json"}}
	copyHeader(h, header)
	resp, err := c.Get(ctx, url, h)
	if err != nil {
		return err
	}
	return Decode(resp.Body, out)
}

// PostJSON sends in as JSON and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("fetch: marshal request: %w", err)
	}
	resp, err := c.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		copyHeader(req.Header, header)
		return req, nil
	})
	if err != nil {
		return err
	}
	return Decode(resp.Body, out)
}

// Decode unmarshals data into out and runs its Validate method when present.
func Decode(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrSchema, err)
		}
	}
	return nil
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		dst.Del(k)
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// retryAfter reads Retry-After (seconds or HTTP date) and falls back to the
// rate-limit reset epoch when the remaining quota is exhausted.
func retryAfter(h http.Header, now time.Time) time.Duration {
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if ts, err := http.ParseTime(v); err == nil && ts.After(now) {
			return ts.Sub(now)
		}
	}
	if h.Get("X-RateLimit-Remaining") == "0" {
		if reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			if ts := time.Unix(reset, 0); ts.After(now) {
				return ts.Sub(now)
			}
		}
	}
	return 0
}
