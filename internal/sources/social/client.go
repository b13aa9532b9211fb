package social

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"narrativeradar/internal/fetch"
)

const defaultBaseURL = "https://api.twitter.com/2"

// User is a resolved account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

// Post is one authored post.
type Post struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type usersResponse struct {
	Data []User `json:"data"`
}

func (r *usersResponse) Validate() error {
	for i, u := range r.Data {
		if u.ID == "" || u.Username == "" {
			return fmt.Errorf("user %d is missing id or username", i)
		}
	}
	return nil
}

type postsResponse struct {
	Data []Post `json:"data"`
}

func (r *postsResponse) Validate() error {
	for i, p := range r.Data {
		if p.ID == "" {
			return fmt.Errorf("post %d has no id", i)
		}
	}
	return nil
}

// ErrMissingToken is returned when no bearer token is configured.
var ErrMissingToken = errors.New("social: missing bearer token")

// Client is a thin wrapper around the X v2 REST API.
type Client struct {
	baseURL string
	token   string
	http    *fetch.Client
}

// NewClient constructs a client with sane defaults.
func NewClient(token string, opts ...func(*Client)) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		token:   strings.TrimSpace(token),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = fetch.New(fetch.WithLimiter(rate.NewLimiter(rate.Every(250*time.Millisecond), 2)))
	}
	return c
}

// WithFetcher overrides the retrying HTTP client.
func WithFetcher(f *fetch.Client) func(*Client) {
	return func(c *Client) {
		c.http = f
	}
}

// WithBaseURL overrides the default API base URL (useful for tests).
func WithBaseURL(u string) func(*Client) {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// HasToken reports whether a bearer token is configured.
func (c *Client) HasToken() bool { return c.token != "" }

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	return h
}

// LookupUsers resolves usernames to ids in one request.
func (c *Client) LookupUsers(ctx context.Context, usernames []string) ([]User, error) {
	if c.token == "" {
		return nil, ErrMissingToken
	}
	q := url.Values{}
	q.Set("usernames", strings.Join(usernames, ","))
	var resp usersResponse
	if err := c.http.GetJSON(ctx, c.baseURL+"/users/by?"+q.Encode(), c.header(), &resp); err != nil {
		return nil, fmt.Errorf("social: lookup users: %w", err)
	}
	return resp.Data, nil
}

// UserPosts returns up to 100 original posts by userID created in [start, end).
func (c *Client) UserPosts(ctx context.Context, userID string, start, end time.Time) ([]Post, error) {
	if c.token == "" {
		return nil, ErrMissingToken
	}
	q := url.Values{}
	q.Set("max_results", "100")
	q.Set("exclude", "retweets,replies")
	q.Set("start_time", start.UTC().Format(time.RFC3339))
	q.Set("end_time", end.UTC().Format(time.RFC3339))
	var resp postsResponse
	if err := c.http.GetJSON(ctx, c.baseURL+"/users/"+url.PathEscape(userID)+"/tweets?"+q.Encode(), c.header(), &resp); err != nil {
		return nil, fmt.Errorf("social: posts for %s: %w", userID, err)
	}
	return resp.Data, nil
}
