package github

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
	"narrativeradar/internal/radar"
)

const (
	defaultBaseURL        = "https://api.github.com"
	defaultPerPage        = 100
	defaultMaxCommitPages = 3
)

// Client is a thin wrapper around the GitHub REST and search APIs.
type Client struct {
	baseURL        string
	token          string
	http           *fetch.Client
	perPage        int
	maxCommitPages int
}

// NewClient constructs a client with sane defaults.
func NewClient(opts ...func(*Client)) *Client {
	c := &Client{
		baseURL:        defaultBaseURL,
		perPage:        defaultPerPage,
		maxCommitPages: defaultMaxCommitPages,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = fetch.New(fetch.WithLimiter(rate.NewLimiter(rate.Every(200*time.Millisecond), 4)))
	}
	return c
}

// WithBaseURL overrides the default API base URL (useful for tests).
func WithBaseURL(u string) func(*Client) {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithToken authenticates requests, raising rate limits.
func WithToken(token string) func(*Client) {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithFetcher overrides the retrying HTTP client.
func WithFetcher(f *fetch.Client) func(*Client) {
	return func(c *Client) { c.http = f }
}

// WithPaging sets the page size and the commit page cap.
func WithPaging(perPage, maxCommitPages int) func(*Client) {
	return func(c *Client) {
		if perPage > 0 {
			c.perPage = perPage
		}
		if maxCommitPages > 0 {
			c.maxCommitPages = maxCommitPages
		}
	}
}

// TokenUsed reports whether requests are authenticated.
func (c *Client) TokenUsed() bool { return c.token != "" }

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/vnd.github+json")
	h.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

type repoPayload struct {
	FullName   string    `json:"full_name"`
	HTMLURL    string    `json:"html_url"`
	Stars      *int      `json:"stargazers_count"`
	Forks      int       `json:"forks_count"`
	OpenIssues int       `json:"open_issues_count"`
	PushedAt   time.Time `json:"pushed_at"`
}

func (p *repoPayload) Validate() error {
	if p.FullName == "" || p.Stars == nil {
		return errors.New("repository payload missing full_name or stargazers_count")
	}
	return nil
}

// Repo fetches the snapshot of owner/repo.
func (c *Client) Repo(ctx context.Context, fullName string) (radar.RepoSnapshot, error) {
	var p repoPayload
	if err := c.http.GetJSON(ctx, c.baseURL+"/repos/"+fullName, c.header(), &p); err != nil {
		return radar.RepoSnapshot{}, fmt.Errorf("github: repo %s: %w", fullName, err)
	}
	if p.Stars == nil {
		return radar.RepoSnapshot{}, fmt.Errorf("github: repo %s: payload lacks stargazers_count", fullName)
	}
	link := p.HTMLURL
	if link == "" {
		link = "https://github.com/" + p.FullName
	}
	return radar.RepoSnapshot{
		FullName:   p.FullName,
		URL:        link,
		Stars:      *p.Stars,
		Forks:      p.Forks,
		OpenIssues: p.OpenIssues,
		PushedAt:   p.PushedAt,
	}, nil
}

type commitEntry struct {
	SHA    string `json:"sha"`
	Commit struct {
		Author struct {
			Date time.Time `json:"date"`
		} `json:"author"`
		Committer struct {
			Date time.Time `json:"date"`
		} `json:"committer"`
	} `json:"commit"`
}

type commitPage []commitEntry

func (p *commitPage) Validate() error {
	for i, e := range *p {
		if e.SHA == "" {
			return fmt.Errorf("commit %d has no sha", i)
		}
	}
	return nil
}

func (e commitEntry) date() time.Time {
	if !e.Commit.Committer.Date.IsZero() {
		return e.Commit.Committer.Date
	}
	return e.Commit.Author.Date
}

// CommitDates lists commit timestamps in [since, until), newest first. Paging stops at
// the page cap, on a short page, or once a page reaches past since. truncated reports
// that the cap was hit while more pages remained.
func (c *Client) CommitDates(ctx context.Context, fullName string, since, until time.Time) (dates []time.Time, truncated bool, err error) {
	window := radar.TimeWindow{From: since, To: until}
	for page := 1; page <= c.maxCommitPages; page++ {
		q := url.Values{}
		q.Set("since", since.UTC().Format(time.RFC3339))
		q.Set("until", until.UTC().Format(time.RFC3339))
		q.Set("per_page", fmt.Sprint(c.perPage))
		q.Set("page", fmt.Sprint(page))

		var entries commitPage
		if err := c.http.GetJSON(ctx, c.baseURL+"/repos/"+fullName+"/commits?"+q.Encode(), c.header(), &entries); err != nil {
			return dates, false, fmt.Errorf("github: commits %s page %d: %w", fullName, page, err)
		}

		reachedSince := false
		for _, e := range entries {
			d := e.date()
			if d.Before(since) {
				reachedSince = true
				continue
			}
			if window.Contains(d) {
				dates = append(dates, d)
			}
		}
		if len(entries) < c.perPage || reachedSince {
			return dates, false, nil
		}
		if page == c.maxCommitPages {
			truncated = true
		}
	}
	return dates, truncated, nil
}

type searchPayload struct {
	TotalCount *int `json:"total_count"`
}

func (p *searchPayload) Validate() error {
	if p.TotalCount == nil {
		return errors.New("search payload missing total_count")
	}
	return nil
}

// SearchCount returns total_count for an issue search query.
func (c *Client) SearchCount(ctx context.Context, query string) (int, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("per_page", "1")
	var p searchPayload
	if err := c.http.GetJSON(ctx, c.baseURL+"/search/issues?"+q.Encode(), c.header(), &p); err != nil {
		return 0, fmt.Errorf("github: search %q: %w", query, err)
	}
	return *p.TotalCount, nil
}

// IssuesOpened counts issues created in w.
func (c *Client) IssuesOpened(ctx context.Context, fullName string, w radar.TimeWindow) (int, error) {
	return c.SearchCount(ctx, fmt.Sprintf("repo:%s is:issue %s", fullName, rangeQualifier("created", w)))
}

// PRsMerged counts pull requests merged in w.
func (c *Client) PRsMerged(ctx context.Context, fullName string, w radar.TimeWindow) (int, error) {
	return c.SearchCount(ctx, fmt.Sprintf("repo:%s is:pr is:merged %s", fullName, rangeQualifier("merged", w)))
}

func rangeQualifier(field string, w radar.TimeWindow) string {
	return fmt.Sprintf("%s:>=%s %s:<%s", field, w.From.UTC().Format(time.RFC3339), field, w.To.UTC().Format(time.RFC3339))
}
