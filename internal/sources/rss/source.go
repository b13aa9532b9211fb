// Package rss turns a list of RSS/Atom feeds into discourse headlines.
package rss

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"narrativeradar/internal/fetch"
	"narrativeradar/internal/radar"
)

// DefaultPerFeed caps how many entries are read from each feed.
const DefaultPerFeed = 30

const untitled = "(untitled)"

// Feed names one RSS or Atom endpoint.
type Feed struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// Source implements radar.Source over a fixed feed list.
type Source struct {
	feeds    []Feed
	perFeed  int
	http     *fetch.Client
	sanitize *bluemonday.Policy
	logger   *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithPerFeed overrides the per-feed item cap.
func WithPerFeed(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.perFeed = n
		}
	}
}

// WithFetcher overrides the retrying HTTP client.
func WithFetcher(f *fetch.Client) Option {
	return func(s *Source) {
		if f != nil {
			s.http = f
		}
	}
}

// WithLogger sets the logger used for skipped feeds.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// New validates feeds and builds the source.
func New(feeds []Feed, opts ...Option) (*Source, error) {
	if len(feeds) == 0 {
		return nil, fmt.Errorf("rss: at least one feed is required")
	}
	cleaned := make([]Feed, 0, len(feeds))
	for i, f := range feeds {
		f.Name = strings.TrimSpace(f.Name)
		f.URL = strings.TrimSpace(f.URL)
		if f.URL == "" {
			return nil, fmt.Errorf("rss: feed %d has an empty url", i)
		}
		u, err := url.Parse(f.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("rss: feed %q has an invalid url %q", f.Name, f.URL)
		}
		if f.Name == "" {
			f.Name = u.Host
		}
		cleaned = append(cleaned, f)
	}

	s := &Source{
		feeds:    cleaned,
		perFeed:  DefaultPerFeed,
		sanitize: bluemonday.StrictPolicy(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.http == nil {
		s.http = fetch.New()
	}
	return s, nil
}

func (s *Source) Name() string { return "rss" }

// Feeds returns the configured feeds.
func (s *Source) Feeds() []Feed { return append([]Feed(nil), s.feeds...) }

// Fetch reads every feed concurrently and returns dated headlines inside [from, to),
// concatenated in feed order. A feed that cannot be fetched or parsed contributes nothing.
func (s *Source) Fetch(ctx context.Context, from, to time.Time) ([]radar.Headline, error) {
	window := radar.TimeWindow{From: from, To: to}
	perFeed := make([][]radar.Headline, len(s.feeds))

	var g errgroup.Group
	for i, f := range s.feeds {
		g.Go(func() error {
			items, err := s.FetchFeed(ctx, f)
			if err != nil {
				s.logger.WarnContext(ctx, "feed skipped", "feed", f.Name, "url", f.URL, "error", err)
				return nil
			}
			for _, it := range items {
				if window.Contains(it.PublishedAt) {
					perFeed[i] = append(perFeed[i], it)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []radar.Headline
	for _, items := range perFeed {
		out = append(out, items...)
	}
	return out, nil
}

// FetchFeed downloads and parses one feed, keeping at most the per-feed cap of entries.
// Entries without a usable date keep a zero PublishedAt.
func (s *Source) FetchFeed(ctx context.Context, f Feed) ([]radar.Headline, error) {
	h := http.Header{}
	h.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	resp, err := s.http.Get(ctx, f.URL, h)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("rss: parse %s: %w", f.Name, err)
	}

	entries := feed.Items
	if len(entries) > s.perFeed {
		entries = entries[:s.perFeed]
	}
	out := make([]radar.Headline, 0, len(entries))
	for _, e := range entries {
		var published time.Time
		switch {
		case e.PublishedParsed != nil:
			published = e.PublishedParsed.UTC()
		case e.UpdatedParsed != nil:
			published = e.UpdatedParsed.UTC()
		}
		title := s.CleanTitle(e.Title)
		out = append(out, radar.Headline{
			ID:          headlineID(f.Name, e.Link, title),
			Title:       title,
			Link:        strings.TrimSpace(e.Link),
			Source:      f.Name,
			PublishedAt: published,
		})
	}
	return out, nil
}

// CleanTitle strips markup and entities and collapses whitespace.
func (s *Source) CleanTitle(raw string) string {
	t := html.UnescapeString(s.sanitize.Sanitize(raw))
	t = strings.Join(strings.Fields(t), " ")
	if t == "" {
		return untitled
	}
	return t
}

func headlineID(source, link, title string) string {
	key := link
	if key == "" {
		key = source + "\x00" + title
	}
	return fmt.Sprintf("%x", sha256.Sum256([]byte(key)))[:16]
}

// Describe reports the feeds and cap.
func (s *Source) Describe() map[string]any {
	names := make([]string, 0, len(s.feeds))
	for _, f := range s.feeds {
		names = append(names, f.Name+" <"+f.URL+">")
	}
	return map[string]any{
		"feeds":    names,
		"per_feed": s.perFeed,
		"method":   "RSS/Atom entries dated inside the window, matched to topics by keyword",
	}
}
