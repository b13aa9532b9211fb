package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"narrativeradar/internal/fetch"
)

func noSleepFetcher() *fetch.Client {
	p := fetch.DefaultPolicy()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return fetch.New(fetch.WithPolicy(p))
}

func rssBody(items ...string) string {
	body := `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>`
	for _, it := range items {
		body += it
	}
	return body + `</channel></rss>`
}

func rssItem(title, link string, at time.Time) string {
	return fmt.Sprintf(`<item><title>%s</title><link>%s</link><pubDate>%s</pubDate></item>`,
		title, link, at.Format(time.RFC1123Z))
}

func TestFetchSkipsUnreachableFeed(t *testing.T) {
	now := time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)
	from := now.Add(-14 * 24 * time.Hour)

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = fmt.Fprint(w, rssBody(
			rssItem("&lt;b&gt;Tokenized&lt;/b&gt; treasuries &amp;amp; RWA", "https://example.com/a", now.Add(-time.Hour)),
			rssItem("Firedancer testnet", "https://example.com/b", now.Add(-48*time.Hour)),
			rssItem("Old news", "https://example.com/c", from.Add(-time.Hour)),
		))
	}))
	defer good.Close()

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	src, err := New([]Feed{
		{Name: "down", URL: deadURL},
		{Name: "blog", URL: good.URL},
	}, WithFetcher(noSleepFetcher()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	items, err := src.Fetch(context.Background(), from, now)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 in-window items from the healthy feed, got %d: %+v", len(items), items)
	}
	if items[0].Source != "blog" || items[0].Title != "Tokenized treasuries & RWA" {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[0].ID == "" || items[0].ID == items[1].ID {
		t.Fatalf("expected distinct ids, got %q %q", items[0].ID, items[1].ID)
	}
}

func TestFetchFeedAppliesCap(t *testing.T) {
	now := time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var items []string
		for i := 0; i < 5; i++ {
			items = append(items, rssItem(fmt.Sprintf("item %d", i), fmt.Sprintf("https://example.com/%d", i), now))
		}
		_, _ = fmt.Fprint(w, rssBody(items...))
	}))
	defer srv.Close()

	src, err := New([]Feed{{Name: "blog", URL: srv.URL}}, WithPerFeed(2), WithFetcher(noSleepFetcher()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	items, err := src.FetchFeed(context.Background(), src.Feeds()[0])
	if err != nil {
		t.Fatalf("fetch feed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected cap of 2, got %d", len(items))
	}
}

func TestNewRejectsEmptyURL(t *testing.T) {
	if _, err := New([]Feed{{Name: "x", URL: " "}}); err == nil {
		t.Fatalf("expected error for empty feed url")
	}
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for no feeds")
	}
}

func TestCleanTitle(t *testing.T) {
	src, err := New([]Feed{{URL: "https://example.com/feed"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := src.CleanTitle("  <i>DePIN</i>\n  rollout "); got != "DePIN rollout" {
		t.Fatalf("unexpected title %q", got)
	}
	if got := src.CleanTitle(""); got != "(untitled)" {
		t.Fatalf("expected placeholder, got %q", got)
	}
	if src.Feeds()[0].Name != "example.com" {
		t.Fatalf("expected host as default name, got %q", src.Feeds()[0].Name)
	}
}
