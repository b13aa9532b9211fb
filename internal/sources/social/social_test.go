package social

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"narrativeradar/internal/fetch"
	"narrativeradar/internal/radar"
)

func noSleepFetcher() *fetch.Client {
	p := fetch.DefaultPolicy()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return fetch.New(fetch.WithPolicy(p))
}

func posts(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{"id": strings.Repeat("1", i+1), "text": "gm"}
	}
	return out
}

func TestFetchSocialActivityCountsWindows(t *testing.T) {
	w := radar.MakeWindows(time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC), 0)
	curStart := w.Current.From.Format(time.RFC3339)

	mux := http.NewServeMux()
	mux.HandleFunc("/users/by", func(rw http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("usernames"); got != "solana,toly" {
			t.Errorf("unexpected usernames %q", got)
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"data": []map[string]any{
			{"id": "1", "username": "solana"},
			{"id": "2", "username": "toly"},
		}})
	})
	mux.HandleFunc("/users/1/tweets", func(rw http.ResponseWriter, r *http.Request) {
		n := 2
		if r.URL.Query().Get("start_time") == curStart {
			n = 4
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"data": posts(n)})
	})
	mux.HandleFunc("/users/2/tweets", func(rw http.ResponseWriter, r *http.Request) {
		n := 3
		if r.URL.Query().Get("start_time") == curStart {
			n = 0
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"data": posts(n)})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient("token", WithBaseURL(srv.URL), WithFetcher(noSleepFetcher()))
	src := NewSource(client, []string{"@Solana", "solana", "toly"}, nil)

	got, err := src.FetchSocialActivity(context.Background(), w)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !got.OK || got.PostsCurrent != 4 || got.PostsPrevious != 5 || got.FailedLookups != 0 {
		t.Fatalf("unexpected totals %+v", got)
	}
	if !got.Pct.IsFinite() || got.Pct.Rounded() != -20 {
		t.Fatalf("unexpected pct %v", got.Pct)
	}
	if len(got.PerUserCurrent) != 2 || got.PerUserCurrent[0].Username != "solana" || got.PerUserCurrent[1].Count != 0 {
		t.Fatalf("unexpected per-user %+v", got.PerUserCurrent)
	}
}

func TestFailedPreviousLookupIsNotScored(t *testing.T) {
	w := radar.MakeWindows(time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC), 0)
	prevStart := w.Previous.From.Format(time.RFC3339)

	newServer := func(failing map[string]bool) *httptest.Server {
		mux := http.NewServeMux()
		mux.HandleFunc("/users/by", func(rw http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(rw).Encode(map[string]any{"data": []map[string]any{
				{"id": "1", "username": "solana"},
				{"id": "2", "username": "toly"},
			}})
		})
		for _, id := range []string{"1", "2"} {
			mux.HandleFunc("/users/"+id+"/tweets", func(rw http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("start_time") == prevStart && failing[id] {
					http.Error(rw, `{"title":"Too Many Requests"}`, http.StatusTooManyRequests)
					return
				}
				_ = json.NewEncoder(rw).Encode(map[string]any{"data": posts(3)})
			})
		}
		return httptest.NewServer(mux)
	}

	t.Run("one account", func(t *testing.T) {
		srv := newServer(map[string]bool{"2": true})
		defer srv.Close()
		src := NewSource(NewClient("token", WithBaseURL(srv.URL), WithFetcher(noSleepFetcher())), []string{"solana", "toly"}, nil)
		got, err := src.FetchSocialActivity(context.Background(), w)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if !got.OK || got.FailedLookups != 1 || got.PostsPrevious != 3 {
			t.Fatalf("unexpected result %+v", got)
		}
		if got.Pct.HasData() {
			t.Fatalf("a partial previous window must not produce a change, got %s", got.Pct)
		}
	})

	t.Run("every account", func(t *testing.T) {
		srv := newServer(map[string]bool{"1": true, "2": true})
		defer srv.Close()
		src := NewSource(NewClient("token", WithBaseURL(srv.URL), WithFetcher(noSleepFetcher())), []string{"solana", "toly"}, nil)
		got, err := src.FetchSocialActivity(context.Background(), w)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if got.OK || got.Error == "" || got.Pct.HasData() {
			t.Fatalf("expected unavailable result, got %+v", got)
		}
	})
}

func TestFetchSocialActivityUnavailable(t *testing.T) {
	w := radar.MakeWindows(time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC), 0)

	missing := NewSource(NewClient(""), []string{"solana"}, nil)
	got, _ := missing.FetchSocialActivity(context.Background(), w)
	if got.OK || got.Error != "X_BEARER_TOKEN missing" || got.Pct.HasData() {
		t.Fatalf("expected missing token result, got %+v", got)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, `{"title":"Unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()
	rejected := NewSource(NewClient("bad", WithBaseURL(srv.URL), WithFetcher(noSleepFetcher())), []string{"solana"}, nil)
	got, err := rejected.FetchSocialActivity(context.Background(), w)
	if err != nil {
		t.Fatalf("lookup failure must not be returned as an error: %v", err)
	}
	if got.OK || !strings.Contains(got.Error, "401") || got.PostsCurrent != 0 || len(got.PerUserCurrent) != 0 {
		t.Fatalf("expected unavailable result, got %+v", got)
	}

	empty := NewSource(NewClient("token"), []string{" @ "}, nil)
	if got, _ := empty.FetchSocialActivity(context.Background(), w); got.Error != "No usernames provided" {
		t.Fatalf("expected no usernames error, got %+v", got)
	}
}

func TestNormalizeUsernamesCapsAt20(t *testing.T) {
	var in []string
	for i := 0; i < 30; i++ {
		in = append(in, "@user"+strings.Repeat("x", i))
	}
	if got := NormalizeUsernames(in); len(got) != 20 || got[0] != "userx"[:4] {
		t.Fatalf("unexpected normalization %v", got)
	}
}
