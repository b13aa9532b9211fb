// Package social counts posts from a curated account list in each window.
package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"narrativeradar/internal/radar"
)

const (
	maxUsernames  = 20
	perUserMax    = 100
	topUsers      = 10
	lookupWorkers = 4
)

// Source implements radar.SocialSource.
type Source struct {
	client    *Client
	usernames []string
	logger    *slog.Logger
}

// NewSource normalizes usernames and builds the adapter.
func NewSource(client *Client, usernames []string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{client: client, usernames: NormalizeUsernames(usernames), logger: logger}
}

// NormalizeUsernames strips "@", lower-cases, dedupes and keeps the first 20.
func NormalizeUsernames(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, u := range in {
		u = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(u, "@", "")))
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
		if len(out) == maxUsernames {
			break
		}
	}
	return out
}

func (s *Source) Name() string { return "x" }

// FetchSocialActivity never returns an error: every failure becomes an unavailable result.
// A failed post lookup in either window leaves Pct without data.
func (s *Source) FetchSocialActivity(ctx context.Context, w radar.Windows) (radar.SocialActivity, error) {
	if s.client == nil || !s.client.HasToken() {
		return radar.Unavailable("X_BEARER_TOKEN missing"), nil
	}
	if len(s.usernames) == 0 {
		return radar.Unavailable("No usernames provided"), nil
	}

	users, err := s.client.LookupUsers(ctx, s.usernames)
	if err != nil {
		s.logger.WarnContext(ctx, "social lookup failed", "error", err)
		return radar.Unavailable(err.Error()), nil
	}
	if len(users) == 0 {
		return radar.Unavailable("X returned 0 users for the curated list"), nil
	}

	cur := make([]int, len(users))
	prev := make([]int, len(users))
	curOK := make([]bool, len(users))
	prevOK := make([]bool, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupWorkers)
	for i, u := range users {
		g.Go(func() error {
			cur[i], curOK[i] = s.count(gctx, u, w.Current)
			prev[i], prevOK[i] = s.count(gctx, u, w.Previous)
			return nil
		})
	}
	_ = g.Wait()

	out := radar.SocialActivity{OK: true}
	perUser := make([]radar.UserCount, len(users))
	var curFailed, prevFailed int
	for i, u := range users {
		out.PostsCurrent += cur[i]
		out.PostsPrevious += prev[i]
		perUser[i] = radar.UserCount{Username: u.Username, Count: cur[i]}
		if !curOK[i] {
			curFailed++
		}
		if !prevOK[i] {
			prevFailed++
		}
	}
	if curFailed == len(users) || prevFailed == len(users) {
		return radar.Unavailable(fmt.Sprintf("post lookups failed for every account (current %d, previous %d of %d)", curFailed, prevFailed, len(users))), nil
	}
	out.FailedLookups = curFailed + prevFailed
	sort.SliceStable(perUser, func(i, j int) bool { return perUser[i].Count > perUser[j].Count })
	if len(perUser) > topUsers {
		perUser = perUser[:topUsers]
	}
	out.PerUserCurrent = perUser
	out.Pct = radar.PctChangeOf(float64(out.PostsPrevious), float64(out.PostsCurrent))
	if out.FailedLookups > 0 {
		out.Pct = radar.NoData()
	}
	return out, nil
}

// count reports false when the lookup failed, so a zero is never mistaken for silence.
func (s *Source) count(ctx context.Context, u User, win radar.TimeWindow) (int, bool) {
	posts, err := s.client.UserPosts(ctx, u.ID, win.From, win.To)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.WarnContext(ctx, "social posts failed", "user", u.Username, "error", err)
		}
		return 0, false
	}
	return min(len(posts), perUserMax), true
}

// Describe reports the account list and API root.
func (s *Source) Describe() map[string]any {
	api := defaultBaseURL
	if s.client != nil {
		api = s.client.BaseURL()
	}
	return map[string]any{
		"api":       api,
		"usernames": s.usernames,
		"method":    "original posts per curated account, retweets and replies excluded",
	}
}
