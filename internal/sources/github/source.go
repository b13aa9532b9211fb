// Package github reports repository snapshots and per-window developer activity
// for a configured list of repositories.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"narrativeradar/internal/radar"
)

const defaultConcurrency = 4

var repoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// Source implements radar.DevActivitySource over a Client.
type Source struct {
	client      *Client
	repos       []string
	concurrency int
	logger      *slog.Logger
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithConcurrency bounds how many repositories are queried at once.
func WithConcurrency(n int) SourceOption {
	return func(s *Source) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger used for degraded repositories.
func WithLogger(l *slog.Logger) SourceOption {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSource validates repos and builds the adapter.
func NewSource(client *Client, repos []string, opts ...SourceOption) (*Source, error) {
	if client == nil {
		return nil, fmt.Errorf("github: client is required")
	}
	cleaned, err := ValidateRepos(repos)
	if err != nil {
		return nil, err
	}
	s := &Source{client: client, repos: cleaned, concurrency: defaultConcurrency, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ValidateRepos trims and checks every entry has the owner/repo shape.
func ValidateRepos(repos []string) ([]string, error) {
	if len(repos) == 0 {
		return nil, fmt.Errorf("github: at least one repository is required")
	}
	out := make([]string, 0, len(repos))
	seen := make(map[string]struct{}, len(repos))
	for _, r := range repos {
		r = strings.TrimSpace(r)
		if !repoPattern.MatchString(r) {
			return nil, fmt.Errorf("github: invalid repository %q, expected owner/repo", r)
		}
		key := strings.ToLower(r)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

func (s *Source) Name() string { return "github" }

// Repos lists the tracked repositories.
func (s *Source) Repos() []string { return append([]string(nil), s.repos...) }

// FetchDevActivity queries every repository. Failed or truncated calls are recorded in
// Degraded and mark the affected metric incomplete, so it is not compared.
func (s *Source) FetchDevActivity(ctx context.Context, w radar.Windows) (radar.DevActivity, error) {
	if err := w.Validate(); err != nil {
		return radar.DevActivity{}, err
	}

	type result struct {
		snapshot *radar.RepoSnapshot
		activity radar.RepoActivity
		notes    []string
	}
	results := make([]result, len(s.repos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, repo := range s.repos {
		g.Go(func() error {
			results[i] = result{activity: radar.RepoActivity{FullName: repo}}
			r := &results[i]
			fail := func(what string, err error) {
				s.logger.WarnContext(gctx, "github degraded", "repo", repo, "call", what, "error", err)
				r.notes = append(r.notes, fmt.Sprintf("%s: %s failed: %v", repo, what, err))
			}

			if snap, err := s.client.Repo(gctx, repo); err != nil {
				fail("repo", err)
			} else {
				r.snapshot = &snap
			}

			dates, truncated, err := s.client.CommitDates(gctx, repo, w.Previous.From, w.Current.To)
			if err != nil {
				fail("commits", err)
				r.activity.Commits.Incomplete = true
			}
			for _, d := range dates {
				switch {
				case w.Current.Contains(d):
					r.activity.Commits.Current++
				case w.Previous.Contains(d):
					r.activity.Commits.Previous++
				}
			}
			if truncated {
				r.activity.Commits.Incomplete = true
				r.notes = append(r.notes, fmt.Sprintf("%s: commit history truncated at %d pages before the previous window was covered", repo, s.client.maxCommitPages))
			}

			counts := []struct {
				what   string
				win    radar.TimeWindow
				count  func(context.Context, string, radar.TimeWindow) (int, error)
				metric *radar.WindowCount
				dst    *int
			}{
				{"issues current", w.Current, s.client.IssuesOpened, &r.activity.Issues, &r.activity.Issues.Current},
				{"issues previous", w.Previous, s.client.IssuesOpened, &r.activity.Issues, &r.activity.Issues.Previous},
				{"merged prs current", w.Current, s.client.PRsMerged, &r.activity.MergedPRs, &r.activity.MergedPRs.Current},
				{"merged prs previous", w.Previous, s.client.PRsMerged, &r.activity.MergedPRs, &r.activity.MergedPRs.Previous},
			}
			for _, c := range counts {
				n, err := c.count(gctx, repo, c.win)
				if err != nil {
					fail(c.what, err)
					c.metric.Incomplete = true
					continue
				}
				*c.dst = n
			}
			return nil
		})
	}
	_ = g.Wait()

	out := radar.DevActivity{TokenUsed: s.client.TokenUsed()}
	for _, r := range results {
		if r.snapshot != nil {
			out.Repos = append(out.Repos, *r.snapshot)
		}
		out.Activity = append(out.Activity, r.activity)
		out.Degraded = append(out.Degraded, r.notes...)
	}
	return out, nil
}

// Describe reports how developer activity is collected.
func (s *Source) Describe() map[string]any {
	return map[string]any{
		"repos":            s.Repos(),
		"token_used":       s.client.TokenUsed(),
		"commits":          "GET /repos/{repo}/commits paged newest first, bucketed into both windows",
		"issues":           "search total_count for is:issue created in each window",
		"prs":              "search total_count for is:pr is:merged merged in each window",
		"max_commit_pages": s.client.maxCommitPages,
	}
}
