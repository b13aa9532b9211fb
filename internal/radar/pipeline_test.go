package radar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

type fakeDev struct {
	out   DevActivity
	err   error
	calls int
	mu    sync.Mutex
}

func (f *fakeDev) Name() string { return "fake-github" }
func (f *fakeDev) FetchDevActivity(context.Context, Windows) (DevActivity, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.out, f.err
}

type fakeLedger struct{ out LedgerActivity }

func (f fakeLedger) Name() string { return "fake-ledger" }
func (f fakeLedger) FetchLedgerActivity(context.Context, Windows) (LedgerActivity, error) {
	return f.out, nil
}

type fakeSocial struct{ out SocialActivity }

func (f fakeSocial) Name() string { return "fake-social" }
func (f fakeSocial) FetchSocialActivity(context.Context, Windows) (SocialActivity, error) {
	return f.out, nil
}

type fakeFeed struct{ items []Headline }

func (f fakeFeed) Name() string { return "fake-feed" }
func (f fakeFeed) Fetch(_ context.Context, from, to time.Time) ([]Headline, error) {
	var out []Headline
	w := TimeWindow{From: from, To: to}
	for _, h := range f.items {
		if w.Contains(h.PublishedAt) {
			out = append(out, h)
		}
	}
	return out, nil
}

func newTestPipeline(t *testing.T, dev *fakeDev, social SocialActivity, headlines []Headline) *Pipeline {
	t.Helper()
	registry, err := NewSourceRegistry(fakeFeed{items: headlines})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	p, err := NewPipeline(Sources{
		Dev:       dev,
		Ledger:    fakeLedger{out: LedgerActivity{OK: true, Address: "Loader", Transactions: WindowCount{Current: 30, Previous: 20}}},
		Social:    fakeSocial{out: social},
		Discourse: registry,
	}, DefaultTopics(), DefaultScorer())
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	p.Now = func() time.Time { return testNow }
	return p
}

func findNarrative(run *RunRecord, id string) *Narrative {
	for i := range run.Narratives {
		if run.Narratives[i].ID == id {
			return &run.Narratives[i]
		}
	}
	return nil
}

func TestPipelineEmergedCommitsScoreDevActivity(t *testing.T) {
	dev := &fakeDev{out: DevActivity{Activity: []RepoActivity{{FullName: "a/b", Commits: WindowCount{Current: 5, Previous: 0}}}}}
	p := newTestPipeline(t, dev, Unavailable("X_BEARER_TOKEN missing"), nil)

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	n := findNarrative(run, DevActivityID)
	if n == nil {
		t.Fatalf("dev narrative missing")
	}

	var commits *Evidence
	for i := range n.Evidence {
		if n.Evidence[i].Kind == EvidenceMetric && strings.HasPrefix(n.Evidence[i].Label, "Commits") {
			commits = &n.Evidence[i]
		}
	}
	if commits == nil || commits.PctChange == nil || !commits.PctChange.IsEmerged() {
		t.Fatalf("commit evidence should carry the emerged marker, got %+v", commits)
	}

	// onchain +50% -> 10, github mean(emerged 15, issues 0, prs 0) -> 5, rss 0, social none, bonus 1
	if n.Score != 16 {
		t.Fatalf("expected score 16, got %v", n.Score)
	}
}

func TestPipelineCompletesWithoutSocialCredential(t *testing.T) {
	dev := &fakeDev{}
	p := newTestPipeline(t, dev, Unavailable("X_BEARER_TOKEN missing"), nil)

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(run.Narratives) != 3 {
		t.Fatalf("expected the fixed narratives, got %d", len(run.Narratives))
	}
	social, ok := run.Sources["social"].(map[string]any)
	if !ok || social["ok"] != false || social["error"] != "X_BEARER_TOKEN missing" {
		t.Fatalf("social methodology should flag the missing credential, got %+v", run.Sources["social"])
	}
	for _, n := range run.Narratives {
		if n.Score <= 0 {
			t.Fatalf("%s should still be scored from remaining signals", n.ID)
		}
	}
}

func TestPipelineSuppressesTopicsWithoutCurrentHits(t *testing.T) {
	headlines := []Headline{
		{Title: "Tokenized gold is back", Source: "f", PublishedAt: testNow.Add(-2 * time.Hour)},
		{Title: "AMM liquidity report", Source: "f", PublishedAt: testNow.Add(-20 * 24 * time.Hour)},
	}
	p := newTestPipeline(t, &fakeDev{}, Unavailable("off"), headlines)

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if findNarrative(run, "rwa-tokenization") == nil {
		t.Fatalf("topic with current hits should become a narrative")
	}
	if findNarrative(run, "defi-primitives") != nil {
		t.Fatalf("topic with only previous-window hits must be suppressed")
	}
	if run.Narratives[0].Kind != NarrativeFixed || run.Narratives[3].Kind != NarrativeClustered {
		t.Fatalf("fixed narratives must come before clustered ones")
	}
}

func TestPipelineCapsNarratives(t *testing.T) {
	var headlines []Headline
	for i, title := range []string{"rwa", "usdc", "mev", "anchor", "amm"} {
		headlines = append(headlines, Headline{Title: title, PublishedAt: testNow.Add(-time.Duration(i+1) * time.Hour)})
	}
	p := newTestPipeline(t, &fakeDev{}, Unavailable("off"), headlines)
	p.MaxNarratives = 5

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(run.Narratives) != 5 {
		t.Fatalf("expected 5 narratives, got %d", len(run.Narratives))
	}
	if findNarrative(run, DiscourseID) == nil {
		t.Fatalf("fixed narratives must survive truncation")
	}
}

func TestPipelineIsDeterministicForSameInputs(t *testing.T) {
	headlines := []Headline{
		{Title: "Solana Pay merchant invoices", Link: "https://x/1", Source: "f", PublishedAt: testNow.Add(-time.Hour)},
		{Title: "Jito validator MEV", Link: "https://x/2", Source: "f", PublishedAt: testNow.Add(-16 * 24 * time.Hour)},
	}
	dev := &fakeDev{out: DevActivity{Activity: []RepoActivity{{FullName: "a/b", Commits: WindowCount{Current: 9, Previous: 3}, Issues: WindowCount{Current: 2, Previous: 4}}}}}
	social := SocialActivity{OK: true, PostsCurrent: 12, PostsPrevious: 10, Pct: PctChangeOf(10, 12), PerUserCurrent: []UserCount{{Username: "toly", Count: 12}}}
	p := newTestPipeline(t, dev, social, headlines)

	first, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("each run should get a fresh id")
	}
	if len(first.Narratives) != len(second.Narratives) {
		t.Fatalf("narrative counts differ")
	}
	for i := range first.Narratives {
		a, b := first.Narratives[i], second.Narratives[i]
		if a.ID != b.ID || a.Score != b.Score {
			t.Fatalf("narrative %d differs: %s/%v vs %s/%v", i, a.ID, a.Score, b.ID, b.Score)
		}
		for j := range a.Evidence {
			if a.Evidence[j].Label != b.Evidence[j].Label || a.Evidence[j].Notes != b.Evidence[j].Notes {
				t.Fatalf("evidence order differs in %s at %d", a.ID, j)
			}
		}
	}
}

func TestPipelinePropagatesConfigurationErrors(t *testing.T) {
	dev := &fakeDev{err: errors.New(`invalid repo "nope"`)}
	p := newTestPipeline(t, dev, Unavailable("off"), nil)
	if _, err := p.Run(context.Background()); err == nil {
		t.Fatalf("expected configuration error to escape")
	}

	if _, err := NewPipeline(Sources{}, DefaultTopics(), DefaultScorer()); err == nil {
		t.Fatalf("expected pipeline without sources to fail")
	}

	bad := DefaultTopics()
	bad[0].ID = DevActivityID
	if _, err := NewPipeline(Sources{Dev: &fakeDev{}}, bad, DefaultScorer()); err == nil {
		t.Fatalf("expected id collision to fail")
	}
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]any
}

func (c *mapCache) GetOrCompute(ctx context.Context, key string, _ time.Duration, produce func(context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	v, err := produce(ctx)
	if err != nil {
		return nil, err
	}
	c.data[key] = v
	return v, nil
}

func TestPipelineCacheIsTransparent(t *testing.T) {
	dev := &fakeDev{out: DevActivity{Activity: []RepoActivity{{FullName: "a/b", Commits: WindowCount{Current: 4, Previous: 2}}}}}
	p := newTestPipeline(t, dev, Unavailable("off"), nil)

	uncached, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	p.Cache = &mapCache{data: map[string]any{}}
	p.CacheTTL = 10 * time.Minute
	for i := 0; i < 2; i++ {
		run, err := p.Run(context.Background())
		if err != nil {
			t.Fatalf("cached run %d: %v", i, err)
		}
		if fmt.Sprint(run.Narratives[1].Score) != fmt.Sprint(uncached.Narratives[1].Score) {
			t.Fatalf("cache changed the analysis")
		}
	}
	if dev.calls != 2 {
		t.Fatalf("expected one uncached and one cached fetch, got %d calls", dev.calls)
	}
}

func TestRunRecordRanked(t *testing.T) {
	run := &RunRecord{Narratives: []Narrative{{ID: "a", Score: 1}, {ID: "b", Score: 5}, {ID: "c", Score: 1}}}
	ranked := run.Ranked()
	if ranked[0].ID != "b" || ranked[1].ID != "a" || ranked[2].ID != "c" {
		t.Fatalf("unexpected ranking %v", ranked)
	}
	if run.Narratives[0].ID != "a" {
		t.Fatalf("Ranked must not reorder the record")
	}
}
