package radar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Cache is an optional get-or-compute store shared across runs.
type Cache interface {
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, produce func(context.Context) (any, error)) (any, error)
}

// Pipeline orchestrates windows, adapter fan-out, scoring and narrative assembly.
type Pipeline struct {
	Sources       Sources
	Topics        []Topic
	Scorer        Scorer
	Cache         Cache
	CacheTTL      time.Duration
	WindowLength  time.Duration
	MaxNarratives int
	Now           func() time.Time
	Logger        *slog.Logger
}

// NewPipeline constructs a new Pipeline.
func NewPipeline(sources Sources, topics []Topic, scorer Scorer) (*Pipeline, error) {
	p := &Pipeline{
		Sources:       sources,
		Topics:        topics,
		Scorer:        scorer,
		WindowLength:  DefaultWindowLength,
		MaxNarratives: DefaultMaxNarratives,
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) validate() error {
	if p.Sources.empty() {
		return errors.New("pipeline requires sources")
	}
	if err := p.Scorer.Validate(); err != nil {
		return err
	}
	if err := ValidateTopics(p.Topics); err != nil {
		return err
	}
	for _, t := range p.Topics {
		for _, f := range FixedNarratives() {
			if t.ID == f.ID {
				return fmt.Errorf("radar: topic id %s collides with a fixed narrative", t.ID)
			}
		}
	}
	if p.MaxNarratives < 0 {
		return errors.New("radar: max narratives must not be negative")
	}
	return nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Run computes a fresh RunRecord ending at the current time.
func (p *Pipeline) Run(ctx context.Context) (*RunRecord, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return p.RunAt(ctx, now())
}

// RunAt computes a RunRecord whose current window ends at now. Only configuration
// errors are returned; unreachable sources show up as degraded evidence.
func (p *Pipeline) RunAt(ctx context.Context, now time.Time) (*RunRecord, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	windows := MakeWindows(now, p.WindowLength)
	if err := windows.Validate(); err != nil {
		return nil, err
	}

	var (
		dev       DevActivity
		ledger    LedgerActivity
		social    = Unavailable("social source not configured")
		headlines []Headline
	)

	g, gctx := errgroup.WithContext(ctx)
	if src := p.Sources.Dev; src != nil {
		g.Go(func() (err error) {
			dev, err = cached(gctx, p, "dev", src.Name(), windows, func(ctx context.Context) (DevActivity, error) {
				return src.FetchDevActivity(ctx, windows)
			})
			return err
		})
	} else {
		dev.Degraded = []string{"developer activity source not configured"}
	}
	if src := p.Sources.Ledger; src != nil {
		g.Go(func() (err error) {
			ledger, err = cached(gctx, p, "ledger", src.Name(), windows, func(ctx context.Context) (LedgerActivity, error) {
				return src.FetchLedgerActivity(ctx, windows)
			})
			return err
		})
	} else {
		ledger.Notes = []string{"on-chain source not configured"}
	}
	if src := p.Sources.Social; src != nil {
		g.Go(func() (err error) {
			social, err = cached(gctx, p, "social", src.Name(), windows, func(ctx context.Context) (SocialActivity, error) {
				return src.FetchSocialActivity(ctx, windows)
			})
			return err
		})
	}
	if reg := p.Sources.Discourse; reg != nil {
		span := windows.Span()
		g.Go(func() (err error) {
			headlines, err = cached(gctx, p, "discourse", reg.Name(), windows, func(ctx context.Context) ([]Headline, error) {
				return reg.FetchAll(ctx, span.From, span.To)
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("radar: collect signals: %w", err)
	}

	var feeds []string
	if p.Sources.Discourse != nil {
		feeds = p.Sources.Discourse.Names()
	}
	in := NewInputs(windows, dev, ledger, social, headlines, feeds)

	templates := FixedNarratives()
	clusters := ClusterByTopics(headlines, p.Topics)
	for _, c := range clusters {
		current, _ := c.Partition(windows)
		if len(current) == 0 {
			continue
		}
		templates = append(templates, TopicNarrative(c, windows))
	}

	narratives := make([]Narrative, 0, len(templates))
	for _, t := range templates {
		n, err := t.Build(in, p.Scorer)
		if err != nil {
			return nil, err
		}
		narratives = append(narratives, n)
	}
	if p.MaxNarratives > 0 && len(narratives) > p.MaxNarratives {
		narratives = narratives[:p.MaxNarratives]
	}

	run := &RunRecord{
		ID:          uuid.NewString(),
		GeneratedAt: now.UTC(),
		WindowFrom:  windows.Current.From,
		WindowTo:    windows.Current.To,
		Windows:     windows,
		Narratives:  narratives,
		Sources:     p.methodology(windows, in),
	}

	p.logger().InfoContext(ctx, "run completed",
		"run_id", run.ID,
		"narratives", len(narratives),
		"topic_clusters", len(clusters),
		"headlines", len(headlines),
		"social_ok", social.OK,
		"ledger_ok", ledger.OK,
		"github_degraded", len(dev.Degraded),
	)
	return run, nil
}

// cached routes a fetch through the cache when one is configured. Keys combine
// source kind, source name and the window span bucketed by the TTL.
func cached[T any](ctx context.Context, p *Pipeline, kind, name string, w Windows, produce func(context.Context) (T, error)) (T, error) {
	if p.Cache == nil || p.CacheTTL <= 0 {
		return produce(ctx)
	}
	bucket := w.Current.To.Truncate(p.CacheTTL)
	key := fmt.Sprintf("%s:%s:%s:%s", kind, name, w.Current.Duration(), bucket.Format(time.RFC3339))
	v, err := p.Cache.GetOrCompute(ctx, key, p.CacheTTL, func(ctx context.Context) (any, error) {
		return produce(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		p.logger().WarnContext(ctx, "cache entry has unexpected type", "key", key)
		return produce(ctx)
	}
	return out, nil
}

func (p *Pipeline) methodology(w Windows, in *Inputs) map[string]any {
	out := map[string]any{
		"windows": w,
		"scoring": p.Scorer.Formula(),
		"notes":   "Deltas compare the current window with the adjacent previous one. Emerged means the previous window was zero.",
	}
	if p.CacheTTL > 0 && p.Cache != nil {
		out["cache_ttl"] = p.CacheTTL.String()
	}

	github := describe(p.Sources.Dev)
	github["token_used"] = in.Dev.TokenUsed
	if len(in.Dev.Degraded) > 0 {
		github["degraded"] = in.Dev.Degraded
	}
	out["github"] = github

	onchain := describe(p.Sources.Ledger)
	onchain["ok"] = in.Ledger.OK
	onchain["hydrated"] = in.Ledger.Hydrated
	if len(in.Ledger.Notes) > 0 {
		onchain["notes"] = in.Ledger.Notes
	}
	out["onchain"] = onchain

	social := describe(p.Sources.Social)
	social["ok"] = in.Social.OK
	if !in.Social.OK {
		social["error"] = in.Social.Error
	}
	out["social"] = social

	var discourse map[string]any
	if p.Sources.Discourse != nil {
		discourse = p.Sources.Discourse.Describe()
	} else {
		discourse = map[string]any{"configured": false}
	}
	topicIDs := make([]string, 0, len(p.Topics))
	for _, t := range p.Topics {
		topicIDs = append(topicIDs, t.ID)
	}
	discourse["topics"] = topicIDs
	out["discourse"] = discourse
	return out
}

func describe(src any) map[string]any {
	if src == nil {
		return map[string]any{"configured": false}
	}
	out := map[string]any{}
	if d, ok := src.(Describer); ok {
		for k, v := range d.Describe() {
			out[k] = v
		}
	}
	return out
}
