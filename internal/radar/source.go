package radar

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Source defines a pluggable discourse provider returning headlines within [from, to).
type Source interface {
	Name() string
	Fetch(ctx context.Context, from, to time.Time) ([]Headline, error)
}

// DevActivitySource reports repository snapshots and per-window developer counts.
type DevActivitySource interface {
	Name() string
	FetchDevActivity(ctx context.Context, w Windows) (DevActivity, error)
}

// LedgerSource reports per-window transaction activity for one on-chain address.
type LedgerSource interface {
	Name() string
	FetchLedgerActivity(ctx context.Context, w Windows) (LedgerActivity, error)
}

// SocialSource reports per-window post counts for a curated account list.
type SocialSource interface {
	Name() string
	FetchSocialActivity(ctx context.Context, w Windows) (SocialActivity, error)
}

// Describer is implemented by sources that can explain how they collect data.
type Describer interface {
	Describe() map[string]any
}

// Adapters return an error only for malformed configuration. Network and rate-limit
// failures are folded into the returned value.

// SourceRegistry keeps track of discourse sources.
type SourceRegistry struct {
	sources []Source
}

// NewSourceRegistry builds a registry with the provided sources.
func NewSourceRegistry(sources ...Source) (*SourceRegistry, error) {
	if len(sources) == 0 {
		return nil, errors.New("radar: at least one source is required")
	}
	return &SourceRegistry{sources: sources}, nil
}

// Add registers a new source instance.
func (r *SourceRegistry) Add(source Source) {
	r.sources = append(r.sources, source)
}

// Name identifies the registry in cache keys and methodology.
func (r *SourceRegistry) Name() string { return "discourse" }

// Names lists the registered sources.
func (r *SourceRegistry) Names() []string {
	out := make([]string, 0, len(r.sources))
	for _, src := range r.sources {
		out = append(out, src.Name())
	}
	return out
}

// FetchAll aggregates headlines from each registered source in registration order.
func (r *SourceRegistry) FetchAll(ctx context.Context, from, to time.Time) ([]Headline, error) {
	var results []Headline
	for _, src := range r.sources {
		items, err := src.Fetch(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("fetch from %s: %w", src.Name(), err)
		}
		results = append(results, items...)
	}
	return results, nil
}

// Describe merges the provenance of registered sources.
func (r *SourceRegistry) Describe() map[string]any {
	out := map[string]any{"sources": r.Names()}
	for _, src := range r.sources {
		if d, ok := src.(Describer); ok {
			out[src.Name()] = d.Describe()
		}
	}
	return out
}

// Sources groups the adapters the pipeline fans out to. Nil members are reported as not configured.
type Sources struct {
	Dev       DevActivitySource
	Ledger    LedgerSource
	Social    SocialSource
	Discourse *SourceRegistry
}

func (s Sources) empty() bool {
	return s.Dev == nil && s.Ledger == nil && s.Social == nil && s.Discourse == nil
}
