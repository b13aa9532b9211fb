package radar

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ingestCapacity bounds the operator buffer; the oldest headlines are evicted first.
const ingestCapacity = 5000

// IngestSource stores headlines submitted by operators through the API.
type IngestSource struct {
	name     string
	capacity int
	mu       sync.RWMutex
	items    []Headline
}

// NewIngestSource constructs an empty ingest source.
func NewIngestSource(name string) *IngestSource {
	if name == "" {
		name = "ingest"
	}
	return &IngestSource{name: name, capacity: ingestCapacity}
}

// Name returns the source identifier.
func (s *IngestSource) Name() string { return s.name }

// Add registers a headline, generating an id and timestamp when missing. A headline
// with a known id or link replaces the stored one.
func (s *IngestSource) Add(item Headline) Headline {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.PublishedAt.IsZero() {
		item.PublishedAt = time.Now().UTC()
	}
	if strings.TrimSpace(item.Source) == "" {
		item.Source = s.name
	}

	for idx, existing := range s.items {
		if existing.ID == item.ID || (item.Link != "" && existing.Link == item.Link) {
			item.ID = existing.ID
			s.items[idx] = item
			return item
		}
	}

	s.items = append(s.items, item)
	if len(s.items) > s.capacity {
		s.evictOldest(len(s.items) - s.capacity)
	}
	return item
}

func (s *IngestSource) evictOldest(n int) {
	sort.SliceStable(s.items, func(i, j int) bool {
		return s.items[i].PublishedAt.Before(s.items[j].PublishedAt)
	})
	s.items = append(s.items[:0], s.items[n:]...)
}

// Len returns the number of stored headlines.
func (s *IngestSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Fetch returns headlines within [from, to), newest first.
func (s *IngestSource) Fetch(ctx context.Context, from, to time.Time) ([]Headline, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	window := TimeWindow{From: from, To: to}
	out := make([]Headline, 0, len(s.items))
	for _, item := range s.items {
		if window.Contains(item.PublishedAt) {
			out = append(out, item)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})

	return out, nil
}

// Describe reports the ingest buffer size.
func (s *IngestSource) Describe() map[string]any {
	return map[string]any{"method": "operator POST /news", "buffered": s.Len()}
}

// PruneOlderThan drops headlines published before ts and returns how many were removed.
func (s *IngestSource) PruneOlderThan(ts time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return 0
	}

	filtered := s.items[:0]
	removed := 0
	for _, item := range s.items {
		if item.PublishedAt.Before(ts) {
			removed++
			continue
		}
		filtered = append(filtered, item)
	}
	s.items = filtered
	return removed
}
