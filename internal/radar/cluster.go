package radar

import "strings"

// TopicCluster is a topic together with the headlines that mention it.
type TopicCluster struct {
	Topic Topic
	Hits  []Headline
}

// ClusterByTopics assigns headlines to every topic whose keyword occurs in the title.
// Matching is case-insensitive substring containment and an item may land in several
// topics. Topics without hits are dropped; the remaining ones keep the input topic order.
func ClusterByTopics(items []Headline, topics []Topic) []TopicCluster {
	if len(items) == 0 || len(topics) == 0 {
		return nil
	}

	keywords := make([][]string, len(topics))
	for i, t := range topics {
		keywords[i] = normalizeKeywords(t.Keywords)
	}

	hits := make([][]Headline, len(topics))
	for _, item := range items {
		text := strings.ToLower(item.Title)
		if strings.TrimSpace(text) == "" {
			continue
		}
		for i := range topics {
			if containsAny(text, keywords[i]) {
				hits[i] = append(hits[i], item)
			}
		}
	}

	var clusters []TopicCluster
	for i, t := range topics {
		if len(hits[i]) == 0 {
			continue
		}
		clusters = append(clusters, TopicCluster{Topic: t, Hits: hits[i]})
	}
	return clusters
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// Partition splits hits into the current and previous windows; undated hits belong to neither.
func (c TopicCluster) Partition(w Windows) (current, previous []Headline) {
	for _, h := range c.Hits {
		switch {
		case w.Current.Contains(h.PublishedAt):
			current = append(current, h)
		case w.Previous.Contains(h.PublishedAt):
			previous = append(previous, h)
		}
	}
	return current, previous
}

// CountInWindows counts headlines per window.
func CountInWindows(items []Headline, w Windows) WindowCount {
	var c WindowCount
	for _, h := range items {
		cur, prev := w.Bucket(h.PublishedAt)
		if cur {
			c.Current++
		}
		if prev {
			c.Previous++
		}
	}
	return c
}
