package report

import (
	"strings"
	"testing"
	"time"

	"narrativeradar/internal/radar"
)

func TestWhyNowPrefersStrongestChanges(t *testing.T) {
	evidence := []radar.Evidence{
		radar.MetricEvidence("small", radar.ComputeDelta(100, 105), ""),
		radar.MetricEvidence("emerged", radar.ComputeDelta(0, 4), ""),
		radar.MetricEvidence("big", radar.ComputeDelta(10, 30), ""),
		radar.StatusEvidence("status", "disabled", ""),
		radar.MetricEvidence("flat", radar.ComputeDelta(3, 3), ""),
	}
	got := WhyNow(evidence)
	want := "big · Δ 20 · pct=200% | emerged · Δ 4 · pct=new | small · Δ 5 · pct=5%"
	if got != want {
		t.Fatalf("unexpected why-now\n got: %s\nwant: %s", got, want)
	}
	if WhyNow(nil) == "" {
		t.Fatalf("expected fallback text")
	}
}

func TestMarkdownRanksNarratives(t *testing.T) {
	now := time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)
	w := radar.MakeWindows(now, 0)
	run := &radar.RunRecord{
		ID:          "run-1",
		GeneratedAt: now,
		WindowFrom:  w.Current.From,
		WindowTo:    w.Current.To,
		Windows:     w,
		Narratives: []radar.Narrative{
			{Title: "Low", Score: 3, Summary: "low summary", Ideas: []string{"i1", "i2", "i3"},
				Evidence: []radar.Evidence{radar.CitationEvidence("Post", "title", "https://example.com/p")}},
			{Title: "High", Score: 40, Summary: "high summary", Ideas: []string{"a", "b", "c"},
				Evidence: []radar.Evidence{radar.MetricEvidence("tx", radar.ComputeDelta(10, 15), "Current=15")}},
		},
		Sources: map[string]any{"scoring": "formula"},
	}

	md, err := Markdown(run)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	high := strings.Index(md, "### High (score 40)")
	low := strings.Index(md, "### Low (score 3)")
	if high < 0 || low < 0 || high > low {
		t.Fatalf("narratives not ranked by score:\n%s", md)
	}
	for _, want := range []string{
		"1. **High** (score 40): tx · Δ 5 · pct=50%",
		"- tx (cur=15, delta=5, pct=50%) : Current=15",
		"- Post <https://example.com/p> : title",
		"current 14d compared with the previous 14d",
		`"scoring": "formula"`,
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("missing %q in report:\n%s", want, md)
		}
	}
}
