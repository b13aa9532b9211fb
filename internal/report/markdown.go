// Package report renders a run record as a Markdown brief.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"narrativeradar/internal/radar"
)

const (
	maxSummaryItems  = 3
	maxEvidenceLines = 12
	whyNowItems      = 3
	emergedWeight    = 50
)

// Markdown renders run as a ranked report with evidence, ideas and methodology.
func Markdown(run *radar.RunRecord) (string, error) {
	if run == nil {
		return "", fmt.Errorf("report: nil run")
	}
	var b strings.Builder
	narratives := run.Ranked()

	b.WriteString("# Solana Narrative Radar: Fortnight Report\n\n")
	fmt.Fprintf(&b, "Window: **%s to %s**\n\n", run.WindowFrom.UTC().Format("2006-01-02 15:04 MST"), run.WindowTo.UTC().Format("2006-01-02 15:04 MST"))
	if run.ID != "" {
		fmt.Fprintf(&b, "Run `%s`, generated %s\n\n", run.ID, run.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z"))
	}

	b.WriteString("## Executive summary\n\n")
	if len(narratives) == 0 {
		b.WriteString("No narratives were produced for this window.\n")
	}
	for i, n := range narratives {
		if i == maxSummaryItems {
			break
		}
		fmt.Fprintf(&b, "%d. **%s** (score %s): %s\n", i+1, n.Title, formatNumber(n.Score), WhyNow(n.Evidence))
	}
	b.WriteString("\n---\n## Detected narratives (ranked)\n\n")

	for _, n := range narratives {
		fmt.Fprintf(&b, "### %s (score %s)\n\n", n.Title, formatNumber(n.Score))
		if n.Summary != "" {
			b.WriteString(n.Summary + "\n\n")
		}
		b.WriteString("**Why now**\n")
		fmt.Fprintf(&b, "- %s\n\n", WhyNow(n.Evidence))

		b.WriteString("**Evidence**\n")
		for i, e := range n.Evidence {
			if i == maxEvidenceLines {
				break
			}
			b.WriteString(evidenceLine(e) + "\n")
		}
		b.WriteString("\n**Build ideas**\n")
		for i, idea := range n.Ideas {
			fmt.Fprintf(&b, "%d. %s\n", i+1, idea)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n## How signals are detected and ranked\n")
	fmt.Fprintf(&b, "- Windows: current %s compared with the previous %s.\n", windowLength(run), windowLength(run))
	b.WriteString("- Score is a weighted sum of capped percentage changes (on-chain, GitHub, RSS, social) plus a small bonus; \"new\" means the previous window was zero, and \"n/a\" means a source was unavailable or a window was not fully read.\n")
	b.WriteString("- Each narrative cites its evidence; the why-now line lists the strongest changes.\n\n")

	b.WriteString("## Sources and methodology\n```json\n")
	raw, err := json.MarshalIndent(run.Sources, "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: encode methodology: %w", err)
	}
	b.Write(raw)
	b.WriteString("\n```\n")
	return b.String(), nil
}

// WhyNow summarises the three strongest changes in evidence.
func WhyNow(evidence []radar.Evidence) string {
	type weighted struct {
		e radar.Evidence
		w float64
	}
	var ranked []weighted
	for _, e := range evidence {
		if e.Delta == nil && (e.PctChange == nil || !e.PctChange.HasData()) {
			continue
		}
		w := 0.0
		if e.Delta != nil {
			w += math.Abs(*e.Delta)
		}
		if e.PctChange != nil {
			switch {
			case e.PctChange.IsEmerged():
				w += emergedWeight
			case e.PctChange.IsFinite():
				w += math.Abs(e.PctChange.Value)
			}
		}
		ranked = append(ranked, weighted{e: e, w: w})
	}
	if len(ranked) == 0 {
		return "Signals increased vs the previous fortnight."
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].w > ranked[j].w })

	parts := make([]string, 0, whyNowItems)
	for i, r := range ranked {
		if i == whyNowItems {
			break
		}
		bits := []string{r.e.Label}
		if r.e.Delta != nil {
			bits = append(bits, "Δ "+formatNumber(*r.e.Delta))
		}
		if p := formatPct(r.e.PctChange); p != "" {
			bits = append(bits, "pct="+p)
		}
		parts = append(parts, strings.Join(bits, " · "))
	}
	return strings.Join(parts, " | ")
}

func evidenceLine(e radar.Evidence) string {
	parts := []string{"- " + e.Label}
	var details []string
	if e.Value != nil {
		details = append(details, "cur="+e.Value.String())
	}
	if e.Delta != nil {
		details = append(details, "delta="+formatNumber(*e.Delta))
	}
	if p := formatPct(e.PctChange); p != "" {
		details = append(details, "pct="+p)
	}
	if len(details) > 0 {
		parts = append(parts, "("+strings.Join(details, ", ")+")")
	}
	if e.SourceURL != "" {
		parts = append(parts, "<"+e.SourceURL+">")
	}
	if e.Notes != "" {
		parts = append(parts, ": "+e.Notes)
	}
	return strings.Join(parts, " ")
}

func formatPct(p *radar.PctChange) string {
	if p == nil || !p.HasData() {
		return ""
	}
	if p.IsEmerged() {
		return "new"
	}
	return formatNumber(p.Rounded()) + "%"
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func windowLength(run *radar.RunRecord) string {
	d := run.Windows.Current.Duration()
	if d <= 0 {
		d = run.WindowTo.Sub(run.WindowFrom)
	}
	if days := d.Hours() / 24; days == math.Trunc(days) && days > 0 {
		return fmt.Sprintf("%dd", int(days))
	}
	return d.String()
}
