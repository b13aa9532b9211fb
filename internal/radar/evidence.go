package radar

import (
	"math"
	"sort"
)

// MetricEvidence builds a metric entry from a delta.
func MetricEvidence(label string, d Delta, notes string) Evidence {
	diff := d.Diff()
	pct := d.Pct
	return Evidence{
		Kind:      EvidenceMetric,
		Label:     label,
		Value:     Num(d.Current),
		Delta:     &diff,
		PctChange: &pct,
		Notes:     notes,
	}
}

// StatusEvidence builds an entry describing a source state such as "disabled".
func StatusEvidence(label, value, notes string) Evidence {
	return Evidence{Kind: EvidenceStatus, Label: label, Value: Text(value), Notes: notes}
}

// CitationEvidence builds a linkable citation.
func CitationEvidence(label, notes, url string) Evidence {
	return Evidence{Kind: EvidenceCitation, Label: label, Notes: notes, SourceURL: url}
}

var evidenceGroup = map[EvidenceKind]int{
	EvidenceMetric:   0,
	EvidenceStatus:   1,
	EvidenceSnapshot: 2,
	EvidenceCitation: 3,
}

// RankEvidence orders evidence most important first: metrics, then status notes,
// snapshots and citations. Metrics put emerged changes first, then larger absolute
// percentage, then larger absolute delta; metrics without data go last in their group.
// Ties keep their input order.
func RankEvidence(items []Evidence) []Evidence {
	out := make([]Evidence, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		ga, gb := groupOf(a.Kind), groupOf(b.Kind)
		if ga != gb {
			return ga < gb
		}
		if a.Kind != EvidenceMetric {
			return false
		}
		ra, rb := changeRank(a.PctChange), changeRank(b.PctChange)
		if ra != rb {
			return ra < rb
		}
		if pa, pb := absPct(a.PctChange), absPct(b.PctChange); pa != pb {
			return pa > pb
		}
		return absDelta(a.Delta) > absDelta(b.Delta)
	})
	return out
}

func groupOf(k EvidenceKind) int {
	if g, ok := evidenceGroup[k]; ok {
		return g
	}
	return len(evidenceGroup)
}

func changeRank(p *PctChange) int {
	if p == nil {
		return 2
	}
	switch p.Kind {
	case ChangeEmerged:
		return 0
	case ChangeFinite:
		return 1
	default:
		return 2
	}
}

func absPct(p *PctChange) float64 {
	if p == nil || !p.IsFinite() {
		return 0
	}
	return math.Abs(p.Value)
}

func absDelta(d *float64) float64 {
	if d == nil {
		return 0
	}
	return math.Abs(*d)
}
