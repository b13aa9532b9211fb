package radar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ChangeKind classifies a percentage change.
type ChangeKind int

const (
	// ChangeNoData means the source could not produce a comparison.
	ChangeNoData ChangeKind = iota
	// ChangeFinite carries a measured percentage.
	ChangeFinite
	// ChangeEmerged means the previous window was zero and the current one is not.
	ChangeEmerged
)

const emergedLabel = "emerged"

// PctChange is the tri-state period-over-period change of a metric.
// The zero value is NoData.
type PctChange struct {
	Kind  ChangeKind
	Value float64
}

// Finite wraps a measured percentage.
func Finite(v float64) PctChange { return PctChange{Kind: ChangeFinite, Value: v} }

// Emerged marks growth from zero.
func Emerged() PctChange { return PctChange{Kind: ChangeEmerged} }

// NoData marks a comparison that could not be made.
func NoData() PctChange { return PctChange{} }

// PctChangeOf compares previous with current.
func PctChangeOf(previous, current float64) PctChange {
	if previous == 0 {
		if current > 0 {
			return Emerged()
		}
		return Finite(0)
	}
	return Finite((current - previous) / previous * 100)
}

// IsFinite reports a measured percentage.
func (p PctChange) IsFinite() bool { return p.Kind == ChangeFinite }

// IsEmerged reports growth from a zero previous window.
func (p PctChange) IsEmerged() bool { return p.Kind == ChangeEmerged }

// HasData reports whether a comparison was made at all.
func (p PctChange) HasData() bool { return p.Kind != ChangeNoData }

// Rounded returns the display value with one decimal place.
func (p PctChange) Rounded() float64 { return roundTo(p.Value, 1) }

// String renders "new", "x%" or "n/a".
func (p PctChange) String() string {
	switch p.Kind {
	case ChangeEmerged:
		return "new"
	case ChangeFinite:
		return strconv.FormatFloat(p.Rounded(), 'f', -1, 64) + "%"
	default:
		return "n/a"
	}
}

// MarshalJSON renders finite values as numbers, emerged as "emerged" and no data as null.
func (p PctChange) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case ChangeEmerged:
		return json.Marshal(emergedLabel)
	case ChangeFinite:
		return json.Marshal(p.Rounded())
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON reverses MarshalJSON.
func (p *PctChange) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = NoData()
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != emergedLabel {
			return fmt.Errorf("radar: unknown pct change label %q", s)
		}
		*p = Emerged()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("radar: decode pct change: %w", err)
	}
	*p = Finite(v)
	return nil
}

// Delta is the comparison of one metric across both windows.
type Delta struct {
	Current  float64   `json:"current"`
	Previous float64   `json:"previous"`
	Pct      PctChange `json:"pct_change"`
}

// ComputeDelta builds a Delta from raw window counts.
func ComputeDelta(previous, current float64) Delta {
	return Delta{Current: current, Previous: previous, Pct: PctChangeOf(previous, current)}
}

// Diff returns current minus previous.
func (d Delta) Diff() float64 { return d.Current - d.Previous }
