package radar

import (
	"encoding/json"
	"math"
	"testing"
)

func TestPctChangeOf(t *testing.T) {
	if got := PctChangeOf(0, 0); !got.IsFinite() || got.Value != 0 {
		t.Fatalf("pct(0,0) should be finite zero, got %+v", got)
	}
	for _, k := range []float64{1, 5, 1000} {
		if got := PctChangeOf(0, k); !got.IsEmerged() {
			t.Fatalf("pct(0,%v) should be emerged, got %+v", k, got)
		}
	}

	cases := []struct{ prev, cur float64 }{{4, 5}, {10, 0}, {3, 10}, {7, 7}}
	for _, tc := range cases {
		got := PctChangeOf(tc.prev, tc.cur)
		want := (tc.cur - tc.prev) / tc.prev * 100
		if !got.IsFinite() || math.Abs(got.Value-want) > 1e-9 {
			t.Fatalf("pct(%v,%v) = %+v, want %v", tc.prev, tc.cur, got, want)
		}
	}
}

func TestPctChangeKeepsUnroundedValue(t *testing.T) {
	got := PctChangeOf(3, 10)
	if got.Value == got.Rounded() {
		t.Fatalf("scoring value should stay unrounded, got %v", got.Value)
	}
	if got.Rounded() != 233.3 {
		t.Fatalf("expected display value 233.3, got %v", got.Rounded())
	}
	if got.String() != "233.3%" {
		t.Fatalf("unexpected string %q", got.String())
	}
	if Emerged().String() != "new" || NoData().String() != "n/a" {
		t.Fatalf("unexpected sentinel strings")
	}
}

func TestPctChangeJSON(t *testing.T) {
	payload := struct {
		A PctChange `json:"a"`
		B PctChange `json:"b"`
		C PctChange `json:"c"`
	}{A: Finite(12.345), B: Emerged(), C: NoData()}

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"a":12.3,"b":"emerged","c":null}` {
		t.Fatalf("unexpected json %s", raw)
	}

	var back struct {
		A PctChange `json:"a"`
		B PctChange `json:"b"`
		C PctChange `json:"c"`
	}
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.A.IsFinite() || !back.B.IsEmerged() || back.C.HasData() {
		t.Fatalf("round trip lost kinds: %+v", back)
	}

	var bad PctChange
	if err := json.Unmarshal([]byte(`"huge"`), &bad); err == nil {
		t.Fatalf("expected unknown label to fail")
	}
}

func TestDeltaDiff(t *testing.T) {
	d := WindowCount{Current: 5, Previous: 0}.Delta()
	if d.Diff() != 5 || !d.Pct.IsEmerged() {
		t.Fatalf("unexpected delta %+v", d)
	}
}

func TestIncompleteCountsCarryNoChange(t *testing.T) {
	full := WindowCount{Current: 40, Previous: 0}
	partial := WindowCount{Current: 3, Previous: 0, Incomplete: true}

	if d := partial.Delta(); d.Pct.HasData() || d.Current != 3 {
		t.Fatalf("incomplete counts should keep raw values without a change, got %+v", d)
	}
	sum := full.Add(partial)
	if sum.Current != 43 || !sum.Incomplete {
		t.Fatalf("sum should be incomplete, got %+v", sum)
	}
	if sum.Delta().Pct.HasData() {
		t.Fatalf("an incomplete total must not read as emerged, got %s", sum.Delta().Pct)
	}
	if !full.Add(WindowCount{Current: 1}).Delta().Pct.IsEmerged() {
		t.Fatalf("complete counts should still emerge")
	}
}
