package radar

import (
	"strings"
	"testing"
	"time"
)

func TestRankEvidenceOrdersMetricsFirst(t *testing.T) {
	in := []Evidence{
		CitationEvidence("cite", "", "https://example.com"),
		StatusEvidence("status", "disabled", ""),
		MetricEvidence("small", ComputeDelta(10, 11), ""),
		MetricEvidence("big", ComputeDelta(10, 30), ""),
		{Kind: EvidenceSnapshot, Label: "snap"},
		MetricEvidence("new", ComputeDelta(0, 2), ""),
		{Kind: EvidenceMetric, Label: "nodata", PctChange: &PctChange{}},
	}

	got := RankEvidence(in)
	var labels []string
	for _, e := range got {
		labels = append(labels, e.Label)
	}
	want := "new,big,small,nodata,status,snap,cite"
	if strings.Join(labels, ",") != want {
		t.Fatalf("unexpected order %v, want %s", labels, want)
	}
	if in[0].Label != "cite" {
		t.Fatalf("input slice must not be reordered")
	}
}

func TestBuildRejectsBadIdeaCounts(t *testing.T) {
	in := NewInputs(MakeWindows(time.Now(), 0), DevActivity{}, LedgerActivity{}, Unavailable("x"), nil, nil)
	evidence := func(*Inputs) []Evidence { return []Evidence{StatusEvidence("s", "v", "")} }
	signals := func(*Inputs) Signals { return Signals{} }

	for _, n := range []int{0, 2, 6} {
		ideas := make([]string, n)
		tpl := NarrativeTemplate{ID: "x", Evidence: evidence, Signals: signals, Ideas: staticIdeas(ideas...)}
		if _, err := tpl.Build(in, DefaultScorer()); err == nil {
			t.Fatalf("expected %d ideas to be rejected", n)
		}
	}

	tpl := NarrativeTemplate{ID: "x", Evidence: func(*Inputs) []Evidence { return nil }, Signals: signals, Ideas: staticIdeas("a", "b", "c")}
	if _, err := tpl.Build(in, DefaultScorer()); err == nil {
		t.Fatalf("expected empty evidence to be rejected")
	}
}

func TestFixedNarrativesDegradeWithDisabledSources(t *testing.T) {
	w := MakeWindows(time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC), 0)
	in := NewInputs(w, DevActivity{}, LedgerActivity{OK: true, Address: "Loader"}, Unavailable("X_BEARER_TOKEN missing"), nil, nil)

	for _, tpl := range FixedNarratives() {
		n, err := tpl.Build(in, DefaultScorer())
		if err != nil {
			t.Fatalf("%s: %v", tpl.ID, err)
		}
		if len(n.Ideas) < MinIdeas || len(n.Ideas) > MaxIdeas {
			t.Fatalf("%s: idea count %d", tpl.ID, len(n.Ideas))
		}
		if len(n.Evidence) == 0 {
			t.Fatalf("%s: no evidence", tpl.ID)
		}
	}

	discourse, _ := FixedNarratives()[2].Build(in, DefaultScorer())
	var found bool
	for _, e := range discourse.Evidence {
		if e.Kind == EvidenceStatus && strings.Contains(e.Notes, "X_BEARER_TOKEN missing") {
			found = true
		}
	}
	if !found {
		t.Fatalf("social unavailability should be surfaced as status evidence: %+v", discourse.Evidence)
	}
}

func TestOnchainEvidenceCitesSignatures(t *testing.T) {
	w := MakeWindows(time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC), 0)
	ledger := LedgerActivity{
		OK:               true,
		Address:          "BPFLoaderUpgradeab1e11111111111111111111111",
		Transactions:     WindowCount{Current: 8, Previous: 0},
		SampleSignatures: []string{"sig1", "sig2", "sig3", "sig4"},
		Hydrated:         true,
		UniqueSigners:    WindowCount{Current: 4, Previous: 2},
		TopAccounts:      []AccountCount{{Address: "Prog1", Count: 3}},
	}
	n, err := FixedNarratives()[0].Build(NewInputs(w, DevActivity{}, ledger, Unavailable("off"), nil, nil), DefaultScorer())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	first := n.Evidence[0]
	if first.PctChange == nil || !first.PctChange.IsEmerged() {
		t.Fatalf("emerged loader activity should lead, got %+v", first)
	}
	if !strings.Contains(first.Notes, "new activity") {
		t.Fatalf("expected emerged note, got %q", first.Notes)
	}

	var cites int
	for _, e := range n.Evidence {
		if e.Kind == EvidenceCitation {
			cites++
			if !strings.HasPrefix(e.SourceURL, "https://solscan.io/tx/") {
				t.Fatalf("unexpected citation url %q", e.SourceURL)
			}
		}
	}
	if cites != 3 {
		t.Fatalf("expected 3 signature citations, got %d", cites)
	}
}

func TestIncompleteLedgerScanIsNotScored(t *testing.T) {
	w := MakeWindows(time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC), 0)
	build := func(incomplete bool) Narrative {
		ledger := LedgerActivity{
			OK:           true,
			Address:      "BPFLoaderUpgradeab1e11111111111111111111111",
			Transactions: WindowCount{Current: 3, Previous: 0, Incomplete: incomplete},
			Truncated:    incomplete,
		}
		n, err := FixedNarratives()[0].Build(NewInputs(w, DevActivity{}, ledger, Unavailable("off"), nil, nil), DefaultScorer())
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		return n
	}

	complete, partial := build(false), build(true)
	if partial.Score >= complete.Score {
		t.Fatalf("a capped scan must not score as new activity: partial %v, complete %v", partial.Score, complete.Score)
	}
	var tx *Evidence
	for i := range partial.Evidence {
		if strings.HasPrefix(partial.Evidence[i].Label, "Upgradeable loader tx") {
			tx = &partial.Evidence[i]
		}
	}
	if tx == nil || tx.PctChange == nil || tx.PctChange.HasData() {
		t.Fatalf("expected tx evidence without a change, got %+v", tx)
	}
	if !strings.Contains(tx.Notes, "not scored") || strings.Contains(tx.Notes, "new activity") {
		t.Fatalf("unexpected notes %q", tx.Notes)
	}
}
