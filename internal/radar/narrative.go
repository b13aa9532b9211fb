package radar

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// DefaultMaxNarratives caps the assembled list.
const DefaultMaxNarratives = 12

const (
	explorerBase       = "https://solscan.io"
	maxTopicCitations  = 6
	maxFeedCitations   = 10
	maxRepoSnapshots   = 5
	maxSignatureCites  = 3
	maxAccountsInNotes = 5
)

// Inputs is everything the narrative builders read. It is computed once per run from adapter output.
type Inputs struct {
	Windows   Windows
	Dev       DevActivity
	Commits   Delta
	Issues    Delta
	MergedPRs Delta
	Ledger    LedgerActivity
	LedgerTx  Delta
	Signers   Delta
	Social    SocialActivity
	Headlines []Headline
	Discourse Delta
	Feeds     []string
}

// NewInputs derives deltas from the adapter outputs.
func NewInputs(w Windows, dev DevActivity, ledger LedgerActivity, social SocialActivity, headlines []Headline, feeds []string) *Inputs {
	commits, issues, prs := dev.Totals()
	in := &Inputs{
		Windows:   w,
		Dev:       dev,
		Commits:   commits.Delta(),
		Issues:    issues.Delta(),
		MergedPRs: prs.Delta(),
		Ledger:    ledger,
		LedgerTx:  ledger.Transactions.Delta(),
		Signers:   ledger.UniqueSigners.Delta(),
		Social:    social,
		Headlines: headlines,
		Discourse: CountInWindows(headlines, w).Delta(),
		Feeds:     feeds,
	}
	if !ledger.OK {
		in.LedgerTx.Pct = NoData()
	}
	if !ledger.Hydrated {
		in.Signers.Pct = NoData()
	}
	return in
}

func (in *Inputs) onchainSignal() []PctChange { return []PctChange{in.LedgerTx.Pct} }

func (in *Inputs) githubSignal() []PctChange {
	return []PctChange{in.Commits.Pct, in.Issues.Pct, in.MergedPRs.Pct}
}

func (in *Inputs) socialSignal() []PctChange {
	if !in.Social.OK {
		return nil
	}
	return []PctChange{in.Social.Pct}
}

func (in *Inputs) windowLabel() string {
	days := int(math.Round(in.Windows.Current.Duration().Hours() / 24))
	return fmt.Sprintf("current %dd vs previous %dd", days, days)
}

// NarrativeTemplate builds one narrative from an evidence provider, a signal provider and an idea source.
type NarrativeTemplate struct {
	ID       string
	Kind     NarrativeKind
	Title    string
	Summary  string
	Evidence func(in *Inputs) []Evidence
	Signals  func(in *Inputs) Signals
	Ideas    func(in *Inputs) []string
}

// Build scores the narrative and orders its evidence. A template producing no evidence
// or an idea count outside [MinIdeas, MaxIdeas] is a programming error.
func (t NarrativeTemplate) Build(in *Inputs, scorer Scorer) (Narrative, error) {
	if t.ID == "" || t.Evidence == nil || t.Signals == nil || t.Ideas == nil {
		return Narrative{}, errors.New("radar: incomplete narrative template")
	}
	ideas := t.Ideas(in)
	if len(ideas) < MinIdeas || len(ideas) > MaxIdeas {
		return Narrative{}, fmt.Errorf("radar: narrative %s has %d ideas, want %d..%d", t.ID, len(ideas), MinIdeas, MaxIdeas)
	}
	evidence := t.Evidence(in)
	if len(evidence) == 0 {
		return Narrative{}, fmt.Errorf("radar: narrative %s has no evidence", t.ID)
	}
	return Narrative{
		ID:       t.ID,
		Kind:     t.Kind,
		Title:    t.Title,
		Score:    scorer.Score(t.Signals(in)),
		Summary:  t.Summary,
		Evidence: RankEvidence(evidence),
		Ideas:    append([]string(nil), ideas...),
	}, nil
}

func staticIdeas(ideas ...string) func(*Inputs) []string {
	return func(*Inputs) []string { return ideas }
}

// Fixed narrative ids.
const (
	OnchainVelocityID = "onchain-program-velocity"
	DevActivityID     = "dev-activity-fortnight"
	DiscourseID       = "discourse-signal"
)

// FixedNarratives returns the authored narratives in presentation priority order.
func FixedNarratives() []NarrativeTemplate {
	return []NarrativeTemplate{
		{
			ID:    OnchainVelocityID,
			Kind:  NarrativeFixed,
			Title: "On-chain shipping velocity is accelerating (deploy/upgrade + wallet participation)",
			Summary: "Program deploy and upgrade activity is approximated by transactions touching the upgradeable loader. " +
				"A small deterministic sample adds wallet participation and failure-rate proxies. " +
				"Spikes point at launch waves, rapid iteration or infrastructure churn.",
			Evidence: onchainEvidence,
			Signals: func(in *Inputs) Signals {
				return Signals{Onchain: in.onchainSignal(), GitHub: in.githubSignal(), RSS: []PctChange{in.Discourse.Pct}, Social: in.socialSignal(), Bonus: 2}
			},
			Ideas: staticIdeas(
				"Target: protocol teams and analysts. MVP: a program launch radar listing upgraded and newly seen program ids with explorer links. Metric: explorer click-through.",
				"Target: infra leads. MVP: a release-cadence tracker with upgrade frequency, anomaly alerts and changelog reminders. Metric: alert subscriptions.",
				"Target: builders and users. MVP: a program health page generated for any program id, with activity, risks and citations. Metric: pages shared.",
			),
		},
		{
			ID:    DevActivityID,
			Kind:  NarrativeFixed,
			Title: "Developer activity is rising (commit momentum across core repos)",
			Summary: "Commit, issue and merged-PR counts on a curated set of core repositories are compared window over window. " +
				"Developer momentum tends to surface infrastructure and tooling narratives early.",
			Evidence: devEvidence,
			Signals: func(in *Inputs) Signals {
				return Signals{Onchain: in.onchainSignal(), GitHub: in.githubSignal(), RSS: []PctChange{in.Discourse.Pct}, Social: in.socialSignal(), Bonus: 1}
			},
			Ideas: staticIdeas(
				"A DX momentum dashboard ranking repositories by releases, commits and issue velocity.",
				"An automated PR reviewer for Solana program safety: account constraints and signer checks.",
				"A dApp scaffold generator producing program, indexer, UI and tests for a chosen narrative.",
			),
		},
		{
			ID:    DiscourseID,
			Kind:  NarrativeFixed,
			Title: "Ecosystem discourse is picking up (research/blog cadence)",
			Summary: "Publishing cadence across research and blog feeds is a weak but useful leading signal. " +
				"Items are counted per window and the newest ones are cited directly.",
			Evidence: discourseEvidence,
			Signals: func(in *Inputs) Signals {
				return Signals{GitHub: in.githubSignal(), RSS: []PctChange{in.Discourse.Pct}, Social: in.socialSignal(), Bonus: 1}
			},
			Ideas: staticIdeas(
				"A fortnightly narrative memo generator with citations and supporting on-chain charts.",
				"A build-ideas board mapping narratives to user pain points and existing competitors.",
				"A signal-to-spec tool turning a narrative into a PRD with milestones and wireframes.",
			),
		},
	}
}

func onchainEvidence(in *Inputs) []Evidence {
	l := in.Ledger
	var out []Evidence

	notes := fmt.Sprintf("Current=%d, Prev=%d", l.Transactions.Current, l.Transactions.Previous)
	if in.LedgerTx.Pct.IsEmerged() {
		notes += " (new activity; prev was 0)"
	}
	if l.Transactions.Incomplete {
		notes += ". The scan stopped before covering the previous window; the change is not scored"
	} else if l.Truncated {
		notes += ". Signature scan hit its cap after covering both windows"
	}
	tx := MetricEvidence(fmt.Sprintf("Upgradeable loader tx (%s)", in.windowLabel()), in.LedgerTx, notes)
	if l.Address != "" {
		tx.SourceURL = accountURL(l.Address)
	}
	out = append(out, tx)

	if !l.OK {
		out = append(out, StatusEvidence("On-chain source", "unavailable", strings.Join(l.Notes, "; ")))
	}

	if l.Hydrated {
		out = append(out,
			MetricEvidence("Unique fee payers in sampled loader tx (wallet participation proxy)", in.Signers,
				fmt.Sprintf("Computed from %d current and %d previous sampled transactions.", l.Sampled.Current, l.Sampled.Previous)),
			StatusEvidence("Failure rate in sampled loader tx (stress proxy)", formatPct(l.FailureRateCur),
				fmt.Sprintf("Current=%s, Prev=%s", formatPct(l.FailureRateCur), formatPct(l.FailureRatePrev))),
		)
	} else {
		const disabled = "Hydration disabled to avoid RPC rate limits; enable it to compute from a small sample."
		out = append(out,
			StatusEvidence("Unique fee payers in sampled loader tx (wallet participation proxy)", "disabled", disabled),
			StatusEvidence("Failure rate in sampled loader tx (stress proxy)", "disabled", disabled),
		)
	}

	if len(l.TopAccounts) > 0 {
		out = append(out, Evidence{
			Kind:  EvidenceSnapshot,
			Label: "Top related accounts (sampled from current window)",
			Notes: accountNotes(l.TopAccounts),
		})
	}
	if len(l.NewlySeen) > 0 {
		out = append(out, Evidence{
			Kind:  EvidenceSnapshot,
			Label: "Newly seen related accounts (launch proxy; sampled)",
			Notes: accountNotes(l.NewlySeen),
		})
	}

	for i, sig := range l.SampleSignatures {
		if i == maxSignatureCites {
			break
		}
		out = append(out, CitationEvidence("Sample loader transaction", sig, txURL(sig)))
	}
	return out
}

func devEvidence(in *Inputs) []Evidence {
	repos := make([]string, 0, len(in.Dev.Activity))
	for _, a := range in.Dev.Activity {
		repos = append(repos, a.FullName)
	}
	label := in.windowLabel()
	out := []Evidence{
		MetricEvidence(fmt.Sprintf("Commits across curated repos (%s)", label), in.Commits,
			searchNotes(in.Commits, "Curated repos: "+strings.Join(repos, ", "))),
		MetricEvidence(fmt.Sprintf("Opened issues across curated repos (%s)", label), in.Issues,
			searchNotes(in.Issues, "GitHub search: issues created in window. A community demand proxy.")),
		MetricEvidence(fmt.Sprintf("Merged PRs across curated repos (%s)", label), in.MergedPRs,
			searchNotes(in.MergedPRs, "GitHub search: PRs merged in window. A shipping throughput proxy.")),
	}

	if len(in.Dev.Degraded) > 0 {
		notes := in.Dev.Degraded
		if len(notes) > 5 {
			notes = notes[:5]
		}
		out = append(out, StatusEvidence("GitHub calls degraded", fmt.Sprintf("%d failed", len(in.Dev.Degraded)), strings.Join(notes, "; ")))
	}

	for i, r := range in.Dev.Repos {
		if i == maxRepoSnapshots {
			break
		}
		out = append(out, Evidence{
			Kind:  EvidenceSnapshot,
			Label: "GitHub repo snapshot: " + r.FullName,
			Notes: fmt.Sprintf("stars=%d, forks=%d, openIssues=%d, pushedAt=%s",
				r.Stars, r.Forks, r.OpenIssues, r.PushedAt.UTC().Format("2006-01-02T15:04:05Z")),
			SourceURL: r.URL,
		})
	}
	return out
}

func searchNotes(d Delta, notes string) string {
	if !d.Pct.HasData() {
		return "Some calls failed or were truncated, so the windows are not comparable and the change is not scored. " + notes
	}
	return notes
}

func discourseEvidence(in *Inputs) []Evidence {
	out := []Evidence{
		MetricEvidence(fmt.Sprintf("Feed items (%s)", in.windowLabel()), in.Discourse, "Feeds: "+strings.Join(in.Feeds, ", ")),
	}

	s := in.Social
	label := "Social post velocity (curated accounts)"
	if s.OK {
		notes := "Top posters: " + topPosters(s.PerUserCurrent, 5)
		if s.FailedLookups > 0 {
			notes = fmt.Sprintf("%d post lookups failed; the change is not scored. %s", s.FailedLookups, notes)
		}
		out = append(out, MetricEvidence(label,
			Delta{Current: float64(s.PostsCurrent), Previous: float64(s.PostsPrevious), Pct: s.Pct}, notes))
	} else {
		out = append(out, StatusEvidence(label, "unavailable", "Social source disabled or unavailable: "+s.Error))
	}

	for i, h := range newestInWindow(in.Headlines, in.Windows.Current) {
		if i == maxFeedCitations {
			break
		}
		out = append(out, CitationEvidence("Feed: "+h.Source, h.Title, h.Link))
	}
	return out
}

// TopicNarrative builds the template for a clustered topic. Only current-window hits are cited.
func TopicNarrative(cluster TopicCluster, w Windows) NarrativeTemplate {
	current, previous := cluster.Partition(w)
	delta := ComputeDelta(float64(len(previous)), float64(len(current)))
	topic := cluster.Topic

	return NarrativeTemplate{
		ID:    topic.ID,
		Kind:  NarrativeClustered,
		Title: topic.Title,
		Summary: "Clustered narrative inferred from recurring keyword matches in ecosystem feeds. " +
			"Verify the trend through the citations and use the ideas as build directions.",
		Evidence: func(in *Inputs) []Evidence {
			out := []Evidence{
				MetricEvidence(fmt.Sprintf("Topic mentions in feeds (%s)", in.windowLabel()), delta, "Topic: "+topic.Title),
			}
			for i, h := range current {
				if i == maxTopicCitations {
					break
				}
				out = append(out, CitationEvidence("Feed: "+h.Source, h.Title, h.Link))
			}
			return out
		},
		Signals: func(in *Inputs) Signals {
			return Signals{
				Onchain: in.onchainSignal(),
				GitHub:  []PctChange{in.Commits.Pct},
				RSS:     []PctChange{delta.Pct},
				Social:  in.socialSignal(),
				Bonus:   math.Min(3, float64(len(current))/3),
			}
		},
		Ideas: func(*Inputs) []string {
			ideas := topic.IdeaTemplates
			if len(ideas) > MinIdeas {
				ideas = ideas[:MinIdeas]
			}
			return ideas
		},
	}
}

func newestInWindow(items []Headline, w TimeWindow) []Headline {
	var out []Headline
	for _, h := range items {
		if w.Contains(h.PublishedAt) {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	return out
}

func topPosters(users []UserCount, n int) string {
	if len(users) == 0 {
		return "none"
	}
	if len(users) > n {
		users = users[:n]
	}
	parts := make([]string, 0, len(users))
	for _, u := range users {
		parts = append(parts, fmt.Sprintf("%s(%d)", u.Username, u.Count))
	}
	return strings.Join(parts, ", ")
}

func accountNotes(accounts []AccountCount) string {
	if len(accounts) > maxAccountsInNotes {
		accounts = accounts[:maxAccountsInNotes]
	}
	parts := make([]string, 0, len(accounts))
	for _, a := range accounts {
		parts = append(parts, fmt.Sprintf("%s (x%d) %s", a.Address, a.Count, accountURL(a.Address)))
	}
	return strings.Join(parts, " | ")
}

func formatPct(v float64) string {
	return fmt.Sprintf("%g%%", roundTo(v, 1))
}

func accountURL(address string) string { return explorerBase + "/account/" + address }

func txURL(signature string) string { return explorerBase + "/tx/" + signature }
