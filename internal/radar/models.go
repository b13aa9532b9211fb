package radar

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"time"
)

// Headline is a discourse item (feed entry or operator submission).
type Headline struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	Link        string    `json:"link,omitempty"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// WindowCount is a raw count per window. Incomplete marks that a window was not fully
// observed (a failed or truncated read), so the counts are not comparable.
type WindowCount struct {
	Current    int  `json:"current"`
	Previous   int  `json:"previous"`
	Incomplete bool `json:"incomplete,omitempty"`
}

// Delta converts the counts into a comparison. Incomplete counts carry no percentage change.
func (c WindowCount) Delta() Delta {
	d := ComputeDelta(float64(c.Previous), float64(c.Current))
	if c.Incomplete {
		d.Pct = NoData()
	}
	return d
}

// Add sums two counts; the sum is incomplete when either side is.
func (c WindowCount) Add(o WindowCount) WindowCount {
	return WindowCount{
		Current:    c.Current + o.Current,
		Previous:   c.Previous + o.Previous,
		Incomplete: c.Incomplete || o.Incomplete,
	}
}

// RepoSnapshot is the point-in-time state of a repository.
type RepoSnapshot struct {
	FullName   string    `json:"full_name"`
	URL        string    `json:"url"`
	Stars      int       `json:"stars"`
	Forks      int       `json:"forks"`
	OpenIssues int       `json:"open_issues"`
	PushedAt   time.Time `json:"pushed_at"`
}

// RepoActivity holds per-window developer counts for one repository.
type RepoActivity struct {
	FullName  string      `json:"full_name"`
	Commits   WindowCount `json:"commits"`
	Issues    WindowCount `json:"issues_opened"`
	MergedPRs WindowCount `json:"prs_merged"`
}

// DevActivity is the developer-activity adapter output.
type DevActivity struct {
	Repos     []RepoSnapshot `json:"repos"`
	Activity  []RepoActivity `json:"activity"`
	Degraded  []string       `json:"degraded,omitempty"`
	TokenUsed bool           `json:"token_used"`
}

// Totals sums activity across repositories.
func (d DevActivity) Totals() (commits, issues, prs WindowCount) {
	for _, a := range d.Activity {
		commits = commits.Add(a.Commits)
		issues = issues.Add(a.Issues)
		prs = prs.Add(a.MergedPRs)
	}
	return commits, issues, prs
}

// AccountCount is an account and how often it appeared in a sample.
type AccountCount struct {
	Address string `json:"address"`
	Count   int    `json:"count"`
}

// LedgerActivity is the on-chain adapter output. OK=false means no signature page could be read.
type LedgerActivity struct {
	OK               bool           `json:"ok"`
	Address          string         `json:"address"`
	Transactions     WindowCount    `json:"transactions"`
	SampleSignatures []string       `json:"sample_signatures"`
	Truncated        bool           `json:"truncated"`
	Hydrated         bool           `json:"hydrated"`
	Sampled          WindowCount    `json:"sampled"`
	UniqueSigners    WindowCount    `json:"unique_signers"`
	FailureRateCur   float64        `json:"failure_rate_current_pct"`
	FailureRatePrev  float64        `json:"failure_rate_previous_pct"`
	TopAccounts      []AccountCount `json:"top_accounts,omitempty"`
	NewlySeen        []AccountCount `json:"newly_seen,omitempty"`
	Notes            []string       `json:"notes,omitempty"`
}

// UserCount is a per-user post count.
type UserCount struct {
	Username string `json:"username"`
	Count    int    `json:"count"`
}

// SocialActivity is the social adapter output. OK=false carries a reason in Error.
// FailedLookups counts per-user, per-window post lookups that failed; any failure leaves Pct as NoData.
type SocialActivity struct {
	OK             bool        `json:"ok"`
	Error          string      `json:"error,omitempty"`
	PostsCurrent   int         `json:"posts_current"`
	PostsPrevious  int         `json:"posts_previous"`
	Pct            PctChange   `json:"pct_change"`
	PerUserCurrent []UserCount `json:"per_user_current"`
	FailedLookups  int         `json:"failed_lookups,omitempty"`
}

// Unavailable builds the degraded social result.
func Unavailable(reason string) SocialActivity {
	if reason == "" {
		reason = "unknown error"
	}
	return SocialActivity{OK: false, Error: reason, Pct: NoData(), PerUserCurrent: []UserCount{}}
}

// EvidenceKind orders evidence groups inside a narrative.
type EvidenceKind string

const (
	EvidenceMetric   EvidenceKind = "metric"
	EvidenceStatus   EvidenceKind = "status"
	EvidenceSnapshot EvidenceKind = "snapshot"
	EvidenceCitation EvidenceKind = "citation"
)

// EvidenceValue is either a number or a short text such as "disabled".
type EvidenceValue struct {
	Number float64
	Text   string
	IsText bool
}

// Num wraps a numeric value.
func Num(v float64) *EvidenceValue { return &EvidenceValue{Number: v} }

// Text wraps a textual value.
func Text(s string) *EvidenceValue { return &EvidenceValue{Text: s, IsText: true} }

// String renders the value for reports.
func (v EvidenceValue) String() string {
	if v.IsText {
		return v.Text
	}
	return strconv.FormatFloat(v.Number, 'f', -1, 64)
}

// MarshalJSON writes text values as strings and numbers as numbers.
func (v EvidenceValue) MarshalJSON() ([]byte, error) {
	if v.IsText {
		return json.Marshal(v.Text)
	}
	return json.Marshal(v.Number)
}

// UnmarshalJSON accepts either a JSON string or a number.
func (v *EvidenceValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		v.IsText = true
		return json.Unmarshal(data, &v.Text)
	}
	return json.Unmarshal(data, &v.Number)
}

// Evidence is one citable data point backing a narrative.
type Evidence struct {
	Kind      EvidenceKind   `json:"kind"`
	Label     string         `json:"label"`
	Value     *EvidenceValue `json:"value,omitempty"`
	Delta     *float64       `json:"delta,omitempty"`
	PctChange *PctChange     `json:"pct_change,omitempty"`
	SourceURL string         `json:"source_url,omitempty"`
	Notes     string         `json:"notes,omitempty"`
}

// NarrativeKind distinguishes authored narratives from topic-derived ones.
type NarrativeKind string

const (
	NarrativeFixed     NarrativeKind = "fixed"
	NarrativeClustered NarrativeKind = "clustered"
)

// Narrative is a scored, evidenced trend claim with build ideas.
type Narrative struct {
	ID       string        `json:"id"`
	Kind     NarrativeKind `json:"kind"`
	Title    string        `json:"title"`
	Score    float64       `json:"score"`
	Summary  string        `json:"summary"`
	Evidence []Evidence    `json:"evidence"`
	Ideas    []string      `json:"ideas"`
}

// RunRecord is the immutable result of one orchestrator invocation.
type RunRecord struct {
	ID          string         `json:"id"`
	GeneratedAt time.Time      `json:"generated_at"`
	WindowFrom  time.Time      `json:"window_from"`
	WindowTo    time.Time      `json:"window_to"`
	Windows     Windows        `json:"windows"`
	Narratives  []Narrative    `json:"narratives"`
	Sources     map[string]any `json:"sources"`
}

// Ranked returns the narratives sorted by score, highest first, keeping insertion order on ties.
func (r *RunRecord) Ranked() []Narrative {
	out := make([]Narrative, len(r.Narratives))
	copy(out, r.Narratives)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// TopScore returns the highest narrative score or 0.
func (r *RunRecord) TopScore() float64 {
	var best float64
	for _, n := range r.Narratives {
		if n.Score > best {
			best = n.Score
		}
	}
	return best
}
