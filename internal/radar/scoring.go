package radar

import (
	"errors"
	"fmt"
	"math"
)

// SignalWeight converts a percentage change into points: pct/Divisor clamped to [0, Cap].
type SignalWeight struct {
	Divisor float64 `json:"divisor" yaml:"divisor"`
	Cap     float64 `json:"cap" yaml:"cap"`
}

// Scorer combines per-source percentage changes into one bounded score.
//
// An emerged change (previous window was zero) is worth EmergedShare of the
// source cap. Missing data is worth nothing. When a source carries several
// changes, its contribution is the mean over the ones that have data.
type Scorer struct {
	Onchain      SignalWeight `json:"onchain" yaml:"onchain"`
	GitHub       SignalWeight `json:"github" yaml:"github"`
	RSS          SignalWeight `json:"rss" yaml:"rss"`
	Social       SignalWeight `json:"social" yaml:"social"`
	BonusCap     float64      `json:"bonus_cap" yaml:"bonusCap"`
	EmergedShare float64      `json:"emerged_share" yaml:"emergedShare"`
}

// Signals are the scoring inputs of one narrative.
type Signals struct {
	Onchain []PctChange
	GitHub  []PctChange
	RSS     []PctChange
	Social  []PctChange
	Bonus   float64
}

// DefaultScorer weights on-chain activity highest, then developer activity, then discourse.
func DefaultScorer() Scorer {
	return Scorer{
		Onchain:      SignalWeight{Divisor: 5, Cap: 35},
		GitHub:       SignalWeight{Divisor: 5, Cap: 30},
		RSS:          SignalWeight{Divisor: 10, Cap: 15},
		Social:       SignalWeight{Divisor: 10, Cap: 15},
		BonusCap:     5,
		EmergedShare: 0.5,
	}
}

// Validate rejects weights that would make the score undefined.
func (s Scorer) Validate() error {
	for name, w := range map[string]SignalWeight{"onchain": s.Onchain, "github": s.GitHub, "rss": s.RSS, "social": s.Social} {
		if w.Divisor <= 0 {
			return fmt.Errorf("radar: scorer %s divisor must be positive", name)
		}
		if w.Cap < 0 {
			return fmt.Errorf("radar: scorer %s cap must not be negative", name)
		}
	}
	if s.BonusCap < 0 {
		return errors.New("radar: scorer bonus cap must not be negative")
	}
	if s.EmergedShare < 0 || s.EmergedShare > 1 {
		return errors.New("radar: scorer emerged share must be within [0, 1]")
	}
	return nil
}

// Score returns the composite score rounded to one decimal.
func (s Scorer) Score(sig Signals) float64 {
	total := s.Contribution(s.Onchain, sig.Onchain) +
		s.Contribution(s.GitHub, sig.GitHub) +
		s.Contribution(s.RSS, sig.RSS) +
		s.Contribution(s.Social, sig.Social) +
		clamp(sig.Bonus, 0, s.BonusCap)
	return roundTo(total, 1)
}

// Contribution returns the points one source adds to the score.
func (s Scorer) Contribution(w SignalWeight, changes []PctChange) float64 {
	var sum float64
	var n int
	for _, c := range changes {
		switch c.Kind {
		case ChangeFinite:
			sum += clamp(c.Value/w.Divisor, 0, w.Cap)
		case ChangeEmerged:
			sum += s.EmergedShare * w.Cap
		default:
			continue
		}
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// MaxScore is the sum of all caps.
func (s Scorer) MaxScore() float64 {
	return s.Onchain.Cap + s.GitHub.Cap + s.RSS.Cap + s.Social.Cap + s.BonusCap
}

// Formula describes the scoring rule for the methodology section.
func (s Scorer) Formula() string {
	return fmt.Sprintf(
		"score = clamp(onchain_pct/%g,0..%g)+clamp(github_pct/%g,0..%g)+clamp(rss_pct/%g,0..%g)+clamp(social_pct/%g,0..%g)+bonus(0..%g); emerged = %g x cap; no data = 0",
		s.Onchain.Divisor, s.Onchain.Cap, s.GitHub.Divisor, s.GitHub.Cap,
		s.RSS.Divisor, s.RSS.Cap, s.Social.Divisor, s.Social.Cap, s.BonusCap, s.EmergedShare,
	)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundTo(v float64, prec int) float64 {
	p := math.Pow10(prec)
	return math.Round(v*p) / p
}
