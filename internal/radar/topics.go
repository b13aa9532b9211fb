package radar

import (
	"errors"
	"fmt"
	"strings"
)

// MinIdeas and MaxIdeas bound the idea list of every narrative.
const (
	MinIdeas = 3
	MaxIdeas = 5
)

// Topic is a keyword bucket for headlines with its build-idea templates.
type Topic struct {
	ID            string   `json:"id" yaml:"id"`
	Title         string   `json:"title" yaml:"title"`
	Keywords      []string `json:"keywords" yaml:"keywords"`
	IdeaTemplates []string `json:"idea_templates" yaml:"ideaTemplates"`
}

// Validate checks a single topic definition.
func (t Topic) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("radar: topic id is required")
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("radar: topic %s: title is required", t.ID)
	}
	if len(normalizeKeywords(t.Keywords)) == 0 {
		return fmt.Errorf("radar: topic %s: at least one keyword is required", t.ID)
	}
	if len(t.IdeaTemplates) < MinIdeas {
		return fmt.Errorf("radar: topic %s: need at least %d idea templates, got %d", t.ID, MinIdeas, len(t.IdeaTemplates))
	}
	return nil
}

// ValidateTopics checks every topic and rejects duplicate ids.
func ValidateTopics(topics []Topic) error {
	seen := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, ok := seen[t.ID]; ok {
			return fmt.Errorf("radar: duplicate topic id %s", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range dedupeStrings(keywords) {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// DefaultTopics returns the built-in Solana ecosystem topics.
func DefaultTopics() []Topic {
	return []Topic{
		{
			ID:       "rwa-tokenization",
			Title:    "RWAs & tokenized assets expanding on Solana",
			Keywords: []string{"tokenized", "rwa", "stocks", "etf", "gold", "treasury", "institutional", "wisdomtree", "ondo", "fireblocks"},
			IdeaTemplates: []string{
				"An RWA portfolio dashboard that keeps on-chain attestations next to issuer documents.",
				"A tokenized-asset discovery feed tracking new issuers, mints and liquidity venues on Solana.",
				"Collateral onboarding for RWAs with transparent risk parameters and oracle provenance.",
			},
		},
		{
			ID:       "stablecoins-payments",
			Title:    "Stablecoins & payments UX improving",
			Keywords: []string{"usdc", "usdt", "stablecoin", "payments", "solana pay", "merchant", "invoice", "remittance"},
			IdeaTemplates: []string{
				"A merchant toolkit on Solana Pay with invoices, refunds, webhooks and accounting exports.",
				"A stablecoin router that picks the cheapest rail and shows settlement proofs.",
				"A payments health monitor alerting businesses on congestion, failed transactions and fee spikes.",
			},
		},
		{
			ID:       "mev-performance",
			Title:    "MEV, validators, and performance engineering",
			Keywords: []string{"mev", "jito", "validator", "firedancer", "latency", "throughput", "network upgrades", "compression"},
			IdeaTemplates: []string{
				"A performance changelog mapping network upgrades to measured fee and latency changes.",
				"An operator dashboard explaining MEV tips, leader schedule and risk signals in plain terms.",
				"A simulator for worst-case latency and fees that recommends batching and priority-fee settings.",
			},
		},
		{
			ID:       "devtooling",
			Title:    "Developer tooling accelerating (Anchor/SDKs/indexing)",
			Keywords: []string{"anchor", "sdk", "indexer", "rpc", "helius", "typescript", "rust", "program", "client"},
			IdeaTemplates: []string{
				"A DX scoreboard ranking repositories by releases, commits and issue velocity, with alerts.",
				"Codegen that turns an IDL into program, client, tests and CI in one pass.",
				"A debugging console correlating transaction logs, compute usage and account diffs on a timeline.",
			},
		},
		{
			ID:       "defi-primitives",
			Title:    "DeFi primitives evolving (AMMs, perps, options)",
			Keywords: []string{"amm", "perp", "perps", "options", "liquidity", "volatility", "vault", "yield", "trading"},
			IdeaTemplates: []string{
				"A trading journal linking execution quality to fees, latency and market regime.",
				"A strategy playground that backtests simple DeFi strategies with explainable risk metrics.",
				"A portfolio risk view explaining exposure across perps, options and LP positions.",
			},
		},
	}
}
