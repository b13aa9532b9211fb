// Package solana measures transaction activity for one on-chain address by walking
// its signature history and, optionally, hydrating a small sample of transactions.
package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"narrativeradar/internal/fetch"
	"narrativeradar/internal/radar"
)

// UpgradeableLoader is the BPF upgradeable loader program; its activity tracks program deploys and upgrades.
const UpgradeableLoader = "BPFLoaderUpgradeab1e11111111111111111111111"

var addressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// builtins are skipped when ranking related accounts.
var builtins = map[string]struct{}{
	"11111111111111111111111111111111":             {},
	"ComputeBudget111111111111111111111111111111":  {},
	"BPFLoader2111111111111111111111111111111111":  {},
	"SysvarRent111111111111111111111111111111111":  {},
	"SysvarC1ock11111111111111111111111111111111":  {},
	"Sysvar1nstructions1111111111111111111111111":  {},
	"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA":  {},
	"ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL": {},
	UpgradeableLoader: {},
}

// Config bounds how much history the adapter reads.
type Config struct {
	Address            string
	MaxSignatures      int
	Hydrate            bool
	SampleSize         int
	HydrateConcurrency int
	Citations          int
	TopAccounts        int
}

// DefaultConfig tracks the upgradeable loader with hydration on.
func DefaultConfig() Config {
	return Config{
		Address:            UpgradeableLoader,
		MaxSignatures:      1000,
		Hydrate:            true,
		SampleSize:         25,
		HydrateConcurrency: 4,
		Citations:          10,
		TopAccounts:        10,
	}
}

// Validate checks the address and limits.
func (c Config) Validate() error {
	if !addressPattern.MatchString(c.Address) {
		return fmt.Errorf("solana: invalid address %q", c.Address)
	}
	if c.MaxSignatures <= 0 {
		return errors.New("solana: max signatures must be positive")
	}
	if c.Hydrate && (c.SampleSize <= 0 || c.HydrateConcurrency <= 0) {
		return errors.New("solana: sample size and hydrate concurrency must be positive when hydrating")
	}
	return nil
}

// Source implements radar.LedgerSource.
type Source struct {
	rpc    *RPC
	cfg    Config
	logger *slog.Logger
}

// NewSource validates cfg and builds the adapter.
func NewSource(rpc *RPC, cfg Config, logger *slog.Logger) (*Source, error) {
	if rpc == nil {
		return nil, errors.New("solana: rpc client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{rpc: rpc, cfg: cfg, logger: logger}, nil
}

// NewDefaultRPC builds an RPC client throttled for public endpoints.
func NewDefaultRPC(url string, logger *slog.Logger) *RPC {
	return NewRPC(url, fetch.New(
		fetch.WithLimiter(rate.NewLimiter(rate.Every(120*time.Millisecond), 4)),
		fetch.WithLogger(logger),
	))
}

func (s *Source) Name() string { return "solana" }

// FetchLedgerActivity counts signatures per window and summarises a hydrated sample.
func (s *Source) FetchLedgerActivity(ctx context.Context, w radar.Windows) (radar.LedgerActivity, error) {
	if err := w.Validate(); err != nil {
		return radar.LedgerActivity{}, err
	}
	out := radar.LedgerActivity{Address: s.cfg.Address, SampleSignatures: []string{}}

	sigs, truncated, err := s.scan(ctx, w.Previous.From)
	if err != nil && len(sigs) == 0 {
		s.logger.WarnContext(ctx, "ledger unavailable", "address", s.cfg.Address, "error", err)
		out.Notes = append(out.Notes, fmt.Sprintf("getSignaturesForAddress failed: %v", err))
		return out, nil
	}
	out.OK = true
	out.Truncated = truncated
	if err != nil {
		out.Notes = append(out.Notes, fmt.Sprintf("signature scan stopped early: %v", err))
	}
	if truncated {
		out.Notes = append(out.Notes, fmt.Sprintf("signature scan capped at %d", s.cfg.MaxSignatures))
	}

	// The previous window is covered when history ran out or the scan reached past its start.
	covered := err == nil && !truncated
	var current, previous []SignatureInfo
	for _, sig := range sigs {
		if sig.BlockTime == nil {
			continue
		}
		at := time.Unix(*sig.BlockTime, 0).UTC()
		switch {
		case w.Current.Contains(at):
			current = append(current, sig)
		case w.Previous.Contains(at):
			previous = append(previous, sig)
		case at.Before(w.Previous.From):
			covered = true
		}
	}
	out.Transactions = radar.WindowCount{Current: len(current), Previous: len(previous), Incomplete: !covered}
	if !covered {
		out.Notes = append(out.Notes, "signature scan ended before the start of the previous window; counts are not compared")
	}
	for i := 0; i < len(current) && i < s.cfg.Citations; i++ {
		out.SampleSignatures = append(out.SampleSignatures, current[i].Signature)
	}

	if !s.cfg.Hydrate {
		return out, nil
	}
	out.Hydrated = true
	cur := s.hydrate(ctx, StrideSample(current, s.cfg.SampleSize))
	prev := s.hydrate(ctx, StrideSample(previous, s.cfg.SampleSize))
	out.Sampled = radar.WindowCount{Current: len(cur.txs), Previous: len(prev.txs)}
	out.UniqueSigners = radar.WindowCount{Current: cur.uniquePayers(), Previous: prev.uniquePayers(), Incomplete: !covered}
	out.FailureRateCur = cur.failureRate()
	out.FailureRatePrev = prev.failureRate()

	curAccounts := cur.accountCounts(s.cfg.Address)
	prevAccounts := prev.accountCounts(s.cfg.Address)
	out.TopAccounts = topAccounts(curAccounts, s.cfg.TopAccounts)
	newly := make(map[string]int)
	for addr, n := range curAccounts {
		if _, seen := prevAccounts[addr]; !seen {
			newly[addr] = n
		}
	}
	out.NewlySeen = topAccounts(newly, s.cfg.TopAccounts)

	if failed := cur.failed + prev.failed; failed > 0 {
		out.Notes = append(out.Notes, fmt.Sprintf("getTransaction failed for %d of %d sampled signatures", failed, failed+len(cur.txs)+len(prev.txs)))
	}
	return out, nil
}

// scan pages newest-first until a page reaches before since, the cap is hit, or history ends.
func (s *Source) scan(ctx context.Context, since time.Time) (sigs []SignatureInfo, truncated bool, err error) {
	before := ""
	for len(sigs) < s.cfg.MaxSignatures {
		limit := min(s.cfg.MaxSignatures-len(sigs), maxSignaturesPerCall)
		page, err := s.rpc.Signatures(ctx, s.cfg.Address, before, limit)
		if err != nil {
			return sigs, false, err
		}
		sigs = append(sigs, page...)
		if len(page) < limit {
			return sigs, false, nil
		}
		oldest := page[len(page)-1]
		if oldest.BlockTime != nil && time.Unix(*oldest.BlockTime, 0).Before(since) {
			return sigs, false, nil
		}
		before = oldest.Signature
	}
	return sigs, true, nil
}

// StrideSample picks up to k evenly spaced entries, always starting with the first.
func StrideSample[T any](items []T, k int) []T {
	if k <= 0 || len(items) == 0 {
		return nil
	}
	if len(items) <= k {
		return append([]T(nil), items...)
	}
	out := make([]T, 0, k)
	for i := 0; i < k; i++ {
		out = append(out, items[i*len(items)/k])
	}
	return out
}

type sample struct {
	txs    []*Transaction
	failed int
}

func (s *Source) hydrate(ctx context.Context, sigs []SignatureInfo) sample {
	txs := make([]*Transaction, len(sigs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.HydrateConcurrency)
	var mu sync.Mutex
	var failed int
	for i, sig := range sigs {
		g.Go(func() error {
			tx, err := s.rpc.Transaction(gctx, sig.Signature)
			if err != nil {
				s.logger.DebugContext(gctx, "getTransaction failed", "signature", sig.Signature, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			txs[i] = tx
			return nil
		})
	}
	_ = g.Wait()

	out := sample{failed: failed}
	for _, tx := range txs {
		if tx != nil {
			out.txs = append(out.txs, tx)
		}
	}
	return out
}

func (s sample) uniquePayers() int {
	seen := make(map[string]struct{}, len(s.txs))
	for _, tx := range s.txs {
		seen[tx.FeePayer()] = struct{}{}
	}
	return len(seen)
}

// failureRate is a percentage rounded to one decimal.
func (s sample) failureRate() float64 {
	if len(s.txs) == 0 {
		return 0
	}
	failed := 0
	for _, tx := range s.txs {
		if tx.Failed() {
			failed++
		}
	}
	return float64(int(float64(failed)/float64(len(s.txs))*1000+0.5)) / 10
}

// accountCounts counts non-signer accounts per transaction, skipping builtins and self.
func (s sample) accountCounts(self string) map[string]int {
	counts := make(map[string]int)
	for _, tx := range s.txs {
		seen := make(map[string]struct{})
		for _, k := range tx.Transaction.Message.AccountKeys {
			if k.Signer || k.Pubkey == self {
				continue
			}
			if _, ok := builtins[k.Pubkey]; ok {
				continue
			}
			if _, dup := seen[k.Pubkey]; dup {
				continue
			}
			seen[k.Pubkey] = struct{}{}
			counts[k.Pubkey]++
		}
	}
	return counts
}

func topAccounts(counts map[string]int, n int) []radar.AccountCount {
	out := make([]radar.AccountCount, 0, len(counts))
	for addr, c := range counts {
		out = append(out, radar.AccountCount{Address: addr, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Address < out[j].Address
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Describe reports the RPC method and limits.
func (s *Source) Describe() map[string]any {
	return map[string]any{
		"rpc":            s.rpc.URL(),
		"address":        s.cfg.Address,
		"method":         "getSignaturesForAddress paged newest first; getTransaction on a strided sample",
		"max_signatures": s.cfg.MaxSignatures,
		"sample_size":    s.cfg.SampleSize,
		"hydrate":        s.cfg.Hydrate,
	}
}
