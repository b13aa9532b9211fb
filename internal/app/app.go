// Package app assembles sources, pipeline, cache and store from configuration.
package app

import (
	"fmt"
	"log/slog"
	"strings"

	"narrativeradar/internal/cache"
	"narrativeradar/internal/config"
	"narrativeradar/internal/logging"
	"narrativeradar/internal/radar"
	"narrativeradar/internal/sources/github"
	"narrativeradar/internal/sources/rss"
	"narrativeradar/internal/sources/social"
	"narrativeradar/internal/sources/solana"
	"narrativeradar/internal/store"
)

// App holds the wired components shared by the API server and the CLI.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Pipeline *radar.Pipeline
	Ingest   *radar.IngestSource
	Cache    *cache.TTL
	Store    *store.SQLiteStore
}

// New wires every configured source. An empty DBPath disables persistence.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = logging.New(cfg.LogLevel)
	}

	sources, ingest, err := buildSources(cfg, logger)
	if err != nil {
		return nil, err
	}

	topics := radar.DefaultTopics()
	if cfg.TopicsFile != "" {
		topics, err = radar.LoadTopics(cfg.TopicsFile)
		if err != nil {
			return nil, fmt.Errorf("load topics: %w", err)
		}
	}

	pipeline, err := radar.NewPipeline(sources, topics, radar.DefaultScorer())
	if err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}
	ttl := cache.NewTTL()
	pipeline.Cache = ttl
	pipeline.CacheTTL = cfg.CacheTTL
	pipeline.WindowLength = cfg.Window
	pipeline.MaxNarratives = cfg.MaxNarratives
	pipeline.Logger = logging.Component(logger, "pipeline")

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Pipeline: pipeline,
		Ingest:   ingest,
		Cache:    ttl,
	}

	if strings.TrimSpace(cfg.DBPath) != "" {
		st, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.Store = st
	}
	return a, nil
}

// Close releases the store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

func buildSources(cfg config.Config, logger *slog.Logger) (radar.Sources, *radar.IngestSource, error) {
	var sources radar.Sources

	if len(cfg.GitHub.Repos) > 0 {
		client := github.NewClient(
			github.WithBaseURL(cfg.GitHub.BaseURL),
			github.WithToken(cfg.GitHub.Token),
			github.WithPaging(0, cfg.GitHub.MaxCommitPages),
		)
		src, err := github.NewSource(client, cfg.GitHub.Repos, github.WithLogger(logging.Component(logger, "github")))
		if err != nil {
			return sources, nil, err
		}
		sources.Dev = src
	}

	if cfg.Solana.Address != "" {
		scfg := solana.DefaultConfig()
		scfg.Address = cfg.Solana.Address
		scfg.Hydrate = cfg.Solana.Hydrate
		if cfg.Solana.MaxSignatures > 0 {
			scfg.MaxSignatures = cfg.Solana.MaxSignatures
		}
		if cfg.Solana.SampleSize > 0 {
			scfg.SampleSize = cfg.Solana.SampleSize
		}
		l := logging.Component(logger, "solana")
		src, err := solana.NewSource(solana.NewDefaultRPC(cfg.Solana.RPCURL, l), scfg, l)
		if err != nil {
			return sources, nil, err
		}
		sources.Ledger = src
	}

	// Social always participates; a missing token yields an unavailable result.
	client := social.NewClient(cfg.Social.BearerToken, social.WithBaseURL(cfg.Social.BaseURL))
	sources.Social = social.NewSource(client, cfg.Social.Usernames, logging.Component(logger, "social"))

	ingest := radar.NewIngestSource("ingest")
	registry, err := radar.NewSourceRegistry(ingest)
	if err != nil {
		return sources, nil, err
	}
	if len(cfg.Feeds) > 0 {
		feeds := make([]rss.Feed, 0, len(cfg.Feeds))
		for _, f := range cfg.Feeds {
			feeds = append(feeds, rss.Feed{Name: f.Name, URL: f.URL})
		}
		src, err := rss.New(feeds, rss.WithPerFeed(cfg.PerFeed), rss.WithLogger(logging.Component(logger, "rss")))
		if err != nil {
			return sources, nil, err
		}
		registry.Add(src)
	}
	sources.Discourse = registry
	return sources, ingest, nil
}
