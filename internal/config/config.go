package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config captures runtime configuration for the radar service and CLI.
type Config struct {
	ListenAddr    string
	DBPath        string
	LogLevel      string
	Window        time.Duration
	MaxNarratives int
	CacheTTL      time.Duration
	TopicsFile    string
	GitHub        GitHubConfig
	Feeds         []FeedConfig
	PerFeed       int
	Solana        SolanaConfig
	Social        SocialConfig
}

// GitHubConfig selects the tracked repositories.
type GitHubConfig struct {
	Token          string   `yaml:"-"`
	BaseURL        string   `yaml:"baseUrl"`
	Repos          []string `yaml:"repos"`
	MaxCommitPages int      `yaml:"maxCommitPages"`
}

// FeedConfig is one RSS/Atom feed.
type FeedConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// SolanaConfig bounds the ledger scan.
type SolanaConfig struct {
	RPCURL        string `yaml:"rpcUrl"`
	Address       string `yaml:"address"`
	Hydrate       bool   `yaml:"-"`
	MaxSignatures int    `yaml:"maxSignatures"`
	SampleSize    int    `yaml:"sampleSize"`
}

// SocialConfig selects the curated accounts.
type SocialConfig struct {
	BearerToken string   `yaml:"-"`
	BaseURL     string   `yaml:"baseUrl"`
	Usernames   []string `yaml:"usernames"`
}

// fileConfig is the YAML shape read from RADAR_CONFIG.
type fileConfig struct {
	ListenAddr    string       `yaml:"listenAddr"`
	DBPath        string       `yaml:"dbPath"`
	LogLevel      string       `yaml:"logLevel"`
	WindowDays    int          `yaml:"windowDays"`
	MaxNarratives int          `yaml:"maxNarratives"`
	CacheMS       int          `yaml:"cacheMs"`
	TopicsFile    string       `yaml:"topicsFile"`
	GitHub        GitHubConfig `yaml:"github"`
	Feeds         []FeedConfig `yaml:"feeds"`
	PerFeed       int          `yaml:"perFeed"`
	Solana        struct {
		SolanaConfig `yaml:",inline"`
		Hydrate      *bool `yaml:"hydrate"`
	} `yaml:"solana"`
	Social SocialConfig `yaml:"social"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		ListenAddr:    ":8080",
		DBPath:        "data/radar.db",
		LogLevel:      "info",
		Window:        14 * 24 * time.Hour,
		MaxNarratives: 12,
		CacheTTL:      10 * time.Minute,
		GitHub: GitHubConfig{
			Repos: []string{
				"solana-labs/solana",
				"coral-xyz/anchor",
				"metaplex-foundation/mpl-token-metadata",
				"jito-foundation/jito-solana",
				"helius-labs/helius-sdk",
			},
			MaxCommitPages: 3,
		},
		Feeds: []FeedConfig{
			{Name: "Solana Blog", URL: "https://solana.com/rss.xml"},
			{Name: "Helius Blog", URL: "https://www.helius.dev/blog/rss.xml"},
			{Name: "Solana Compass", URL: "https://solanacompass.com/rss"},
			{Name: "Solana Foundation Medium", URL: "https://medium.com/feed/solana-foundation"},
			{Name: "Jito Blog", URL: "https://www.jito.network/blog/rss.xml"},
			{Name: "Metaplex (news)", URL: "https://www.metaplex.com/rss.xml"},
			{Name: "Jupiter (station)", URL: "https://station.jup.ag/rss.xml"},
			{Name: "Messari (Solana tag)", URL: "https://messari.io/rss?tags=solana"},
		},
		PerFeed: 30,
		Solana: SolanaConfig{
			RPCURL:        "https://api.mainnet-beta.solana.com",
			Address:       "BPFLoaderUpgradeab1e11111111111111111111111",
			Hydrate:       true,
			MaxSignatures: 1000,
			SampleSize:    25,
		},
		Social: SocialConfig{
			BaseURL: "https://api.twitter.com/2",
			Usernames: []string{
				"mert", "toly", "aeyakovenko", "solana", "solana_devs", "superteam",
				"heliuslabs", "jito_sol", "jupiterexchange", "0xakshayy", "driftprotocol",
				"orca_so", "kamino_finance", "marinadefinance", "metaplex", "solanalabs",
			},
		},
	}
}

// FromEnv loads .env, then the optional YAML file named by RADAR_CONFIG, then
// environment overrides. Environment values win over file values, which win over defaults.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("RADAR_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read RADAR_CONFIG: %w", err)
		}
		if err := cfg.mergeYAML(raw); err != nil {
			return Config{}, fmt.Errorf("parse RADAR_CONFIG: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeYAML(raw []byte) error {
	var f fileConfig
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return err
	}
	setString(&c.ListenAddr, f.ListenAddr)
	setString(&c.DBPath, f.DBPath)
	setString(&c.LogLevel, f.LogLevel)
	setString(&c.TopicsFile, f.TopicsFile)
	if f.WindowDays > 0 {
		c.Window = time.Duration(f.WindowDays) * 24 * time.Hour
	}
	if f.MaxNarratives > 0 {
		c.MaxNarratives = f.MaxNarratives
	}
	if f.CacheMS > 0 {
		c.CacheTTL = time.Duration(f.CacheMS) * time.Millisecond
	}

	setString(&c.GitHub.BaseURL, f.GitHub.BaseURL)
	if len(f.GitHub.Repos) > 0 {
		c.GitHub.Repos = f.GitHub.Repos
	}
	if f.GitHub.MaxCommitPages > 0 {
		c.GitHub.MaxCommitPages = f.GitHub.MaxCommitPages
	}
	if len(f.Feeds) > 0 {
		c.Feeds = f.Feeds
	}
	if f.PerFeed > 0 {
		c.PerFeed = f.PerFeed
	}

	setString(&c.Solana.RPCURL, f.Solana.RPCURL)
	setString(&c.Solana.Address, f.Solana.Address)
	if f.Solana.Hydrate != nil {
		c.Solana.Hydrate = *f.Solana.Hydrate
	}
	if f.Solana.MaxSignatures > 0 {
		c.Solana.MaxSignatures = f.Solana.MaxSignatures
	}
	if f.Solana.SampleSize > 0 {
		c.Solana.SampleSize = f.Solana.SampleSize
	}

	setString(&c.Social.BaseURL, f.Social.BaseURL)
	if len(f.Social.Usernames) > 0 {
		c.Social.Usernames = f.Social.Usernames
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.ListenAddr = getEnv("RADAR_LISTEN_ADDR", c.ListenAddr)
	c.DBPath = getEnv("RADAR_DB_PATH", c.DBPath)
	c.LogLevel = getEnv("RADAR_LOG_LEVEL", c.LogLevel)
	c.TopicsFile = getEnv("RADAR_TOPICS_FILE", c.TopicsFile)
	c.GitHub.Token = getEnv("GITHUB_TOKEN", c.GitHub.Token)
	c.Social.BearerToken = getEnv("X_BEARER_TOKEN", c.Social.BearerToken)
	c.Social.BaseURL = getEnv("X_API_BASE", c.Social.BaseURL)
	c.Solana.RPCURL = getEnv("SOLANA_RPC_URL", c.Solana.RPCURL)

	if v := os.Getenv("RADAR_GITHUB_REPOS"); v != "" {
		c.GitHub.Repos = splitList(v)
	}
	if v := os.Getenv("X_USERNAMES"); v != "" {
		c.Social.Usernames = splitList(v)
	}
	if v := os.Getenv("ONCHAIN_HYDRATE"); v != "" {
		c.Solana.Hydrate = v != "0" && !strings.EqualFold(v, "false")
	}

	if v := os.Getenv("SIGNALS_CACHE_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return fmt.Errorf("parse SIGNALS_CACHE_MS: %q", v)
		}
		c.CacheTTL = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("RADAR_WINDOW_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			return fmt.Errorf("parse RADAR_WINDOW_DAYS: %q", v)
		}
		c.Window = time.Duration(days) * 24 * time.Hour
	}
	if v := os.Getenv("RADAR_MAX_NARRATIVES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("parse RADAR_MAX_NARRATIVES: %q", v)
		}
		c.MaxNarratives = n
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
