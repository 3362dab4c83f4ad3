package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model. It captures the account
// being archived, API credentials, fetch behavior and output paths.
type Config struct {
	Account     AccountConfig     `yaml:"account"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Paths       PathsConfig       `yaml:"paths"`
	Render      RenderConfig      `yaml:"render"`
	LogLevel    string            `yaml:"logLevel"`
	MetricsAddr string            `yaml:"metricsAddr"`
}

type AccountConfig struct {
	// Handle is the screen name of the archived account, without the "@".
	Handle string `yaml:"handle"`
	// Query is the search query used for live timeline fetches,
	// e.g. "from:dril include:nativeretweets".
	Query string `yaml:"query"`
}

type CredentialsConfig struct {
	// API bearer token. If empty, read from env TWITTER_BEARER.
	APIToken string `yaml:"apiToken"`
	// Bearer token for the adaptive web search. A leading "Bearer " prefix
	// is tolerated and stripped. If empty, read from env ADAPTIVE_BEARER.
	AdaptiveToken string `yaml:"adaptiveToken"`
	// Guest token sent alongside adaptive search requests.
	AdaptiveGuestToken string `yaml:"adaptiveGuestToken"`
}

type FetchConfig struct {
	FromAdaptiveSearch bool `yaml:"fromAdaptiveSearch"`
	FromAPISearch      bool `yaml:"fromAPISearch"`
	// Serve API responses from the local cache when available. Lets an
	// interrupted run resume without re-fetching.
	FromCachedResponses bool `yaml:"fromCachedResponses"`
	// Maximum retries after a rate limit response.
	RetriesOn429 int `yaml:"retriesOn429"`
	// Delay applied between any two API requests.
	PoliteDelay time.Duration `yaml:"politeDelay"`
	// Wait applied when a rate limit response carries no usable reset time.
	IdleWait time.Duration `yaml:"idleWait"`
	// Tweets older than this epoch timestamp are exempt from retweet
	// re-resolution. Zero means the default cutoff (Jan 1 2006 UTC).
	RetweetSince int64 `yaml:"retweetSince"`
}

type PathsConfig struct {
	BuildDir string `yaml:"buildDir"`
	OutDir   string `yaml:"outDir"`
	// CSV is the path to the spreadsheet export, empty to skip CSV ingest.
	CSV string `yaml:"csv"`
	// CacheDB is the sqlite file holding cached API responses.
	CacheDB string `yaml:"cacheDB"`
}

type RenderConfig struct {
	// TweetsPerPage for the paginated timeline, <=0 renders one page.
	TweetsPerPage int `yaml:"tweetsPerPage"`
	// TopCount is the size of the top-liked/top-retweeted cuts.
	TopCount int `yaml:"topCount"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Account: AccountConfig{Handle: "dril", Query: "from:dril include:nativeretweets"},
		Fetch: FetchConfig{
			FromCachedResponses: true,
			RetriesOn429:        5,
			PoliteDelay:         2 * time.Second,
			IdleWait:            10 * time.Second,
		},
		Paths: PathsConfig{
			BuildDir: "./.build",
			OutDir:   "./output",
			CacheDB:  "./.build/responses.db",
		},
		Render:   RenderConfig{TweetsPerPage: 1000, TopCount: 250},
		LogLevel: "info",
	}
}

// ResolveEnv fills in credential fields from environment variables if unset
// and normalizes the adaptive token.
func (c *Config) ResolveEnv() {
	if c.Credentials.APIToken == "" {
		c.Credentials.APIToken = os.Getenv("TWITTER_BEARER")
	}
	if c.Credentials.AdaptiveToken == "" {
		c.Credentials.AdaptiveToken = os.Getenv("ADAPTIVE_BEARER")
	}
	if c.Credentials.AdaptiveGuestToken == "" {
		c.Credentials.AdaptiveGuestToken = os.Getenv("ADAPTIVE_GUEST_TOKEN")
	}
	c.Credentials.AdaptiveToken = strings.TrimPrefix(c.Credentials.AdaptiveToken, "Bearer ")
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	if cfg.Fetch.RetriesOn429 <= 0 {
		cfg.Fetch.RetriesOn429 = 5
	}
	if cfg.Fetch.PoliteDelay <= 0 {
		cfg.Fetch.PoliteDelay = 2 * time.Second
	}
	if cfg.Fetch.IdleWait <= 0 {
		cfg.Fetch.IdleWait = 10 * time.Second
	}
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
