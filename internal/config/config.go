// Package config handles application configuration from environment
// variables, with an optional YAML file for the keyword groups and the
// persona template.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EmptyGroupsPolicy controls what the filter does when no keyword groups
// are configured at all.
type EmptyGroupsPolicy string

// Supported policies.
const (
	PolicyAcceptAll EmptyGroupsPolicy = "accept_all"
	PolicyRejectAll EmptyGroupsPolicy = "reject_all"
)

// DigestWindow is one daily digest slot: a local time plus a jitter band.
type DigestWindow struct {
	Hour   int           `yaml:"hour"`
	Minute int           `yaml:"minute"`
	Jitter time.Duration `yaml:"jitter"`
}

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	ChannelID        int64
	AdminUsers       []int64
	DatabasePath     string
	LogLevel         string

	// Ingestion.
	SourceFeeds  []string
	PullTimeout  time.Duration
	BatchLimit   int
	LookbackMax  time.Duration
	EmptyGroups  EmptyGroupsPolicy
	KeywordFile  string
	Keywords     map[string][]string
	StopKeywords []string

	// Generation.
	LLMEndpoint    string
	LLMModel       string
	LLMAPIKey      string
	LLMTimeout     time.Duration
	MaxPayloadLen  int
	PersonaPrompt  string
	RecheckOutput  bool
	MaxCompletion  int

	// Price digests.
	PriceAPIURL  string
	AssetID      string
	AssetSymbol  string
	PriceTimeout time.Duration
	Timezone     string
	Morning      DigestWindow
	Evening      DigestWindow

	// Scheduling.
	BaseInterval   time.Duration
	JitterBand     time.Duration
	MinInterval    time.Duration
	BackoffDelay   time.Duration
	MaxRetries     int
	PublishTimeout time.Duration

	// Dedup.
	DedupRetention time.Duration
}

// Load reads configuration from environment variables and, if CONFIG_PATH
// is set, overlays keyword groups and the persona template from that file.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	channelID, err := envInt64("CHANNEL_ID", 0)
	if err != nil {
		return nil, err
	}
	if channelID == 0 {
		return nil, fmt.Errorf("CHANNEL_ID is required")
	}

	admins, err := envIDList("ADMIN_USERS")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		TelegramBotToken: token,
		ChannelID:        channelID,
		AdminUsers:       admins,
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/bot.db"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),

		SourceFeeds: splitList(os.Getenv("SOURCE_FEEDS")),
		PullTimeout: 30 * time.Second,
		BatchLimit:  100,
		LookbackMax: 24 * time.Hour,
		EmptyGroups: PolicyRejectAll,
		KeywordFile: os.Getenv("CONFIG_PATH"),
		Keywords:    defaultKeywords(),

		LLMEndpoint:   envOrDefault("LLM_API_URL", "https://api.deepseek.com/v1/chat/completions"),
		LLMModel:      envOrDefault("LLM_MODEL", "deepseek-chat"),
		LLMAPIKey:     os.Getenv("LLM_API_KEY"),
		LLMTimeout:    30 * time.Second,
		MaxPayloadLen: 4000,
		PersonaPrompt: defaultPersona,
		RecheckOutput: true,
		MaxCompletion: 300,

		PriceAPIURL:  envOrDefault("PRICE_API_URL", "https://api.coingecko.com/api/v3/simple/price"),
		AssetID:      envOrDefault("ASSET_ID", "the-open-network"),
		AssetSymbol:  envOrDefault("ASSET_SYMBOL", "TON"),
		PriceTimeout: 10 * time.Second,
		Timezone:     envOrDefault("TIMEZONE", "Europe/Moscow"),
		Morning:      DigestWindow{Hour: 11, Jitter: 15 * time.Minute},
		Evening:      DigestWindow{Hour: 22, Jitter: 15 * time.Minute},

		BaseInterval:   30 * time.Minute,
		JitterBand:     10 * time.Minute,
		MinInterval:    time.Minute,
		BackoffDelay:   time.Minute,
		MaxRetries:     3,
		PublishTimeout: 30 * time.Second,

		DedupRetention: 7 * 24 * time.Hour,
	}

	if len(cfg.SourceFeeds) == 0 {
		return nil, fmt.Errorf("SOURCE_FEEDS is required (comma-separated feed URLs)")
	}

	if err := cfg.applyDurationOverrides(); err != nil {
		return nil, err
	}

	if cfg.KeywordFile != "" {
		if err := cfg.overlayFile(cfg.KeywordFile); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("EMPTY_GROUPS_POLICY"); v != "" {
		switch EmptyGroupsPolicy(v) {
		case PolicyAcceptAll, PolicyRejectAll:
			cfg.EmptyGroups = EmptyGroupsPolicy(v)
		default:
			return nil, fmt.Errorf("invalid EMPTY_GROUPS_POLICY %q, use accept_all or reject_all", v)
		}
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

// Location resolves the configured timezone. Load validates it, so the
// fallback only matters for zero-value configs in tests.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsAdmin checks whether a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) applyDurationOverrides() error {
	for _, o := range []struct {
		env string
		dst *time.Duration
	}{
		{"BASE_INTERVAL", &c.BaseInterval},
		{"JITTER_BAND", &c.JitterBand},
		{"BACKOFF_DELAY", &c.BackoffDelay},
		{"DEDUP_RETENTION", &c.DedupRetention},
	} {
		v := os.Getenv(o.env)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", o.env, v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", o.env, d)
		}
		*o.dst = d
	}

	if v := os.Getenv("MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid MAX_RETRIES %q", v)
		}
		c.MaxRetries = n
	}
	return nil
}

// fileOverlay is the YAML surface of the config file. Only the fields that
// are awkward as environment variables live here.
type fileOverlay struct {
	Keywords     map[string][]string `yaml:"keywords"`
	StopKeywords []string            `yaml:"stop_keywords"`
	Persona      string              `yaml:"persona"`
	Morning      *DigestWindow       `yaml:"morning"`
	Evening      *DigestWindow       `yaml:"evening"`
}

func (c *Config) overlayFile(path string) error {
	raw, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var f fileOverlay
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if len(f.Keywords) > 0 {
		c.Keywords = f.Keywords
	}
	if len(f.StopKeywords) > 0 {
		c.StopKeywords = f.StopKeywords
	}
	if f.Persona != "" {
		c.PersonaPrompt = f.Persona
	}
	if f.Morning != nil {
		c.Morning = *f.Morning
	}
	if f.Evening != nil {
		c.Evening = *f.Evening
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envIDList(key string) ([]int64, error) {
	var ids []int64
	for _, s := range splitList(os.Getenv(key)) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in %s: %w", s, key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
