// Package config loads the service configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aero123421/RSS7/internal/logging"
	"github.com/Aero123421/RSS7/internal/model"
)

const (
	configPathEnv   = "RSS7_CONFIG"
	discordTokenEnv = "DISCORD_TOKEN"
	geminiKeyEnv    = "GEMINI_API_KEY"
	geminiKeysEnv   = "GEMINI_API_KEYS"
	lmStudioURLEnv  = "LMSTUDIO_API_URL"
	databaseDSNEnv  = "DATABASE_DSN"
	apiAddrEnv      = "API_ADDR"
	logLevelEnv     = "LOG_LEVEL"
)

// Provider names.
const (
	ProviderLMStudio = "lmstudio"
	ProviderGemini   = "gemini"
)

// Credential selection styles for the Gemini key pool.
const (
	KeyStyleRoundRobin = "round_robin"
	KeyStyleDayPair    = "day_pair"
)

// Configuration validation errors.
var (
	ErrInvalidInterval      = errors.New("rss.check_interval must be at least 1 minute")
	ErrInvalidMaxArticles   = errors.New("rss.max_articles must be at least 1")
	ErrInvalidProvider      = errors.New("ai.provider must be one of: lmstudio, gemini")
	ErrInvalidKeyStyle      = errors.New("ai.key_style must be one of: round_robin, day_pair")
	ErrInvalidLogLevel      = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidSummaryLength = errors.New("ai.summary_length must be at least 10")
	ErrInvalidDatabase      = errors.New("database.driver must be sqlite or postgres")
)

// Config is the complete service configuration.
type Config struct {
	Discord    DiscordConfig    `yaml:"discord"`
	Database   DatabaseConfig   `yaml:"database"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
	RSS        RSSConfig        `yaml:"rss"`
	AI         AIConfig         `yaml:"ai"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Categories []model.Category `yaml:"categories"`
	Feeds      []FeedConfig     `yaml:"feeds"`
}

// DiscordConfig holds the chat platform credentials.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guild_id"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// APIConfig configures the admin HTTP surface.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// RSSConfig controls fetching and polling.
type RSSConfig struct {
	CheckInterval int           `yaml:"check_interval"` // minutes
	MaxArticles   int           `yaml:"max_articles"`
	FeedPause     time.Duration `yaml:"feed_pause"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	HostInterval  time.Duration `yaml:"host_interval"`
	UserAgent     string        `yaml:"user_agent"`
	RetentionDays int           `yaml:"retention_days"`
}

// AIConfig configures the text-generation providers and enrichment steps.
type AIConfig struct {
	Provider          string        `yaml:"provider"`
	FallbackProvider  string        `yaml:"fallback_provider"`
	LMStudioURL       string        `yaml:"lmstudio_api_url"`
	LMStudioModel     string        `yaml:"lmstudio_model"`
	GeminiAPIKey      string        `yaml:"gemini_api_key"`
	GeminiAPIKeys     []string      `yaml:"gemini_api_keys"`
	GeminiModel       string        `yaml:"gemini_model"`
	GeminiBaseURL     string        `yaml:"gemini_base_url"`
	QAModel           string        `yaml:"qa_model"`
	KeyStyle          string        `yaml:"key_style"`
	Summarize         bool          `yaml:"summarize"`
	SummaryLength     int           `yaml:"summary_length"`
	Classify          bool          `yaml:"classify"`
	Keywords          bool          `yaml:"keywords"`
	TargetLanguage    string        `yaml:"target_language"`
	CallTimeout       time.Duration `yaml:"call_timeout"`
	Cooldown          time.Duration `yaml:"rate_limit_cooldown"`
	MaxRotationCycles int           `yaml:"max_rotation_cycles"`
}

// DeliveryConfig controls the worker and message rendering.
type DeliveryConfig struct {
	Pacing        time.Duration `yaml:"pacing"`
	SnapshotCap   int           `yaml:"snapshot_cap"`
	EmbedColor    int           `yaml:"embed_color"`
	UseThumbnails bool          `yaml:"use_thumbnails"`
}

// FeedConfig is a feed seeded from the config file at startup.
type FeedConfig struct {
	URL            string `yaml:"url"`
	Title          string `yaml:"title"`
	Channel        string `yaml:"channel"`
	SummaryProfile string `yaml:"summary_profile"`
}

// Feed converts the seed entry to a model.Feed.
func (f FeedConfig) Feed() model.Feed {
	return model.Feed{
		URL:            strings.TrimSpace(f.URL),
		Title:          f.Title,
		ChannelID:      f.Channel,
		SummaryProfile: model.ParseSummaryProfile(f.SummaryProfile),
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", Path: "data/rss7.db"},
		API:      APIConfig{Addr: ":8080"},
		Logging:  LoggingConfig{Level: "info"},
		RSS: RSSConfig{
			CheckInterval: 15,
			MaxArticles:   5,
			FeedPause:     time.Second,
			FetchTimeout:  30 * time.Second,
			MaxRetries:    3,
			RetryDelay:    time.Second,
			HostInterval:  500 * time.Millisecond,
			UserAgent:     "Discord RSS Bot/1.0",
			RetentionDays: 30,
		},
		AI: AIConfig{
			Provider:          ProviderLMStudio,
			FallbackProvider:  ProviderGemini,
			LMStudioURL:       "http://localhost:1234/v1",
			LMStudioModel:     "local-model",
			GeminiModel:       "gemini-2.0-flash",
			GeminiBaseURL:     "https://generativelanguage.googleapis.com/v1beta",
			QAModel:           "gemini-2.5-flash",
			KeyStyle:          KeyStyleRoundRobin,
			Summarize:         true,
			SummaryLength:     4000,
			Classify:          false,
			Keywords:          true,
			TargetLanguage:    "ja",
			CallTimeout:       60 * time.Second,
			Cooldown:          30 * time.Second,
			MaxRotationCycles: 3,
		},
		Delivery: DeliveryConfig{
			Pacing:        10 * time.Second,
			SnapshotCap:   1000,
			EmbedColor:    3447003,
			UseThumbnails: true,
		},
		Categories: DefaultCategories(),
	}
}

// DefaultCategories returns the eight built-in classification labels.
func DefaultCategories() []model.Category {
	return []model.Category{
		{Name: "technology", Label: "テクノロジー", Emoji: "🖥️", Color: 0x3498db},
		{Name: "business", Label: "ビジネス", Emoji: "💼", Color: 0xf1c40f},
		{Name: "science", Label: "科学", Emoji: "🔬", Color: 0x1abc9c},
		{Name: "health", Label: "健康", Emoji: "🏥", Color: 0xe67e22},
		{Name: "entertainment", Label: "エンタメ", Emoji: "🎬", Color: 0x9b59b6},
		{Name: "sports", Label: "スポーツ", Emoji: "⚽", Color: 0x2ecc71},
		{Name: "politics", Label: "政治", Emoji: "🏛️", Color: 0xe74c3c},
		{Name: model.CategoryOther, Label: "その他", Emoji: "📌", Color: 0x95a5a6},
	}
}

// Load reads the YAML file at path (or $RSS7_CONFIG when path is empty) over
// the defaults, then applies environment overrides and validates the result.
// A missing file at the default location is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(configPathEnv)
		explicit = path != ""
	}
	if explicit {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(discordTokenEnv); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv(geminiKeyEnv); v != "" && c.AI.GeminiAPIKey == "" {
		c.AI.GeminiAPIKey = v
	}
	if v := os.Getenv(geminiKeysEnv); v != "" && len(c.AI.GeminiAPIKeys) == 0 {
		c.AI.GeminiAPIKeys = splitList(v)
	}
	if v := os.Getenv(lmStudioURLEnv); v != "" {
		c.AI.LMStudioURL = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
		c.Database.Driver = "postgres"
	}
	if v := os.Getenv(apiAddrEnv); v != "" {
		c.API.Addr = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

// normalize folds the single legacy key into the key list and fills empty
// collections with defaults.
func (c *Config) normalize() {
	c.AI.GeminiAPIKeys = GeminiKeys(c.AI)
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	c.AI.FallbackProvider = strings.ToLower(strings.TrimSpace(c.AI.FallbackProvider))
	if len(c.Categories) == 0 {
		c.Categories = DefaultCategories()
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
}

// GeminiKeys returns the configured key list, with the single legacy key
// appended when it is not already present.
func GeminiKeys(ai AIConfig) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, k := range append(append([]string{}, ai.GeminiAPIKeys...), ai.GeminiAPIKey) {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RSS.CheckInterval < 1 {
		return ErrInvalidInterval
	}
	if c.RSS.MaxArticles < 1 {
		return ErrInvalidMaxArticles
	}
	if !validProvider(c.AI.Provider) {
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.AI.Provider)
	}
	if c.AI.FallbackProvider != "" && !validProvider(c.AI.FallbackProvider) {
		return fmt.Errorf("%w: fallback %q", ErrInvalidProvider, c.AI.FallbackProvider)
	}
	if c.AI.KeyStyle != KeyStyleRoundRobin && c.AI.KeyStyle != KeyStyleDayPair {
		return fmt.Errorf("%w: %q", ErrInvalidKeyStyle, c.AI.KeyStyle)
	}
	if c.AI.SummaryLength < 10 {
		return ErrInvalidSummaryLength
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDatabase, c.Database.Driver)
	}
	return nil
}

// Warnings lists non-fatal problems, such as a selected provider without
// credentials. Calls needing the credential fail when made.
func (c *Config) Warnings() []string {
	var out []string
	usesGemini := c.AI.Provider == ProviderGemini || c.AI.FallbackProvider == ProviderGemini
	if usesGemini && len(c.AI.GeminiAPIKeys) == 0 {
		out = append(out, "gemini selected but no API key configured")
	}
	if c.AI.KeyStyle == KeyStyleDayPair && len(c.AI.GeminiAPIKeys) < 2 {
		out = append(out, "day_pair key style needs two keys; using round_robin order")
	}
	if c.Discord.Token == "" {
		out = append(out, "discord token not set; deliveries go to the HTTP outbox")
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		out = append(out, "postgres selected without a DSN")
	}
	return out
}

func validProvider(p string) bool {
	return p == ProviderLMStudio || p == ProviderGemini
}
