// Package config loads process-wide configuration once at driver start-up
// into an immutable Config value threaded to each stage. Stages never read
// configuration mid-run.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Data     Data     `mapstructure:"data"`
	Crawler  Crawler  `mapstructure:"crawler"`
	DeepSeek DeepSeek `mapstructure:"deepseek"`

	// Thresholds and BannedWords are loaded from their own files, not
	// from the viper tree; see LoadThresholds and LoadBannedWords.
	Thresholds  Thresholds
	BannedWords []string
}

// Data holds filesystem and database layout configuration.
type Data struct {
	DBPath         string `mapstructure:"db_path"`
	SchemaFile     string `mapstructure:"schema_file"`
	SeedFile       string `mapstructure:"seed_file"`
	ThresholdsFile string `mapstructure:"thresholds_file"`
	BannedWords    string `mapstructure:"banned_words_file"`
	WebsiteDir     string `mapstructure:"website_dir"`
	ResponsesDir   string `mapstructure:"responses_dir"`
	LogDir         string `mapstructure:"log_dir"`
	CheckpointFile string `mapstructure:"checkpoint_file"`
}

// Crawler holds mining configuration. Threshold-derived values
// (articles per seed, timeouts, image byte floors) live in Thresholds.
type Crawler struct {
	Mode      string `mapstructure:"mode"` // quick, batch, collection
	UserAgent string `mapstructure:"user_agent"`
}

// DeepSeek holds LLM orchestrator configuration. The API key itself is
// read from the apikey table, not from here.
type DeepSeek struct {
	BaseURL         string `mapstructure:"base_url"`
	Model           string `mapstructure:"model"`
	RequestTimeout  string `mapstructure:"request_timeout"`
	RequestInterval string `mapstructure:"request_interval"`
	Workers         int    `mapstructure:"workers"`
	StaleCooldown   string `mapstructure:"stale_cooldown"`
}

// MaxWorkers bounds the orchestrator pool; the provider rate limit makes
// larger pools pointless.
const MaxWorkers = 4

// Load reads .env (if present), the optional config file, and environment
// variables, then resolves the thresholds and banned-words files.
func Load(cfgFile string) (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return Config{}, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".newsminer")
	}
	viper.AutomaticEnv()

	setDefaults()

	// A missing config file is fine; defaults and env cover everything.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	thresholds, err := LoadThresholds(cfg.Data.ThresholdsFile)
	if err != nil {
		return Config{}, err
	}
	cfg.Thresholds = thresholds

	banned, err := LoadBannedWords(cfg.Data.BannedWords)
	if err != nil {
		return Config{}, err
	}
	cfg.BannedWords = banned

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("data.db_path", "data/news.db")
	viper.SetDefault("data.schema_file", "config/schema.sql")
	viper.SetDefault("data.seed_file", "config/seed_data.json")
	viper.SetDefault("data.thresholds_file", "config/thresholds.json")
	viper.SetDefault("data.banned_words_file", "config/banned_words.txt")
	viper.SetDefault("data.website_dir", "website")
	viper.SetDefault("data.responses_dir", "responses")
	viper.SetDefault("data.log_dir", "log")
	viper.SetDefault("data.checkpoint_file", "data/image_checkpoint.json")

	viper.SetDefault("crawler.mode", "batch")
	viper.SetDefault("crawler.user_agent", "NewsMiner/1.0 (+https://github.com/daijiong1977/news-sub002)")

	viper.SetDefault("deepseek.base_url", "https://api.deepseek.com/v1")
	viper.SetDefault("deepseek.model", "deepseek-chat")
	viper.SetDefault("deepseek.request_timeout", "60s")
	viper.SetDefault("deepseek.request_interval", "3s")
	viper.SetDefault("deepseek.workers", 1)
	viper.SetDefault("deepseek.stale_cooldown", "30m")
}

// RequestTimeout parses the DeepSeek per-request deadline.
func (d DeepSeek) RequestTimeoutDuration() time.Duration {
	return parseDurationOr(d.RequestTimeout, 60*time.Second)
}

// RequestIntervalDuration parses the inter-request delay.
func (d DeepSeek) RequestIntervalDuration() time.Duration {
	return parseDurationOr(d.RequestInterval, 3*time.Second)
}

// StaleCooldownDuration parses the stale-claim recovery cooldown.
func (d DeepSeek) StaleCooldownDuration() time.Duration {
	return parseDurationOr(d.StaleCooldown, 30*time.Minute)
}

// WorkerCount clamps the configured pool size to [1, MaxWorkers].
func (d DeepSeek) WorkerCount() int {
	n := d.Workers
	if n < 1 {
		n = 1
	}
	if n > MaxWorkers {
		n = MaxWorkers
	}
	return n
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
