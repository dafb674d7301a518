// Package config loads and validates downloader configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/ogimet-history/internal/crawler"
	collyfetcher "github.com/JakeFAU/ogimet-history/internal/fetcher/colly"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Output  OutputConfig  `mapstructure:"output"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Batch   BatchConfig   `mapstructure:"batch"`
}

// OutputConfig locates the series tree.
type OutputConfig struct {
	Root string `mapstructure:"root"`
}

// FetchConfig configures page retrieval.
type FetchConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
	// RequestsPerSecond paces requests to the upstream host; zero disables it.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig controls the end-of-process metrics dump.
type MetricsConfig struct {
	// Textfile is a node-exporter textfile path; empty disables the dump.
	Textfile string `mapstructure:"textfile"`
}

// BatchConfig drives the batch command.
type BatchConfig struct {
	StationsFile         string   `mapstructure:"stations_file"`
	MinLatitude          *float64 `mapstructure:"min_latitude"`
	Start                string   `mapstructure:"start"`
	End                  string   `mapstructure:"end"`
	SplitMonths          bool     `mapstructure:"split_months"`
	MaxConsecutiveAborts int      `mapstructure:"max_consecutive_aborts"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OGIMET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees env values for keys it already knows.
	if err := v.BindEnv("batch.min_latitude"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output.root", "data")
	v.SetDefault("fetch.base_url", crawler.DefaultBaseURL)
	v.SetDefault("fetch.max_attempts", collyfetcher.DefaultMaxAttempts)
	v.SetDefault("fetch.backoff", collyfetcher.DefaultBackoff)
	v.SetDefault("fetch.timeout", collyfetcher.DefaultTimeout)
	v.SetDefault("fetch.user_agent", "ogimet-history/0.1")
	v.SetDefault("fetch.requests_per_second", 0)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("batch.stations_file", "uk-station-data.csv")
	v.SetDefault("batch.start", "2000-01")
	v.SetDefault("batch.end", "2022-12")
	v.SetDefault("batch.split_months", true)
	v.SetDefault("batch.max_consecutive_aborts", 3)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Output.Root == "" {
		return fmt.Errorf("output.root must be set")
	}
	if c.Fetch.BaseURL == "" {
		return fmt.Errorf("fetch.base_url must be set")
	}
	if c.Fetch.MaxAttempts <= 0 {
		return fmt.Errorf("fetch.max_attempts must be > 0")
	}
	if c.Fetch.Backoff < 0 {
		return fmt.Errorf("fetch.backoff must be >= 0")
	}
	if c.Fetch.RequestsPerSecond < 0 {
		return fmt.Errorf("fetch.requests_per_second must be >= 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Batch.MaxConsecutiveAborts <= 0 {
		return fmt.Errorf("batch.max_consecutive_aborts must be > 0")
	}
	if _, _, err := c.Batch.Window(); err != nil {
		return err
	}
	return nil
}

// Window parses the batch start and end months.
func (b BatchConfig) Window() (crawler.MonthKey, crawler.MonthKey, error) {
	start, err := crawler.ParseMonthKey(b.Start)
	if err != nil {
		return crawler.MonthKey{}, crawler.MonthKey{}, fmt.Errorf("batch.start: %w", err)
	}
	end, err := crawler.ParseMonthKey(b.End)
	if err != nil {
		return crawler.MonthKey{}, crawler.MonthKey{}, fmt.Errorf("batch.end: %w", err)
	}
	if end.Before(start) {
		return crawler.MonthKey{}, crawler.MonthKey{}, fmt.Errorf("batch.end %s is before batch.start %s", end, start)
	}
	return start, end, nil
}
