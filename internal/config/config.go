// Package config loads menuscrape settings from a YAML/JSON file and
// MENUSCRAPE_* environment variables using viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"menuscrape/internal/fetch"
	"menuscrape/internal/menu"
)

// Config holds all settings of the scraper, the reconciler and the API.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Render  RenderConfig  `mapstructure:"render"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Output  OutputConfig  `mapstructure:"output"`
	Storage StorageConfig `mapstructure:"storage"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	API     APIConfig     `mapstructure:"api"`
}

// SourceConfig selects the menu to scrape.
type SourceConfig struct {
	ListingURL string `mapstructure:"listing_url"`
	Mode       string `mapstructure:"mode"`    // auto | fragments | links
	Profile    string `mapstructure:"profile"` // selector profile JSON; empty = built-in
}

// FetchConfig configures HTTP fetching and retries.
type FetchConfig struct {
	Attempts          int           `mapstructure:"attempts"`
	BackoffUnit       time.Duration `mapstructure:"backoff_unit"`
	CooldownUnits     int           `mapstructure:"cooldown_units"`
	Timeout           time.Duration `mapstructure:"timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"` // 0 = unlimited
	Burst             int           `mapstructure:"burst"`
}

// RenderConfig selects the product page renderer.
type RenderConfig struct {
	Kind        string        `mapstructure:"kind"` // static | chrome
	Headless    bool          `mapstructure:"headless"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
}

// RuntimeConfig holds concurrency settings.
type RuntimeConfig struct {
	Workers int `mapstructure:"workers"`
}

// OutputConfig names the corpus files.
type OutputConfig struct {
	CorpusPath   string `mapstructure:"corpus_path"`
	BaselinePath string `mapstructure:"baseline_path"`
	AppendNew    bool   `mapstructure:"append_new"`
}

// StorageConfig optionally mirrors the corpus into SQL.
type StorageConfig struct {
	Kind  string `mapstructure:"kind"` // "" | sqlite | postgres | mssql
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	Backend    string        `mapstructure:"backend"` // none | datadog
	JobName    string        `mapstructure:"job_name"`
	Tags       string        `mapstructure:"tags"` // comma-separated key:value
	FlushEvery time.Duration `mapstructure:"flush_every"`
}

// APIConfig configures the lookup API.
type APIConfig struct {
	Port        string `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
	CorpusPath  string `mapstructure:"corpus_path"`
	Source      string `mapstructure:"source"` // file | storage
}

// Load reads configuration.
//
// With a non-empty path that file is read and must exist. Otherwise
// menuscrape.{yaml,yml,json} is searched in "." and "./configs" and a missing
// file is not an error. Environment variables (MENUSCRAPE_FETCH_ATTEMPTS,
// ...) override the file; defaults fill the rest.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("menuscrape")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix("MENUSCRAPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if cfg.Storage.Kind != "" && cfg.Storage.DSN == "" {
		dsn, ok, err := ResolveStorageDSN(cfg.Storage.Kind, nil)
		if err != nil {
			return nil, err
		}
		if ok {
			cfg.Storage.DSN = dsn
		}
	}
	return &cfg, nil
}

// setDefaults registers a default for every key so AutomaticEnv can
// override keys that no file mentions.
func setDefaults(v *viper.Viper) {
	v.SetDefault("source.listing_url", menu.DefaultListingURL)
	v.SetDefault("source.mode", string(menu.ModeAuto))
	v.SetDefault("source.profile", "")

	def := fetch.DefaultPolicy()
	v.SetDefault("fetch.attempts", def.Attempts)
	v.SetDefault("fetch.backoff_unit", def.Unit)
	v.SetDefault("fetch.cooldown_units", def.CooldownUnits)
	v.SetDefault("fetch.timeout", "20s")
	v.SetDefault("fetch.user_agent", fetch.DefaultUserAgent)
	v.SetDefault("fetch.requests_per_second", 0)
	v.SetDefault("fetch.burst", 1)

	v.SetDefault("render.kind", "static")
	v.SetDefault("render.headless", true)
	v.SetDefault("render.wait_timeout", menu.DefaultWaitTimeout)

	v.SetDefault("runtime.workers", 1)

	v.SetDefault("output.corpus_path", "menu_data.json")
	v.SetDefault("output.baseline_path", "")
	v.SetDefault("output.append_new", false)

	v.SetDefault("storage.kind", "")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.table", "")

	v.SetDefault("metrics.backend", "none")
	v.SetDefault("metrics.job_name", "menuscrape")
	v.SetDefault("metrics.tags", "")
	v.SetDefault("metrics.flush_every", "1m")

	v.SetDefault("api.port", "8080")
	v.SetDefault("api.environment", "development")
	v.SetDefault("api.corpus_path", "menu_data.json")
	v.SetDefault("api.source", "file")
}

// FetchPolicy returns the retry policy described by c.
func (c FetchConfig) FetchPolicy() fetch.Policy {
	p := fetch.DefaultPolicy()
	p.Attempts = c.Attempts
	p.Unit = c.BackoffUnit
	p.CooldownUnits = c.CooldownUnits
	return p
}
