// Package config loads and validates steamscout configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Data       DataConfig       `mapstructure:"data"`
	DB         DBConfig         `mapstructure:"db"`
	Steam      SteamConfig      `mapstructure:"steam"`
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Dimensions DimensionsConfig `mapstructure:"dimensions"`
	Ops        OpsConfig        `mapstructure:"ops"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// DataConfig sets where durable JSON documents live.
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// DBConfig controls access to the ledger database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// SteamConfig points at the remote Steam endpoints.
type SteamConfig struct {
	AppListURL     string `mapstructure:"app_list_url"`
	AppDetailsURL  string `mapstructure:"app_details_url"`
	Locale         string `mapstructure:"locale"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// CrawlConfig governs the enrichment pipeline behavior.
type CrawlConfig struct {
	RequestsPerMinute       int `mapstructure:"requests_per_minute"`
	BatchSize               int `mapstructure:"batch_size"`
	RetryCeiling            int `mapstructure:"retry_ceiling"`
	StalenessDays           int `mapstructure:"staleness_days"`
	CoolDownMinutes         int `mapstructure:"cooldown_minutes"`
	SlowResponseMs          int `mapstructure:"slow_response_ms"`
	SlowPenaltyMs           int `mapstructure:"slow_penalty_ms"`
	Workers                 int `mapstructure:"workers"`
	QuarantineRetentionDays int `mapstructure:"quarantine_retention_days"`
}

// LanguageDimension names one language-support category store and the
// keywords that detect it in the payload's language fields.
type LanguageDimension struct {
	Name     string   `mapstructure:"name"`
	Keywords []string `mapstructure:"keywords"`
}

// FeatureDimension names one feature-tag category store and the numeric
// Steam category id that carries it.
type FeatureDimension struct {
	Name       string `mapstructure:"name"`
	CategoryID int    `mapstructure:"category_id"`
}

// DimensionsConfig lists the classification dimensions to derive; each one
// becomes a durable category store.
type DimensionsConfig struct {
	Languages []LanguageDimension `mapstructure:"languages"`
	Features  []FeatureDimension  `mapstructure:"features"`
}

// OpsConfig toggles the /metrics + /healthz listener served while a pass runs.
type OpsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STEAMSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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

	if len(cfg.Dimensions.Languages) == 0 && len(cfg.Dimensions.Features) == 0 {
		cfg.Dimensions = defaultDimensions()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.dir", "data")
	// Registers the key so the STEAMSCOUT_DB_DSN env override is picked up
	// by Unmarshal; there is no sensible default value.
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("steam.app_list_url", "https://api.steampowered.com/ISteamApps/GetAppList/v2/")
	v.SetDefault("steam.app_details_url", "https://store.steampowered.com/api/appdetails")
	v.SetDefault("steam.locale", "english")
	v.SetDefault("steam.timeout_seconds", 15)
	v.SetDefault("steam.user_agent", "steamscout/1.0 (+https://github.com/lmei/steamscout)")
	v.SetDefault("crawl.requests_per_minute", 200)
	v.SetDefault("crawl.batch_size", 100)
	v.SetDefault("crawl.retry_ceiling", 3)
	v.SetDefault("crawl.staleness_days", 30)
	v.SetDefault("crawl.cooldown_minutes", 5)
	v.SetDefault("crawl.slow_response_ms", 500)
	v.SetDefault("crawl.slow_penalty_ms", 200)
	v.SetDefault("crawl.workers", 1)
	v.SetDefault("crawl.quarantine_retention_days", 30)
	v.SetDefault("ops.enabled", false)
	v.SetDefault("ops.port", 8080)
	v.SetDefault("logging.development", true)
}

// defaultDimensions reproduces the two stores the project started with:
// simplified-Chinese support and Steam trading cards (category 29).
func defaultDimensions() DimensionsConfig {
	return DimensionsConfig{
		Languages: []LanguageDimension{{
			Name:     "chinese_games",
			Keywords: []string{"schinese", "simplified chinese", "简体中文"},
		}},
		Features: []FeatureDimension{{
			Name:       "card_games",
			CategoryID: 29,
		}},
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir must be set")
	}
	if c.Crawl.RequestsPerMinute <= 0 {
		return fmt.Errorf("crawl.requests_per_minute must be > 0")
	}
	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("crawl.batch_size must be > 0")
	}
	if c.Crawl.RetryCeiling <= 0 {
		return fmt.Errorf("crawl.retry_ceiling must be > 0")
	}
	if c.Crawl.StalenessDays <= 0 {
		return fmt.Errorf("crawl.staleness_days must be > 0")
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.Steam.TimeoutSeconds <= 0 {
		return fmt.Errorf("steam.timeout_seconds must be > 0")
	}
	if c.Ops.Enabled && c.Ops.Port <= 0 {
		return fmt.Errorf("ops.port must be > 0 when ops is enabled")
	}
	for _, l := range c.Dimensions.Languages {
		if l.Name == "" || len(l.Keywords) == 0 {
			return fmt.Errorf("dimensions.languages entries need a name and keywords")
		}
	}
	for _, f := range c.Dimensions.Features {
		if f.Name == "" || f.CategoryID <= 0 {
			return fmt.Errorf("dimensions.features entries need a name and category_id")
		}
	}
	return nil
}

// RequestTimeout converts the HTTP timeout config into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Steam.TimeoutSeconds) * time.Second
}

// StalenessWindow is how old a successful classification may get before it
// becomes eligible for a re-check.
func (c Config) StalenessWindow() time.Duration {
	return time.Duration(c.Crawl.StalenessDays) * 24 * time.Hour
}

// CoolDown is how long the whole worker pauses after a 429.
func (c Config) CoolDown() time.Duration {
	return time.Duration(c.Crawl.CoolDownMinutes) * time.Minute
}

// SlowThreshold is the response latency above which the limiter starts
// penalizing subsequent requests.
func (c Config) SlowThreshold() time.Duration {
	return time.Duration(c.Crawl.SlowResponseMs) * time.Millisecond
}

// SlowPenalty is the extra delay inserted after a slow response.
func (c Config) SlowPenalty() time.Duration {
	return time.Duration(c.Crawl.SlowPenaltyMs) * time.Millisecond
}

// QuarantineRetention is how long quarantine entries survive before they
// are pruned on load.
func (c Config) QuarantineRetention() time.Duration {
	return time.Duration(c.Crawl.QuarantineRetentionDays) * 24 * time.Hour
}
