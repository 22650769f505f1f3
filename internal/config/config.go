// Package config loads application configuration from file and environment.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Adzuna     AdzunaConfig     `yaml:"adzuna" mapstructure:"adzuna"`
	Contracts  ContractsConfig  `yaml:"contracts" mapstructure:"contracts"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// EngineConfig holds the thresholds driving lifecycle classification and
// signal generation.
type EngineConfig struct {
	// FuzzyMatchThreshold is the minimum name similarity percentage for a
	// fuzzy company match. False merges are irreversible downstream, so the
	// default trades recall for precision.
	FuzzyMatchThreshold float64 `yaml:"fuzzy_match_threshold" mapstructure:"fuzzy_match_threshold"`
	// RepostTitleThreshold is the minimum core-title similarity percentage
	// linking a new posting to an inactive predecessor.
	RepostTitleThreshold float64 `yaml:"repost_title_threshold" mapstructure:"repost_title_threshold"`
	// RepostScanWindow bounds how many recent inactive postings are searched.
	RepostScanWindow int `yaml:"repost_scan_window" mapstructure:"repost_scan_window"`
	// RefreshWindowDays separates hard-to-fill (recently refreshed) from
	// stale classifications.
	RefreshWindowDays int `yaml:"refresh_window_days" mapstructure:"refresh_window_days"`
	// StalenessDays is how long a posting may go unseen before the sweep
	// flips it inactive.
	StalenessDays int `yaml:"staleness_days" mapstructure:"staleness_days"`
	// ContractMinValue is the minimum award value considered for the
	// contract-no-hiring reconciliation.
	ContractMinValue float64 `yaml:"contract_min_value" mapstructure:"contract_min_value"`
	// ContractLookbackDays bounds the reconciliation query.
	ContractLookbackDays int `yaml:"contract_lookback_days" mapstructure:"contract_lookback_days"`
	// TaxonomyFile optionally overrides the built-in signal score table.
	TaxonomyFile string `yaml:"taxonomy_file" mapstructure:"taxonomy_file"`
}

// IngestConfig configures batch ingestion.
type IngestConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	BatchLimit    int `yaml:"batch_limit" mapstructure:"batch_limit"`
}

// AdzunaConfig holds job-board API settings.
type AdzunaConfig struct {
	AppID       string  `yaml:"app_id" mapstructure:"app_id"`
	AppKey      string  `yaml:"app_key" mapstructure:"app_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Country     string  `yaml:"country" mapstructure:"country"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DailyBudget int     `yaml:"daily_budget" mapstructure:"daily_budget"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// ContractsConfig holds contract-award API settings.
type ContractsConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DailyBudget int     `yaml:"daily_budget" mapstructure:"daily_budget"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures background health checks and webhook alerting.
type MonitoringConfig struct {
	WebhookURL        string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	// DLQDepthThreshold triggers an alert when the dead letter queue grows
	// past it. Zero disables the check.
	DLQDepthThreshold int `yaml:"dlq_depth_threshold" mapstructure:"dlq_depth_threshold"`
	// BudgetUsedThreshold is the fraction of a provider's daily call budget
	// that triggers an alert.
	BudgetUsedThreshold float64 `yaml:"budget_used_threshold" mapstructure:"budget_used_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RefreshWindow returns the refresh window as a duration.
func (e EngineConfig) RefreshWindow() time.Duration {
	return time.Duration(e.RefreshWindowDays) * 24 * time.Hour
}

// StalenessWindow returns the staleness window as a duration.
func (e EngineConfig) StalenessWindow() time.Duration {
	return time.Duration(e.StalenessDays) * 24 * time.Hour
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SIGNALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("engine.fuzzy_match_threshold", 85.0)
	v.SetDefault("engine.repost_title_threshold", 85.0)
	v.SetDefault("engine.repost_scan_window", 10)
	v.SetDefault("engine.refresh_window_days", 14)
	v.SetDefault("engine.staleness_days", 30)
	v.SetDefault("engine.contract_min_value", 250000)
	v.SetDefault("engine.contract_lookback_days", 90)
	v.SetDefault("ingest.max_concurrent", 5)
	v.SetDefault("ingest.batch_limit", 500)
	v.SetDefault("adzuna.base_url", "https://api.adzuna.com/v1/api")
	v.SetDefault("adzuna.country", "gb")
	v.SetDefault("adzuna.timeout_secs", 15)
	v.SetDefault("adzuna.daily_budget", 2500)
	v.SetDefault("adzuna.rate_per_sec", 2)
	v.SetDefault("contracts.base_url", "https://www.contractsfinder.service.gov.uk/Published")
	v.SetDefault("contracts.timeout_secs", 15)
	v.SetDefault("contracts.daily_budget", 1000)
	v.SetDefault("contracts.rate_per_sec", 1)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.dlq_depth_threshold", 50)
	v.SetDefault("monitoring.budget_used_threshold", 0.9)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
