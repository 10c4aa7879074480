package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"arbitrator/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Feeds      FeedsConfig      `mapstructure:"feeds"`
	Database   DatabaseConfig   `mapstructure:"database"`
	History    HistoryConfig    `mapstructure:"history"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ClickHouseConfig covers the upstream observation store.
type ClickHouseConfig struct {
	DSN          string        `mapstructure:"dsn"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// FeedsConfig identifies which series each range query targets.
type FeedsConfig struct {
	ExchangeA  string `mapstructure:"exchange_a"`
	ExchangeB  string `mapstructure:"exchange_b"`
	RateSource string `mapstructure:"rate_source"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// HistoryConfig bounds the rolling series.
type HistoryConfig struct {
	MaxRetained int `mapstructure:"max_retained"`
}

// SchedulerConfig governs aggregation cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARBITRATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "arbitrator")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("clickhouse.query_timeout", "10s")

	v.SetDefault("feeds.exchange_a", "kraken")
	v.SetDefault("feeds.exchange_b", "luno")
	v.SetDefault("feeds.rate_source", "fixer")

	v.SetDefault("history.max_retained", 24*7)

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x61726274))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.History.MaxRetained <= 0 {
		return fmt.Errorf("history.max_retained must be greater than zero")
	}
	if c.ClickHouse.QueryTimeout <= 0 {
		return fmt.Errorf("clickhouse.query_timeout must be greater than zero")
	}
	if c.Feeds.ExchangeA == "" || c.Feeds.ExchangeB == "" {
		return fmt.Errorf("feeds.exchange_a 与 feeds.exchange_b 必须配置")
	}
	if c.Feeds.ExchangeA == c.Feeds.ExchangeB {
		return fmt.Errorf("feeds.exchange_a and feeds.exchange_b must differ")
	}
	if c.Feeds.RateSource == "" {
		return fmt.Errorf("feeds.rate_source 必须配置")
	}
	return nil
}
