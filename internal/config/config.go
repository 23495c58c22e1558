package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"adcarbon/internal/logging"
)

// Cache drivers.
const (
	CacheDriverMemory   = "memory"
	CacheDriverRedis    = "redis"
	CacheDriverPostgres = "postgres"
)

// Config materialises application configuration.
type Config struct {
	App     AppConfig      `mapstructure:"app"`
	Logging logging.Config `mapstructure:"logging"`
	Server  ServerConfig   `mapstructure:"server"`
	Measure MeasureConfig  `mapstructure:"measure"`
	Engine  EngineConfig   `mapstructure:"engine"`
	Cache   CacheConfig    `mapstructure:"cache"`
	Warmer  WarmerConfig   `mapstructure:"warmer"`
	Export  ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	// Timezone is an IANA name; "Local" uses the host zone. Day boundaries
	// and the "today" check are computed here.
	Timezone string `mapstructure:"timezone"`
}

// ServerConfig governs the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	CORS            bool          `mapstructure:"cors"`
}

// MeasureConfig captures connectivity to the measurement API.
type MeasureConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	Framework     string        `mapstructure:"framework"`
	DeviceType    string        `mapstructure:"device_type"`
	UserAgent     string        `mapstructure:"user_agent"`
}

// EngineConfig tunes the aggregation fan-out.
type EngineConfig struct {
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`
}

// CacheConfig selects and configures the day cache.
type CacheConfig struct {
	Driver    string         `mapstructure:"driver"`
	TTL       time.Duration  `mapstructure:"ttl"`
	KeyPrefix string         `mapstructure:"key_prefix"`
	Redis     RedisConfig    `mapstructure:"redis"`
	Database  DatabaseConfig `mapstructure:"database"`
}

// RedisConfig for the redis driver.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the postgres driver.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// WarmerConfig drives the periodic cache warm-up.
type WarmerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	Domains         []string      `mapstructure:"domains"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	ChartWidth  int `mapstructure:"chart_width"`
	ChartHeight int `mapstructure:"chart_height"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("ADCARBON")
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

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "adcarbon")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "Local")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.caller", false)

	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit", 50.0)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("server.cors", true)

	v.SetDefault("measure.base_url", "https://api.scope3.com/v2")
	v.SetDefault("measure.api_key", "")
	v.SetDefault("measure.timeout", "15s")
	v.SetDefault("measure.rate_per_second", 10.0)
	v.SetDefault("measure.burst", 10)
	v.SetDefault("measure.max_retries", 2)
	v.SetDefault("measure.retry_backoff", "500ms")
	v.SetDefault("measure.framework", "scope3")
	v.SetDefault("measure.device_type", "pc")
	v.SetDefault("measure.user_agent", "adcarbon/1.0")

	v.SetDefault("engine.max_concurrency", 4)
	v.SetDefault("engine.upstream_timeout", "20s")

	v.SetDefault("cache.driver", CacheDriverMemory)
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.key_prefix", "emissions:day")
	v.SetDefault("cache.redis.addr", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 10)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.max_retries", 3)
	v.SetDefault("cache.database.dsn", "")
	v.SetDefault("cache.database.max_open_conns", 10)
	v.SetDefault("cache.database.max_idle_conns", 2)
	v.SetDefault("cache.database.conn_max_lifetime", "30m")

	v.SetDefault("warmer.enabled", false)
	v.SetDefault("warmer.interval", "1h")
	v.SetDefault("warmer.align_to_interval", true)
	v.SetDefault("warmer.startup_delay", "0s")
	v.SetDefault("warmer.domains", []string{})
	v.SetDefault("warmer.advisory_lock_key", int64(0x61646361))

	v.SetDefault("export.chart_width", 1280)
	v.SetDefault("export.chart_height", 720)
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
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be greater than zero")
	}
	switch c.Cache.Driver {
	case CacheDriverMemory:
	case CacheDriverRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis driver")
		}
	case CacheDriverPostgres:
		if c.Cache.Database.DSN == "" {
			return fmt.Errorf("cache.database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("cache.driver %q is not supported", c.Cache.Driver)
	}
	if c.Engine.MaxConcurrency < 1 {
		return fmt.Errorf("engine.max_concurrency must be at least 1")
	}
	if c.Engine.UpstreamTimeout <= 0 {
		return fmt.Errorf("engine.upstream_timeout must be greater than zero")
	}
	if c.Measure.MaxRetries < 0 {
		return fmt.Errorf("measure.max_retries cannot be negative")
	}
	if c.Measure.RatePerSecond < 0 {
		return fmt.Errorf("measure.rate_per_second cannot be negative")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit cannot be negative")
	}
	if c.Warmer.Enabled {
		if c.Warmer.Interval <= 0 {
			return fmt.Errorf("warmer.interval must be greater than zero")
		}
		if len(c.Warmer.Domains) == 0 {
			return fmt.Errorf("warmer.domains must list at least one domain when the warmer is enabled")
		}
	}
	return nil
}

// RequireAPIKey reports a missing measure.api_key for commands that call upstream.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.Measure.APIKey) == "" {
		return fmt.Errorf("measure.api_key must be configured (env ADCARBON_MEASURE_API_KEY)")
	}
	return nil
}

// Location resolves app.timezone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.App.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("app.timezone %q: %w", name, err)
	}
	return loc, nil
}
