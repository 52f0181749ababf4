package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, e.g. HUBPORTAL_SERVER_PORT
const EnvPrefix = "HUBPORTAL"

// Config represents the hubportal configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Data      DataConfig      `mapstructure:"data"`
	Index     IndexConfig     `mapstructure:"index"`
	Cache     CacheConfig     `mapstructure:"cache"`
	History   HistoryConfig   `mapstructure:"history"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// CORSOrigins lists browser origins allowed to call the API
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DataConfig selects where resource payloads are read from. With neither
// base_url nor dir set, the embedded sample data is used.
type DataConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Dir         string        `mapstructure:"dir"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

// IndexConfig locates the static index datasets. An empty dir uses the
// embedded indexes.
type IndexConfig struct {
	Dir string `mapstructure:"dir"`
}

// CacheConfig represents payload cache configuration
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Prefix  string        `mapstructure:"prefix"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// RedisConfig represents the redis connection of the payload cache
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HistoryConfig represents the navigation history store
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
}

// LoggingConfig represents logger configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AdminConfig represents admin token configuration
type AdminConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	// Profiling mounts pprof under /debug/pprof, behind the admin token
	Profiling bool `mapstructure:"profiling"`
}

// SessionsConfig represents view session limits
type SessionsConfig struct {
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Max           int           `mapstructure:"max"`
}

// RateLimitConfig bounds session creation per client address. The redis
// backend shares cache.redis.
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Backend string        `mapstructure:"backend"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

// Cache backends
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 20*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("data.base_url", "")
	v.SetDefault("data.dir", "")
	v.SetDefault("data.timeout", 10*time.Second)
	v.SetDefault("data.concurrency", 8)

	v.SetDefault("index.dir", "")

	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.prefix", "hubportal:")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.driver", "sqlite3")
	v.SetDefault("history.dsn", "file:hubportal.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("admin.jwt_secret", "")
	v.SetDefault("admin.issuer", "hubportal")
	v.SetDefault("admin.token_ttl", time.Hour)
	v.SetDefault("admin.profiling", false)

	v.SetDefault("sessions.idle_ttl", 30*time.Minute)
	v.SetDefault("sessions.sweep_interval", time.Minute)
	v.SetDefault("sessions.max", 0)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.backend", CacheMemory)
	v.SetDefault("rate_limit.limit", 30)
	v.SetDefault("rate_limit.window", time.Minute)
}

// Load reads hubportal.yaml from the working directory, or the file at path
// when given, then applies HUBPORTAL_* environment overrides
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hubportal")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}

	if cfg.Data.BaseURL != "" && cfg.Data.Dir != "" {
		return errors.New("data.base_url and data.dir are mutually exclusive")
	}
	if cfg.Data.BaseURL != "" {
		u, err := url.Parse(cfg.Data.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("data.base_url must be an http(s) URL, got: %s", cfg.Data.BaseURL)
		}
	}
	if cfg.Data.Concurrency < 1 {
		return fmt.Errorf("data.concurrency must be positive, got: %d", cfg.Data.Concurrency)
	}

	switch cfg.Cache.Backend {
	case CacheNone, CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("cache.backend must be one of none, memory, redis, got: %s", cfg.Cache.Backend)
	}

	if cfg.History.Enabled {
		switch cfg.History.Driver {
		case "sqlite3", "postgres", "pgx":
		default:
			return fmt.Errorf("history.driver must be one of sqlite3, postgres, pgx, got: %s", cfg.History.Driver)
		}
		if cfg.History.DSN == "" {
			return errors.New("history.dsn is required when history is enabled")
		}
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be json or console, got: %s", cfg.Logging.Format)
	}

	if cfg.Sessions.Max < 0 {
		return fmt.Errorf("sessions.max must not be negative, got: %d", cfg.Sessions.Max)
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Backend != CacheMemory && cfg.RateLimit.Backend != CacheRedis {
			return fmt.Errorf("rate_limit.backend must be memory or redis, got: %s", cfg.RateLimit.Backend)
		}
		if cfg.RateLimit.Limit < 1 || cfg.RateLimit.Window <= 0 {
			return errors.New("rate_limit.limit and rate_limit.window must be positive")
		}
	}
	return nil
}
