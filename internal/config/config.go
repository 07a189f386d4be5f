// Package config loads the feed-server configuration from an optional YAML
// file and BOSTAD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sternrassler/bostadspriser-client/pkg/cache"
	"github.com/Sternrassler/bostadspriser-client/pkg/client"
	"github.com/Sternrassler/bostadspriser-client/pkg/feed"
	"github.com/Sternrassler/bostadspriser-client/pkg/logging"
)

// EnvPrefix is prepended to every environment override, e.g. BOSTAD_API_BASE_URL.
const EnvPrefix = "BOSTAD"

type Config struct {
	API    APIConfig    `mapstructure:"api"`
	Feed   FeedConfig   `mapstructure:"feed"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
}

type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	LenientPredict bool          `mapstructure:"lenient_predict"`
}

type FeedConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// RedisConfig enables the locations cache when Address is set.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	LocationsTTL time.Duration `mapstructure:"locations_ttl"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads configuration. An empty path looks for an optional config.yaml in
// the working directory; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := client.DefaultConfig(client.DefaultBaseURL)

	v.SetDefault("api.base_url", defaults.BaseURL)
	v.SetDefault("api.timeout", defaults.Timeout)
	v.SetDefault("api.user_agent", defaults.UserAgent)
	v.SetDefault("api.retry_attempts", defaults.Retry.MaxAttempts)
	v.SetDefault("api.lenient_predict", false)

	v.SetDefault("feed.page_size", feed.DefaultConfig().PageSize)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.locations_ttl", cache.DefaultLocationsTTL)

	v.SetDefault("server.addr", ":8090")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.pretty", false)
}

// Validate checks values that the library constructors would otherwise
// reject later with a less specific message.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be > 0 (got %s)", c.API.Timeout)
	}
	if c.API.RetryAttempts < 1 {
		return fmt.Errorf("api.retry_attempts must be >= 1 (got %d)", c.API.RetryAttempts)
	}
	if c.Feed.PageSize < 0 {
		return fmt.Errorf("feed.page_size must be >= 0 (got %d)", c.Feed.PageSize)
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// ClientConfig maps the api section onto a client configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.API.BaseURL)
	cfg.Timeout = c.API.Timeout
	cfg.UserAgent = c.API.UserAgent
	cfg.Retry.MaxAttempts = c.API.RetryAttempts
	cfg.LenientPredict = c.API.LenientPredict
	return cfg
}

// LoggingConfig maps the log section onto a logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(strings.ToLower(c.Log.Level))
	cfg.Pretty = c.Log.Pretty
	return cfg
}

// CacheEnabled reports whether a Redis address is configured.
func (c *Config) CacheEnabled() bool {
	return c.Redis.Address != ""
}
