package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config represents the complete service configuration.
type Config struct {
	Environment string         `mapstructure:"environment"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	Server      ServerConfig   `mapstructure:"server"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Security    SecurityConfig `mapstructure:"security"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RequestsPerSecond converts the request budget per window into a token
// rate. Zero requests disables limiting.
func (s ServerConfig) RequestsPerSecond() float64 {
	if s.RateLimitRequests <= 0 || s.RateLimitWindow <= 0 {
		return 0
	}
	return float64(s.RateLimitRequests) / s.RateLimitWindow.Seconds()
}

// RedisConfig contains model registry settings. An empty URL runs the
// service without a registry.
type RedisConfig struct {
	URL           string        `mapstructure:"url"`
	ModelCacheTTL time.Duration `mapstructure:"model_cache_ttl"`
}

// SecurityConfig contains API auth settings. An empty secret key disables
// bearer auth.
type SecurityConfig struct {
	SecretKey string        `mapstructure:"secret_key" json:"-" yaml:"-"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// Load reads configuration from the default search path: ./config.yaml,
// then $HOME/.forecast-engine/config.yaml, then FORECAST_* environment
// variables over the defaults.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads an explicit config file. An empty path falls back to the
// default search path, where a missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.forecast-engine")
	}

	setDefaults(v)

	v.SetEnvPrefix("FORECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if path != "" || !notFound {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.rate_limit_requests", 100)
	v.SetDefault("server.rate_limit_window", "60s")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.model_cache_ttl", "1h")

	v.SetDefault("security.secret_key", "")
	v.SetDefault("security.token_ttl", "30m")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("log format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.IdleTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive")
	}
	if c.Server.RateLimitRequests < 0 {
		return fmt.Errorf("rate limit requests must not be negative")
	}
	if c.Server.RateLimitRequests > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit window must be positive when rate limiting is enabled")
	}

	if c.Redis.URL != "" {
		if _, err := redis.ParseURL(c.Redis.URL); err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		if c.Redis.ModelCacheTTL <= 0 {
			return fmt.Errorf("model cache ttl must be positive")
		}
	}

	if c.Environment == "production" && c.Security.SecretKey == "" {
		return fmt.Errorf("security secret_key is required in production")
	}
	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("security token ttl must be positive")
	}

	return nil
}
