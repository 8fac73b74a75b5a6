// Package config loads the catalog client configuration from defaults, an
// optional YAML file and CATALOG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sall0568/cinescope-client/pkg/logging"
	"github.com/sall0568/cinescope-client/pkg/schedule"
)

// EnvPrefix is the prefix of every environment override, e.g.
// CATALOG_API_BASE_URL overrides api.base_url.
const EnvPrefix = "CATALOG"

// Cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full client configuration.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Throttle ThrottleConfig `mapstructure:"throttle"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Liveness LivenessConfig `mapstructure:"liveness"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// APIConfig points at the metadata proxy.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Language  string        `mapstructure:"language"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

type CacheConfig struct {
	Backend         string        `mapstructure:"backend"` // "memory" or "redis"
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
}

type ThrottleConfig struct {
	Spacing time.Duration `mapstructure:"spacing"`
}

type RetryConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"`
	RateLimitStep time.Duration `mapstructure:"rate_limit_step"`
	NetworkStep   time.Duration `mapstructure:"network_step"`
	Coalesce      bool          `mapstructure:"coalesce"`
}

type LivenessConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Path     string        `mapstructure:"path"`
	Warmup   bool          `mapstructure:"warmup"` // ping once on start
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// ServerConfig is only read by the gateway binary.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:5000/api")
	v.SetDefault("api.language", "fr-FR")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("api.user_agent", "cinescope-client/1.0")

	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("cache.cleanup_interval", "5m")
	v.SetDefault("cache.key_prefix", "catalog:cache:")

	v.SetDefault("throttle.spacing", "200ms")

	v.SetDefault("retry.max_retries", 2)
	v.SetDefault("retry.rate_limit_step", "3s")
	v.SetDefault("retry.network_step", "5s")
	v.SetDefault("retry.coalesce", false)

	v.SetDefault("liveness.enabled", true)
	v.SetDefault("liveness.interval", "10m")
	v.SetDefault("liveness.timeout", "10s")
	v.SetDefault("liveness.path", "/health")
	v.SetDefault("liveness.warmup", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	cfg, err := decode(newViper())
	if err != nil {
		// Defaults are static; a decode failure is a programming error.
		panic(err)
	}
	return cfg
}

// Load reads configuration. path may be empty, in which case config.yaml is
// looked up in the working directory and a missing file is not an error.
// Environment variables take precedence over the file.
func Load(path string) (Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the client cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url %q must be an absolute http(s) URL", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api.timeout must be positive"))
	}

	switch c.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis cache backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not one of memory, redis", c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.Cache.CleanupInterval < schedule.MinInterval {
		errs = append(errs, fmt.Errorf("cache.cleanup_interval must be at least %v (got %v)", schedule.MinInterval, c.Cache.CleanupInterval))
	}

	if c.Throttle.Spacing < 0 {
		errs = append(errs, errors.New("throttle.spacing must not be negative"))
	}

	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("retry.max_retries must not be negative"))
	}
	if c.Retry.RateLimitStep < 0 || c.Retry.NetworkStep < 0 {
		errs = append(errs, errors.New("retry steps must not be negative"))
	}

	if c.Liveness.Enabled {
		if c.Liveness.Interval < schedule.MinInterval {
			errs = append(errs, fmt.Errorf("liveness.interval must be at least %v (got %v)", schedule.MinInterval, c.Liveness.Interval))
		}
		if c.Liveness.Timeout <= 0 {
			errs = append(errs, errors.New("liveness.timeout must be positive"))
		}
	}

	if !logging.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level %q is unknown", c.Logging.Level))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// LoggerConfig converts the logging section for logging.Setup.
func (c Config) LoggerConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Logging.Level)
	cfg.Pretty = c.Logging.Pretty
	return cfg
}
