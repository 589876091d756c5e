package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the storefront service
type Config struct {
	Backend       BackendConfig       `mapstructure:"backend"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Cart          CartConfig          `mapstructure:"cart"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Redis         RedisConfig         `mapstructure:"redis"`
	AWS           AWSConfig           `mapstructure:"aws"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// BackendConfig holds the shop REST backend connection settings
type BackendConfig struct {
	BaseURL        string               `mapstructure:"base_url"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// CircuitBreakerConfig holds circuit breaker thresholds
type CircuitBreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// CacheConfig holds caching configuration
type CacheConfig struct {
	MaxSize       int           `mapstructure:"max_size"`
	APITTL        time.Duration `mapstructure:"api_ttl"`
	DashboardTTL  time.Duration `mapstructure:"dashboard_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Warmup        WarmupConfig  `mapstructure:"warmup"`
}

// WarmupConfig holds startup cache warming settings
type WarmupConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Parallel bool          `mapstructure:"parallel"`
	Workers  int           `mapstructure:"workers"`
}

// CartConfig selects and configures cart persistence
type CartConfig struct {
	Backend    string        `mapstructure:"backend"` // memory, file or redis
	Dir        string        `mapstructure:"dir"`
	StorageKey string        `mapstructure:"storage_key"`
	TTL        time.Duration `mapstructure:"ttl"`

	// Loaded session carts kept in memory
	MaxSessions int           `mapstructure:"max_sessions"`
	IdleTTL     time.Duration `mapstructure:"idle_ttl"`
}

// RetryConfig holds backend retry settings
type RetryConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	OrderMaxRetries int           `mapstructure:"order_max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	Jitter          float64       `mapstructure:"jitter"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AWSConfig holds AWS service configuration
type AWSConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Region      string `mapstructure:"region"`
	SNSEnabled  bool   `mapstructure:"sns_enabled"`
	SNSTopicARN string `mapstructure:"sns_topic_arn"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig holds tracing settings
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Sampler     string  `mapstructure:"sampler"` // always, never, ratio
	Ratio       float64 `mapstructure:"ratio"`
	Environment string  `mapstructure:"environment"`
}

// Load loads configuration from file and environment variables.
// Environment variables use underscores for nesting, e.g.
// BACKEND_BASE_URL overrides backend.base_url.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not fatal if env vars are set
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Backend defaults
	v.SetDefault("backend.base_url", "http://localhost:3000/api")
	v.SetDefault("backend.timeout", "10s")
	v.SetDefault("backend.rate_limit.requests_per_minute", 600)
	v.SetDefault("backend.rate_limit.burst", 20)
	v.SetDefault("backend.circuit_breaker.failure_threshold", 5)
	v.SetDefault("backend.circuit_breaker.success_threshold", 2)
	v.SetDefault("backend.circuit_breaker.timeout", "30s")

	// Cache defaults
	v.SetDefault("cache.max_size", 100)
	v.SetDefault("cache.api_ttl", "2m")
	v.SetDefault("cache.dashboard_ttl", "1m")
	v.SetDefault("cache.sweep_interval", "1m")
	v.SetDefault("cache.warmup.enabled", true)
	v.SetDefault("cache.warmup.timeout", "30s")
	v.SetDefault("cache.warmup.parallel", true)
	v.SetDefault("cache.warmup.workers", 4)

	// Cart defaults
	v.SetDefault("cart.backend", "memory")
	v.SetDefault("cart.dir", "./data/carts")
	v.SetDefault("cart.storage_key", "cart-storage")
	v.SetDefault("cart.ttl", "720h")
	v.SetDefault("cart.max_sessions", 10000)
	v.SetDefault("cart.idle_ttl", "30m")

	// Retry defaults
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.order_max_retries", 2)
	v.SetDefault("retry.retry_delay", "1s")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("retry.jitter", 0.1)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// AWS defaults
	v.SetDefault("aws.endpoint", "http://localhost:4566")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.sns_enabled", false)
	v.SetDefault("aws.sns_topic_arn", "arn:aws:sns:us-east-1:000000000000:order-events")

	// HTTP defaults
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.shutdown_timeout", "15s")

	// Observability defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sampler", "always")
	v.SetDefault("observability.tracing.ratio", 1.0)
	v.SetDefault("observability.tracing.environment", "development")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend base URL is required")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be > 0")
	}

	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache max size must be > 0")
	}

	if c.Retry.MaxRetries < 0 || c.Retry.OrderMaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("retry jitter must be between 0 and 1")
	}

	switch c.Cart.Backend {
	case "memory":
	case "file":
		if c.Cart.Dir == "" {
			return fmt.Errorf("cart dir is required for file backend")
		}
	case "redis":
		if c.Redis.Address == "" {
			return fmt.Errorf("redis address is required for redis cart backend")
		}
	default:
		return fmt.Errorf("invalid cart backend: %s", c.Cart.Backend)
	}
	if c.Cart.StorageKey == "" {
		return fmt.Errorf("cart storage key is required")
	}

	if c.AWS.SNSEnabled {
		if c.AWS.Region == "" {
			return fmt.Errorf("AWS region is required")
		}
		if c.AWS.SNSTopicARN == "" {
			return fmt.Errorf("SNS topic ARN is required")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Observability.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Observability.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Observability.Logging.Format)
	}

	return nil
}
