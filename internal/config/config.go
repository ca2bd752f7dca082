// Package config provides configuration management for the discusswatch
// service. It loads values from a YAML file and environment variables using
// viper, applies defaults, and validates the result.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/SovereignSignal/discusswatch/internal/logger"
)

// envPrefix namespaces environment variable overrides (e.g. DISCUSSWATCH_SERVER_ADDRESS).
const envPrefix = "DISCUSSWATCH"

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   logger.Config   `mapstructure:"logging"`
	// SourcesFile is the path to the source registry YAML file.
	SourcesFile string `mapstructure:"sources_file"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CacheConfig holds refresh cadence and fan-out settings.
type CacheConfig struct {
	// TierTTLs maps source tier (1-3) to the staleness TTL for that tier.
	Tier1TTL time.Duration `mapstructure:"tier1_ttl"`
	Tier2TTL time.Duration `mapstructure:"tier2_ttl"`
	Tier3TTL time.Duration `mapstructure:"tier3_ttl"`
	// MaxConcurrentFetches bounds global refresh fan-out.
	MaxConcurrentFetches int `mapstructure:"max_concurrent_fetches"`
	// RefreshInterval is the cron cadence for the due-source sweep.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// RateLimitConfig holds inbound and outbound rate limiting settings.
type RateLimitConfig struct {
	// Inbound protects the service from abusive clients, keyed by client IP.
	InboundWindow time.Duration `mapstructure:"inbound_window"`
	InboundMax    int           `mapstructure:"inbound_max"`
	// Outbound protects upstream budgets, keyed by upstream host. Kept
	// conservative: many Discourse instances throttle around 60 req/min
	// and several internal features share one budget per host.
	OutboundWindow time.Duration `mapstructure:"outbound_window"`
	OutboundMax    int           `mapstructure:"outbound_max"`
	// MaxTrackedKeys caps the limiter window tables.
	MaxTrackedKeys int `mapstructure:"max_tracked_keys"`
}

// UpstreamConfig holds settings for talking to upstream forum APIs.
type UpstreamConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	UserAgent    string        `mapstructure:"user_agent"`
	// GitHubToken authorizes GitHub Discussions GraphQL calls.
	GitHubToken string `mapstructure:"github_token"`
	// SnapshotAPIKey is optional; Snapshot works unauthenticated.
	SnapshotAPIKey string `mapstructure:"snapshot_api_key"`
}

// RedisConfig holds the optional event stream settings. Events are disabled
// when Addr is empty.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
}

// Load reads configuration from the given path (or default locations when
// empty) with environment overrides applied.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults plus env cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("cache.tier1_ttl", 3*time.Minute)
	v.SetDefault("cache.tier2_ttl", 10*time.Minute)
	v.SetDefault("cache.tier3_ttl", 20*time.Minute)
	v.SetDefault("cache.max_concurrent_fetches", 10)
	v.SetDefault("cache.refresh_interval", time.Minute)

	v.SetDefault("rate_limit.inbound_window", time.Minute)
	v.SetDefault("rate_limit.inbound_max", 120)
	v.SetDefault("rate_limit.outbound_window", time.Minute)
	v.SetDefault("rate_limit.outbound_max", 20)
	v.SetDefault("rate_limit.max_tracked_keys", 10000)

	v.SetDefault("upstream.request_timeout", 15*time.Second)
	v.SetDefault("upstream.max_retries", 2)
	v.SetDefault("upstream.retry_backoff", 500*time.Millisecond)
	v.SetDefault("upstream.user_agent", "discusswatch/1.0")

	v.SetDefault("redis.stream", "discusswatch:events")

	v.SetDefault("logging.level", "info")

	v.SetDefault("sources_file", "sources.yml")
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return errors.New("server.address is required")
	}
	if c.Cache.MaxConcurrentFetches <= 0 {
		return errors.New("cache.max_concurrent_fetches must be positive")
	}
	if c.Cache.Tier1TTL <= 0 || c.Cache.Tier2TTL <= 0 || c.Cache.Tier3TTL <= 0 {
		return errors.New("cache tier TTLs must be positive")
	}
	if c.RateLimit.InboundMax <= 0 || c.RateLimit.OutboundMax <= 0 {
		return errors.New("rate limit maximums must be positive")
	}
	if c.RateLimit.MaxTrackedKeys <= 0 {
		return errors.New("rate_limit.max_tracked_keys must be positive")
	}
	if c.Upstream.RequestTimeout <= 0 {
		return errors.New("upstream.request_timeout must be positive")
	}
	if c.Upstream.MaxRetries < 0 {
		return errors.New("upstream.max_retries must not be negative")
	}
	if c.SourcesFile == "" {
		return errors.New("sources_file is required")
	}
	return nil
}

// TierTTL returns the staleness TTL for a source tier. Unknown tiers get the
// most conservative (longest) TTL.
func (c *CacheConfig) TierTTL(tier int) time.Duration {
	switch tier {
	case 1:
		return c.Tier1TTL
	case 2:
		return c.Tier2TTL
	default:
		return c.Tier3TTL
	}
}
