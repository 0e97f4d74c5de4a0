package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr           string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL    string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	TrackingSecret string `usage:"HMAC secret for order tracking tokens (CHECKOUT_TRACKING_SECRET)" flag:"tracking-secret"`
	CountryCode    string `default:"55" usage:"Phone country code assumed for customer matching" flag:"country-code"`
	Shipping       ShippingConfig
	Geo            GeoConfig
	Redis          RedisConfig
	Kafka          KafkaConfig
	RateLimit      RateLimitConfig
	CORS           CORSConfig
	Graceful       GracefulConfig
}

// ShippingConfig tunes delivery fee resolution.
type ShippingConfig struct {
	// RoadFactor scales straight-line distance when the matrix provider is
	// unavailable, approximating road distance.
	RoadFactor float64 `default:"1.3" usage:"Multiplier applied to straight-line distance fallback" flag:"road-factor"`
}

// GeoConfig points at the external distance matrix / geocoding provider.
// An empty BaseURL disables external lookups; tiered shipping then relies
// on coordinates supplied with the order.
type GeoConfig struct {
	BaseURL string        `usage:"Geo provider base URL (empty disables distance lookups)" flag:"geo-base-url"`
	APIKey  string        `usage:"Geo provider API key" flag:"geo-api-key"`
	Timeout time.Duration `default:"5s" usage:"Geo provider request timeout" flag:"geo-timeout"`
}

// RedisConfig controls the optional geo lookup cache.
type RedisConfig struct {
	URL      string        `usage:"Redis connection URL (CHECKOUT_REDIS_URL or REDIS_URL; empty disables caching)" flag:"redis-url"`
	CacheTTL time.Duration `default:"30m" usage:"TTL for cached distance and geocode results" flag:"redis-cache-ttl"`
}

// KafkaConfig controls order event publishing. No brokers means events are
// discarded.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka broker addresses (comma separated)" flag:"kafka-brokers"`
	Topic   string   `default:"checkout.orders" usage:"Topic for order placed events" flag:"kafka-topic"`
}

// RateLimitConfig controls the per-tenant sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	}
	if cfg.TrackingSecret == "" {
		return nil, errors.New("tracking secret is required: set CHECKOUT_TRACKING_SECRET")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's CHECKOUT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Redis.URL == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.Redis.URL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
