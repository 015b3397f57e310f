// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

const (
	// DefaultPort is used when PORT is unset or empty.
	DefaultPort = "8000"
	// DefaultBindAddress binds the listener on all interfaces.
	DefaultBindAddress = "0.0.0.0"
	// DefaultCNPJ is the sender document used when a query omits one.
	DefaultCNPJ = "48775191000190"
)

// Config holds the tracker API settings.
type Config struct {
	Port        string `env:"PORT,default=8000"`
	BindAddress string `env:"BIND_ADDRESS,default=0.0.0.0"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	DefaultCNPJ          string        `env:"DEFAULT_CNPJ,default=48775191000190"`
	ChromePath           string        `env:"CHROME_PATH"`
	Headless             bool          `env:"HEADLESS,default=true"`
	ScrapeTimeout        time.Duration `env:"SCRAPE_TIMEOUT,default=90s"`
	MaxConcurrentScrapes int64         `env:"MAX_CONCURRENT_SCRAPES,default=2"`
	SiteProfilePath      string        `env:"SITE_PROFILE"`

	CacheTTL      time.Duration `env:"CACHE_TTL,default=10m"`
	RedisURL      string        `env:"REDIS_URL"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	LookupLogSize int           `env:"LOOKUP_LOG_SIZE,default=200"`

	RateLimitRPS       float64 `env:"RATE_LIMIT_RPS,default=1"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST,default=5"`
	CORSAllowedOrigins string  `env:"CORS_ALLOWED_ORIGINS,default=*"`
	TrustedProxiesCSV  string  `env:"TRUSTED_PROXIES"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=30s"`
}

// Load reads an optional .env file from the working directory and then
// decodes the environment into a validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv decodes the current environment without touching .env files.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Port = strings.TrimSpace(c.Port)
	if c.Port == "" {
		c.Port = DefaultPort
	}
	c.BindAddress = strings.TrimSpace(c.BindAddress)
	if c.BindAddress == "" {
		c.BindAddress = DefaultBindAddress
	}
	c.DefaultCNPJ = strings.TrimSpace(c.DefaultCNPJ)
	if c.DefaultCNPJ == "" {
		c.DefaultCNPJ = DefaultCNPJ
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid PORT %q: must be a number between 1 and 65535", c.Port)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid LOG_FORMAT %q: must be json or text", c.LogFormat)
	}
	if c.ScrapeTimeout <= 0 {
		return fmt.Errorf("SCRAPE_TIMEOUT must be positive")
	}
	if c.MaxConcurrentScrapes < 1 {
		return fmt.Errorf("MAX_CONCURRENT_SCRAPES must be at least 1")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative")
	}
	if c.LookupLogSize < 1 {
		return fmt.Errorf("LOOKUP_LOG_SIZE must be at least 1")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	return nil
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.BindAddress, c.Port)
}

// CORSOrigins returns the allowed origins as a list.
func (c *Config) CORSOrigins() []string {
	origins := splitAndTrimCSV(c.CORSAllowedOrigins)
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// TrustedProxies returns the proxy addresses and CIDR ranges whose
// forwarding headers identify the client.
func (c *Config) TrustedProxies() []string {
	return splitAndTrimCSV(c.TrustedProxiesCSV)
}

func splitAndTrimCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
