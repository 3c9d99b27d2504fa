// Package config loads process configuration from the environment.
//
// Validation rules are not process configuration; they live in the settings store
// and are read per request by internal/settings.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	platformstrings "onboard/pkg/platform/strings"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string        `env:"SIGNUP_ADDR" envDefault:":8080"`
	Environment   string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	AdminAPIToken string        `env:"ADMIN_API_TOKEN"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	TxTimeout     time.Duration `env:"DB_TX_TIMEOUT" envDefault:"5s"`
	BcryptCost    int           `env:"PASSWORD_HASH_COST" envDefault:"10"`
	// TrustedProxies lists peers (CIDR or address) allowed to set X-Forwarded-For.
	// Empty means the TCP peer is the client.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
	Redis          RedisConfig
	DNS            DNSConfig
	Disposable     DisposableConfig
	Phone          PhoneConfig
	RateLimit      RateLimitConfig
}

// RedisConfig configures the disposable-verdict cache. An empty URL disables it.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// DNSConfig configures MX lookups. Without servers, /etc/resolv.conf is used.
type DNSConfig struct {
	Servers []string      `env:"DNS_SERVERS" envSeparator:","`
	Timeout time.Duration `env:"DNS_TIMEOUT" envDefault:"3s"`
}

// DisposableConfig configures the remote reputation API and its cache.
type DisposableConfig struct {
	APIURL   string        `env:"DISPOSABLE_API_URL" envDefault:"https://api.usercheck.com/domain"`
	Timeout  time.Duration `env:"DISPOSABLE_API_TIMEOUT" envDefault:"10s"`
	CacheTTL time.Duration `env:"DISPOSABLE_CACHE_TTL" envDefault:"24h"`
}

// PhoneConfig toggles the loose-pattern degraded mode.
type PhoneConfig struct {
	LibraryDisabled bool `env:"PHONE_LIBRARY_DISABLED" envDefault:"false"`
}

// RateLimitConfig sets per-IP limits on the public signup routes. Windows live in
// Redis when it is configured and in process memory otherwise.
type RateLimitConfig struct {
	Disabled          bool `env:"RATE_LIMIT_DISABLED" envDefault:"false"`
	ValidatePerMinute int  `env:"RATE_LIMIT_VALIDATE_PER_MINUTE" envDefault:"120"`
	SubmitPerMinute   int  `env:"RATE_LIMIT_SUBMIT_PER_MINUTE" envDefault:"10"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.DNS.Servers = platformstrings.DedupeAndTrim(cfg.DNS.Servers)
	cfg.TrustedProxies = platformstrings.DedupeAndTrim(cfg.TrustedProxies)
	return cfg, nil
}

// IsProduction reports whether the process runs in production.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}
