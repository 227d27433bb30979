// Package config loads process configuration once at startup. The
// resulting value is immutable for the process lifetime; in particular
// the signing secrets never rotate without a restart.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type AuthConfig struct {
	// SigningSecret signs every issued token; required.
	SigningSecret string
	// PreviousSigningSecret, when set, is accepted for validation only,
	// covering a dual-secret rollover window across a restart.
	PreviousSigningSecret string
	Issuer                string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	Leeway                time.Duration
}

type AuthzConfig struct {
	// CacheTTL is the permission cache freshness window: the bounded
	// staleness a revoked grant can survive in decisions when the
	// explicit invalidation push is lost.
	CacheTTL     time.Duration
	CheckTimeout time.Duration
}

type LoginConfig struct {
	// RatePerMinute bounds login attempts per login name; 0 disables.
	RatePerMinute int
	Burst         int
}

type GrantsConfig struct {
	// RegrantUpdatesAudit controls whether re-granting an existing
	// (account, scholar) pair rewrites the creator audit fields or only
	// bumps updated_at.
	RegrantUpdatesAudit bool
}

type PostgresConfig struct {
	DSN string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type Config struct {
	Environment string
	Auth        AuthConfig
	Authz       AuthzConfig
	Login       LoginConfig
	Grants      GrantsConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
}

// Load reads an optional config.yaml plus SUNNAH_* environment overrides
// and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("SUNNAH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("auth.signingsecret", "")
	v.SetDefault("auth.previoussigningsecret", "")
	v.SetDefault("auth.issuer", "sunnahaudio")
	v.SetDefault("auth.accessttl", 15*time.Minute)
	v.SetDefault("auth.refreshttl", 14*24*time.Hour)
	v.SetDefault("auth.leeway", 5*time.Second)

	v.SetDefault("authz.cachettl", 30*time.Second)
	v.SetDefault("authz.checktimeout", 2*time.Second)

	v.SetDefault("login.rateperminute", 10)
	v.SetDefault("login.burst", 5)

	v.SetDefault("grants.regrantupdatesaudit", false)

	v.SetDefault("postgres.dsn", "")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

func (c *Config) validate() error {
	if c.Auth.SigningSecret == "" {
		return errors.New("config: auth signing secret is required (SUNNAH_AUTH_SIGNINGSECRET)")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return errors.New("config: token TTLs must be greater than zero")
	}
	if c.Authz.CacheTTL <= 0 {
		return errors.New("config: cache TTL must be greater than zero")
	}
	if c.Authz.CheckTimeout <= 0 {
		return errors.New("config: check timeout must be greater than zero")
	}
	return nil
}
