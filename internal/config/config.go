// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DevSessionSecret is used when SESSION_SECRET is unset so the app can still
// start locally. Tokens signed with it are forgeable by anyone reading this file.
const DevSessionSecret = "coffee-app-development-secret-do-not-use-in-production"

const (
	DBTypeSQLite   = "sqlite"
	DBTypePostgres = "postgres"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	Env         string `mapstructure:"APP_ENV"`
	ListenAddr  string `mapstructure:"LISTEN_ADDR"`
	MetricsAddr string `mapstructure:"METRICS_ADDR"`
	// BaseURL prefixes links sent by mail (magic link, verification, reset).
	BaseURL string `mapstructure:"BASE_URL"`

	DBType      string `mapstructure:"DB_TYPE"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	SessionSecret     string        `mapstructure:"SESSION_SECRET"`
	SessionTTL        time.Duration `mapstructure:"SESSION_TTL"`
	SessionCookieName string        `mapstructure:"SESSION_COOKIE_NAME"`
	// ProfileLookupTimeout bounds the gate's email-verified lookup.
	ProfileLookupTimeout time.Duration `mapstructure:"PROFILE_LOOKUP_TIMEOUT"`

	// RedisURL enables the profile cache when set (redis://host:6379/0).
	RedisURL        string        `mapstructure:"REDIS_URL"`
	ProfileCacheTTL time.Duration `mapstructure:"PROFILE_CACHE_TTL"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	BcryptCost         int `mapstructure:"BCRYPT_COST"`
	LoginRatePerMinute int `mapstructure:"LOGIN_RATE_PER_MINUTE"`

	MagicLinkTTL     time.Duration `mapstructure:"MAGIC_LINK_TTL"`
	VerificationTTL  time.Duration `mapstructure:"VERIFICATION_TTL"`
	PasswordResetTTL time.Duration `mapstructure:"PASSWORD_RESET_TTL"`
	ShutdownTimeout  time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("METRICS_ADDR", "")
	v.SetDefault("BASE_URL", "http://localhost:8080")
	v.SetDefault("DB_TYPE", DBTypeSQLite)
	v.SetDefault("DATABASE_URL", "./coffee.db")
	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("SESSION_TTL", "168h") // 7d
	v.SetDefault("SESSION_COOKIE_NAME", "session")
	v.SetDefault("PROFILE_LOOKUP_TIMEOUT", "3s")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("PROFILE_CACHE_TTL", "1m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("LOGIN_RATE_PER_MINUTE", 10)
	v.SetDefault("MAGIC_LINK_TTL", "15m")
	v.SetDefault("VERIFICATION_TTL", "24h")
	v.SetDefault("PASSWORD_RESET_TTL", "1h")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		_ = v.ReadInConfig() // ignore ErrConfigFileNotFound
	}

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.DBType = strings.ToLower(strings.TrimSpace(cfg.DBType))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations. A missing SESSION_SECRET is not an
// error; see SessionKey.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("config: LISTEN_ADDR must be set")
	}
	if c.DBType != DBTypeSQLite && c.DBType != DBTypePostgres {
		return fmt.Errorf("config: DB_TYPE must be %q or %q, got %q", DBTypeSQLite, DBTypePostgres, c.DBType)
	}
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL must be set")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.LoginRatePerMinute <= 0 {
		return errors.New("config: LOGIN_RATE_PER_MINUTE must be positive")
	}
	if c.SessionCookieName == "" {
		return errors.New("config: SESSION_COOKIE_NAME must be set")
	}
	for name, d := range map[string]time.Duration{
		"SESSION_TTL":            c.SessionTTL,
		"PROFILE_LOOKUP_TIMEOUT": c.ProfileLookupTimeout,
		"PROFILE_CACHE_TTL":      c.ProfileCacheTTL,
		"MAGIC_LINK_TTL":         c.MagicLinkTTL,
		"VERIFICATION_TTL":       c.VerificationTTL,
		"PASSWORD_RESET_TTL":     c.PasswordResetTTL,
		"SHUTDOWN_TIMEOUT":       c.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be a positive duration", name)
		}
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// SessionKey returns the signing key for session tokens. When SESSION_SECRET
// is unset it returns DevSessionSecret and insecure=true; the caller is
// expected to log that as a configuration defect and carry on.
func (c *Config) SessionKey() (key []byte, insecure bool) {
	if s := strings.TrimSpace(c.SessionSecret); s != "" {
		return []byte(s), false
	}
	return []byte(DevSessionSecret), true
}
