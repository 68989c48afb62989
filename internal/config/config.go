// Package config loads and validates app config from env and an optional
// .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or a path to one. Required.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or a path to one. Required.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "1h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// JWTClockSkew is the leeway applied to time-based claims (e.g. "30s").
	JWTClockSkew string `mapstructure:"JWT_CLOCK_SKEW"`
	// JWTRotationThreshold is the minimum refresh-token age before rotation (e.g. "15m").
	JWTRotationThreshold string `mapstructure:"JWT_ROTATION_THRESHOLD"`
	// JWTMaxTokenAge rejects tokens issued further in the past even if unexpired (e.g. "720h").
	JWTMaxTokenAge string `mapstructure:"JWT_MAX_TOKEN_AGE"`

	// RedisURL selects the shared revocation backend. Empty means the
	// in-process store: fine for one instance, wrong for more.
	RedisURL string `mapstructure:"REDIS_URL"`
	// RevocationFailClosed treats a failed revocation check as "revoked".
	// Default false: availability over strictness, with logged degradation.
	RevocationFailClosed bool `mapstructure:"REVOCATION_FAIL_CLOSED"`

	// MaxSessionsPerUser caps concurrent sessions per user; oldest is evicted at capacity.
	MaxSessionsPerUser int `mapstructure:"MAX_SESSIONS_PER_USER"`
	// SessionIdleTimeout invalidates sessions idle longer than this (e.g. "24h").
	SessionIdleTimeout string `mapstructure:"SESSION_IDLE_TIMEOUT"`
	// SessionAbsoluteTimeout invalidates sessions older than this (e.g. "168h").
	SessionAbsoluteTimeout string `mapstructure:"SESSION_ABSOLUTE_TIMEOUT"`
	// SessionCleanupInterval is the background sweep period (e.g. "1h").
	SessionCleanupInterval string `mapstructure:"SESSION_CLEANUP_INTERVAL"`
	// LockoutThreshold is the failed-login count that locks an account.
	LockoutThreshold int `mapstructure:"LOCKOUT_THRESHOLD"`
	// LockoutWindow is the sliding window for failed-login lockout (e.g. "15m").
	LockoutWindow string `mapstructure:"LOCKOUT_WINDOW"`
	// HighRiskThreshold blocks refresh when a session's risk score exceeds it.
	HighRiskThreshold float64 `mapstructure:"HIGH_RISK_THRESHOLD"`
	// VerifyTimeout bounds verification including the revocation round-trip (e.g. "1s").
	VerifyTimeout string `mapstructure:"VERIFY_TIMEOUT"`

	// OTLPEndpoint enables telemetry export when set (e.g. localhost:4317).
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Missing .env is ignored (e.g. in CI); env vars
// override .env. Missing signing keys are a fatal configuration error.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "comicguess-api")
	v.SetDefault("JWT_AUDIENCE", "comicguess-app")
	v.SetDefault("JWT_ACCESS_TTL", "1h")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("JWT_CLOCK_SKEW", "30s")
	v.SetDefault("JWT_ROTATION_THRESHOLD", "15m")
	v.SetDefault("JWT_MAX_TOKEN_AGE", "720h") // 30d
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REVOCATION_FAIL_CLOSED", false)
	v.SetDefault("MAX_SESSIONS_PER_USER", 5)
	v.SetDefault("SESSION_IDLE_TIMEOUT", "24h")
	v.SetDefault("SESSION_ABSOLUTE_TIMEOUT", "168h")
	v.SetDefault("SESSION_CLEANUP_INTERVAL", "1h")
	v.SetDefault("LOCKOUT_THRESHOLD", 5)
	v.SetDefault("LOCKOUT_WINDOW", "15m")
	v.SetDefault("HIGH_RISK_THRESHOLD", 0.7)
	v.SetDefault("VERIFY_TIMEOUT", "1s")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if cfg.JWTPrivateKey == "" || cfg.JWTPublicKey == "" {
		return nil, errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set")
	}
	if cfg.MaxSessionsPerUser <= 0 {
		return nil, errors.New("config: MAX_SESSIONS_PER_USER must be positive")
	}
	if cfg.HighRiskThreshold <= 0 || cfg.HighRiskThreshold > 1 {
		return nil, errors.New("config: HIGH_RISK_THRESHOLD must be in (0, 1]")
	}

	return &cfg, nil
}

// duration parses s as a time.Duration, falling back to def when unset or
// invalid.
func duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// AccessTTL returns the access token lifetime. Defaults to 1h.
func (c *Config) AccessTTL() time.Duration { return duration(c.JWTAccessTTL, time.Hour) }

// RefreshTTL returns the refresh token lifetime. Defaults to 168h.
func (c *Config) RefreshTTL() time.Duration { return duration(c.JWTRefreshTTL, 168*time.Hour) }

// ClockSkew returns the claim leeway. Defaults to 30s.
func (c *Config) ClockSkew() time.Duration { return duration(c.JWTClockSkew, 30*time.Second) }

// RotationThreshold returns the refresh rotation threshold. Defaults to 15m.
func (c *Config) RotationThreshold() time.Duration {
	return duration(c.JWTRotationThreshold, 15*time.Minute)
}

// MaxTokenAge returns the replay age bound. Defaults to 720h.
func (c *Config) MaxTokenAge() time.Duration { return duration(c.JWTMaxTokenAge, 720*time.Hour) }

// IdleTimeout returns the session idle bound. Defaults to 24h.
func (c *Config) IdleTimeout() time.Duration { return duration(c.SessionIdleTimeout, 24*time.Hour) }

// AbsoluteTimeout returns the session absolute bound. Defaults to 168h.
func (c *Config) AbsoluteTimeout() time.Duration {
	return duration(c.SessionAbsoluteTimeout, 168*time.Hour)
}

// CleanupInterval returns the sweep period. Defaults to 1h.
func (c *Config) CleanupInterval() time.Duration {
	return duration(c.SessionCleanupInterval, time.Hour)
}

// LockoutWindowDuration returns the lockout window. Defaults to 15m.
func (c *Config) LockoutWindowDuration() time.Duration {
	return duration(c.LockoutWindow, 15*time.Minute)
}

// VerifyTimeoutDuration returns the verification deadline. Defaults to 1s.
func (c *Config) VerifyTimeoutDuration() time.Duration {
	return duration(c.VerifyTimeout, time.Second)
}
