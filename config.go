package authcore

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/quantconsole/authcore/internal/eventlog"
)

// Config is the full engine configuration, split into per-concern sections.
// Zero values are filled from defaultConfig by the Builder; Validate runs
// once at Build time and the config is immutable afterwards.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	TOTP     TOTPConfig
	Password PasswordConfig
	Security SecurityConfig
	Events   EventsConfig
	Metrics  MetricsConfig
}

// JWTConfig controls token issuance. Secret is mandatory and has no default.
type JWTConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

// SessionConfig controls the Redis session registry.
type SessionConfig struct {
	RedisPrefix string
	// Lifetime is the absolute session lifetime. A session cannot be
	// renewed past it regardless of refresh activity.
	Lifetime time.Duration
}

// TOTPConfig controls 2FA enrollment and verification.
type TOTPConfig struct {
	Issuer       string
	SecretLength int
	Digits       int
	Period       int
	// Skew is the number of adjacent time steps accepted on either side
	// of the current one.
	Skew            int
	BackupCodeCount int
}

// PasswordConfig controls the bcrypt hasher.
type PasswordConfig struct {
	Cost int
}

// SecurityConfig controls session binding checks on token refresh.
type SecurityConfig struct {
	// RejectIPMismatch revokes-and-rejects a refresh arriving from an IP
	// other than the one the session was created with.
	RejectIPMismatch bool
	// FlagUserAgentMismatch records a medium-severity event when the
	// User-Agent changes mid-session. The refresh still succeeds; browser
	// updates legitimately change the string.
	FlagUserAgentMismatch bool
}

// EventsConfig controls the async sink dispatcher. Event persistence
// through the EventStore is always synchronous and unaffected by this.
type EventsConfig struct {
	SinkEnabled    bool
	SinkBufferSize int
	SinkDropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the baseline configuration. Callers must still set
// JWT.Secret before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  time.Hour,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "QuantConsole",
			Audience:   "QuantConsole-Client",
		},
		Session: SessionConfig{
			RedisPrefix: "auth",
			Lifetime:    7 * 24 * time.Hour,
		},
		TOTP: TOTPConfig{
			Issuer:          "QuantConsole",
			SecretLength:    32,
			Digits:          6,
			Period:          30,
			Skew:            1,
			BackupCodeCount: 8,
		},
		Password: PasswordConfig{
			Cost: bcrypt.DefaultCost,
		},
		Security: SecurityConfig{
			RejectIPMismatch:      true,
			FlagUserAgentMismatch: true,
		},
		Events: EventsConfig{
			SinkBufferSize: 1024,
			SinkDropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks cross-field consistency. Called by Build; exported so
// hosts can pre-validate configs loaded from their own sources.
func (c Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT secret must be at least 32 bytes")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT TTLs must be positive")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT refresh TTL must not be shorter than access TTL")
	}
	if c.JWT.Issuer == "" {
		return errors.New("JWT issuer required")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("session lifetime must be positive")
	}
	if c.Session.Lifetime < c.JWT.RefreshTTL {
		return errors.New("session lifetime must cover the refresh TTL")
	}
	if c.TOTP.SecretLength < 16 {
		return errors.New("TOTP secret length must be at least 16 bytes")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("TOTP digits must be between 6 and 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP period must be positive")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("TOTP skew must be between 0 and 2")
	}
	if c.TOTP.BackupCodeCount < 1 || c.TOTP.BackupCodeCount > 20 {
		return errors.New("backup code count must be between 1 and 20")
	}
	if c.Events.SinkEnabled && c.Events.SinkBufferSize <= 0 {
		return errors.New("event sink buffer size must be positive")
	}
	return nil
}

func (c Config) dispatcherConfig() eventlog.DispatcherConfig {
	return eventlog.DispatcherConfig{
		Enabled:    c.Events.SinkEnabled,
		BufferSize: c.Events.SinkBufferSize,
		DropIfFull: c.Events.SinkDropIfFull,
	}
}
