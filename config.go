package authcore

import (
	"errors"
	"time"
)

// Config carries all Engine tuning. Instances are configured during
// initialization and treated as immutable after [Builder.Build].
type Config struct {
	Token        TokenConfig
	Verification VerificationConfig
	Cleanup      CleanupConfig
	Password     PasswordConfig
	RateLimit    RateLimitConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

// TokenConfig configures the bearer-token issuer. PrivateKey and
// PublicKey hold an Ed25519 key pair, either raw or PEM-encoded; key
// rotation is out of scope, the pair is loaded once at process start.
type TokenConfig struct {
	Issuer     string
	TTL        time.Duration
	Leeway     time.Duration
	PrivateKey []byte
	PublicKey  []byte
}

// VerificationConfig configures one-time codes for email confirmation
// and password reset. Both purposes share the code length and TTL.
type VerificationConfig struct {
	CodeLength int
	CodeTTL    time.Duration
}

// CleanupConfig configures the unverified-account sweep.
type CleanupConfig struct {
	Enabled   bool
	Interval  time.Duration
	Retention time.Duration
}

// PasswordConfig holds the argon2id parameters, in the password
// subpackage's units (Memory in KB).
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// RateLimitConfig configures the optional Redis-backed throttles. All
// throttling is skipped when the Builder receives no Redis client.
type RateLimitConfig struct {
	EnableIPThrottle    bool
	MaxLoginAttempts    int
	LoginCooldown       time.Duration
	MaxCodeRequests     int
	CodeRequestCooldown time.Duration
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables the in-process atomic counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultRole is assigned to accounts created without an explicit role
// set, and to every linked identity on first login.
const DefaultRole = "USER"

// DefaultConfig returns the configuration the Builder starts from.
// Callers adjust fields and pass the result to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer: "authcore",
			TTL:    time.Hour,
		},
		Verification: VerificationConfig{
			CodeLength: 6,
			CodeTTL:    15 * time.Minute,
		},
		Cleanup: CleanupConfig{
			Enabled:   true,
			Interval:  time.Hour,
			Retention: 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		RateLimit: RateLimitConfig{
			EnableIPThrottle:    true,
			MaxLoginAttempts:    10,
			LoginCooldown:       15 * time.Minute,
			MaxCodeRequests:     5,
			CodeRequestCooldown: time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks invariants that Build depends on. It does not inspect
// key material; the token manager rejects unusable keys itself.
func (c Config) Validate() error {
	if c.Token.TTL <= 0 {
		return errors.New("token TTL must be positive")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("token leeway out of range")
	}
	if c.Token.Issuer == "" {
		return errors.New("token issuer required")
	}
	if c.Verification.CodeLength < 4 || c.Verification.CodeLength > 10 {
		return errors.New("verification code length must be between 4 and 10 digits")
	}
	if c.Verification.CodeTTL <= 0 {
		return errors.New("verification code TTL must be positive")
	}
	if c.Cleanup.Enabled {
		if c.Cleanup.Interval <= 0 {
			return errors.New("cleanup interval must be positive")
		}
		if c.Cleanup.Retention <= 0 {
			return errors.New("cleanup retention must be positive")
		}
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = append([]byte(nil), cfg.Token.PrivateKey...)
	out.Token.PublicKey = append([]byte(nil), cfg.Token.PublicKey...)
	return out
}
