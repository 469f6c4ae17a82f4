package authcore

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/obsidiansec/authcore/internal/rate"
	"github.com/obsidiansec/authcore/password"
	"github.com/obsidiansec/authcore/token"
)

// Builder assembles an [Engine]. A Builder is single-use; Build fails
// on the second call.
type Builder struct {
	config Config
	redis  *redis.Client

	store     CredentialStore
	notifier  Notifier
	auditSink AuditSink
	clock     func() time.Time

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. Call it before the
// other With methods that touch individual config fields.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithKeyPair sets the Ed25519 signing key pair, raw or PEM-encoded.
func (b *Builder) WithKeyPair(privateKey, publicKey []byte) *Builder {
	b.config.Token.PrivateKey = append([]byte(nil), privateKey...)
	b.config.Token.PublicKey = append([]byte(nil), publicKey...)
	return b
}

// WithRedis enables the Redis-backed throttles. Without it the engine
// runs with rate limiting disabled.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithNotifier sets the outbound mail hook. Required; use a no-op
// implementation to run without delivery.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the audit destination.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithClock substitutes the time source used for code expiry, token
// lifetimes, and the cleanup sweep.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates the configuration and assembles the engine. The
// cleanup sweeper starts immediately when enabled.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	engine := &Engine{
		config:   cfg,
		store:    b.store,
		notifier: b.notifier,
		clock:    b.clock,
	}
	if engine.clock == nil {
		engine.clock = time.Now
	}

	if b.redis != nil {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:    cfg.RateLimit.EnableIPThrottle,
			MaxLoginAttempts:    cfg.RateLimit.MaxLoginAttempts,
			LoginCooldown:       cfg.RateLimit.LoginCooldown,
			MaxCodeRequests:     cfg.RateLimit.MaxCodeRequests,
			CodeRequestCooldown: cfg.RateLimit.CodeRequestCooldown,
		})
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	engine.passwordHash = password.NewHasher(password.Params{
		Memory:      cfg.Password.Memory,
		Iterations:  cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})

	// The unknown-username burn hash must carry the configured cost
	// parameters; its password is random and immediately discarded.
	dummy, err := engine.passwordHash.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}
	engine.dummyHash = dummy

	tm, err := token.NewManager(token.Config{
		Issuer:     cfg.Token.Issuer,
		TTL:        cfg.Token.TTL,
		Leeway:     cfg.Token.Leeway,
		PrivateKey: cfg.Token.PrivateKey,
		PublicKey:  cfg.Token.PublicKey,
	})
	if err != nil {
		return nil, err
	}
	if b.clock != nil {
		tm = tm.WithClock(b.clock)
	}
	engine.tokens = tm

	if cfg.Cleanup.Enabled {
		engine.sweeper = newSweeper(engine, cfg.Cleanup)
		engine.sweeper.start()
	}

	b.built = true

	return engine, nil
}
