package authcore

import (
	"context"
	"time"

	"github.com/obsidiansec/authcore/internal/rate"
	"github.com/obsidiansec/authcore/password"
	"github.com/obsidiansec/authcore/token"
)

// Engine is the identity core. It resolves principals against the
// configured store, mints and verifies bearer tokens, runs the
// one-time-code flows, and sweeps stale unverified accounts.
//
// Engine instances are configured during initialization and treated as
// immutable afterwards; all methods are safe for concurrent use when
// the store and notifier are.
type Engine struct {
	config       Config
	store        CredentialStore
	notifier     Notifier
	rateLimiter  *rate.Limiter
	audit        *auditDispatcher
	metrics      *Metrics
	passwordHash *password.Hasher
	tokens       *token.Manager
	sweeper      *sweeper
	clock        func() time.Time

	// dummyHash is burned on unknown usernames so both login failure
	// paths cost one argon2 verification at the configured parameters.
	dummyHash string
}

// Close stops the cleanup sweeper and drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.sweeper != nil {
		e.sweeper.stop()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

// VerifyToken validates a bearer token and returns the identity it
// asserts. Verification is stateless; revocation before expiry is not
// supported.
func (e *Engine) VerifyToken(ctx context.Context, tokenStr string) (*Identity, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Verify(tokenStr)
	if err != nil {
		e.metricInc(MetricTokenVerifyFailure)
		return nil, ErrTokenInvalid
	}

	return &Identity{
		Subject:  claims.Subject,
		Roles:    claims.Roles,
		Provider: claims.Provider,
		Email:    claims.Email,
	}, nil
}

func (e *Engine) issueSession(principal *Principal) (*Session, error) {
	tokenStr, expiresAt, err := e.tokens.Issue(principal.Username, principal.Roles, token.Extra{
		Email: principal.Email,
	})
	if err != nil {
		return nil, ErrSigning
	}
	e.metricInc(MetricTokenIssued)

	return &Session{
		Token: tokenStr,
		Identity: Identity{
			Subject: principal.Username,
			Roles:   principal.Roles,
			Email:   principal.Email,
		},
		ExpiresAt: expiresAt,
	}, nil
}
