package authcore

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"

	"github.com/obsidiansec/authcore/password"
	"github.com/obsidiansec/authcore/token"
)

// Login resolves a username+password pair to a signed session. An
// unknown username and a wrong password both come back as
// [ErrInvalidCredentials]; a correct password on an account whose email
// was never confirmed comes back as [ErrAccountNotVerified].
func (e *Engine) Login(ctx context.Context, username, pass string) (*Session, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, username, ip); err != nil {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", username, ErrLoginRateLimited, nil)
			return nil, ErrLoginRateLimited
		}
	}

	principal, err := e.store.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if principal == nil {
		// Burn a hash verification so the unknown-username path costs
		// the same as a wrong password.
		e.passwordHash.Verify(pass, e.dummyHash)
		return nil, e.failLogin(ctx, username, ip)
	}

	if err := e.passwordHash.Verify(pass, principal.PasswordHash); err != nil {
		if !errors.Is(err, password.ErrHashMismatch) && !errors.Is(err, password.ErrMalformedHash) {
			return nil, err
		}
		return nil, e.failLogin(ctx, username, ip)
	}

	// Password knowledge is proven at this point, so revealing the
	// verification state leaks nothing new.
	if principal.Email != "" && !principal.EmailVerified {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, username, ErrAccountNotVerified, nil)
		return nil, ErrAccountNotVerified
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.ResetLogin(ctx, username, ip); err != nil {
			return nil, err
		}
	}

	session, err := e.issueSession(principal)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, principal.ID, username, nil, nil)

	return session, nil
}

func (e *Engine) failLogin(ctx context.Context, username, ip string) error {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.IncrementLogin(ctx, username, ip); err != nil {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", username, ErrLoginRateLimited, nil)
			return ErrLoginRateLimited
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, "", username, ErrInvalidCredentials, nil)
	return ErrInvalidCredentials
}

// ExternalLogin resolves an identity-provider assertion to a signed
// session, creating or refreshing the linked identity record. The
// caller has already validated the assertion with the provider; this
// method trusts it.
func (e *Engine) ExternalLogin(ctx context.Context, assertion ExternalAssertion) (*Session, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if assertion.Provider == "" || assertion.SubjectID == "" {
		return nil, ErrInvalidCredentials
	}

	now := e.now()

	var identity *LinkedIdentity
	err := e.store.WithinTx(ctx, func(tx CredentialStore) error {
		existing, err := tx.FindByProviderSubject(ctx, assertion.Provider, assertion.SubjectID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		if existing == nil {
			existing = &LinkedIdentity{
				ID:         uuid.NewString(),
				Provider:   assertion.Provider,
				SubjectID:  assertion.SubjectID,
				FirstLogin: now,
				Roles:      []string{DefaultRole},
			}
		}

		// Profile fields track whatever the provider currently asserts.
		existing.Email = assertion.Email
		existing.Name = assertion.Name
		existing.AvatarURL = assertion.AvatarURL
		existing.LastLogin = now
		existing.LoginCount++

		if err := tx.SaveLinkedIdentity(ctx, existing); err != nil {
			return err
		}
		identity = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	subject := identity.Email
	if subject == "" {
		subject = identity.Provider + ":" + identity.SubjectID
	}

	tokenStr, expiresAt, err := e.tokens.Issue(subject, identity.Roles, token.Extra{
		Provider: identity.Provider,
		Email:    identity.Email,
	})
	if err != nil {
		return nil, ErrSigning
	}
	e.metricInc(MetricTokenIssued)
	e.metricInc(MetricExternalLoginSuccess)
	e.emitAudit(ctx, auditEventExternalLogin, true, identity.ID, subject, nil, func() map[string]string {
		return map[string]string{
			"provider":    identity.Provider,
			"login_count": strconv.Itoa(identity.LoginCount),
		}
	})

	return &Session{
		Token: tokenStr,
		Identity: Identity{
			Subject:  subject,
			Roles:    identity.Roles,
			Provider: identity.Provider,
			Email:    identity.Email,
		},
		ExpiresAt: expiresAt,
	}, nil
}
