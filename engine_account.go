package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/obsidiansec/authcore/password"
)

const minPasswordLength = 8

// CreateAccount registers a local principal. The username must be
// unique; a non-empty email must be unique too and starts unconfirmed,
// with a verification code generated and mailed in the same call.
//
// When the notifier fails the account is already persisted and the code
// stays redeemable; the caller gets the principal together with
// [ErrNotificationDelivery] and can trigger a resend later.
func (e *Engine) CreateAccount(ctx context.Context, req CreateAccountRequest) (*Principal, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" {
		return nil, ErrInvalidCredentials
	}
	if len(req.Password) < minPasswordLength {
		e.emitAudit(ctx, auditEventAccountCreationFailure, false, "", req.Username, ErrPasswordPolicy, nil)
		return nil, ErrPasswordPolicy
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	roles := req.Roles
	if len(roles) == 0 {
		roles = []string{DefaultRole}
	}

	principal := &Principal{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		Roles:        roles,
		Email:        req.Email,
		CreatedAt:    e.now(),
	}

	var code string
	err = e.store.WithinTx(ctx, func(tx CredentialStore) error {
		if existing, err := tx.FindByUsername(ctx, req.Username); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		} else if existing != nil {
			return ErrAccountExists
		}
		if req.Email != "" {
			if existing, err := tx.FindByEmail(ctx, req.Email); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			} else if existing != nil {
				return ErrEmailExists
			}

			c, err := e.newCode()
			if err != nil {
				return err
			}
			code = c
			principal.SetCode(code, e.now().Add(e.config.Verification.CodeTTL))
		}

		return tx.SaveUser(ctx, principal)
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) || errors.Is(err, ErrEmailExists) {
			e.metricInc(MetricAccountCreationDuplicate)
			e.emitAudit(ctx, auditEventAccountCreationDuplicate, false, "", req.Username, err, nil)
		}
		return nil, err
	}

	e.metricInc(MetricAccountCreationSuccess)
	e.emitAudit(ctx, auditEventAccountCreationSuccess, true, principal.ID, principal.Username, nil, nil)

	if code != "" {
		if err := e.notifier.SendVerificationCode(ctx, principal.Email, principal.Username, code); err != nil {
			e.metricInc(MetricNotificationFailure)
			e.emitAudit(ctx, auditEventNotificationFailure, false, principal.ID, principal.Username, ErrNotificationDelivery, nil)
			return principal, ErrNotificationDelivery
		}
		e.metricInc(MetricEmailVerificationRequest)
		e.emitAudit(ctx, auditEventEmailVerificationRequest, true, principal.ID, principal.Username, nil, nil)
	}

	return principal, nil
}

// ChangePassword rotates a principal's password after re-proving the
// current one. The new password must differ from the old and meet the
// length policy. The read-check-write runs in one store transaction so
// a concurrently consumed one-time code is never written back. Outstanding
// bearer tokens stay valid until expiry.
func (e *Engine) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	var principal *Principal
	err := e.store.WithinTx(ctx, func(tx CredentialStore) error {
		p, err := tx.FindByUsername(ctx, username)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrNotFound
		}
		principal = p

		if err := e.passwordHash.Verify(oldPassword, p.PasswordHash); err != nil {
			if errors.Is(err, password.ErrHashMismatch) || errors.Is(err, password.ErrMalformedHash) {
				return ErrInvalidCredentials
			}
			return err
		}

		if newPassword == oldPassword {
			return ErrPasswordReuse
		}
		if len(newPassword) < minPasswordLength {
			return ErrPasswordPolicy
		}

		hash, err := e.passwordHash.Hash(newPassword)
		if err != nil {
			return err
		}
		p.PasswordHash = hash
		return tx.SaveUser(ctx, p)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			e.metricInc(MetricPasswordChangeInvalidOld)
			e.emitAudit(ctx, auditEventPasswordChangeInvalidOld, false, principal.ID, username, ErrInvalidCredentials, nil)
		case errors.Is(err, ErrPasswordReuse):
			e.metricInc(MetricPasswordChangeReuseRejected)
			e.emitAudit(ctx, auditEventPasswordChangeReuse, false, principal.ID, username, ErrPasswordReuse, nil)
		}
		return err
	}

	if e.rateLimiter != nil {
		e.rateLimiter.ResetLogin(ctx, username, clientIPFromContext(ctx))
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, principal.ID, username, nil, nil)

	if principal.Email != "" {
		// Best effort; the rotation already happened.
		if err := e.notifier.SendPasswordChanged(ctx, principal.Email, principal.Username); err != nil {
			e.metricInc(MetricNotificationFailure)
			e.emitAudit(ctx, auditEventNotificationFailure, false, principal.ID, username, ErrNotificationDelivery, nil)
		}
	}

	return nil
}

// DeleteAccount removes a local principal. Outstanding bearer tokens
// stay valid until expiry; verification is stateless.
func (e *Engine) DeleteAccount(ctx context.Context, username string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	principal, err := e.store.FindByUsername(ctx, username)
	if err != nil {
		return err
	}
	if principal == nil {
		return ErrNotFound
	}

	if err := e.store.DeleteUser(ctx, principal.ID); err != nil {
		return err
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, true, principal.ID, username, nil, nil)
	return nil
}

// UsernameAvailable reports whether no principal holds the username.
func (e *Engine) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	if e == nil || e.store == nil {
		return false, ErrEngineNotReady
	}
	principal, err := e.store.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}
	return principal == nil, nil
}

// EmailAvailable reports whether no principal holds the address. The
// lookup is case-insensitive.
func (e *Engine) EmailAvailable(ctx context.Context, email string) (bool, error) {
	if e == nil || e.store == nil {
		return false, ErrEngineNotReady
	}
	principal, err := e.store.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}
	return principal == nil, nil
}
