package authcore

import (
	"context"
	"errors"
)

// RequestPasswordReset mails a one-time reset code to the address. An
// unknown address returns success without doing anything, so the
// endpoint cannot be used to enumerate accounts. An account that never
// confirmed its address gets [ErrMustVerifyFirst]; resetting through an
// unproven mailbox would hand the account to whoever typed the address.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	var principal *Principal
	var code string
	err := e.store.WithinTx(ctx, func(tx CredentialStore) error {
		p, err := tx.FindByEmail(ctx, email)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if p == nil {
			return nil
		}
		if !p.EmailVerified {
			principal = p
			return ErrMustVerifyFirst
		}

		if err := e.checkCodeRequestLimit(ctx, p.Email); err != nil {
			return err
		}

		c, err := e.newCode()
		if err != nil {
			return err
		}
		code = c
		p.SetCode(code, e.now().Add(e.config.Verification.CodeTTL))
		if err := tx.SaveUser(ctx, p); err != nil {
			return err
		}
		principal = p
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMustVerifyFirst) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, principal.ID, principal.Username, ErrMustVerifyFirst, nil)
		}
		return err
	}
	if principal == nil {
		// Uniform success for unknown addresses.
		e.metricInc(MetricPasswordResetRequest)
		e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", email, nil, func() map[string]string {
			return map[string]string{"known_account": "false"}
		})
		return nil
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, principal.ID, principal.Username, nil, nil)

	if err := e.notifier.SendPasswordResetCode(ctx, principal.Email, principal.Username, code); err != nil {
		e.metricInc(MetricNotificationFailure)
		e.emitAudit(ctx, auditEventNotificationFailure, false, principal.ID, principal.Username, ErrNotificationDelivery, nil)
		return ErrNotificationDelivery
	}

	return nil
}

// VerifyResetCode checks a reset code without consuming it, for the
// two-step reset UI that validates the code before asking for the new
// password. Every failure, including an unknown address, collapses to
// [ErrInvalidOrExpiredCode].
func (e *Engine) VerifyResetCode(ctx context.Context, email, code string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	principal, err := e.store.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if principal == nil {
		return ErrInvalidOrExpiredCode
	}
	if err := e.checkCode(principal, code); err != nil {
		return ErrInvalidOrExpiredCode
	}
	return nil
}

// ConfirmPasswordReset redeems a reset code and installs the new
// password. The code is validated before the new password is looked at,
// and the code pair is cleared in the same write that stores the new
// hash, so a code can never be redeemed twice.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	var principal *Principal
	err := e.store.WithinTx(ctx, func(tx CredentialStore) error {
		p, err := tx.FindByEmail(ctx, email)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if p == nil {
			return ErrInvalidOrExpiredCode
		}
		if err := e.checkCode(p, code); err != nil {
			return ErrInvalidOrExpiredCode
		}

		if len(newPassword) < minPasswordLength {
			return ErrPasswordPolicy
		}
		hash, err := e.passwordHash.Hash(newPassword)
		if err != nil {
			return err
		}

		p.PasswordHash = hash
		p.ClearCode()
		if err := tx.SaveUser(ctx, p); err != nil {
			return err
		}
		principal = p
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPasswordPolicy) {
			return err
		}
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", email, err, nil)
		return err
	}

	if e.rateLimiter != nil {
		e.rateLimiter.ResetLogin(ctx, principal.Username, clientIPFromContext(ctx))
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, principal.ID, principal.Username, nil, nil)

	// Best effort; the reset already happened.
	if err := e.notifier.SendPasswordChanged(ctx, principal.Email, principal.Username); err != nil {
		e.metricInc(MetricNotificationFailure)
		e.emitAudit(ctx, auditEventNotificationFailure, false, principal.ID, principal.Username, ErrNotificationDelivery, nil)
	}

	return nil
}
