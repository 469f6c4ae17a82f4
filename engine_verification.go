package authcore

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/obsidiansec/authcore/internal"
)

func (e *Engine) newCode() (string, error) {
	return internal.NewCode(e.config.Verification.CodeLength)
}

// ConfirmEmail redeems a verification code for the account holding the
// address. Confirming an already-verified account is a no-op success so
// a delayed or duplicated confirmation does not surface as an error.
// On success the code and its expiry are cleared in the same write that
// flips the verified flag.
func (e *Engine) ConfirmEmail(ctx context.Context, email, code string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	err := e.store.WithinTx(ctx, func(tx CredentialStore) error {
		principal, err := tx.FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if principal == nil {
			return ErrNotFound
		}

		if principal.EmailVerified {
			return nil
		}

		if err := e.checkCode(principal, code); err != nil {
			return err
		}

		principal.EmailVerified = true
		principal.ClearCode()
		return tx.SaveUser(ctx, principal)
	})
	if err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, "", email, err, nil)
		return err
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, true, "", email, nil, nil)
	return nil
}

// ResendVerificationCode issues a fresh code for an unconfirmed
// account, replacing any previous one. The new code is persisted before
// the mail goes out, so a delivery failure leaves it redeemable and the
// caller can retry the send.
func (e *Engine) ResendVerificationCode(ctx context.Context, email string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	var principal *Principal
	var code string
	err := e.store.WithinTx(ctx, func(tx CredentialStore) error {
		p, err := tx.FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrNotFound
		}
		if p.EmailVerified {
			return ErrAlreadyVerified
		}
		if p.Email == "" {
			return ErrNoEmailOnFile
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
		return err
	}

	e.metricInc(MetricEmailVerificationRequest)
	e.emitAudit(ctx, auditEventEmailVerificationRequest, true, principal.ID, principal.Username, nil, nil)

	if err := e.notifier.SendVerificationCode(ctx, principal.Email, principal.Username, code); err != nil {
		e.metricInc(MetricNotificationFailure)
		e.emitAudit(ctx, auditEventNotificationFailure, false, principal.ID, principal.Username, ErrNotificationDelivery, nil)
		return ErrNotificationDelivery
	}

	return nil
}

func (e *Engine) checkCodeRequestLimit(ctx context.Context, email string) error {
	if e.rateLimiter == nil {
		return nil
	}
	if err := e.rateLimiter.CheckCodeRequest(ctx, email); err != nil {
		e.metricInc(MetricCodeRequestRateLimited)
		e.emitAudit(ctx, auditEventCodeRequestRateLimited, false, "", email, ErrCodeRequestRateLimited, nil)
		return ErrCodeRequestRateLimited
	}
	return nil
}

// checkCode validates a submitted code against the principal's stored
// one. Both sides are trimmed before comparing so that a copy-pasted
// code with stray whitespace still redeems. The three failure modes
// stay distinct here; callers that must not leak them collapse the
// error themselves.
func (e *Engine) checkCode(principal *Principal, code string) error {
	if principal.Code == "" || principal.CodeExpiresAt == nil {
		return ErrNoStoredCode
	}
	if !principal.CodeExpiresAt.After(e.now()) {
		return ErrCodeExpired
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(principal.Code)), []byte(strings.TrimSpace(code))) != 1 {
		return ErrCodeMismatch
	}
	return nil
}
