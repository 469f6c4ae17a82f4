package authcore

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventLoginRateLimited         = "login_rate_limited"
	auditEventExternalLogin            = "external_login"
	auditEventAccountCreationSuccess   = "account_creation_success"
	auditEventAccountCreationFailure   = "account_creation_failure"
	auditEventAccountCreationDuplicate = "account_creation_duplicate"
	auditEventAccountDeleted           = "account_deleted"
	auditEventPasswordChangeSuccess    = "password_change_success"
	auditEventPasswordChangeInvalidOld = "password_change_invalid_old"
	auditEventPasswordChangeReuse      = "password_change_reuse_attempt"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventPasswordResetConfirm     = "password_reset_confirm"
	auditEventEmailVerificationRequest = "email_verification_request"
	auditEventEmailVerificationConfirm = "email_verification_confirm"
	auditEventCodeRequestRateLimited   = "code_request_rate_limited"
	auditEventCleanupRun               = "cleanup_run"
	auditEventNotificationFailure      = "notification_failure"
)

// AuditErrorCode is the stable error label carried on failed audit
// events. Codes are coarser than the sentinel errors so that event
// consumers do not learn more than API callers do.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrUnverified         AuditErrorCode = "account_unverified"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidCode        AuditErrorCode = "invalid_code"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrNotification       AuditErrorCode = "notification_failed"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	username string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Username:  username,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountNotVerified),
		errors.Is(err, ErrMustVerifyFirst):
		return auditErrUnverified
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrCodeRequestRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrNoStoredCode),
		errors.Is(err, ErrCodeExpired),
		errors.Is(err, ErrCodeMismatch),
		errors.Is(err, ErrInvalidOrExpiredCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrEmailExists):
		return auditErrDuplicate
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrNoEmailOnFile):
		return auditErrNotFound
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrNotificationDelivery):
		return auditErrNotification
	default:
		return auditErrInternal
	}
}
