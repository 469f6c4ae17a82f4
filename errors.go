package authcore

import "errors"

var (
	// ErrInvalidCredentials covers both an unknown username and a wrong
	// password. The two cases are deliberately indistinguishable so a
	// caller cannot probe for account existence.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotVerified is returned when a principal with a
	// non-empty, unconfirmed email submits the correct password. Unlike
	// account existence, this is safe to reveal: the caller already
	// proved password knowledge.
	ErrAccountNotVerified = errors.New("account not verified")
	// ErrAccountExists is returned by CreateAccount for a duplicate username.
	ErrAccountExists = errors.New("account already exists")
	// ErrEmailExists is returned by CreateAccount for a duplicate email.
	ErrEmailExists = errors.New("email already registered")
	// ErrNotFound is returned when an operation targets a principal or
	// linked identity that is not in the store.
	ErrNotFound = errors.New("account not found")

	// ErrTokenInvalid covers a bad signature, a malformed token, and an
	// expired token. Callers only learn "invalid".
	ErrTokenInvalid = errors.New("invalid token")
	// ErrSigning is returned when key material is unavailable or unusable
	// at issuance time.
	ErrSigning = errors.New("token signing failed")

	// ErrNoStoredCode is returned when redemption finds no live code on
	// the principal.
	ErrNoStoredCode = errors.New("no verification code on record")
	// ErrCodeExpired is returned when the stored code's expiry instant
	// has passed.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeMismatch is returned when the submitted code does not equal
	// the stored one.
	ErrCodeMismatch = errors.New("verification code mismatch")
	// ErrAlreadyVerified is returned by ResendVerificationCode for a
	// principal whose email is already confirmed.
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrNoEmailOnFile is returned when a code cannot be issued because
	// the principal has no email address.
	ErrNoEmailOnFile = errors.New("no email on file")
	// ErrMustVerifyFirst is returned by RequestPasswordReset for a
	// principal whose email was never confirmed.
	ErrMustVerifyFirst = errors.New("email must be verified first")
	// ErrInvalidOrExpiredCode is the collapsed failure of the password
	// reset confirmation; the reset caller holds the account context, so
	// no finer distinction is needed there.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")

	// ErrPasswordPolicy is returned when a new password fails the
	// hasher's minimum requirements.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a password change submits the
	// current password as the new one.
	ErrPasswordReuse = errors.New("new password must be different from current password")

	// ErrNotificationDelivery wraps a Notifier failure. The code that
	// triggered the send is already persisted and stays redeemable.
	ErrNotificationDelivery = errors.New("notification delivery failed")

	// ErrLoginRateLimited is returned when the optional Redis throttle
	// rejects a login attempt.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrCodeRequestRateLimited is returned when the optional Redis
	// throttle rejects a verification or reset code request.
	ErrCodeRequestRateLimited = errors.New("code request rate limited")

	// ErrEngineNotReady is returned when an Engine method runs before
	// Build wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)
