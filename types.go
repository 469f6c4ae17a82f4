package authcore

import (
	"context"
	"time"
)

// Principal is a local, password-authenticated account record. The
// one-time code and its expiry are a unit: they are always set together
// through SetCode and cleared together through ClearCode, never mutated
// individually.
type Principal struct {
	ID            string
	Username      string
	PasswordHash  string
	Roles         []string
	Email         string
	EmailVerified bool
	Code          string
	CodeExpiresAt *time.Time
	CreatedAt     time.Time
}

// SetCode installs a fresh one-time code with its expiry instant.
func (p *Principal) SetCode(code string, expiresAt time.Time) {
	p.Code = code
	p.CodeExpiresAt = &expiresAt
}

// ClearCode removes the one-time code pair. Called exactly once per
// redemption, inside the same transaction as the redemption's effect.
func (p *Principal) ClearCode() {
	p.Code = ""
	p.CodeExpiresAt = nil
}

// HasLiveCode reports whether a code is present and not expired at now.
func (p *Principal) HasLiveCode(now time.Time) bool {
	return p.Code != "" && p.CodeExpiresAt != nil && !p.CodeExpiresAt.Before(now)
}

// LinkedIdentity is an account record originating from a third-party
// identity-provider callback. (Provider, SubjectID) is unique; profile
// fields are refreshed on every callback.
type LinkedIdentity struct {
	ID         string
	Email      string
	Name       string
	AvatarURL  string
	Provider   string
	SubjectID  string
	FirstLogin time.Time
	LastLogin  time.Time
	LoginCount int
	Roles      []string
}

// ExternalAssertion is a verified identity assertion delivered by an
// identity-provider callback. The transport layer is responsible for
// having validated it; authcore trusts its contents.
type ExternalAssertion struct {
	Provider  string
	SubjectID string
	Email     string
	Name      string
	AvatarURL string
}

// Identity is the resolved subject of a successful authentication:
// either (username, stored roles) for the local path or
// (email, base role, provider) for the external path.
type Identity struct {
	Subject  string
	Roles    []string
	Provider string
	Email    string
}

// Session is the result of a successful login: a signed bearer token and
// the identity it asserts. Nothing here is persisted; the token is
// self-contained.
type Session struct {
	Token     string
	Identity  Identity
	ExpiresAt time.Time
}

// CreateAccountRequest is the input for [Engine.CreateAccount]. Email is
// optional; when present a verification code is issued and sent.
type CreateAccountRequest struct {
	Username string
	Password string
	Email    string
	Roles    []string
}

// CredentialStore is the persistence contract callers must implement.
// Lookups report a missing record with a nil result; returning
// [ErrNotFound] (possibly wrapped) is also accepted. FindByEmail must
// compare case-insensitively.
//
// WithinTx runs fn against a store view with transaction semantics: all
// mutations made through that view commit atomically, and concurrent
// transactions touching the same principal serialize. Every multi-step
// Engine mutation (registration, code redemption, identity upsert, the
// cleanup sweep) runs inside WithinTx.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*Principal, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	SaveUser(ctx context.Context, p *Principal) error
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]Principal, error)

	FindByProviderSubject(ctx context.Context, provider, subjectID string) (*LinkedIdentity, error)
	SaveLinkedIdentity(ctx context.Context, li *LinkedIdentity) error
	DeleteLinkedIdentity(ctx context.Context, id string) error

	WithinTx(ctx context.Context, fn func(CredentialStore) error) error
}

// Notifier is the outbound message contract. Implementations may be slow;
// the Engine calls them last in every flow so a delivery failure never
// rolls back persisted state. Failures surface wrapped in
// [ErrNotificationDelivery].
type Notifier interface {
	SendVerificationCode(ctx context.Context, toEmail, displayName, code string) error
	SendPasswordResetCode(ctx context.Context, toEmail, displayName, code string) error
	SendPasswordChanged(ctx context.Context, toEmail, displayName string) error
}
