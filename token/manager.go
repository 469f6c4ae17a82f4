// Package token signs and verifies the bearer tokens minted on
// successful authentication. Tokens are self-contained Ed25519-signed
// JWTs; verification is stateless and requires no store lookup. The
// private half of the key pair signs, the public half verifies, so a
// verify-only Manager (public key alone) is valid for resource servers.
package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken covers malformed, badly signed, and expired tokens.
	// Callers must not learn which; the distinction only helps forgers.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSigningKey is returned when the private key is absent or
	// unusable at issuance time.
	ErrSigningKey = errors.New("signing key unavailable")
)

// Config is the issuer configuration. Keys may be raw ed25519 key bytes
// or PEM blocks (PKCS#8 / PKIX), matching how deployments usually ship
// key files.
type Config struct {
	Issuer     string
	TTL        time.Duration
	Leeway     time.Duration
	PrivateKey []byte
	PublicKey  []byte
}

// Claims is the verified content of a bearer token.
type Claims struct {
	Roles    []string `json:"roles"`
	Provider string   `json:"provider,omitempty"`
	Email    string   `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Extra carries the optional claims attached on the external-identity
// login path.
type Extra struct {
	Provider string
	Email    string
}

// Manager signs and verifies tokens. It is immutable after NewManager
// and safe for unbounded concurrent use.
type Manager struct {
	config    Config
	signKey   ed25519.PrivateKey
	verifyKey ed25519.PublicKey
	now       func() time.Time
}

// NewManager validates the key material once at construction. A Manager
// without a private key can only verify; a Manager without a public key
// is rejected because verification must always be possible.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("token TTL must be positive")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("token issuer required")
	}

	m := &Manager{config: cfg, now: time.Now}

	if len(cfg.PrivateKey) > 0 {
		key, err := parsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		m.signKey = key
	}

	if len(cfg.PublicKey) == 0 {
		if m.signKey == nil {
			return nil, errors.New("ed25519 key material required")
		}
		m.verifyKey = m.signKey.Public().(ed25519.PublicKey)
	} else {
		key, err := parsePublicKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		m.verifyKey = key
	}

	return m, nil
}

// WithClock substitutes the time source. Tests use it to pin iat/exp.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Issue mints a signed token for subject. IssuedAt is always the current
// instant and ExpiresAt is IssuedAt plus the configured TTL; callers
// cannot extend a token's life.
func (m *Manager) Issue(subject string, roles []string, extra Extra) (string, time.Time, error) {
	if m.signKey == nil {
		return "", time.Time{}, ErrSigningKey
	}

	issuedAt := m.now()
	expiresAt := issuedAt.Add(m.config.TTL)

	claims := Claims{
		Roles:    roles,
		Provider: extra.Provider,
		Email:    extra.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrSigningKey, err)
	}
	return signed, expiresAt, nil
}

// Verify parses and validates a token. All failure modes collapse into
// [ErrInvalidToken].
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.verifyKey, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func parsePrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parsePublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
