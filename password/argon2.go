// Package password hashes and verifies user passwords with argon2id.
// Hashes are stored in the PHC string format so parameters travel with
// the hash and can be tightened later without invalidating old records.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrHashMismatch is returned when the candidate password does not
	// match the stored hash.
	ErrHashMismatch = errors.New("password does not match hash")
	// ErrMalformedHash is returned for stored values that are not valid
	// PHC argon2id strings.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Params tune argon2id. Zero values are replaced by Defaults at hash
// time so a zero Hasher is usable.
type Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Defaults follows the RFC 9106 low-memory recommendation.
func Defaults() Params {
	return Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher produces and checks argon2id hashes. It holds no mutable
// state and may be shared freely.
type Hasher struct {
	params Params
}

// NewHasher fills missing parameters from Defaults.
func NewHasher(p Params) *Hasher {
	d := Defaults()
	if p.Memory == 0 {
		p.Memory = d.Memory
	}
	if p.Iterations == 0 {
		p.Iterations = d.Iterations
	}
	if p.Parallelism == 0 {
		p.Parallelism = d.Parallelism
	}
	if p.SaltLength == 0 {
		p.SaltLength = d.SaltLength
	}
	if p.KeyLength == 0 {
		p.KeyLength = d.KeyLength
	}
	return &Hasher{params: p}
}

// Hash derives a fresh salted hash for password.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks password against an encoded hash. The comparison is
// constant time over the derived key. Verification always uses the
// parameters embedded in the stored hash, not the Hasher's own.
func (h *Hasher) Verify(password, encoded string) error {
	params, salt, key, err := decode(encoded)
	if err != nil {
		return err
	}

	candidate := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(key)))
	if subtle.ConstantTimeCompare(key, candidate) != 1 {
		return ErrHashMismatch
	}
	return nil
}

// NeedsRehash reports whether encoded was produced with weaker
// parameters than the Hasher currently uses.
func (h *Hasher) NeedsRehash(encoded string) bool {
	params, _, key, err := decode(encoded)
	if err != nil {
		return true
	}
	return params.Memory < h.params.Memory ||
		params.Iterations < h.params.Iterations ||
		params.Parallelism < h.params.Parallelism ||
		uint32(len(key)) < h.params.KeyLength
}

func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return Params{}, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Params{}, nil, nil, ErrMalformedHash
	}

	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return Params{}, nil, nil, ErrMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, ErrMalformedHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, ErrMalformedHash
	}
	return p, salt, key, nil
}
