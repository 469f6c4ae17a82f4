// Package internal holds small helpers shared by the engine that are
// not part of the public surface.
package internal

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// NewCode generates a numeric one-time code of the given length using
// crypto/rand. Leading zeros are allowed; codes are always compared as
// strings, never parsed as integers.
func NewCode(length int) (string, error) {
	if length < 4 || length > 10 {
		return "", fmt.Errorf("code length %d out of range [4,10]", length)
	}

	var b strings.Builder
	b.Grow(length)
	max := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("reading random digit: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
