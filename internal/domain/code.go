package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/cockroachdb/errors"
)

const codeBytes = 4

// NewCode returns an 8 character upper-case hex booking code. Uniqueness is
// enforced by the store, not here.
func NewCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "read random bytes")
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// NormalizeCode makes user supplied codes comparable with stored ones.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
