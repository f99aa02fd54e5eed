// Package auth implements the API-key capability check that gates the
// ingestion surface. Keys gate access only; they never participate in the
// hash chain.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// KeySet verifies presented API keys against a configured set. Two forms are
// accepted in configuration: plaintext keys (development) and bcrypt hashes
// prefixed per the bcrypt format (production, so the config file never holds
// a usable secret).
type KeySet struct {
	plain  [][32]byte
	hashed [][]byte
}

// NewKeySet builds a KeySet from configured entries. Entries starting with
// "$2" are treated as bcrypt hashes; everything else as a plaintext key.
// Blank entries are ignored.
func NewKeySet(entries []string) *KeySet {
	ks := &KeySet{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		switch {
		case e == "":
		case strings.HasPrefix(e, "$2"):
			ks.hashed = append(ks.hashed, []byte(e))
		default:
			// Plaintext keys are compared through a digest so key length
			// never influences comparison time.
			ks.plain = append(ks.plain, sha256.Sum256([]byte(e)))
		}
	}
	return ks
}

// Empty reports whether no keys are configured at all.
func (ks *KeySet) Empty() bool {
	return len(ks.plain) == 0 && len(ks.hashed) == 0
}

// Check reports whether the presented key matches any configured key.
func (ks *KeySet) Check(presented string) bool {
	if presented == "" {
		return false
	}

	digest := sha256.Sum256([]byte(presented))
	ok := false
	for _, p := range ks.plain {
		if subtle.ConstantTimeCompare(digest[:], p[:]) == 1 {
			ok = true
		}
	}
	for _, h := range ks.hashed {
		if bcrypt.CompareHashAndPassword(h, []byte(presented)) == nil {
			ok = true
		}
	}
	return ok
}

// HashKey returns the bcrypt hash of a key, for generating config entries.
func HashKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
