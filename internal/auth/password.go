package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// hashCost matches the 10 rounds the platform has always used for both
// passwords and refresh tokens.
const hashCost = 10

// Hasher produces and verifies salted one-way digests. The same hasher is
// used for account passwords and for persisted refresh tokens.
type Hasher struct {
	cost int
}

// NewHasher returns a bcrypt-backed hasher with the standard cost.
func NewHasher() *Hasher {
	return &Hasher{cost: hashCost}
}

// Hash returns a salted digest of secret. Output differs across calls for
// the same input.
func (h *Hasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret is empty")
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether secret matches digest. A malformed or empty digest
// is a mismatch, never an error.
func (h *Hasher) Verify(secret, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}
