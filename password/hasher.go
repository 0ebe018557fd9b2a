// Package password wraps bcrypt behind a small Hasher so callers never touch
// cost parameters or hash internals directly.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPassBytes = 8
	// bcrypt truncates input past 72 bytes; reject instead of silently
	// hashing a prefix.
	maxPassBytes = 72
)

var (
	// ErrMismatch is returned by Verify when the password does not match
	// the stored hash.
	ErrMismatch = errors.New("password mismatch")
	// ErrWeakPassword is returned by Hash for passwords outside the
	// accepted length range.
	ErrWeakPassword = errors.New("password outside accepted length range")
)

// Config defines the bcrypt cost for a Hasher. Configure once at
// initialization and treat as immutable.
type Config struct {
	Cost int
}

// Hasher hashes and verifies passwords. Safe for concurrent use.
type Hasher struct {
	cost int
}

func NewHasher(cfg Config) (*Hasher, error) {
	cost := cfg.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.New("password cost out of range")
	}

	return &Hasher{cost: cost}, nil
}

// Hash derives a salted bcrypt hash from the raw password bytes. No Unicode
// normalization is applied.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < minPassBytes || len(password) > maxPassBytes {
		return "", ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// Verify checks the password against a stored hash. A mismatch returns
// ErrMismatch; any other error means the stored hash is malformed.
func (h *Hasher) Verify(password, encodedHash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}

	return err
}

// NeedsUpgrade reports whether the stored hash was produced with a lower
// cost than currently configured.
func (h *Hasher) NeedsUpgrade(encodedHash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false, err
	}

	return cost < h.cost, nil
}
