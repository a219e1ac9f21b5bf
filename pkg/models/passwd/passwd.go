package passwd

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultCost    = 12
	MaxPasswordLen = 72 // bcrypt input limit
	MinPasswordLen = 8
)

var (
	ErrTooLong  = errors.New("password exceeds 72 bytes and will be truncated by bcrypt")
	ErrTooShort = errors.New("password must be at least 8 characters")
)

// Hasher hashes and verifies passwords at a fixed bcrypt cost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher using cost, clamped to bcrypt's accepted range.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Hash validates the password length and returns its bcrypt hash.
func (h *Hasher) Hash(password string) (string, error) {
	if err := Validate(password); err != nil {
		return "", err
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

// Validate checks the password against the length limits.
func Validate(password string) error {
	if len(password) > MaxPasswordLen {
		return ErrTooLong
	}
	if len(password) < MinPasswordLen {
		return ErrTooShort
	}
	return nil
}

// HashPassword hashes a password using bcrypt with the DefaultCost
func HashPassword(password string) (string, error) {
	return NewHasher(DefaultCost).Hash(password)
}

// CheckPasswordHash compares a plaintext password with a bcrypt hashed password.
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
