// Package tokenstore issues and redeems single-use tokens for magic links,
// email verification and password resets. Only a SHA-256 hash of each token
// is stored.
package tokenstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Purpose scopes a token to one flow; a reset token cannot log anyone in.
type Purpose string

const (
	PurposeMagicLink     Purpose = "magic_link"
	PurposeVerifyEmail   Purpose = "verify_email"
	PurposePasswordReset Purpose = "password_reset"
)

func (p Purpose) IsValid() bool {
	switch p {
	case PurposeMagicLink, PurposeVerifyEmail, PurposePasswordReset:
		return true
	}
	return false
}

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenUsed     = errors.New("token already used")
)

// tokenLength is the number of random bytes in a raw token.
const tokenLength = 32

// Store defines the one-time token operations used by the auth handlers.
type Store interface {
	// Issue creates a token for userID valid for ttl and returns the raw value
	// to embed in a link. The raw value is never stored.
	Issue(ctx context.Context, userID string, purpose Purpose, ttl time.Duration) (string, error)

	// Consume redeems raw for purpose and returns the owning user id. A token
	// can be consumed at most once.
	Consume(ctx context.Context, raw string, purpose Purpose) (string, error)

	// CleanupExpired deletes tokens past their expiry.
	CleanupExpired(ctx context.Context) error

	// StartCleanupWorker runs CleanupExpired every interval until Stop.
	StartCleanupWorker(interval time.Duration)

	// Stop ends the cleanup worker and waits for it. Safe to call more than once.
	Stop()
}

// generateSecureToken returns n random bytes hex encoded.
func generateSecureToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
