package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Field limits for the values copied into a session token. Together with
// MaxSnapshotBytes they keep every encoded session well under the cookie
// size browsers accept.
const (
	MaxEmailLen      = 254
	MaxNameLen       = 100
	MaxImageLen      = 1024
	MaxSnapshotBytes = 2048
)

// UserSnapshot is the copy of the user carried inside a session token so that
// pages can render the current user without a lookup.
type UserSnapshot struct {
	ID    string  `json:"id"`
	Email string  `json:"email"`
	Name  string  `json:"name"`
	Role  Role    `json:"role"`
	Image *string `json:"image,omitempty"`
}

// Session is the identity recovered from a valid session token.
// It is never mutated; refreshing means encoding a new one.
type Session struct {
	UserID    string       `json:"userId"`
	User      UserSnapshot `json:"user"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// NewSession builds a session for u. UserID and User.ID always agree.
// ExpiresAt is left zero; the codec stamps it when encoding.
func NewSession(u *User) Session {
	snap := u.Snapshot()
	return Session{
		UserID: snap.ID,
		User:   snap,
	}
}

// Validate reports a ValidationError when the snapshot would not fit in a
// session cookie. Lengths are in bytes; the final check is on the JSON form
// so escaped characters are counted as they will be signed.
func (u UserSnapshot) Validate() error {
	switch {
	case len(u.Email) > MaxEmailLen:
		return NewValidationError(fmt.Sprintf("email must be at most %d characters", MaxEmailLen))
	case len(u.Name) > MaxNameLen:
		return NewValidationError(fmt.Sprintf("name must be at most %d characters", MaxNameLen))
	case u.Image != nil && len(*u.Image) > MaxImageLen:
		return NewValidationError(fmt.Sprintf("image must be at most %d characters", MaxImageLen))
	}
	b, err := json.Marshal(u)
	if err != nil {
		return NewTransformationError(err.Error())
	}
	if len(b) > MaxSnapshotBytes {
		return NewValidationError("profile is too large")
	}
	return nil
}
