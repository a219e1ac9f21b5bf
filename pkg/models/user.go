package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account row from the identity store.
type User struct {
	ID            uuid.UUID `json:"id" db:"id"`
	Email         string    `json:"email" db:"email"`
	Name          string    `json:"name" db:"name"`
	PasswordHash  *string   `json:"-" db:"password_hash"`
	Role          Role      `json:"role" db:"role"`
	Image         *string   `json:"image,omitempty" db:"image"`
	EmailVerified bool      `json:"emailVerified" db:"email_verified"`
	IsActive      bool      `json:"isActive" db:"is_active"`
	CreatedAt     time.Time `json:"createdAt" db:"-"`
	UpdatedAt     time.Time `json:"updatedAt" db:"-"`
}

// CreateUserParams holds the input for registering a new account.
// Password is optional so magic-link-only accounts can exist.
type CreateUserParams struct {
	Email    string  `json:"email"`
	Name     string  `json:"name"`
	Password *string `json:"password"`
	Role     Role    `json:"role"`
	Image    *string `json:"image"`
}

// Profile is the slice of a user the request gate needs on every protected request.
type Profile struct {
	UserID        string `json:"userId"`
	EmailVerified bool   `json:"emailVerified"`
}

// Snapshot returns the denormalised view of u that is embedded in a session.
func (u *User) Snapshot() UserSnapshot {
	return UserSnapshot{
		ID:    u.ID.String(),
		Email: u.Email,
		Name:  u.Name,
		Role:  u.Role,
		Image: u.Image,
	}
}
