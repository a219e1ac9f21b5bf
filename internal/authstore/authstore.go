package authstore

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/quincarter/coffee-app-sub000/pkg/models"
	"github.com/quincarter/coffee-app-sub000/pkg/models/passwd"
)

// New returns a Store backed by db. Placeholders are rebound for the
// driver db was opened with, so the same store serves SQLite and Postgres.
func New(db *sqlx.DB, logger *slog.Logger, hasher *passwd.Hasher) Store {
	if hasher == nil {
		hasher = passwd.NewHasher(passwd.DefaultCost)
	}
	return &sqlStore{
		db:     db,
		log:    logger,
		hasher: hasher,
	}
}

// Store defines a unified interface for interacting with the user authentication datastore.
// It abstracts storage-specific implementations (e.g., SQLite, Postgres) behind consistent,
// well-documented operations used by services.
//
// All methods must return meaningful error types as defined in the models package,
// including ValidationError, TransformationError, NotFoundError and DatabaseError.
type Store interface {
	// Ping checks the datastore is reachable.
	Ping(ctx context.Context) error

	// CheckEmailExists returns true if a user with the specified email exists in the datastore.
	CheckEmailExists(ctx context.Context, email string) (bool, error)

	// CreateUser hashes the password (if any) and inserts a new, unverified user.
	// A duplicate email surfaces as a DatabaseError wrapping db.DuplicateKeyError.
	CreateUser(ctx context.Context, args models.CreateUserParams) (*models.User, error)

	// GetUserByEmail retrieves a user by email. Returns a NotFoundError if none exists.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUserByID retrieves a user by their UUID. Returns a NotFoundError if none exists.
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetProfile returns the verification state of the user with the given id.
	// This is the lookup the request gate performs on every protected request.
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)

	// ListAllUsers returns every user ordered by creation time.
	ListAllUsers(ctx context.Context) ([]*models.User, error)

	// MarkEmailVerified sets email_verified for the user.
	MarkEmailVerified(ctx context.Context, id uuid.UUID) error

	// SetActive enables or disables a user without deleting data.
	SetActive(ctx context.Context, id uuid.UUID, active bool) error

	// UpdateUserPassword hashes and stores the new password for the specified user.
	UpdateUserPassword(ctx context.Context, id uuid.UUID, password string) error
}
