package authstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/quincarter/coffee-app-sub000/internal/db"
	"github.com/quincarter/coffee-app-sub000/internal/logutil"
	"github.com/quincarter/coffee-app-sub000/pkg/models"
	"github.com/quincarter/coffee-app-sub000/pkg/models/passwd"
)

type sqlStore struct {
	db     *sqlx.DB
	log    *slog.Logger
	hasher *passwd.Hasher
}

const userColumns = `id, email, name, password_hash, role, image, email_verified, is_active, created_at, updated_at`

// userRow mirrors the users table. Timestamps are unix seconds so both
// backends scan them identically.
type userRow struct {
	ID            string  `db:"id"`
	Email         string  `db:"email"`
	Name          string  `db:"name"`
	PasswordHash  *string `db:"password_hash"`
	Role          string  `db:"role"`
	Image         *string `db:"image"`
	EmailVerified bool    `db:"email_verified"`
	IsActive      bool    `db:"is_active"`
	CreatedAt     int64   `db:"created_at"`
	UpdatedAt     int64   `db:"updated_at"`
}

func (r userRow) toModel() (*models.User, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parse user id %q: %w", r.ID, err)
	}
	role, err := models.ParseRole(r.Role)
	if err != nil {
		return nil, err
	}
	return &models.User{
		ID:            id,
		Email:         r.Email,
		Name:          r.Name,
		PasswordHash:  r.PasswordHash,
		Role:          role,
		Image:         r.Image,
		EmailVerified: r.EmailVerified,
		IsActive:      r.IsActive,
		CreatedAt:     time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt:     time.Unix(r.UpdatedAt, 0).UTC(),
	}, nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) CheckEmailExists(ctx context.Context, email string) (bool, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "CheckEmailExists")()

	var n int
	q := s.db.Rebind(`SELECT COUNT(1) FROM users WHERE email = ?`)
	if err := s.db.GetContext(ctx, &n, q, normaliseEmail(email)); err != nil {
		return false, logutil.LogAndWrapErr(s.log, "failed to check email exists",
			models.NewDatabaseError(err))
	}
	return n != 0, nil
}

func (s *sqlStore) CreateUser(ctx context.Context, args models.CreateUserParams) (*models.User, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "CreateUser")()
	errMsg := "failed to create user"

	email := normaliseEmail(args.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, logutil.DebugAndWrapErr(s.log, errMsg,
			models.NewValidationError("a valid email is required"))
	}
	if args.Role == "" {
		args.Role = models.RoleUser
	}
	if !args.Role.IsValid() {
		return nil, logutil.DebugAndWrapErr(s.log, errMsg,
			models.NewValidationError(fmt.Sprintf("invalid role: %s", args.Role.String())))
	}
	name := strings.TrimSpace(args.Name)
	snap := models.UserSnapshot{ID: uuid.NewString(), Email: email, Name: name, Role: args.Role, Image: args.Image}
	if err := snap.Validate(); err != nil {
		return nil, logutil.DebugAndWrapErr(s.log, errMsg, err)
	}

	var hash *string
	if args.Password != nil {
		h, err := s.hasher.Hash(*args.Password)
		if err != nil {
			return nil, logutil.DebugAndWrapErr(s.log, errMsg,
				models.NewValidationError(err.Error()))
		}
		hash = &h
	}

	now := time.Now().UTC().Truncate(time.Second)
	row := userRow{
		ID:            snap.ID,
		Email:         email,
		Name:          name,
		PasswordHash:  hash,
		Role:          args.Role.String(),
		Image:         args.Image,
		EmailVerified: false,
		IsActive:      true,
		CreatedAt:     now.Unix(),
		UpdatedAt:     now.Unix(),
	}

	q := s.db.Rebind(`INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		row.ID, row.Email, row.Name, row.PasswordHash, row.Role, row.Image,
		row.EmailVerified, row.IsActive, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		_, err := db.WrapIfDuplicateConstraint(err)
		return nil, logutil.LogAndWrapErr(s.log, errMsg,
			models.NewDatabaseError(err))
	}

	user, err := row.toModel()
	if err != nil {
		return nil, logutil.LogAndWrapErr(s.log, errMsg,
			models.NewTransformationError(err.Error()))
	}
	return user, nil
}

func (s *sqlStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "GetUserByEmail")()
	email = normaliseEmail(email)
	return s.getUser(ctx, "failed to get user by email", `email = ?`, email)
}

func (s *sqlStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "GetUserByID", "ID", id.String())()
	errMsg := "failed to get user by id"

	if id == uuid.Nil {
		return nil, logutil.DebugAndWrapErr(s.log, errMsg,
			models.NewValidationError("id not set"))
	}
	return s.getUser(ctx, errMsg, `id = ?`, id.String())
}

func (s *sqlStore) getUser(ctx context.Context, errMsg, where, arg string) (*models.User, error) {
	var row userRow
	q := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + where)
	if err := s.db.GetContext(ctx, &row, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, logutil.DebugAndWrapErr(s.log, errMsg,
				models.NewNotFoundError("user", arg))
		}
		return nil, logutil.LogAndWrapErr(s.log, errMsg,
			models.NewDatabaseError(err))
	}
	user, err := row.toModel()
	if err != nil {
		return nil, logutil.LogAndWrapErr(s.log, errMsg,
			models.NewTransformationError(err.Error()))
	}
	return user, nil
}

func (s *sqlStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "GetProfile", "ID", userID)()
	errMsg := "failed to get profile"

	var row struct {
		ID            string `db:"id"`
		EmailVerified bool   `db:"email_verified"`
		IsActive      bool   `db:"is_active"`
	}
	q := s.db.Rebind(`SELECT id, email_verified, is_active FROM users WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, logutil.DebugAndWrapErr(s.log, errMsg,
				models.NewNotFoundError("user", userID))
		}
		return nil, logutil.LogAndWrapErr(s.log, errMsg,
			models.NewDatabaseError(err))
	}
	// a disabled account is treated as unverified so the gate holds it at the interstitial
	return &models.Profile{
		UserID:        row.ID,
		EmailVerified: row.EmailVerified && row.IsActive,
	}, nil
}

func (s *sqlStore) ListAllUsers(ctx context.Context) ([]*models.User, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "ListAllUsers")()
	errMsg := "failed to list users"

	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY created_at, email`); err != nil {
		return nil, logutil.LogAndWrapErr(s.log, errMsg, models.NewDatabaseError(err))
	}

	users := make([]*models.User, 0, len(rows))
	var errs []error
	for _, r := range rows {
		u, err := r.toModel()
		if err != nil {
			errs = append(errs, models.NewTransformationError(err.Error()))
			continue
		}
		users = append(users, u)
	}
	if len(errs) > 0 {
		return users, logutil.LogAndWrapErr(s.log, errMsg, errors.Join(errs...))
	}
	return users, nil
}

func (s *sqlStore) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "MarkEmailVerified", "ID", id.String())()
	return s.updateOne(ctx, "failed to mark email verified", id,
		`UPDATE users SET email_verified = ?, updated_at = ? WHERE id = ?`, true)
}

func (s *sqlStore) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "SetActive", "ID", id.String())()
	return s.updateOne(ctx, "failed to set user active state", id,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`, active)
}

func (s *sqlStore) UpdateUserPassword(ctx context.Context, id uuid.UUID, password string) error {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "UpdateUserPassword", "ID", id.String())()
	errMsg := "failed to update password"

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return logutil.DebugAndWrapErr(s.log, errMsg, models.NewValidationError(err.Error()))
	}
	return s.updateOne(ctx, errMsg, id,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, hash)
}

// updateOne runs a single-row update whose placeholders are (value, updated_at, id)
// and reports a NotFoundError when no row matched.
func (s *sqlStore) updateOne(ctx context.Context, errMsg string, id uuid.UUID, query string, value any) error {
	if id == uuid.Nil {
		return logutil.DebugAndWrapErr(s.log, errMsg, models.NewValidationError("id not set"))
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), value, time.Now().UTC().Unix(), id.String())
	if err != nil {
		return logutil.LogAndWrapErr(s.log, errMsg, models.NewDatabaseError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return logutil.LogAndWrapErr(s.log, errMsg, models.NewDatabaseError(err))
	}
	if n == 0 {
		return logutil.DebugAndWrapErr(s.log, errMsg, models.NewNotFoundError("user", id.String()))
	}
	return nil
}
