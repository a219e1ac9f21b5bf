package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/quincarter/coffee-app-sub000/database"
	"github.com/quincarter/coffee-app-sub000/internal/authstore"
	"github.com/quincarter/coffee-app-sub000/internal/db"
	"github.com/quincarter/coffee-app-sub000/internal/logutil"
	"github.com/quincarter/coffee-app-sub000/internal/profilecache"
	"github.com/quincarter/coffee-app-sub000/internal/tokenstore"
	"github.com/quincarter/coffee-app-sub000/pkg/gate"
	"github.com/quincarter/coffee-app-sub000/pkg/models/passwd"
)

type Services struct {
	db     *sqlx.DB
	logger *slog.Logger
	dbType db.Type

	Auth  authstore.Store
	Token tokenstore.Store
	// Profiles is what the gate consults; the Redis cache when configured, else Auth.
	Profiles gate.ProfileStore
	cache    *profilecache.Cache
}

type Option func(*Services)

// WithProfileCache puts a Redis cache with the given TTL in front of the
// gate's profile lookups.
func WithProfileCache(rdb redis.UniversalClient, ttl time.Duration) Option {
	return func(s *Services) {
		if rdb != nil {
			s.cache = profilecache.New(rdb, s.Auth, ttl, s.logger)
			s.Profiles = s.cache
		}
	}
}

// New initializes and returns a Services struct with the stores for the
// given database connection.
//
// Params:
//   - conn: a live database connection
//   - dbType: the type of database (SQLite or Postgres), used for migrations
//   - logger: a slog.Logger pointer instance used for logging
//   - hasher: password hasher used when creating users and resetting passwords
//
// Example:
//
//	svc := New(conn, db.SQLite, logger, passwd.NewHasher(12))
func New(conn *sqlx.DB, dbType db.Type, logger *slog.Logger, hasher *passwd.Hasher, opts ...Option) *Services {
	svc := &Services{
		db:     conn,
		logger: logger,
		dbType: dbType,
		Auth:   authstore.New(conn, logger, hasher),
		Token:  tokenstore.New(conn, logger),
	}
	svc.Profiles = svc.Auth

	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *Services) RunMigrations() error {
	if s.db == nil {
		return errors.New("no database connection")
	}
	defer func(start time.Time) {
		s.logger.Debug("ran database migrations", "db_type", string(s.dbType), "duration", time.Since(start))
	}(time.Now())
	return database.RunMigrations(s.db.DB, s.dbType)
}

// InvalidateProfile drops any cached verification state for userID. It is a
// no-op without a cache.
func (s *Services) InvalidateProfile(ctx context.Context, userID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, userID)
}

// SetUserActive enables or disables a user and drops its cached
// verification state, so a disabled account is turned away on its next
// request instead of when the cache entry expires.
func (s *Services) SetUserActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := s.Auth.SetActive(ctx, id, active); err != nil {
		return err
	}
	if err := s.InvalidateProfile(ctx, id.String()); err != nil {
		return logutil.LogAndWrapErr(s.logger, "failed to invalidate cached profile", err, "user_id", id.String())
	}
	return nil
}

// StartWorkers begins periodic cleanup of expired one-time tokens.
func (s *Services) StartWorkers(interval time.Duration) {
	s.Token.StartCleanupWorker(interval)
}

// Close stops background workers. It does not close the database.
func (s *Services) Close() {
	s.Token.Stop()
}
