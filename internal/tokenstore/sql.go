package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/quincarter/coffee-app-sub000/internal/logutil"
	"github.com/quincarter/coffee-app-sub000/pkg/models"
)

type sqlTokenStore struct {
	db       *sqlx.DB
	log      *slog.Logger
	now      func() time.Time
	stopCh   chan struct{} // channel used to stop the cleanup of expired tokens
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New returns a Store over the auth_tokens table.
func New(db *sqlx.DB, logger *slog.Logger) Store {
	return &sqlTokenStore{
		db:     db,
		log:    logger,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

type tokenRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	ExpiresAt int64  `db:"expires_at"`
	UsedAt    *int64 `db:"used_at"`
}

func (s *sqlTokenStore) Issue(ctx context.Context, userID string, purpose Purpose, ttl time.Duration) (string, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "Issue", "purpose", string(purpose))()
	errMsg := "failed to issue token"

	if userID == "" {
		return "", logutil.DebugAndWrapErr(s.log, errMsg, models.NewValidationError("user id not set"))
	}
	if !purpose.IsValid() {
		return "", logutil.DebugAndWrapErr(s.log, errMsg, models.NewValidationError(fmt.Sprintf("invalid purpose: %s", purpose)))
	}
	if ttl <= 0 {
		return "", logutil.DebugAndWrapErr(s.log, errMsg, models.NewValidationError("ttl must be positive"))
	}

	raw, err := generateSecureToken(tokenLength)
	if err != nil {
		return "", logutil.LogAndWrapErr(s.log, errMsg, err)
	}

	now := s.now().UTC()
	q := s.db.Rebind(`INSERT INTO auth_tokens (id, user_id, token_hash, purpose, expires_at, used_at, created_at)
		VALUES (?, ?, ?, ?, ?, NULL, ?)`)
	if _, err := s.db.ExecContext(ctx, q,
		uuid.NewString(), userID, hashToken(raw), string(purpose), now.Add(ttl).Unix(), now.Unix()); err != nil {
		return "", logutil.LogAndWrapErr(s.log, errMsg, models.NewDatabaseError(err))
	}
	return raw, nil
}

func (s *sqlTokenStore) Consume(ctx context.Context, raw string, purpose Purpose) (string, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "Consume", "purpose", string(purpose))()
	errMsg := "failed to consume token"

	if raw == "" {
		return "", logutil.DebugAndWrapErr(s.log, errMsg, ErrTokenNotFound)
	}

	var row tokenRow
	q := s.db.Rebind(`SELECT id, user_id, expires_at, used_at FROM auth_tokens WHERE token_hash = ? AND purpose = ?`)
	if err := s.db.GetContext(ctx, &row, q, hashToken(raw), string(purpose)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", logutil.DebugAndWrapErr(s.log, errMsg, ErrTokenNotFound, "token", logutil.RedactToken(raw))
		}
		return "", logutil.LogAndWrapErr(s.log, errMsg, models.NewDatabaseError(err))
	}

	now := s.now().UTC().Unix()
	if row.UsedAt != nil {
		return "", logutil.DebugAndWrapErr(s.log, errMsg, ErrTokenUsed, "token_id", row.ID)
	}
	if row.ExpiresAt <= now {
		return "", logutil.DebugAndWrapErr(s.log, errMsg, ErrTokenExpired, "token_id", row.ID)
	}

	// the used_at guard makes concurrent redemptions race to a single winner
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE auth_tokens SET used_at = ? WHERE id = ? AND used_at IS NULL`), now, row.ID)
	if err != nil {
		return "", logutil.LogAndWrapErr(s.log, errMsg, models.NewDatabaseError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", logutil.LogAndWrapErr(s.log, errMsg, models.NewDatabaseError(err))
	}
	if n == 0 {
		return "", logutil.DebugAndWrapErr(s.log, errMsg, ErrTokenUsed, "token_id", row.ID)
	}
	return row.UserID, nil
}

func (s *sqlTokenStore) CleanupExpired(ctx context.Context) error {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "CleanupExpired")()

	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM auth_tokens WHERE expires_at <= ?`), s.now().UTC().Unix())
	if err != nil {
		return logutil.LogAndWrapErr(s.log, "failed to cleanup tokens", models.NewDatabaseError(err))
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.log.Debug("removed expired tokens", "count", n)
	}
	return nil
}

// StartCleanupWorker starts a goroutine that periodically deletes expired tokens.
// The interval specifies how often the cleanup should run.
func (s *sqlTokenStore) StartCleanupWorker(interval time.Duration) {
	s.log.Debug("Starting token cleanup worker", "interval", interval)
	ticker := time.NewTicker(interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cleanupCtx, cancel := context.WithTimeout(context.Background(), interval/2) // Give it a max half the interval
				err := s.CleanupExpired(cleanupCtx)
				if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					s.log.Error("failed to cleanup tokens", "err", err)
				}
				cancel()

			case <-s.stopCh:
				s.log.Info("Stopping token cleanup worker")
				return
			}
		}
	}()
}

// Stop ends the cleanup worker and waits for it to exit. Safe to call more than once.
func (s *sqlTokenStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}
