package tokenstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quincarter/coffee-app-sub000/database"
	"github.com/quincarter/coffee-app-sub000/internal/db"
	"github.com/quincarter/coffee-app-sub000/internal/logutil"
)

const testUserID = "7b0f8f0e-1111-4000-8000-000000000001"

func newTestStore(t *testing.T) (*sqlTokenStore, *sqlx.DB) {
	t.Helper()
	conn, err := db.Open(context.Background(), db.SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, database.RunMigrations(conn.DB, db.SQLite))

	_, err = conn.Exec(`INSERT INTO users (id, email, name, role, email_verified, is_active, created_at, updated_at)
		VALUES (?, 'ada@example.com', 'Ada', 'user', 0, 1, 0, 0)`, testUserID)
	require.NoError(t, err)

	return New(conn, logutil.Discard()).(*sqlTokenStore), conn
}

func TestIssueConsume_Once(t *testing.T) {
	ctx := context.Background()
	s, conn := newTestStore(t)

	raw, err := s.Issue(ctx, testUserID, PurposeMagicLink, 15*time.Minute)
	require.NoError(t, err)
	assert.Len(t, raw, tokenLength*2)

	var stored string
	require.NoError(t, conn.Get(&stored, `SELECT token_hash FROM auth_tokens`))
	assert.NotEqual(t, raw, stored)
	assert.Equal(t, hashToken(raw), stored)

	uid, err := s.Consume(ctx, raw, PurposeMagicLink)
	require.NoError(t, err)
	assert.Equal(t, testUserID, uid)

	_, err = s.Consume(ctx, raw, PurposeMagicLink)
	assert.ErrorIs(t, err, ErrTokenUsed)
}

func TestConsume_WrongPurpose(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	raw, err := s.Issue(ctx, testUserID, PurposePasswordReset, time.Hour)
	require.NoError(t, err)

	_, err = s.Consume(ctx, raw, PurposeMagicLink)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	// still redeemable for its own purpose
	_, err = s.Consume(ctx, raw, PurposePasswordReset)
	assert.NoError(t, err)
}

func TestConsume_Expired(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	raw, err := s.Issue(ctx, testUserID, PurposeVerifyEmail, time.Hour)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = s.Consume(ctx, raw, PurposeVerifyEmail)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestConsume_Unknown(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Consume(context.Background(), "deadbeef", PurposeMagicLink)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	_, err = s.Consume(context.Background(), "", PurposeMagicLink)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestConsume_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	raw, err := s.Issue(ctx, testUserID, PurposeMagicLink, time.Hour)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume(ctx, raw, PurposeMagicLink); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestIssue_Validation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Issue(ctx, "", PurposeMagicLink, time.Hour)
	assert.Error(t, err)
	_, err = s.Issue(ctx, testUserID, Purpose("login_forever"), time.Hour)
	assert.Error(t, err)
	_, err = s.Issue(ctx, testUserID, PurposeMagicLink, 0)
	assert.Error(t, err)
}

func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()
	s, conn := newTestStore(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, err := s.Issue(ctx, testUserID, PurposeMagicLink, time.Minute)
	require.NoError(t, err)
	_, err = s.Issue(ctx, testUserID, PurposeVerifyEmail, 24*time.Hour)
	require.NoError(t, err)

	now = now.Add(time.Hour)
	require.NoError(t, s.CleanupExpired(ctx))

	var n int
	require.NoError(t, conn.Get(&n, `SELECT COUNT(*) FROM auth_tokens`))
	assert.Equal(t, 1, n)
}

func TestCleanupWorker_StopIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	s.StartCleanupWorker(5 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	s.Stop()
}
