// Package profilecache puts Redis in front of the profile lookup the request
// gate performs on every protected request.
package profilecache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quincarter/coffee-app-sub000/pkg/models"
)

const keyPrefix = "coffee:profile:verified"

// Source is the authoritative profile lookup being cached.
type Source interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// Cache remembers only positive answers. An unverified or failed lookup is
// always asked of the source again, so the cache can delay a user being let
// in but never lets in someone the source would not.
type Cache struct {
	rdb    redis.UniversalClient
	source Source
	ttl    time.Duration
	log    *slog.Logger
}

func New(rdb redis.UniversalClient, source Source, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		rdb:    rdb,
		source: source,
		ttl:    ttl,
		log:    logger,
	}
}

func (c *Cache) key(userID string) string {
	return keyPrefix + ":" + userID
}

// GetProfile answers from Redis when a verified entry exists, otherwise
// from the source. Redis errors are logged and treated as a miss.
func (c *Cache) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	err := c.rdb.Get(ctx, c.key(userID)).Err()
	switch {
	case err == nil:
		c.log.Debug("profile cache hit", "user_id", userID)
		return &models.Profile{UserID: userID, EmailVerified: true}, nil
	case errors.Is(err, redis.Nil):
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		c.log.Warn("profile cache unavailable, falling back to store", "user_id", userID, "err", err)
	}

	p, err := c.source.GetProfile(ctx, userID)
	if err != nil || p == nil || !p.EmailVerified {
		return p, err
	}

	if err := c.rdb.Set(ctx, c.key(userID), "1", c.ttl).Err(); err != nil {
		c.log.Warn("failed to cache profile", "user_id", userID, "err", err)
	}
	return p, nil
}

// Invalidate drops any cached entry for userID.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, c.key(userID)).Err()
}

// NewClient parses a redis:// URL and returns a connected client.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
