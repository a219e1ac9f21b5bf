// Package session turns a logged-in user into a signed, time-bounded token
// and back. Tokens are HS256 JWTs carried in the session cookie; nothing is
// stored server side.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quincarter/coffee-app-sub000/internal/logutil"
	"github.com/quincarter/coffee-app-sub000/pkg/models"
)

// DefaultTTL is how long an issued session stays valid.
const DefaultTTL = 7 * 24 * time.Hour

// maxTokenLen bounds the work done on attacker-supplied cookie values and
// keeps the cookie under the size browsers store. Encode refuses to produce
// anything longer.
const maxTokenLen = 4096

var (
	ErrEmptyKey         = errors.New("session: signing key is empty")
	ErrMissingUserID    = errors.New("session: user id is required")
	ErrIdentityMismatch = errors.New("session: user id does not match user snapshot")
	ErrInvalidToken     = errors.New("session: invalid token")
	ErrTokenTooLarge    = errors.New("session: encoded token is too large")
)

// claims is the JWT body. userId and user are the session, iat/exp come
// from the registered claims.
type claims struct {
	UserID string              `json:"userId"`
	User   models.UserSnapshot `json:"user"`
	jwt.RegisteredClaims
}

// Codec signs and verifies session tokens with one symmetric key.
// It holds only read-only state after construction and is safe for concurrent use.
type Codec struct {
	key    []byte
	ttl    time.Duration
	now    func() time.Time
	log    *slog.Logger
	parser *jwt.Parser
}

type Option func(*Codec)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock sets the time source used for iat, exp and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Codec) {
		if l != nil {
			c.log = l
		}
	}
}

// NewCodec returns a Codec that signs with key.
func NewCodec(key []byte, opts ...Option) (*Codec, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	c := &Codec{
		key: append([]byte(nil), key...),
		ttl: DefaultTTL,
		now: time.Now,
		log: logutil.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

// TTL is the lifetime given to every encoded session.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Encode signs s. ExpiresAt on the input is ignored; the token expires ttl
// after now. An empty User.ID is filled from UserID.
func (c *Codec) Encode(s models.Session) (string, error) {
	token, _, err := c.EncodeWithExpiry(s)
	return token, err
}

// EncodeWithExpiry is Encode that also returns the exp claim written into
// the token, which is what Decode will report as ExpiresAt.
func (c *Codec) EncodeWithExpiry(s models.Session) (string, time.Time, error) {
	if s.UserID == "" {
		return "", time.Time{}, ErrMissingUserID
	}
	if s.User.ID == "" {
		s.User.ID = s.UserID
	}
	if s.User.ID != s.UserID {
		return "", time.Time{}, ErrIdentityMismatch
	}

	now := c.now()
	body := claims{
		UserID: s.UserID,
		User:   s.User,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, body).SignedString(c.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session: sign token: %w", err)
	}
	if len(signed) > maxTokenLen {
		return "", time.Time{}, fmt.Errorf("%w: %d bytes, limit %d", ErrTokenTooLarge, len(signed), maxTokenLen)
	}
	return signed, body.ExpiresAt.Time, nil
}

// Decode is the boundary used on every request: it yields the session and
// true, or the zero Session and false. The reason for a rejection is only
// written to the debug log.
func (c *Codec) Decode(token string) (models.Session, bool) {
	s, err := c.Inspect(token)
	if err != nil {
		c.log.Debug("session token rejected", "token", logutil.RedactToken(token), "err", err)
		return models.Session{}, false
	}
	return s, true
}

// Inspect validates token like Decode but returns why it was rejected.
// Every error wraps ErrInvalidToken.
func (c *Codec) Inspect(token string) (s models.Session, err error) {
	defer func() {
		// never panic past the decode boundary
		if r := recover(); r != nil {
			s, err = models.Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, r)
		}
	}()

	if token == "" {
		return models.Session{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	if len(token) > maxTokenLen {
		return models.Session{}, fmt.Errorf("%w: token exceeds %d bytes", ErrInvalidToken, maxTokenLen)
	}

	var body claims
	if _, err := c.parser.ParseWithClaims(token, &body, func(*jwt.Token) (any, error) {
		return c.key, nil
	}); err != nil {
		return models.Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if body.UserID == "" {
		return models.Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrMissingUserID)
	}
	if body.User.ID != "" && body.User.ID != body.UserID {
		return models.Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrIdentityMismatch)
	}
	if body.User.ID == "" {
		body.User.ID = body.UserID
	}

	return models.Session{
		UserID:    body.UserID,
		User:      body.User,
		ExpiresAt: body.ExpiresAt.Time,
	}, nil
}
