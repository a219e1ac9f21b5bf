package session

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quincarter/coffee-app-sub000/pkg/models"
)

var testKey = []byte("test-signing-key-0123456789abcdef")

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func newTestCodec(t *testing.T, clock *fakeClock, opts ...Option) *Codec {
	t.Helper()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	c, err := NewCodec(testKey, opts...)
	require.NoError(t, err)
	return c
}

func testSession() models.Session {
	img := "https://img.example/ada.png"
	return models.Session{
		UserID: "6f1c2c7e-0000-4000-8000-000000000001",
		User: models.UserSnapshot{
			ID:    "6f1c2c7e-0000-4000-8000-000000000001",
			Email: "ada@example.com",
			Name:  "Ada",
			Role:  models.RoleUser,
			Image: &img,
		},
	}
}

func TestNewCodec_EmptyKey(t *testing.T) {
	_, err := NewCodec(nil)
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCodec(t, clock)

	in := testSession()
	tok, err := c.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(tok, "."))

	out, ok := c.Decode(tok)
	require.True(t, ok)
	assert.Equal(t, in.UserID, out.UserID)
	assert.Equal(t, in.User, out.User)
	assert.True(t, out.ExpiresAt.Equal(clock.t.Add(DefaultTTL)))
}

func TestEncode_FillsSnapshotID(t *testing.T) {
	c := newTestCodec(t, &fakeClock{t: time.Now()})
	s := testSession()
	s.User.ID = ""

	tok, err := c.Encode(s)
	require.NoError(t, err)
	out, ok := c.Decode(tok)
	require.True(t, ok)
	assert.Equal(t, s.UserID, out.User.ID)
}

func TestEncode_Rejects(t *testing.T) {
	c := newTestCodec(t, &fakeClock{t: time.Now()})

	_, err := c.Encode(models.Session{})
	assert.ErrorIs(t, err, ErrMissingUserID)

	s := testSession()
	s.User.ID = "someone-else"
	_, err = c.Encode(s)
	assert.ErrorIs(t, err, ErrIdentityMismatch)
}

func TestEncode_TooLarge(t *testing.T) {
	c := newTestCodec(t, &fakeClock{t: time.Now()})

	s := testSession()
	s.User.Name = strings.Repeat("a", 3200)
	tok, err := c.Encode(s)
	assert.ErrorIs(t, err, ErrTokenTooLarge)
	assert.Empty(t, tok)

	// whatever Encode does hand out, Decode accepts
	s.User.Name = strings.Repeat("a", 2000)
	tok, err = c.Encode(s)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(tok), maxTokenLen)
	_, ok := c.Decode(tok)
	assert.True(t, ok)
}

func TestEncodeWithExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 500, time.UTC)}
	c := newTestCodec(t, clock, WithTTL(time.Hour))

	tok, exp, err := c.EncodeWithExpiry(testSession())
	require.NoError(t, err)

	out, ok := c.Decode(tok)
	require.True(t, ok)
	assert.True(t, exp.Equal(out.ExpiresAt), "reported %v, token says %v", exp, out.ExpiresAt)
	assert.True(t, exp.Equal(time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)))
}

func TestDecode_Expiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCodec(t, clock)
	tok, err := c.Encode(testSession())
	require.NoError(t, err)

	start := clock.t
	clock.t = start.Add(6 * 24 * time.Hour)
	_, ok := c.Decode(tok)
	assert.True(t, ok, "valid six days after issue")

	clock.t = start.Add(8 * 24 * time.Hour)
	_, ok = c.Decode(tok)
	assert.False(t, ok, "invalid eight days after issue")

	_, err = c.Inspect(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestDecode_CustomTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCodec(t, clock, WithTTL(time.Hour))
	assert.Equal(t, time.Hour, c.TTL())

	tok, err := c.Encode(testSession())
	require.NoError(t, err)
	clock.t = clock.t.Add(61 * time.Minute)
	_, ok := c.Decode(tok)
	assert.False(t, ok)
}

func TestDecode_ForeignKey(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	other, err := NewCodec([]byte("a-completely-different-key"), WithClock(clock.Now))
	require.NoError(t, err)
	tok, err := other.Encode(testSession())
	require.NoError(t, err)

	c := newTestCodec(t, clock)
	_, ok := c.Decode(tok)
	assert.False(t, ok)

	_, err = c.Inspect(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestDecode_Tampered(t *testing.T) {
	c := newTestCodec(t, &fakeClock{t: time.Now()})
	tok, err := c.Encode(testSession())
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)

	// swap the payload for one claiming admin, keeping the original signature
	forged := testSession()
	forged.User.Role = models.RoleAdmin
	evil, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: forged.UserID,
		User:   forged.User,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("attacker"))
	require.NoError(t, err)
	evilParts := strings.Split(evil, ".")

	_, ok := c.Decode(parts[0] + "." + evilParts[1] + "." + parts[2])
	assert.False(t, ok)

	// flip a signature byte
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	_, ok = c.Decode(parts[0] + "." + parts[1] + "." + string(sig))
	assert.False(t, ok)
}

func TestDecode_WrongAlgorithms(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := newTestCodec(t, clock)
	body := claims{
		UserID: testSession().UserID,
		User:   testSession().User,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
		},
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, body).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, body).SignedString(testKey)
	require.NoError(t, err)

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rs256, err := jwt.NewWithClaims(jwt.SigningMethodRS256, body).SignedString(rsaKey)
	require.NoError(t, err)

	for name, tok := range map[string]string{"none": none, "HS512": hs512, "RS256": rs256} {
		t.Run(name, func(t *testing.T) {
			_, ok := c.Decode(tok)
			assert.False(t, ok)
		})
	}
}

func TestDecode_MissingClaims(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := newTestCodec(t, clock)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: "u1",
	}).SignedString(testKey)
	require.NoError(t, err)
	_, err = c.Inspect(noExp)
	assert.ErrorIs(t, err, jwt.ErrTokenRequiredClaimMissing)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
		},
	}).SignedString(testKey)
	require.NoError(t, err)
	_, err = c.Inspect(noUser)
	assert.ErrorIs(t, err, ErrMissingUserID)

	mismatch, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: "u1",
		User:   models.UserSnapshot{ID: "u2"},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
		},
	}).SignedString(testKey)
	require.NoError(t, err)
	_, ok := c.Decode(mismatch)
	assert.False(t, ok)
}

func TestDecode_Garbage(t *testing.T) {
	c := newTestCodec(t, &fakeClock{t: time.Now()})
	inputs := []string{
		"",
		"not-a-token",
		"a.b.c",
		"....",
		"eyJhbGciOiJIUzI1NiJ9.%%%.xyz",
		strings.Repeat("a", maxTokenLen+1),
		string([]byte{0xff, 0xfe, 0x00}),
	}
	for _, in := range inputs {
		s, ok := c.Decode(in)
		assert.False(t, ok, "input %q", in)
		assert.Equal(t, models.Session{}, s)
	}
}

func TestDecode_LogsCauseAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := newTestCodec(t, &fakeClock{t: time.Now()}, WithLogger(logger))

	_, ok := c.Decode("not-a-token-at-all")
	require.False(t, ok)
	assert.Contains(t, buf.String(), "session token rejected")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.NotContains(t, buf.String(), "not-a-token-at-all")
}

func TestInspect_ErrorsWrapInvalidToken(t *testing.T) {
	c := newTestCodec(t, &fakeClock{t: time.Now()})
	_, err := c.Inspect("garbage")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}
