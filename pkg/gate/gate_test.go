package gate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quincarter/coffee-app-sub000/pkg/models"
)

//
// ---------- fakes for dependencies ----------
//

type fakeDecoder struct {
	decodeFn func(token string) (models.Session, bool)
}

func (f *fakeDecoder) Decode(token string) (models.Session, bool) {
	return f.decodeFn(token)
}

type fakeProfiles struct {
	getProfileFn func(ctx context.Context, userID string) (*models.Profile, error)
	calls        int
	mu           sync.Mutex
}

func (f *fakeProfiles) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.getProfileFn(ctx, userID)
}

type fakeRecorder struct {
	decisions []string
	lookups   []bool
}

func (f *fakeRecorder) RecordDecision(decision, reason string) {
	f.decisions = append(f.decisions, decision+"/"+reason)
}

func (f *fakeRecorder) ObserveProfileLookup(_ time.Duration, ok bool) {
	f.lookups = append(f.lookups, ok)
}

func NoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const validToken = "valid-token"

func aliceSession() models.Session {
	return models.Session{
		UserID: "u-alice",
		User: models.UserSnapshot{
			ID:    "u-alice",
			Email: "alice@example.com",
			Name:  "Alice",
			Role:  models.RoleUser,
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func decoderAccepting(s models.Session) *fakeDecoder {
	return &fakeDecoder{decodeFn: func(token string) (models.Session, bool) {
		if token == validToken {
			return s, true
		}
		return models.Session{}, false
	}}
}

func profilesReturning(verified bool) *fakeProfiles {
	return &fakeProfiles{getProfileFn: func(ctx context.Context, userID string) (*models.Profile, error) {
		return &models.Profile{UserID: userID, EmailVerified: verified}, nil
	}}
}

func newTestGate(dec SessionDecoder, prof ProfileStore, opts ...Option) *Gate {
	opts = append([]Option{WithLogger(NoopLogger())}, opts...)
	return New(dec, prof, nil, opts...)
}

func request(path string, withCookie bool) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	if withCookie {
		r.AddCookie(&http.Cookie{Name: "session", Value: validToken})
	}
	return r
}

//
// ---------- path classification ----------
//

func TestBuildPrefixes(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"/a/b/c", []string{"/a/b/c", "/a/b", "/a", "/"}},
		{"/", []string{"/"}},
		{"/foo", []string{"/foo", "/"}},
		{"/api/users/", []string{"/api/users", "/api", "/"}},
		{"/api/v1.0/users", []string{"/api/v1.0/users", "/api/v1.0", "/api", "/"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildPrefixes(tt.input))
		})
	}
}

func TestIsPublic(t *testing.T) {
	g := newTestGate(decoderAccepting(aliceSession()), profilesReturning(true))

	tests := []struct {
		path   string
		public bool
	}{
		{"/", true},
		{"", true},
		{"/login", true},
		{"/login/", true},
		{"/login/callback", true},
		{"/loginx", false},
		{"/register", true},
		{"/static/css/site.css", true},
		{"/healthz", true},
		{"/auth/magic", true},
		{"/api/auth/login", true},
		{"/api/auth/verify-email/resend", true},
		{"/api/auth/me", false},
		{"/dashboard", false},
		{"/verify-email-required", false},
		{"/verify-email", true},
		{"/login/../dashboard", false},
		{"//dashboard", false},
		{"/admin", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.public, g.IsPublic(tt.path))
		})
	}
}

func TestIsPublic_RootNotInList(t *testing.T) {
	g := New(nil, nil, &Config{PublicPaths: []string{"/login"}})
	assert.False(t, g.IsPublic("/"))
	assert.True(t, g.IsPublic("/login"))
}

//
// ---------- Evaluate ----------
//

func TestEvaluate_PublicPathWithoutCookie(t *testing.T) {
	prof := profilesReturning(false)
	g := newTestGate(decoderAccepting(aliceSession()), prof)

	res := g.Evaluate(request("/login", false))
	assert.Equal(t, Proceed, res.Decision)
	assert.Equal(t, ReasonPublic, res.Reason)
	assert.Nil(t, res.Session)
	assert.Zero(t, prof.calls)
}

func TestEvaluate_PublicPathIgnoresGarbageCookie(t *testing.T) {
	g := newTestGate(decoderAccepting(aliceSession()), profilesReturning(false))
	r := request("/", false)
	r.AddCookie(&http.Cookie{Name: "session", Value: "garbage"})

	assert.Equal(t, Proceed, g.Evaluate(r).Decision)
}

func TestEvaluate_ProtectedWithoutCookie(t *testing.T) {
	g := newTestGate(decoderAccepting(aliceSession()), profilesReturning(true))

	res := g.Evaluate(request("/dashboard", false))
	assert.Equal(t, RedirectLogin, res.Decision)
	assert.Equal(t, ReasonNoCookie, res.Reason)
}

func TestEvaluate_InvalidToken(t *testing.T) {
	prof := profilesReturning(true)
	g := newTestGate(decoderAccepting(aliceSession()), prof)
	r := request("/dashboard", false)
	r.AddCookie(&http.Cookie{Name: "session", Value: "signed-with-another-key"})

	res := g.Evaluate(r)
	assert.Equal(t, RedirectLogin, res.Decision)
	assert.Equal(t, ReasonInvalidSession, res.Reason)
	assert.Zero(t, prof.calls)
}

func TestEvaluate_VerifiedUser(t *testing.T) {
	prof := profilesReturning(true)
	g := newTestGate(decoderAccepting(aliceSession()), prof)

	res := g.Evaluate(request("/dashboard", true))
	assert.Equal(t, Proceed, res.Decision)
	assert.Equal(t, ReasonVerified, res.Reason)
	require.NotNil(t, res.Session)
	assert.Equal(t, "u-alice", res.Session.UserID)
	assert.Equal(t, 1, prof.calls)
}

func TestEvaluate_UnverifiedUser(t *testing.T) {
	g := newTestGate(decoderAccepting(aliceSession()), profilesReturning(false))

	res := g.Evaluate(request("/dashboard", true))
	assert.Equal(t, RedirectVerifyEmail, res.Decision)
	assert.Equal(t, ReasonUnverified, res.Reason)
}

func TestEvaluate_InterstitialProceedsWithoutLookup(t *testing.T) {
	prof := profilesReturning(false)
	g := newTestGate(decoderAccepting(aliceSession()), prof)

	res := g.Evaluate(request("/verify-email-required", true))
	assert.Equal(t, Proceed, res.Decision)
	assert.Equal(t, ReasonInterstitial, res.Reason)
	require.NotNil(t, res.Session)
	assert.Zero(t, prof.calls)
}

func TestEvaluate_InterstitialStillNeedsSession(t *testing.T) {
	g := newTestGate(decoderAccepting(aliceSession()), profilesReturning(false))

	res := g.Evaluate(request("/verify-email-required", false))
	assert.Equal(t, RedirectLogin, res.Decision)
}

func TestEvaluate_LookupFailuresFailClosed(t *testing.T) {
	tests := []struct {
		name string
		fn   func(ctx context.Context, userID string) (*models.Profile, error)
	}{
		{"store error", func(ctx context.Context, userID string) (*models.Profile, error) {
			return nil, errors.New("db down")
		}},
		{"nil profile", func(ctx context.Context, userID string) (*models.Profile, error) {
			return nil, nil
		}},
		{"profile for another user", func(ctx context.Context, userID string) (*models.Profile, error) {
			return &models.Profile{UserID: "someone-else", EmailVerified: true}, nil
		}},
		{"panic", func(ctx context.Context, userID string) (*models.Profile, error) {
			panic("boom")
		}},
		{"timeout", func(ctx context.Context, userID string) (*models.Profile, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
		{"late answer after deadline", func(ctx context.Context, userID string) (*models.Profile, error) {
			<-ctx.Done()
			return &models.Profile{UserID: userID, EmailVerified: true}, nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			g := New(decoderAccepting(aliceSession()), &fakeProfiles{getProfileFn: tt.fn},
				&Config{LookupTimeout: 20 * time.Millisecond}, WithLogger(NoopLogger()), WithRecorder(rec))

			res := g.Evaluate(request("/dashboard", true))
			assert.Equal(t, RedirectVerifyEmail, res.Decision)
			assert.Equal(t, ReasonLookupFailed, res.Reason)
		})
	}
}

func TestEvaluate_LookupUsesRequestContext(t *testing.T) {
	var gotDeadline bool
	prof := &fakeProfiles{getProfileFn: func(ctx context.Context, userID string) (*models.Profile, error) {
		_, gotDeadline = ctx.Deadline()
		return nil, ctx.Err()
	}}
	g := newTestGate(decoderAccepting(aliceSession()), prof)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := request("/dashboard", true).WithContext(ctx)

	res := g.Evaluate(r)
	assert.True(t, gotDeadline)
	assert.Equal(t, RedirectVerifyEmail, res.Decision)
}

func TestEvaluate_NoProfileStore(t *testing.T) {
	g := newTestGate(decoderAccepting(aliceSession()), nil)
	res := g.Evaluate(request("/dashboard", true))
	assert.Equal(t, RedirectVerifyEmail, res.Decision)
}

func TestEvaluate_TraversalDoesNotBypass(t *testing.T) {
	g := newTestGate(decoderAccepting(aliceSession()), profilesReturning(true))
	r := request("/dashboard", false)
	r.URL.Path = "/login/../dashboard"

	assert.Equal(t, RedirectLogin, g.Evaluate(r).Decision)
}

func TestEvaluate_DoesNotMutateSession(t *testing.T) {
	in := aliceSession()
	g := newTestGate(decoderAccepting(in), profilesReturning(true))

	res := g.Evaluate(request("/dashboard", true))
	require.NotNil(t, res.Session)
	assert.Equal(t, in, *res.Session)
}

func TestEvaluate_Concurrent(t *testing.T) {
	prof := profilesReturning(true)
	g := newTestGate(decoderAccepting(aliceSession()), prof)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, Proceed, g.Evaluate(request("/dashboard", true)).Decision)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, prof.calls)
}

func TestNew_FillsDefaults(t *testing.T) {
	g := New(nil, nil, &Config{CookieName: "sid", VerifyEmailPath: "/verify-email-required/"})
	assert.Equal(t, "sid", g.CookieName)
	assert.Equal(t, "/login", g.LoginPath)
	assert.Equal(t, "/verify-email-required", g.VerifyEmailPath)
	assert.Equal(t, 3*time.Second, g.LookupTimeout)
	assert.True(t, g.IsPublic("/register"))
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "proceed", Proceed.String())
	assert.Equal(t, "redirect_login", RedirectLogin.String())
	assert.Equal(t, "redirect_verify_email", RedirectVerifyEmail.String())
	assert.Equal(t, "decision(9)", Decision(9).String())
}
