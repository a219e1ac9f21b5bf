// Package gate decides, once per request, whether the request may reach
// application code. Public paths pass untouched; everything else needs a
// valid session and a verified email address.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/quincarter/coffee-app-sub000/internal/logutil"
	"github.com/quincarter/coffee-app-sub000/pkg/models"
)

// Decision is the terminal action for a request.
type Decision int

const (
	Proceed Decision = iota
	RedirectLogin
	RedirectVerifyEmail
)

func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case RedirectLogin:
		return "redirect_login"
	case RedirectVerifyEmail:
		return "redirect_verify_email"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Reason labels why a decision was taken. Used for logs and metrics.
type Reason string

const (
	ReasonPublic         Reason = "public"
	ReasonNoCookie       Reason = "no_cookie"
	ReasonInvalidSession Reason = "invalid_session"
	ReasonLookupFailed   Reason = "lookup_failed"
	ReasonUnverified     Reason = "unverified"
	ReasonInterstitial   Reason = "interstitial"
	ReasonVerified       Reason = "verified"
)

// DefaultPublicPaths are reachable without a session. Each entry also covers
// everything below it, except "/" which covers only the home page.
var DefaultPublicPaths = []string{
	"/",
	"/login",
	"/register",
	"/forgot-password",
	"/reset-password",
	"/verify-email",
	"/auth/magic",
	"/logout",
	"/api/auth/login",
	"/api/auth/logout",
	"/api/auth/register",
	"/api/auth/forgot-password",
	"/api/auth/reset-password",
	"/api/auth/verify-email",
	"/api/auth/magic-link",
	"/static",
	"/healthz",
}

// SessionDecoder recovers a session from a cookie value. *session.Codec satisfies it.
type SessionDecoder interface {
	Decode(token string) (models.Session, bool)
}

// ProfileStore supplies the email-verified flag for a session's user.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// DecisionRecorder is notified of every decision and profile lookup.
// Labels are plain strings so metrics backends need not import this package.
type DecisionRecorder interface {
	RecordDecision(decision, reason string)
	ObserveProfileLookup(d time.Duration, ok bool)
}

type Config struct {
	CookieName      string        // cookie carrying the session token
	LoginPath       string        // target of RedirectLogin
	VerifyEmailPath string        // the verification interstitial, target of RedirectVerifyEmail
	PublicPaths     []string      // allow-list, see DefaultPublicPaths
	LookupTimeout   time.Duration // bound on the profile lookup
}

// DefaultConfig returns a pointer to Config with the default options
func DefaultConfig() *Config {
	return &Config{
		CookieName:      "session",
		LoginPath:       "/login",
		VerifyEmailPath: "/verify-email-required",
		PublicPaths:     append([]string(nil), DefaultPublicPaths...),
		LookupTimeout:   3 * time.Second,
	}
}

// Gate holds only read-only state after New and is safe for concurrent use.
type Gate struct {
	log      *slog.Logger
	codec    SessionDecoder
	profiles ProfileStore
	recorder DecisionRecorder
	public   map[string]struct{}
	Config
}

type Option func(*Gate)

func WithRecorder(r DecisionRecorder) Option {
	return func(g *Gate) { g.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

// New builds a Gate. A nil config means DefaultConfig; zero fields in a
// supplied config are filled from the defaults.
func New(codec SessionDecoder, profiles ProfileStore, config *Config, opts ...Option) *Gate {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	cfg := *config
	if cfg.CookieName == "" {
		cfg.CookieName = def.CookieName
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = def.LoginPath
	}
	if cfg.VerifyEmailPath == "" {
		cfg.VerifyEmailPath = def.VerifyEmailPath
	}
	if cfg.PublicPaths == nil {
		cfg.PublicPaths = def.PublicPaths
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = def.LookupTimeout
	}
	cfg.VerifyEmailPath = cleanPath(cfg.VerifyEmailPath)

	g := &Gate{
		log:      logutil.Discard(),
		codec:    codec,
		profiles: profiles,
		public:   make(map[string]struct{}, len(cfg.PublicPaths)),
		Config:   cfg,
	}
	for _, p := range cfg.PublicPaths {
		g.public[cleanPath(p)] = struct{}{}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Result is the outcome of Evaluate. Session is set whenever a valid
// session was resolved, including on RedirectVerifyEmail.
type Result struct {
	Decision Decision
	Reason   Reason
	Session  *models.Session
}

// Evaluate runs the gate's checks for r in order: public path, session,
// email verification. It performs at most one profile lookup, never retries
// and never panics.
func (g *Gate) Evaluate(r *http.Request) Result {
	p := cleanPath(r.URL.Path)

	if g.IsPublic(p) {
		return Result{Decision: Proceed, Reason: ReasonPublic}
	}

	ck, err := r.Cookie(g.CookieName)
	if err != nil || ck.Value == "" {
		return Result{Decision: RedirectLogin, Reason: ReasonNoCookie}
	}
	s, ok := g.codec.Decode(ck.Value)
	if !ok {
		return Result{Decision: RedirectLogin, Reason: ReasonInvalidSession}
	}

	// the interstitial must stay reachable for a signed-in user whatever the lookup says
	if p == g.VerifyEmailPath {
		return Result{Decision: Proceed, Reason: ReasonInterstitial, Session: &s}
	}

	profile, err := g.lookupProfile(r.Context(), s.UserID)
	switch {
	case err != nil:
		g.log.Warn("profile lookup failed, holding request at verification", "user_id", s.UserID, "path", p, "err", err)
		return Result{Decision: RedirectVerifyEmail, Reason: ReasonLookupFailed, Session: &s}
	case profile == nil || profile.UserID != s.UserID:
		return Result{Decision: RedirectVerifyEmail, Reason: ReasonLookupFailed, Session: &s}
	case !profile.EmailVerified:
		return Result{Decision: RedirectVerifyEmail, Reason: ReasonUnverified, Session: &s}
	}
	return Result{Decision: Proceed, Reason: ReasonVerified, Session: &s}
}

// lookupProfile performs the single bounded lookup. A panic in the store is
// reported as an error.
func (g *Gate) lookupProfile(parent context.Context, userID string) (profile *models.Profile, err error) {
	if g.profiles == nil {
		return nil, fmt.Errorf("gate: no profile store configured")
	}

	ctx, cancel := context.WithTimeout(parent, g.LookupTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			profile, err = nil, fmt.Errorf("gate: profile lookup panicked: %v", rec)
		}
		if g.recorder != nil {
			g.recorder.ObserveProfileLookup(time.Since(start), err == nil)
		}
	}()

	logutil.LogSlowOperation(ctx, g.log, g.LookupTimeout/2, "profile lookup", func() {
		profile, err = g.profiles.GetProfile(ctx, userID)
	}, "user_id", userID)

	// a store that ignores ctx still must not let a late answer through
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return profile, err
}

// IsPublic reports whether p is on the allow-list. Matching is by whole
// path segments on the cleaned path, so "/login" covers "/login/x" but not
// "/loginx", and "/login/../dashboard" is treated as "/dashboard".
func (g *Gate) IsPublic(p string) bool {
	p = cleanPath(p)
	if p == "/" {
		_, ok := g.public["/"]
		return ok
	}
	for _, prefix := range buildPrefixes(p) {
		if prefix == "/" {
			// root is exact-match only
			break
		}
		if _, ok := g.public[prefix]; ok {
			return true
		}
	}
	return false
}

// cleanPath returns a rooted, cleaned path with no trailing slash.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// buildPrefixes returns a list of paths to check from most specific to least specific.
// For "/a/b/c" it returns ["/a/b/c", "/a/b", "/a", "/"].
func buildPrefixes(p string) []string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	if len(segments) == 1 && segments[0] == "" {
		return []string{"/"}
	}

	prefixes := make([]string, 0, len(segments)+1)
	for i := len(segments); i > 0; i-- {
		prefixes = append(prefixes, "/"+strings.Join(segments[:i], "/"))
	}
	return append(prefixes, "/")
}
