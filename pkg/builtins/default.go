package builtins

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/quincarter/coffee-app-sub000/internal/authstore"
	"github.com/quincarter/coffee-app-sub000/internal/mailer"
	"github.com/quincarter/coffee-app-sub000/internal/ratelimit"
	"github.com/quincarter/coffee-app-sub000/internal/tokenstore"
	"github.com/quincarter/coffee-app-sub000/pkg/gate"
	"github.com/quincarter/coffee-app-sub000/pkg/models"
	"github.com/quincarter/coffee-app-sub000/pkg/session"
	"github.com/quincarter/coffee-app-sub000/web"
)

// Mux defines the interface the routes are registered on. *http.ServeMux
// satisfies it.
type Mux interface {
	Handle(pattern string, handler http.Handler)
}

// Deps are the collaborators of the built-in handlers. Sessions, Invalidator
// and OnRateLimit are optional.
type Deps struct {
	Auth        authstore.Store
	Tokens      tokenstore.Store
	Codec       *session.Codec
	Cookies     session.CookieConfig
	Gate        *gate.Gate
	Mailer      mailer.Mailer
	Pages       *web.Renderer
	Sessions    SessionRecorder
	Invalidator ProfileInvalidator
	// RatePerMinute bounds the unauthenticated POSTs per client IP; 0 disables limiting.
	RatePerMinute int
	OnRateLimit   func(route string)
}

// Rate limited route groups. Each group has its own budget.
const (
	limitLogin          = "login"
	limitRegister       = "register"
	limitMagicLink      = "magic_link"
	limitForgotPassword = "forgot_password"
)

type Builtin struct {
	log      *slog.Logger
	gate     *gate.Gate
	handler  *Handler
	limiters map[string]*ratelimit.Registry
	onLimit  func(string)
}

// New initializes and returns a new Builtin instance
func New(logger *slog.Logger, deps Deps, config Config) (*Builtin, error) {
	if deps.Auth == nil || deps.Tokens == nil || deps.Codec == nil || deps.Gate == nil || deps.Mailer == nil || deps.Pages == nil {
		return nil, errors.New("builtins: auth, tokens, codec, gate, mailer and pages are required")
	}
	b := &Builtin{
		log:     logger,
		gate:    deps.Gate,
		handler: newHandler(logger, deps, config),
		onLimit: deps.OnRateLimit,
	}
	if deps.RatePerMinute > 0 {
		b.limiters = map[string]*ratelimit.Registry{
			limitLogin:          ratelimit.NewRegistry(deps.RatePerMinute),
			limitRegister:       ratelimit.NewRegistry(deps.RatePerMinute),
			limitMagicLink:      ratelimit.NewRegistry(deps.RatePerMinute),
			limitForgotPassword: ratelimit.NewRegistry(deps.RatePerMinute),
		}
	}
	return b, nil
}

// LoadAllRoutes registers every route group on mux. The gate is not applied
// here; wrap the mux with Gate.Middleware.
func (b *Builtin) LoadAllRoutes(mux Mux) error {
	errs := []error{
		b.LoadPageRoutes(mux),
		b.LoadLoginRoutes(mux),
		b.LoadRegisterRoutes(mux),
		b.LoadVerificationRoutes(mux),
		b.LoadPasswordResetRoutes(mux),
		b.LoadAdminRoutes(mux),
	}
	return errors.Join(errs...)
}

// LoadPageRoutes registers the home page, the protected pages and the health check.
func (b *Builtin) LoadPageRoutes(mux Mux) error {
	return b.registerRoutes(mux, map[string]http.Handler{
		"GET /{$}":         b.handler.handleHomeGet(),
		"GET /dashboard":   b.handler.handleDashboardGet(),
		"GET /api/auth/me": b.handler.handleAPIMeGet(),
		"GET /healthz":     b.handler.handleHealthzGet(),
	})
}

// LoadLoginRoutes registers password login, magic links and logout.
func (b *Builtin) LoadLoginRoutes(mux Mux) error {
	return b.registerRoutes(mux, map[string]http.Handler{
		"GET /login":                b.handler.handleLoginGet(),
		"POST /login":               b.limit(limitLogin, b.handler.handleLoginPost()),
		"POST /api/auth/login":      b.limit(limitLogin, b.handler.handleAPILoginPost()),
		"POST /auth/magic":          b.limit(limitMagicLink, b.handler.handleMagicLinkPost()),
		"POST /api/auth/magic-link": b.limit(limitMagicLink, b.handler.handleAPIMagicLinkPost()),
		"GET /auth/magic":           b.handler.handleMagicLinkGet(),
		"POST /logout":              b.handler.handleLogoutPost(),
		"POST /api/auth/logout":     b.handler.handleAPILogoutPost(),
	})
}

// LoadRegisterRoutes registers account creation.
func (b *Builtin) LoadRegisterRoutes(mux Mux) error {
	return b.registerRoutes(mux, map[string]http.Handler{
		"GET /register":           b.handler.handleRegisterGet(),
		"POST /register":          b.limit(limitRegister, b.handler.handleRegisterPost()),
		"POST /api/auth/register": b.limit(limitRegister, b.handler.handleAPIRegisterPost()),
	})
}

// LoadVerificationRoutes registers email verification and the interstitial.
func (b *Builtin) LoadVerificationRoutes(mux Mux) error {
	return b.registerRoutes(mux, map[string]http.Handler{
		"GET /verify-email":                  b.handler.handleVerifyEmailGet(),
		"POST /api/auth/verify-email":        b.handler.handleAPIVerifyEmailPost(),
		"POST /verify-email/resend":          b.limit(limitMagicLink, b.handler.handleResendVerificationPost()),
		"POST /api/auth/verify-email/resend": b.limit(limitMagicLink, b.handler.handleAPIResendVerificationPost()),
		"GET " + b.gate.VerifyEmailPath:      b.handler.handleVerifyEmailRequiredGet(),
	})
}

// LoadPasswordResetRoutes registers the forgot and reset password flow.
func (b *Builtin) LoadPasswordResetRoutes(mux Mux) error {
	return b.registerRoutes(mux, map[string]http.Handler{
		"GET /forgot-password":           b.handler.handleForgotPasswordGet(),
		"POST /forgot-password":          b.limit(limitForgotPassword, b.handler.handleForgotPasswordPost()),
		"POST /api/auth/forgot-password": b.limit(limitForgotPassword, b.handler.handleAPIForgotPasswordPost()),
		"GET /reset-password":            b.handler.handleResetPasswordGet(),
		"POST /reset-password":           b.handler.handleResetPasswordPost(),
		"POST /api/auth/reset-password":  b.handler.handleAPIResetPasswordPost(),
	})
}

// LoadAdminRoutes registers the admin page behind RequireRole(admin).
func (b *Builtin) LoadAdminRoutes(mux Mux) error {
	return b.registerRoutes(mux, map[string]http.Handler{
		"GET /admin": b.gate.RequireRole(models.RoleAdmin)(b.handler.handleAdminGet()),
	})
}

// PruneLimiters drops idle rate limiter entries and returns how many went.
func (b *Builtin) PruneLimiters() int {
	n := 0
	for _, l := range b.limiters {
		n += l.Prune()
	}
	return n
}

func (b *Builtin) limit(group string, h http.Handler) http.Handler {
	l, ok := b.limiters[group]
	if !ok {
		return h
	}
	return l.Middleware(group, b.log, b.onLimit)(h)
}

// registerRoutes registers a set of HTTP routes with their corresponding handlers.
// It accepts a map where the keys are route patterns (e.g., "GET /login")
// and the values are the associated handlers.
//
// http.ServeMux panics on a conflicting pattern; that panic is recovered per
// route and all resulting errors are returned together using errors.Join.
//
// Example:
//
//	err := b.registerRoutes(mux, map[string]http.Handler{
//	    "GET /login":  b.handler.handleLoginGet(),
//	    "POST /login": b.handler.handleLoginPost(),
//	})
func (b *Builtin) registerRoutes(mux Mux, routes map[string]http.Handler) error {
	var errs []error
	for pattern, handler := range routes {
		if err := register(mux, pattern, handler); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func register(mux Mux, pattern string, handler http.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("register %q: %v", pattern, r)
		}
	}()
	mux.Handle(pattern, handler)
	return nil
}
