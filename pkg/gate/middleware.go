package gate

import (
	"net/http"
	"net/url"
	"time"

	"github.com/quincarter/coffee-app-sub000/api"
	"github.com/quincarter/coffee-app-sub000/internal/logutil"
	"github.com/quincarter/coffee-app-sub000/pkg/models"
)

// Middleware applies Evaluate to every request. On Proceed the resolved
// session (if any) is stored in the request context for next. Browser
// requests are redirected with 303 See Other; API requests get the same
// decision as a JSON 401 or 403 naming the redirect target.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer logutil.NewTimingLogger(g.log, time.Now(), "access handled", "method", r.Method, "path", r.URL.Path, "remote_ip", r.RemoteAddr, "user_agent", r.UserAgent())()

		res := g.Evaluate(r)
		if g.recorder != nil {
			g.recorder.RecordDecision(res.Decision.String(), string(res.Reason))
		}
		g.log.Debug("gate decision", "path", r.URL.Path, "decision", res.Decision.String(), "reason", string(res.Reason))

		switch res.Decision {
		case Proceed:
			if res.Session != nil {
				r = r.WithContext(WithSession(r.Context(), *res.Session))
			}
			next.ServeHTTP(w, r)
		case RedirectLogin:
			target := g.loginLocation(r)
			if api.IsAPIRequest(r) {
				api.ReturnError(w, g.log, api.UnauthorizedAuthRequired(target))
				return
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
		case RedirectVerifyEmail:
			if api.IsAPIRequest(r) {
				api.ReturnError(w, g.log, api.ForbiddenEmailUnverified(g.VerifyEmailPath))
				return
			}
			http.Redirect(w, r, g.VerifyEmailPath, http.StatusSeeOther)
		}
	})
}

// loginLocation is LoginPath with next set to the original request path and query.
func (g *Gate) loginLocation(r *http.Request) string {
	next := r.URL.RequestURI()
	if next == "" || next == "/" {
		return g.LoginPath
	}
	return g.LoginPath + "?" + url.Values{"next": {next}}.Encode()
}

// RequireRole returns a middleware that allows the request only if the
// session the gate attached carries at least the required role. It must be
// mounted behind Middleware.
func (g *Gate) RequireRole(required models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := SessionFromContext(r.Context())
			if !ok {
				g.log.Error("RequireRole expected a session in the request context and did not receive one", "path", r.URL.Path)
				g.respondForbidden(w, r)
				return
			}
			if !s.User.Role.AtLeast(required) {
				g.log.Info("access denied", "user_id", s.UserID, "role", s.User.Role.String(), "required", required.String(), "path", r.URL.Path)
				g.respondForbidden(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Gate) respondForbidden(w http.ResponseWriter, r *http.Request) {
	if api.IsAPIRequest(r) {
		api.ReturnError(w, g.log, api.ForbiddenAccessDenied)
	} else {
		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}
