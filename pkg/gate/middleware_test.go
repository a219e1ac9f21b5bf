package gate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quincarter/coffee-app-sub000/api"
	"github.com/quincarter/coffee-app-sub000/pkg/models"
)

func captureSession(t *testing.T, got *models.Session, present *bool) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got, *present = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_RedirectsToLoginWithNext(t *testing.T) {
	rec := &fakeRecorder{}
	g := newTestGate(decoderAccepting(aliceSession()), profilesReturning(true), WithRecorder(rec))

	var got models.Session
	var present bool
	h := g.Middleware(captureSession(t, &got, &present))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request("/dashboard?tab=brews", false))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, "/dashboard?tab=brews", loc.Query().Get("next"))
	assert.False(t, present)
	assert.Equal(t, []string{"redirect_login/no_cookie"}, rec.decisions)
}

func TestMiddleware_PublicPathProceedsWithoutSession(t *testing.T) {
	g := newTestGate(decoderAccepting(aliceSession()), profilesReturning(true))

	var got models.Session
	var present bool
	w := httptest.NewRecorder()
	g.Middleware(captureSession(t, &got, &present)).ServeHTTP(w, request("/login", false))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, present)
}

func TestMiddleware_AttachesSession(t *testing.T) {
	rec := &fakeRecorder{}
	g := newTestGate(decoderAccepting(aliceSession()), profilesReturning(true), WithRecorder(rec))

	var got models.Session
	var present bool
	w := httptest.NewRecorder()
	g.Middleware(captureSession(t, &got, &present)).ServeHTTP(w, request("/dashboard", true))

	assert.Equal(t, http.StatusOK, w.Code)
	require.True(t, present)
	assert.Equal(t, "u-alice", got.UserID)
	assert.Equal(t, []string{"proceed/verified"}, rec.decisions)
	assert.Equal(t, []bool{true}, rec.lookups)
}

func TestMiddleware_UnverifiedFlow(t *testing.T) {
	g := newTestGate(decoderAccepting(aliceSession()), profilesReturning(false))

	var got models.Session
	var present bool
	h := g.Middleware(captureSession(t, &got, &present))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request("/dashboard", true))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/verify-email-required", w.Header().Get("Location"))
	assert.False(t, present)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, request("/verify-email-required", true))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, present)
}

func TestMiddleware_APIRequestsGetJSON(t *testing.T) {
	g := newTestGate(decoderAccepting(aliceSession()), profilesReturning(false))
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next must not be called")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request("/api/auth/me", false))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "authentication required", body.Error)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, request("/api/auth/me", true))
	assert.Equal(t, http.StatusForbidden, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "/verify-email-required", body.Details)
}

func TestMiddleware_PageRoutesRedirectWhateverTheAcceptHeader(t *testing.T) {
	g := newTestGate(decoderAccepting(aliceSession()), profilesReturning(true))
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next must not be called")
	}))

	for _, accept := range []string{"application/json", "text/html, application/json;q=0.9", "*/*"} {
		t.Run(accept, func(t *testing.T) {
			r := request("/dashboard", false)
			r.Header.Set("Accept", accept)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			assert.Equal(t, http.StatusSeeOther, w.Code)
			assert.Equal(t, "/login?next=%2Fdashboard", w.Header().Get("Location"))
		})
	}
}

func TestMiddleware_RootRedirectHasNoNext(t *testing.T) {
	g := New(decoderAccepting(aliceSession()), profilesReturning(true), &Config{PublicPaths: []string{}}, WithLogger(NoopLogger()))

	w := httptest.NewRecorder()
	g.Middleware(http.NotFoundHandler()).ServeHTTP(w, request("/", false))
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestRequireRole(t *testing.T) {
	g := newTestGate(nil, nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := g.RequireRole(models.RoleAdmin)(ok)

	tests := []struct {
		name   string
		role   models.Role
		attach bool
		path   string
		want   int
	}{
		{"admin allowed", models.RoleAdmin, true, "/admin", http.StatusOK},
		{"user denied", models.RoleUser, true, "/admin", http.StatusForbidden},
		{"moderator denied", models.RoleModerator, true, "/admin", http.StatusForbidden},
		{"no session", "", false, "/admin", http.StatusForbidden},
		{"api denied", models.RoleUser, true, "/api/admin/users", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.attach {
				s := aliceSession()
				s.User.Role = tt.role
				r = r.WithContext(WithSession(r.Context(), s))
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
