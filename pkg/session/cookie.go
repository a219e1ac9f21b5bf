package session

import (
	"net/http"
	"time"
)

// DefaultCookieName is the cookie that carries the encoded session.
const DefaultCookieName = "session"

// CookieConfig describes the session cookie. The zero value is not usable;
// start from DefaultCookieConfig.
type CookieConfig struct {
	Name     string
	Path     string
	Secure   bool // true in production
	MaxAge   time.Duration
	SameSite http.SameSite
}

// DefaultCookieConfig returns the standard session cookie settings.
func DefaultCookieConfig(secure bool) CookieConfig {
	return CookieConfig{
		Name:     DefaultCookieName,
		Path:     "/",
		Secure:   secure,
		MaxAge:   DefaultTTL,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetCookie writes token as the session cookie.
func (c CookieConfig) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     c.Path,
		MaxAge:   int(c.MaxAge / time.Second),
		Expires:  time.Now().Add(c.MaxAge),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

// ClearCookie expires the session cookie on the client. This is logout.
func (c CookieConfig) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     c.Path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

// Token returns the raw session cookie value, if present and non-empty.
func (c CookieConfig) Token(r *http.Request) (string, bool) {
	ck, err := r.Cookie(c.Name)
	if err != nil || ck.Value == "" {
		return "", false
	}
	return ck.Value, true
}
