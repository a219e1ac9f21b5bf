// Package web renders the server-side pages from embedded templates.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/quincarter/coffee-app-sub000/pkg/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names accepted by Render.
const (
	PageHome                = "home"
	PageLogin               = "login"
	PageRegister            = "register"
	PageVerifyEmailRequired = "verify_email_required"
	PageDashboard           = "dashboard"
	PageForgotPassword      = "forgot_password"
	PageResetPassword       = "reset_password"
	PageAdmin               = "admin"
)

var pages = []string{
	PageHome,
	PageLogin,
	PageRegister,
	PageVerifyEmailRequired,
	PageDashboard,
	PageForgotPassword,
	PageResetPassword,
	PageAdmin,
}

// PageData is the single view model shared by every page. Fields a page does
// not use are left zero.
type PageData struct {
	Title     string
	User      *models.UserSnapshot
	ExpiresAt time.Time
	Error     string
	Message   string

	// form echo
	Next  string
	Email string
	Name  string
	Token string

	Users []*models.User
}

// Renderer holds one parsed template set per page, each combined with the layout.
type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render writes page with status. The page is executed into a buffer first so
// a template error never leaves a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data PageData) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page: %s", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
