package builtins

import (
	"errors"
	"net/http"

	"github.com/quincarter/coffee-app-sub000/internal/tokenstore"
	"github.com/quincarter/coffee-app-sub000/pkg/gate"
	"github.com/quincarter/coffee-app-sub000/web"
)

const (
	msgLinkSent        = "If an account exists for that email, a link is on its way."
	msgLinkInvalid     = "That link is invalid or has expired."
	msgBadCredentials  = "Email or password is incorrect."
	msgTryAgain        = "Something went wrong, please try again."
	msgPasswordUpdated = "Your password has been updated. Please sign in."
)

// render writes page and logs any template failure as a 500.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data web.PageData) {
	if data.User == nil {
		if s, ok := h.currentSession(r); ok {
			data.User = &s.User
		}
	}
	if err := h.pages.Render(w, status, page, data); err != nil {
		h.log.Error("unable to render page", "page", page, "path", r.URL.Path, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := r.ParseForm(); err != nil {
		h.log.Error("parsing form", "method", r.Method, "path", r.URL.Path, "err", err)
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) handleHomeGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		h.render(w, r, http.StatusOK, web.PageHome, web.PageData{Title: "Home"})
	}
}

func (h *Handler) handleLoginGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		data := web.PageData{Title: "Sign in", Next: r.URL.Query().Get("next")}
		if r.URL.Query().Get("reset") == "1" {
			data.Message = msgPasswordUpdated
		}
		h.render(w, r, http.StatusOK, web.PageLogin, data)
	}
}

func (h *Handler) handleLoginPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		if !h.parseForm(w, r) {
			return
		}

		email := r.FormValue("email")
		next := r.FormValue("next")

		user, err := h.authenticate(r.Context(), email, r.FormValue("password"))
		if err != nil {
			status, msg := http.StatusUnauthorized, msgBadCredentials
			if !errors.Is(err, errInvalidCredentials) {
				h.log.Error("login failed", "err", err)
				status, msg = http.StatusInternalServerError, msgTryAgain
			}
			h.render(w, r, status, web.PageLogin, web.PageData{Title: "Sign in", Error: msg, Email: email, Next: next})
			return
		}

		if _, err := h.issueSession(w, user, MethodPassword); err != nil {
			h.log.Error("creating session", "err", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, safeNext(next), http.StatusSeeOther)
	}
}

func (h *Handler) handleLogoutPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		h.cookies.ClearCookie(w)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (h *Handler) handleRegisterGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		h.render(w, r, http.StatusOK, web.PageRegister, web.PageData{Title: "Create account"})
	}
}

func (h *Handler) handleRegisterPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		if !h.parseForm(w, r) {
			return
		}

		email := r.FormValue("email")
		name := r.FormValue("name")
		password := r.FormValue("password")
		data := web.PageData{Title: "Create account", Email: email, Name: name}

		if password != r.FormValue("confirm") {
			data.Error = "Passwords do not match"
			h.render(w, r, http.StatusBadRequest, web.PageRegister, data)
			return
		}

		user, err := h.register(r.Context(), email, name, password, nil)
		switch {
		case errors.Is(err, errEmailTaken):
			data.Error = "Account already exists"
			h.render(w, r, http.StatusConflict, web.PageRegister, data)
			return
		case isValidationError(err):
			data.Error = validationMessage(err)
			h.render(w, r, http.StatusBadRequest, web.PageRegister, data)
			return
		case err != nil:
			h.log.Error("unable to create user", "err", err)
			data.Error = "Unable to create user, please try again later."
			h.render(w, r, http.StatusInternalServerError, web.PageRegister, data)
			return
		}

		if _, err := h.issueSession(w, user, MethodRegister); err != nil {
			h.log.Error("creating session", "err", err)
		}
		http.Redirect(w, r, h.verifyEmailPath, http.StatusSeeOther)
	}
}

func (h *Handler) handleMagicLinkPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		if !h.parseForm(w, r) {
			return
		}
		h.sendLinkIfExists(r.Context(), r.FormValue("email"), tokenstore.PurposeMagicLink)
		h.render(w, r, http.StatusAccepted, web.PageLogin, web.PageData{Title: "Sign in", Message: msgLinkSent})
	}
}

func (h *Handler) handleMagicLinkGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		user, err := h.redeemVerification(r.Context(), r.URL.Query().Get("token"), tokenstore.PurposeMagicLink)
		if err != nil {
			if !isTokenError(err) {
				h.log.Error("unable to redeem magic link", "err", err)
			}
			h.render(w, r, http.StatusBadRequest, web.PageLogin, web.PageData{Title: "Sign in", Error: msgLinkInvalid})
			return
		}
		if _, err := h.issueSession(w, user, MethodMagicLink); err != nil {
			h.log.Error("creating session", "err", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, defaultRedirect, http.StatusSeeOther)
	}
}

func (h *Handler) handleVerifyEmailGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		user, err := h.redeemVerification(r.Context(), r.URL.Query().Get("token"), tokenstore.PurposeVerifyEmail)
		if err != nil {
			if !isTokenError(err) {
				h.log.Error("unable to verify email", "err", err)
			}
			h.render(w, r, http.StatusBadRequest, web.PageVerifyEmailRequired, web.PageData{Title: "Verify your email", Error: msgLinkInvalid})
			return
		}
		h.log.Info("email verified", "user_id", user.ID.String())
		http.Redirect(w, r, defaultRedirect, http.StatusSeeOther)
	}
}

func (h *Handler) handleVerifyEmailRequiredGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		h.render(w, r, http.StatusOK, web.PageVerifyEmailRequired, web.PageData{Title: "Verify your email"})
	}
}

func (h *Handler) handleResendVerificationPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		s, ok := h.currentSession(r)
		if !ok {
			http.Redirect(w, r, h.loginPath, http.StatusSeeOther)
			return
		}
		if h.resendVerification(r.Context(), s.UserID) {
			http.Redirect(w, r, defaultRedirect, http.StatusSeeOther)
			return
		}
		h.render(w, r, http.StatusOK, web.PageVerifyEmailRequired, web.PageData{Title: "Verify your email", Message: "We sent you a new link."})
	}
}

func (h *Handler) handleForgotPasswordGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		h.render(w, r, http.StatusOK, web.PageForgotPassword, web.PageData{Title: "Reset your password"})
	}
}

func (h *Handler) handleForgotPasswordPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		if !h.parseForm(w, r) {
			return
		}
		h.sendLinkIfExists(r.Context(), r.FormValue("email"), tokenstore.PurposePasswordReset)
		h.render(w, r, http.StatusOK, web.PageForgotPassword, web.PageData{Title: "Reset your password", Message: msgLinkSent})
	}
}

func (h *Handler) handleResetPasswordGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		h.render(w, r, http.StatusOK, web.PageResetPassword, web.PageData{Title: "Choose a new password", Token: r.URL.Query().Get("token")})
	}
}

func (h *Handler) handleResetPasswordPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		if !h.parseForm(w, r) {
			return
		}
		token := r.FormValue("token")
		data := web.PageData{Title: "Choose a new password", Token: token}

		err := h.resetPassword(r.Context(), token, r.FormValue("password"))
		switch {
		case isValidationError(err):
			data.Error = validationMessage(err)
			h.render(w, r, http.StatusBadRequest, web.PageResetPassword, data)
			return
		case isTokenError(err):
			data.Error = msgLinkInvalid
			h.render(w, r, http.StatusBadRequest, web.PageResetPassword, data)
			return
		case err != nil:
			h.log.Error("unable to reset password", "err", err)
			data.Error = msgTryAgain
			h.render(w, r, http.StatusInternalServerError, web.PageResetPassword, data)
			return
		}
		http.Redirect(w, r, h.loginPath+"?reset=1", http.StatusSeeOther)
	}
}

func (h *Handler) handleDashboardGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		s, ok := gate.SessionFromContext(r.Context())
		if !ok {
			http.Redirect(w, r, h.loginPath, http.StatusSeeOther)
			return
		}
		h.render(w, r, http.StatusOK, web.PageDashboard, web.PageData{Title: "Dashboard", User: &s.User, ExpiresAt: s.ExpiresAt})
	}
}

func (h *Handler) handleAdminGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		users, err := h.auth.ListAllUsers(r.Context())
		if err != nil {
			h.log.Error("unable to list users", "err", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		h.render(w, r, http.StatusOK, web.PageAdmin, web.PageData{Title: "Admin", Users: users})
	}
}
