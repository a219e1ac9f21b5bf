package builtins

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/quincarter/coffee-app-sub000/api"
	"github.com/quincarter/coffee-app-sub000/internal/tokenstore"
	"github.com/quincarter/coffee-app-sub000/pkg/gate"
	"github.com/quincarter/coffee-app-sub000/pkg/models"
)

func sessionResponse(s models.Session) api.SessionResponse {
	return api.SessionResponse{User: s.User, ExpiresAt: s.ExpiresAt}
}

func (h *Handler) handleAPILoginPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)

		var req api.LoginRequest
		if err := api.DecodeJSON(w, r, &req); err != nil {
			api.ReturnError(w, h.log, api.BadRequestInvalidJSON)
			return
		}

		user, err := h.authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, errInvalidCredentials) {
				api.ReturnError(w, h.log, api.UnauthorizedInvalidCredentials)
				return
			}
			h.log.Error("login failed", "err", err)
			api.ReturnError(w, h.log, api.InternalServerError)
			return
		}

		s, err := h.issueSession(w, user, MethodPassword)
		if err != nil {
			h.log.Error("creating session", "err", err)
			api.ReturnError(w, h.log, api.InternalServerError)
			return
		}
		api.RespondJSONAndLog(w, h.log, http.StatusOK, sessionResponse(s))
	}
}

func (h *Handler) handleAPILogoutPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		h.cookies.ClearCookie(w)
		api.RespondJSONAndLog(w, h.log, http.StatusOK, api.MessageResponse{Message: "signed out"})
	}
}

func (h *Handler) handleAPIRegisterPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)

		var req api.RegisterRequest
		if err := api.DecodeJSON(w, r, &req); err != nil {
			api.ReturnError(w, h.log, api.BadRequestInvalidJSON)
			return
		}

		user, err := h.register(r.Context(), req.Email, req.Name, req.Password, req.Image)
		switch {
		case errors.Is(err, errEmailTaken):
			api.ReturnError(w, h.log, api.ResourceConflict(errEmailTaken.Error()))
			return
		case isValidationError(err):
			api.ReturnError(w, h.log, api.BadRequestValidation(validationMessage(err)))
			return
		case err != nil:
			h.log.Error("unable to create user", "err", err)
			api.ReturnError(w, h.log, api.InternalServerError)
			return
		}

		s, err := h.issueSession(w, user, MethodRegister)
		if err != nil {
			h.log.Error("creating session", "err", err)
			api.ReturnError(w, h.log, api.InternalServerError)
			return
		}
		api.RespondJSONAndLog(w, h.log, http.StatusCreated, sessionResponse(s))
	}
}

// acceptEmail answers 202 whatever happens, after mailing a link for purpose
// when the address belongs to an active account.
func (h *Handler) acceptEmail(purpose tokenstore.Purpose) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)

		var req api.EmailRequest
		if err := api.DecodeJSON(w, r, &req); err != nil {
			api.ReturnError(w, h.log, api.BadRequestInvalidJSON)
			return
		}
		h.sendLinkIfExists(r.Context(), req.Email, purpose)
		api.RespondJSONAndLog(w, h.log, http.StatusAccepted, api.MessageResponse{Message: msgLinkSent})
	}
}

func (h *Handler) handleAPIMagicLinkPost() http.HandlerFunc {
	return h.acceptEmail(tokenstore.PurposeMagicLink)
}

func (h *Handler) handleAPIForgotPasswordPost() http.HandlerFunc {
	return h.acceptEmail(tokenstore.PurposePasswordReset)
}

func (h *Handler) handleAPIVerifyEmailPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)

		var req api.VerifyEmailRequest
		if err := api.DecodeJSON(w, r, &req); err != nil {
			api.ReturnError(w, h.log, api.BadRequestInvalidJSON)
			return
		}
		if _, err := h.redeemVerification(r.Context(), req.Token, tokenstore.PurposeVerifyEmail); err != nil {
			if isTokenError(err) {
				api.ReturnError(w, h.log, api.BadRequestInvalidToken)
				return
			}
			h.log.Error("unable to verify email", "err", err)
			api.ReturnError(w, h.log, api.InternalServerError)
			return
		}
		api.RespondJSONAndLog(w, h.log, http.StatusOK, api.MessageResponse{Message: "email verified"})
	}
}

func (h *Handler) handleAPIResendVerificationPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		s, ok := h.currentSession(r)
		if !ok {
			api.ReturnError(w, h.log, api.UnauthorizedAuthRequired(h.loginPath))
			return
		}
		if h.resendVerification(r.Context(), s.UserID) {
			api.RespondJSONAndLog(w, h.log, http.StatusOK, api.MessageResponse{Message: "email already verified"})
			return
		}
		api.RespondJSONAndLog(w, h.log, http.StatusAccepted, api.MessageResponse{Message: "verification email sent"})
	}
}

func (h *Handler) handleAPIResetPasswordPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)

		var req api.ResetPasswordRequest
		if err := api.DecodeJSON(w, r, &req); err != nil {
			api.ReturnError(w, h.log, api.BadRequestInvalidJSON)
			return
		}

		err := h.resetPassword(r.Context(), req.Token, req.Password)
		switch {
		case isValidationError(err):
			api.ReturnError(w, h.log, api.BadRequestValidation(validationMessage(err)))
			return
		case isTokenError(err):
			api.ReturnError(w, h.log, api.BadRequestInvalidToken)
			return
		case err != nil:
			h.log.Error("unable to reset password", "err", err)
			api.ReturnError(w, h.log, api.InternalServerError)
			return
		}
		api.RespondJSONAndLog(w, h.log, http.StatusOK, api.MessageResponse{Message: "password updated"})
	}
}

func (h *Handler) handleAPIMeGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accessLog(r)
		// middleware will have already redirected anyone without a verified session
		s, ok := gate.SessionFromContext(r.Context())
		if !ok {
			api.ReturnError(w, h.log, api.UnauthorizedAuthRequired(h.loginPath))
			return
		}
		api.RespondJSONAndLog(w, h.log, http.StatusOK, sessionResponse(s))
	}
}

func (h *Handler) handleHealthzGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.auth.Ping(ctx); err != nil {
			h.log.Error("health check failed", "err", err)
			api.ReturnError(w, h.log, api.ServiceUnavailable)
			return
		}
		api.RespondJSONAndLog(w, h.log, http.StatusOK, map[string]string{"status": "ok"})
	}
}
