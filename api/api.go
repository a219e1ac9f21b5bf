package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quincarter/coffee-app-sub000/pkg/models"
)

// RespondJSONAndLog is a convenience wrapper around RespondJSON that also logs any encoding errors.
func RespondJSONAndLog(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	if err := RespondJSON(w, status, payload); err != nil {
		logger.Debug("failed to respond with JSON", "err", err)
	}
}

// RespondJSON sets the status code and Content-Type header and encodes payload.
// Returns an error only if JSON encoding fails.
func RespondJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// IsAPIRequest reports whether r should get JSON rather than HTML. Only the
// path decides; page routes redirect whatever the Accept header says.
func IsAPIRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// DecodeJSON reads a single JSON object from the body into dst, rejecting
// unknown fields and bodies over 1MB.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string  `json:"email"`
	Name     string  `json:"name"`
	Password string  `json:"password"`
	Image    *string `json:"image,omitempty"`
}

// EmailRequest is the body of the magic-link and forgot-password endpoints.
type EmailRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

// SessionResponse is returned after login, registration and by /api/auth/me.
type SessionResponse struct {
	User      models.UserSnapshot `json:"user"`
	ExpiresAt time.Time           `json:"expiresAt"`
}

// MessageResponse is used where the outcome must not leak account existence.
type MessageResponse struct {
	Message string `json:"message"`
}
