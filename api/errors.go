package api

import (
	"log/slog"
	"net/http"
)

// ErrorKey is a type alias for string, used to reference a specific
// standardized error message in the errorMessages map.
type ErrorKey string

// These constants define unique keys for each error variant.
// You can have multiple variants under the same HTTP status code.
const (
	ErrInvalidJSON     ErrorKey = "invalid_json"
	ErrValidation      ErrorKey = "validation_failed"
	ErrInternal        ErrorKey = "internal_error"
	ErrCredentials     ErrorKey = "invalid_credentials"
	ErrAuthRequired    ErrorKey = "auth_required"
	ErrEmailUnverified ErrorKey = "email_unverified"
	ErrInvalidToken    ErrorKey = "invalid_token"
	ErrAccessDenied    ErrorKey = "access_denied"
	ErrConflict        ErrorKey = "conflict"
	ErrTooManyRequests ErrorKey = "too_many_requests"
	ErrUnavailable     ErrorKey = "unavailable"
)

// errorMessages is the centralized map of all standard error texts.
var errorMessages = map[ErrorKey]string{
	ErrInvalidJSON:     "invalid JSON format",
	ErrValidation:      "validation failed",
	ErrInternal:        "internal server error",
	ErrCredentials:     "invalid credentials",
	ErrAuthRequired:    "authentication required",
	ErrEmailUnverified: "email verification required",
	ErrInvalidToken:    "invalid token",
	ErrAccessDenied:    "access denied",
	ErrConflict:        "resource conflict",
	ErrTooManyRequests: "too many requests",
	ErrUnavailable:     "service unavailable",
}

// ErrorResponse represents the JSON body returned for an error.
// - Error:   short machine-readable summary of the problem
// - Details: optional human-readable explanation
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// NewError creates an ErrorResponse for a given HTTP status, error key, and details.
// If the key is not found, it falls back to "unknown error".
func NewError(status int, key ErrorKey, details string) (int, ErrorResponse) {
	msg, ok := errorMessages[key]
	if !ok {
		msg = "unknown error"
	}
	return status, ErrorResponse{
		Error:   msg,
		Details: details,
	}
}

func BadRequestInvalidJSON() (int, ErrorResponse) {
	return NewError(http.StatusBadRequest, ErrInvalidJSON, "expected valid JSON object")
}

func BadRequestValidation(details string) func() (int, ErrorResponse) {
	return func() (int, ErrorResponse) {
		return NewError(http.StatusBadRequest, ErrValidation, details)
	}
}

func InternalServerError() (int, ErrorResponse) {
	return NewError(http.StatusInternalServerError, ErrInternal, "")
}

// UnauthorizedInvalidCredentials is deliberately vague so the response does
// not reveal whether the email exists.
func UnauthorizedInvalidCredentials() (int, ErrorResponse) {
	return NewError(http.StatusUnauthorized, ErrCredentials, "email or password is incorrect")
}

// UnauthorizedAuthRequired carries the login location in details.
func UnauthorizedAuthRequired(location string) func() (int, ErrorResponse) {
	return func() (int, ErrorResponse) {
		return NewError(http.StatusUnauthorized, ErrAuthRequired, location)
	}
}

// ForbiddenEmailUnverified carries the verification interstitial location in details.
func ForbiddenEmailUnverified(location string) func() (int, ErrorResponse) {
	return func() (int, ErrorResponse) {
		return NewError(http.StatusForbidden, ErrEmailUnverified, location)
	}
}

func BadRequestInvalidToken() (int, ErrorResponse) {
	return NewError(http.StatusBadRequest, ErrInvalidToken, "link is invalid or has expired")
}

func ForbiddenAccessDenied() (int, ErrorResponse) {
	return NewError(http.StatusForbidden, ErrAccessDenied, "insufficient permissions")
}

func ResourceConflict(details string) func() (int, ErrorResponse) {
	return func() (int, ErrorResponse) {
		return NewError(http.StatusConflict, ErrConflict, details)
	}
}

func TooManyRequests() (int, ErrorResponse) {
	return NewError(http.StatusTooManyRequests, ErrTooManyRequests, "slow down and try again shortly")
}

func ServiceUnavailable() (int, ErrorResponse) {
	return NewError(http.StatusServiceUnavailable, ErrUnavailable, "")
}

// ReturnError accepts a function returning (int, ErrorResponse)
// and writes it as JSON.
func ReturnError(w http.ResponseWriter, logger *slog.Logger, errorFunc func() (int, ErrorResponse)) {
	status, errResp := errorFunc()
	RespondJSONAndLog(w, logger, status, errResp)
}
