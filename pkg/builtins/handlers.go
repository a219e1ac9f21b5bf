package builtins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quincarter/coffee-app-sub000/internal/authstore"
	"github.com/quincarter/coffee-app-sub000/internal/db"
	"github.com/quincarter/coffee-app-sub000/internal/mailer"
	"github.com/quincarter/coffee-app-sub000/internal/tokenstore"
	"github.com/quincarter/coffee-app-sub000/pkg/gate"
	"github.com/quincarter/coffee-app-sub000/pkg/models"
	"github.com/quincarter/coffee-app-sub000/pkg/models/passwd"
	"github.com/quincarter/coffee-app-sub000/pkg/session"
	"github.com/quincarter/coffee-app-sub000/web"
)

// Login methods reported to SessionRecorder.
const (
	MethodPassword  = "password"
	MethodRegister  = "register"
	MethodMagicLink = "magic_link"
)

const defaultRedirect = "/dashboard"

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errEmailTaken         = errors.New("an account with that email already exists")
)

// dummyHash is compared against when the email is unknown so a miss costs
// the same bcrypt work as a wrong password.
var dummyHash, _ = passwd.NewHasher(passwd.DefaultCost).Hash("coffee-placeholder-password")

// SessionRecorder is told about every session handed out. *metrics.Metrics satisfies it.
type SessionRecorder interface {
	SessionIssued(method string)
}

// ProfileInvalidator drops cached verification state. *services.Services satisfies it.
type ProfileInvalidator interface {
	InvalidateProfile(ctx context.Context, userID string) error
}

// Config carries the settings the flows need.
type Config struct {
	// BaseURL prefixes links sent by mail.
	BaseURL          string
	MagicLinkTTL     time.Duration
	VerificationTTL  time.Duration
	PasswordResetTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:          "http://localhost:8080",
		MagicLinkTTL:     15 * time.Minute,
		VerificationTTL:  24 * time.Hour,
		PasswordResetTTL: time.Hour,
	}
}

type Handler struct {
	log         *slog.Logger
	auth        authstore.Store
	tokens      tokenstore.Store
	codec       *session.Codec
	cookies     session.CookieConfig
	mail        mailer.Mailer
	pages       *web.Renderer
	sessions    SessionRecorder
	invalidator ProfileInvalidator

	loginPath       string
	verifyEmailPath string
	Config
}

func newHandler(logger *slog.Logger, deps Deps, config Config) *Handler {
	return &Handler{
		log:         logger,
		auth:        deps.Auth,
		tokens:      deps.Tokens,
		codec:       deps.Codec,
		cookies:     deps.Cookies,
		mail:        deps.Mailer,
		pages:       deps.Pages,
		sessions:    deps.Sessions,
		invalidator: deps.Invalidator,

		loginPath:       deps.Gate.LoginPath,
		verifyEmailPath: deps.Gate.VerifyEmailPath,
		Config:          config,
	}
}

// authenticate checks email and password. Unknown emails, accounts without a
// password, disabled accounts and wrong passwords all yield errInvalidCredentials.
func (h *Handler) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := h.auth.GetUserByEmail(ctx, email)
	if err != nil {
		var nf *models.NotFoundError
		if errors.As(err, &nf) {
			passwd.CheckPasswordHash(password, dummyHash)
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil {
		passwd.CheckPasswordHash(password, dummyHash)
		return nil, errInvalidCredentials
	}
	if !passwd.CheckPasswordHash(password, *user.PasswordHash) || !user.IsActive {
		return nil, errInvalidCredentials
	}
	return user, nil
}

// register creates an unverified user and mails a verification link.
func (h *Handler) register(ctx context.Context, email, name, password string, image *string) (*models.User, error) {
	if strings.TrimSpace(name) == "" {
		return nil, models.NewValidationError("name is required")
	}
	if exists, _ := h.auth.CheckEmailExists(ctx, email); exists {
		return nil, errEmailTaken
	}
	user, err := h.auth.CreateUser(ctx, models.CreateUserParams{
		Email:    email,
		Name:     name,
		Password: &password,
		Role:     models.RoleUser,
		Image:    image,
	})
	if err != nil {
		var dup *db.DuplicateKeyError
		if errors.As(err, &dup) {
			return nil, errEmailTaken
		}
		return nil, err
	}
	h.sendLink(ctx, user, tokenstore.PurposeVerifyEmail)
	return user, nil
}

// issueSession encodes a session for user and sets it as the cookie.
func (h *Handler) issueSession(w http.ResponseWriter, user *models.User, method string) (models.Session, error) {
	s := models.NewSession(user)
	token, exp, err := h.codec.EncodeWithExpiry(s)
	if err != nil {
		return models.Session{}, fmt.Errorf("encode session: %w", err)
	}
	h.cookies.SetCookie(w, token)
	s.ExpiresAt = exp.UTC()

	if h.sessions != nil {
		h.sessions.SessionIssued(method)
	}
	h.log.Info("session issued", "user_id", s.UserID, "method", method)
	return s, nil
}

var linkPaths = map[tokenstore.Purpose]struct {
	path    string
	subject string
	kind    mailer.Kind
}{
	tokenstore.PurposeMagicLink:     {"/auth/magic", "Your sign-in link", mailer.KindMagicLink},
	tokenstore.PurposeVerifyEmail:   {"/verify-email", "Verify your email", mailer.KindVerifyEmail},
	tokenstore.PurposePasswordReset: {"/reset-password", "Reset your password", mailer.KindPasswordReset},
}

func (h *Handler) ttlFor(p tokenstore.Purpose) time.Duration {
	switch p {
	case tokenstore.PurposeMagicLink:
		return h.MagicLinkTTL
	case tokenstore.PurposePasswordReset:
		return h.PasswordResetTTL
	default:
		return h.VerificationTTL
	}
}

// sendLink issues a token for purpose and mails it to user. Failures are
// only logged; callers answer the client the same way either way.
func (h *Handler) sendLink(ctx context.Context, user *models.User, purpose tokenstore.Purpose) {
	raw, err := h.tokens.Issue(ctx, user.ID.String(), purpose, h.ttlFor(purpose))
	if err != nil {
		h.log.Error("unable to issue token", "purpose", string(purpose), "user_id", user.ID.String(), "err", err)
		return
	}
	lp := linkPaths[purpose]
	link := strings.TrimRight(h.BaseURL, "/") + lp.path + "?" + url.Values{"token": {raw}}.Encode()
	if err := h.mail.Send(ctx, mailer.Message{Kind: lp.kind, To: user.Email, Subject: lp.subject, Link: link}); err != nil {
		h.log.Error("unable to send mail", "kind", string(lp.kind), "user_id", user.ID.String(), "err", err)
	}
}

// sendLinkIfExists mails a link to email when an active account owns it.
// Nothing about the outcome reaches the client.
func (h *Handler) sendLinkIfExists(ctx context.Context, email string, purpose tokenstore.Purpose) {
	user, err := h.auth.GetUserByEmail(ctx, email)
	if err != nil {
		var nf *models.NotFoundError
		if !errors.As(err, &nf) {
			h.log.Error("unable to look up user for link", "purpose", string(purpose), "err", err)
		}
		return
	}
	if !user.IsActive {
		h.log.Info("link not sent to disabled account", "purpose", string(purpose), "user_id", user.ID.String())
		return
	}
	h.sendLink(ctx, user, purpose)
}

// resendVerification mails a fresh verification link to userID unless the
// email is already verified.
func (h *Handler) resendVerification(ctx context.Context, userID string) (alreadyVerified bool) {
	id, err := uuid.Parse(userID)
	if err != nil {
		h.log.Warn("session carries a malformed user id", "user_id", userID)
		return false
	}
	user, err := h.auth.GetUserByID(ctx, id)
	if err != nil {
		h.log.Error("unable to look up user for verification resend", "user_id", userID, "err", err)
		return false
	}
	if user.EmailVerified {
		return true
	}
	h.sendLink(ctx, user, tokenstore.PurposeVerifyEmail)
	return false
}

// redeemVerification consumes a token of purpose, marks the owner's email as
// verified and returns the owner.
func (h *Handler) redeemVerification(ctx context.Context, raw string, purpose tokenstore.Purpose) (*models.User, error) {
	userID, err := h.tokens.Consume(ctx, raw, purpose)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, models.NewTransformationError(err.Error())
	}
	user, err := h.auth.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, errInvalidCredentials
	}
	if !user.EmailVerified {
		if err := h.auth.MarkEmailVerified(ctx, id); err != nil {
			return nil, err
		}
		user.EmailVerified = true
	}
	if h.invalidator != nil {
		if err := h.invalidator.InvalidateProfile(ctx, userID); err != nil {
			h.log.Warn("unable to invalidate cached profile", "user_id", userID, "err", err)
		}
	}
	return user, nil
}

// resetPassword validates password before consuming the token so a rejected
// password does not burn the link.
func (h *Handler) resetPassword(ctx context.Context, raw, password string) error {
	if err := passwd.Validate(password); err != nil {
		return models.NewValidationError(err.Error())
	}
	userID, err := h.tokens.Consume(ctx, raw, tokenstore.PurposePasswordReset)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return models.NewTransformationError(err.Error())
	}
	return h.auth.UpdateUserPassword(ctx, id, password)
}

// currentSession returns the session attached by the gate, or decodes the
// cookie itself on public paths where the gate attaches nothing.
func (h *Handler) currentSession(r *http.Request) (models.Session, bool) {
	if s, ok := gate.SessionFromContext(r.Context()); ok {
		return s, true
	}
	token, ok := h.cookies.Token(r)
	if !ok {
		return models.Session{}, false
	}
	return h.codec.Decode(token)
}

func isTokenError(err error) bool {
	return errors.Is(err, tokenstore.ErrTokenNotFound) ||
		errors.Is(err, tokenstore.ErrTokenExpired) ||
		errors.Is(err, tokenstore.ErrTokenUsed) ||
		errors.Is(err, errInvalidCredentials)
}

func isValidationError(err error) bool {
	var ve *models.ValidationError
	return errors.As(err, &ve)
}

// validationMessage is the client-facing text of a validation error.
func validationMessage(err error) string {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	return "invalid input"
}

// safeNext returns next when it is a local absolute path, else the default.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return defaultRedirect
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return defaultRedirect
	}
	return next
}

func (h *Handler) accessLog(r *http.Request) {
	h.log.Debug("Access", "method", r.Method, "path", r.URL.Path, "remote_ip", r.RemoteAddr, "user_agent", r.UserAgent())
}
