// Package mailer delivers the transactional mails of the auth flows.
package mailer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

// Kind identifies which flow a message belongs to.
type Kind string

const (
	KindMagicLink     Kind = "magic_link"
	KindVerifyEmail   Kind = "verify_email"
	KindPasswordReset Kind = "password_reset"
)

var ErrNoRecipient = errors.New("mailer: recipient is required")

// Message is a single outgoing mail. Link is the actionable URL it carries.
type Message struct {
	Kind    Kind
	To      string
	Subject string
	Link    string
}

// Mailer sends messages. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes every message to the structured log instead of sending it.
type LogMailer struct {
	log *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{log: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.log.InfoContext(ctx, "mail sent",
		"kind", msg.Kind,
		"to", msg.To,
		"subject", msg.Subject,
		"link", msg.Link,
	)
	return nil
}

// Recorder keeps sent messages in memory. Useful in tests and local tooling.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return ErrNoRecipient
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.sent))
	copy(out, r.sent)
	return out
}

// Last returns the most recent message of kind sent to addr.
func (r *Recorder) Last(kind Kind, addr string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].Kind == kind && r.sent[i].To == addr {
			return r.sent[i], true
		}
	}
	return Message{}, false
}
