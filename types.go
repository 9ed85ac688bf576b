package auth

import (
	"context"
	"fmt"
	"strings"
)

// Logger takes a message followed by alternating key/value pairs,
// the same call shape as log/slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ClientInfo describes the network peer of a login attempt, recorded in the
// activity log.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// Message is an outbound notification handed to the Mailer. The body is
// disclosed exactly once; nothing in it is persisted.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer is the outbound notification capability. Delivery mechanics are an
// external concern; callers only rely on the error to decide whether to roll
// back state that depended on successful delivery.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, msg Message) error

// Send implements Mailer.
func (f MailerFunc) Send(ctx context.Context, msg Message) error {
	if f == nil {
		return nil
	}
	return f(ctx, msg)
}

type noopMailer struct{}

func (noopMailer) Send(context.Context, Message) error { return nil }

func normalizeMailer(m Mailer) Mailer {
	if m == nil {
		return noopMailer{}
	}
	return m
}

// PasswordPolicy decides whether a candidate password is strong enough.
// See ZxcvbnPolicy for the default implementation.
type PasswordPolicy interface {
	Check(password string, userInputs ...string) error
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println(logline("ERR", msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println(logline("WRN", msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println(logline("INF", msg, args))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println(logline("DBG", msg, args))
}

func logline(level, msg string, args []any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] AUTH %s", level, msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	if len(args)%2 != 0 {
		fmt.Fprintf(&b, " %v=MISSING", args[len(args)-1])
	}
	return b.String()
}
