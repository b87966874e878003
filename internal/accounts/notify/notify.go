// Package notify delivers account messages (credentials, approval requests)
// over a configured channel.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Kinds of account messages.
const (
	KindCredentials     = "credentials"
	KindApprovalRequest = "approval_request"
	KindPasswordReset   = "password_reset"
	KindApproved        = "approved"
)

var ErrNoRecipients = errors.New("notification has no recipients")

// Message is a plain-text notification.
type Message struct {
	Kind    string   `json:"kind"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

func (m Message) validate() error {
	for _, to := range m.To {
		if strings.TrimSpace(to) != "" {
			return nil
		}
	}
	return ErrNoRecipients
}

// LogNotifier writes messages to the log. Used for local events without mail.
// Bodies may carry temporary passwords, so they are logged only at debug level.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "account notification",
		"kind", msg.Kind,
		"to", strings.Join(msg.To, ","),
		"subject", msg.Subject,
	)
	n.logger.DebugContext(ctx, "account notification body", "kind", msg.Kind, "body", msg.Body)
	return nil
}
