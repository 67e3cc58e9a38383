// Package notify delivers messages to users.
package notify

import (
	"context"
	"log/slog"
)

// Notifier sends the email-verification link to a new user.
type Notifier interface {
	SendVerification(ctx context.Context, email, link string) error
}

// LogNotifier writes the link to the log instead of sending it. It is used
// in development and whenever no mail provider is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendVerification(ctx context.Context, email, link string) error {
	n.logger.InfoContext(ctx, "verification link",
		slog.String("email", email),
		slog.String("link", link),
	)
	return nil
}
