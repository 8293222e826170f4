package notify

import (
	"context"
	"log/slog"
)

// LogMailer writes outgoing messages to the log instead of delivering them.
// It stands in for a real provider in development and single-node setups.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.logger.InfoContext(ctx, "outgoing mail",
		"to", to,
		"subject", subject,
		"body_bytes", len(body),
	)
	return nil
}
