package mailer

import (
	"context"

	"go.uber.org/zap"
)

// LogTransport writes messages to the log instead of sending them.
// Used in development when no relay is configured.
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(_ context.Context, recipients []string, subject, body string) error {
	t.logger.Info("mail",
		zap.Strings("to", recipients),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}

var _ Transport = (*LogTransport)(nil)
