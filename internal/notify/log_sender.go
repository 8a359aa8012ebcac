package notify

import (
	"context"

	"sitewatch/internal/logger"
)

// LogSender writes notifications to the log instead of mailing them. It is
// used when no SMTP host is configured.
type LogSender struct {
	logger logger.Logger
}

func NewLogSender(log logger.Logger) *LogSender {
	return &LogSender{logger: log}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.InfowCtx(ctx, "Notification (log delivery)",
		"to", msg.To,
		"subject", msg.Subject,
		"event_kind", msg.Headers[HeaderEventKind],
		"body", msg.TextBody,
	)
	return nil
}
