package notify

import (
	"context"
	"log/slog"

	"github.com/teemow/milestonesync/internal/logging"
)

// LogSender writes every message to the log instead of delivering it.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender returns a LogSender. A nil logger uses slog.Default().
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logging.WithComponent(logging.OrDefault(logger), "notify")}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("notification",
		logging.RecordHash(msg.RecipientID),
		slog.String("message_id", msg.ID),
		slog.String("text", msg.Text))
	return nil
}
