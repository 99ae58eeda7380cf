package notify

import (
	"context"
	"log/slog"

	"github.com/teemow/milestonesync/internal/logging"
)

// OperatorAlerter raises diagnostics that need a human. Every alert is logged
// at error level; it is also sent to the operator when a recipient is configured.
type OperatorAlerter struct {
	notifier  Notifier
	recipient string
	logger    *slog.Logger
}

// NewOperatorAlerter returns an alerter. notifier and recipient may be empty,
// in which case alerts are only logged.
func NewOperatorAlerter(notifier Notifier, recipient string, logger *slog.Logger) *OperatorAlerter {
	return &OperatorAlerter{
		notifier:  notifier,
		recipient: recipient,
		logger:    logging.WithComponent(logging.OrDefault(logger), "operator-alert"),
	}
}

// Alert logs text and forwards it to the operator. It reports whether the
// message was handed to the notifier.
func (a *OperatorAlerter) Alert(ctx context.Context, subject, text string) bool {
	a.logger.Error(subject, slog.String("detail", text))

	if a.notifier == nil || a.recipient == "" {
		return false
	}
	if err := a.notifier.Enqueue(ctx, a.recipient, subject+"\n\n"+text); err != nil {
		a.logger.Error("operator alert hand-off failed", logging.Err(err))
		return false
	}
	return true
}
