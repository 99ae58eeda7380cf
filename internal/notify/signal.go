package notify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/teemow/milestonesync/internal/logging"
)

// SignalError represents a failed signal-cli invocation.
type SignalError struct {
	// Op is the operation that failed (e.g., "initialize", "send")
	Op string

	// UserID is the account registered with signal-cli
	UserID string

	// Err is the underlying error
	Err error
}

func (e *SignalError) Error() string {
	if e.UserID != "" {
		return fmt.Sprintf("signal %s (user: %s): %v", e.Op, logging.AnonymizeRecipient(e.UserID), e.Err)
	}
	return fmt.Sprintf("signal %s: %v", e.Op, e.Err)
}

func (e *SignalError) Unwrap() error {
	return e.Err
}

// commandRunner executes signal-cli and returns stdout and stderr.
type commandRunner func(ctx context.Context, args ...string) (string, string, error)

// SignalSender delivers messages with signal-cli.
type SignalSender struct {
	userID string
	run    commandRunner
}

// NewSignalSender validates userID and checks that signal-cli is installed.
// The account must already be registered with signal-cli.
func NewSignalSender(userID string) (*SignalSender, error) {
	if err := validatePhone(userID); err != nil {
		return nil, &SignalError{Op: "initialize", Err: fmt.Errorf("userID %w", err)}
	}

	if _, err := exec.LookPath("signal-cli"); err != nil {
		return nil, &SignalError{
			Op:     "initialize",
			UserID: userID,
			Err:    fmt.Errorf("signal-cli not found in PATH. Please install signal-cli: https://github.com/AsamK/signal-cli"),
		}
	}

	return &SignalSender{userID: userID, run: runSignalCLI}, nil
}

func runSignalCLI(ctx context.Context, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, "signal-cli", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// UserID returns the sending account.
func (s *SignalSender) UserID() string {
	return s.userID
}

func (s *SignalSender) Send(ctx context.Context, msg Message) error {
	if err := validatePhone(msg.RecipientID); err != nil {
		return &SignalError{Op: "send", UserID: s.userID, Err: fmt.Errorf("recipient %w", err)}
	}
	if msg.Text == "" {
		return &SignalError{Op: "send", UserID: s.userID, Err: fmt.Errorf("message cannot be empty")}
	}

	// signal-cli -u USER_ID send RECIPIENT -m MESSAGE
	_, stderr, err := s.run(ctx, "-u", s.userID, "send", msg.RecipientID, "-m", msg.Text)
	if err != nil {
		return &SignalError{
			Op:     "send",
			UserID: s.userID,
			Err:    fmt.Errorf("failed to send message: %w (stderr: %s)", err, strings.TrimSpace(stderr)),
		}
	}
	return nil
}

func validatePhone(id string) error {
	if id == "" {
		return fmt.Errorf("cannot be empty")
	}
	if !strings.HasPrefix(id, "+") {
		return fmt.Errorf("must be a phone number starting with + (e.g., +15551234567)")
	}
	return nil
}
