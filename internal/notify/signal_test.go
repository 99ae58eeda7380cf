package notify

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSignalSender_Validation(t *testing.T) {
	tests := []struct {
		name      string
		userID    string
		errString string
	}{
		{name: "empty user ID", userID: "", errString: "userID cannot be empty"},
		{name: "missing plus sign", userID: "15551234567", errString: "must be a phone number starting with +"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSignalSender(tt.userID)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestNewSignalSender_Installed(t *testing.T) {
	if _, err := exec.LookPath("signal-cli"); err != nil {
		t.Skip("signal-cli not installed")
	}
	s, err := NewSignalSender("+15551234567")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", s.UserID())
}

func TestSignalSender_Send(t *testing.T) {
	var gotArgs []string
	s := &SignalSender{
		userID: "+15550000000",
		run: func(_ context.Context, args ...string) (string, string, error) {
			gotArgs = args
			return "", "", nil
		},
	}

	err := s.Send(context.Background(), Message{RecipientID: "+6281234", Text: "Reminder"})
	require.NoError(t, err)
	assert.Equal(t, []string{"-u", "+15550000000", "send", "+6281234", "-m", "Reminder"}, gotArgs)
}

func TestSignalSender_SendErrors(t *testing.T) {
	failing := &SignalSender{
		userID: "+15550000000",
		run: func(context.Context, ...string) (string, string, error) {
			return "", "Unregistered user\n", errors.New("exit status 1")
		},
	}

	tests := []struct {
		name      string
		msg       Message
		errString string
	}{
		{name: "empty recipient", msg: Message{Text: "x"}, errString: "recipient cannot be empty"},
		{name: "non-phone recipient", msg: Message{RecipientID: "alice", Text: "x"}, errString: "must be a phone number"},
		{name: "empty text", msg: Message{RecipientID: "+1"}, errString: "message cannot be empty"},
		{name: "cli failure", msg: Message{RecipientID: "+1", Text: "x"}, errString: "stderr: Unregistered user)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := failing.Send(context.Background(), tt.msg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)

			var sigErr *SignalError
			require.ErrorAs(t, err, &sigErr)
			assert.Equal(t, "send", sigErr.Op)
			assert.NotContains(t, err.Error(), "+15550000000", "account is anonymized")
		})
	}
}
