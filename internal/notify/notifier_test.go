package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []Message
	err  error
	gate chan struct{}
}

func (s *recordingSender) Send(ctx context.Context, msg Message) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return s.err
}

func (s *recordingSender) messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

func TestQueue_DeliversInOrder(t *testing.T) {
	sender := &recordingSender{}
	q := NewQueue(sender)
	q.Start()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "+62811", "one"))
	require.NoError(t, q.Enqueue(ctx, "+62812", "two"))
	require.NoError(t, q.Close(ctx))

	msgs := sender.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Text)
	assert.Equal(t, "+62812", msgs[1].RecipientID)
	assert.NotEmpty(t, msgs[0].ID)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
}

func TestQueue_Full(t *testing.T) {
	sender := &recordingSender{}
	q := NewQueue(sender, WithCapacity(1))

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "+1", "a"))
	assert.ErrorIs(t, q.Enqueue(ctx, "+1", "b"), ErrQueueFull)

	require.NoError(t, q.Close(ctx))
	assert.Len(t, sender.messages(), 1, "Close drains an unstarted queue")
}

func TestQueue_Closed(t *testing.T) {
	q := NewQueue(&recordingSender{})
	require.NoError(t, q.Close(context.Background()))
	require.NoError(t, q.Close(context.Background()), "second close is a no-op")

	assert.ErrorIs(t, q.Enqueue(context.Background(), "+1", "late"), ErrClosed)
}

func TestQueue_RejectsEmptyRecipient(t *testing.T) {
	q := NewQueue(&recordingSender{})
	assert.ErrorIs(t, q.Enqueue(context.Background(), "", "x"), ErrEmptyRecipient)
}

func TestQueue_SendFailureDoesNotStopWorker(t *testing.T) {
	sender := &recordingSender{err: errors.New("transport down")}
	q := NewQueue(sender)
	q.Start()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "+1", "a"))
	require.NoError(t, q.Enqueue(ctx, "+1", "b"))
	require.NoError(t, q.Close(ctx))
	assert.Len(t, sender.messages(), 2)
}

func TestQueue_CloseHonorsContext(t *testing.T) {
	sender := &recordingSender{gate: make(chan struct{})}
	q := NewQueue(sender)
	q.Start()
	require.NoError(t, q.Enqueue(context.Background(), "+1", "stuck"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Close(ctx), context.DeadlineExceeded)

	close(sender.gate)
}

func TestQueue_Run(t *testing.T) {
	sender := &recordingSender{}
	q := NewQueue(sender)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx, time.Second) }()

	require.NoError(t, q.Enqueue(context.Background(), "+1", "hello"))
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Len(t, sender.messages(), 1)
}

type stubNotifier struct {
	err  error
	seen []string
}

func (n *stubNotifier) Enqueue(_ context.Context, recipientID, text string) error {
	n.seen = append(n.seen, recipientID+"|"+text)
	return n.err
}

func TestOperatorAlerter(t *testing.T) {
	t.Run("sends to recipient", func(t *testing.T) {
		n := &stubNotifier{}
		a := NewOperatorAlerter(n, "+6280", nil)
		assert.True(t, a.Alert(context.Background(), "Calendar needs reauthorization", "steps"))
		require.Len(t, n.seen, 1)
		assert.Contains(t, n.seen[0], "+6280|Calendar needs reauthorization")
		assert.Contains(t, n.seen[0], "steps")
	})

	t.Run("log only without recipient", func(t *testing.T) {
		n := &stubNotifier{}
		a := NewOperatorAlerter(n, "", nil)
		assert.False(t, a.Alert(context.Background(), "s", "t"))
		assert.Empty(t, n.seen)
	})

	t.Run("hand-off failure", func(t *testing.T) {
		a := NewOperatorAlerter(&stubNotifier{err: ErrQueueFull}, "+1", nil)
		assert.False(t, a.Alert(context.Background(), "s", "t"))
	})
}
