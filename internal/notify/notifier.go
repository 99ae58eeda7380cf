package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/milestonesync/internal/logging"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffer has no room.
	ErrQueueFull = errors.New("notification queue is full")

	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("notification queue is closed")

	// ErrEmptyRecipient is returned for messages without a recipient.
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
)

// Notifier accepts messages for asynchronous delivery.
type Notifier interface {
	Enqueue(ctx context.Context, recipientID, text string) error
}

// Message is one queued notification.
type Message struct {
	ID          string
	RecipientID string
	Text        string
	EnqueuedAt  time.Time
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

const (
	DefaultCapacity    = 256
	DefaultSendTimeout = 30 * time.Second
)

// Queue is a bounded Notifier drained by one worker goroutine.
type Queue struct {
	sender      Sender
	logger      *slog.Logger
	sendTimeout time.Duration

	mu     sync.RWMutex
	ch     chan Message
	closed bool

	startOnce sync.Once
	done      chan struct{}
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithCapacity sets the buffer size.
func WithCapacity(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Message, n)
		}
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithSendTimeout bounds each Send call.
func WithSendTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.sendTimeout = d
		}
	}
}

// NewQueue returns a stopped queue. Call Start or Run to begin draining.
func NewQueue(sender Sender, opts ...QueueOption) *Queue {
	q := &Queue{
		sender:      sender,
		logger:      slog.Default(),
		sendTimeout: DefaultSendTimeout,
		ch:          make(chan Message, DefaultCapacity),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = logging.WithComponent(q.logger, "notify")
	return q
}

// Enqueue accepts a message without blocking.
func (q *Queue) Enqueue(ctx context.Context, recipientID, text string) error {
	if recipientID == "" {
		return ErrEmptyRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := Message{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Text:        text,
		EnqueuedAt:  time.Now(),
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len reports how many messages are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Start launches the worker. It is safe to call more than once.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		go q.work()
	})
}

func (q *Queue) work() {
	defer close(q.done)
	for msg := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.sendTimeout)
		err := q.sender.Send(ctx, msg)
		cancel()
		if err != nil {
			q.logger.Warn("notification delivery failed",
				logging.RecordHash(msg.RecipientID),
				slog.String("message_id", msg.ID),
				logging.Err(err))
			continue
		}
		q.logger.Debug("notification delivered",
			logging.RecordHash(msg.RecipientID),
			slog.String("message_id", msg.ID))
	}
}

// Close stops accepting messages and waits until the buffer is drained or ctx ends.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	// A queue that was never started still has to drain.
	q.Start()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left
// within drainTimeout.
func (q *Queue) Run(ctx context.Context, drainTimeout time.Duration) error {
	q.Start()
	<-ctx.Done()

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	if err := q.Close(drainCtx); err != nil {
		q.logger.Warn("notification queue closed with pending messages", slog.Int("pending", q.Len()))
	}
	return nil
}
