package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/teemow/milestonesync/internal/instrumentation"
	"github.com/teemow/milestonesync/internal/lock"
	"github.com/teemow/milestonesync/internal/logging"
	"github.com/teemow/milestonesync/internal/notify"
	"github.com/teemow/milestonesync/internal/records"
)

// ErrDisabled is the cause reported when reminders are switched off.
var ErrDisabled = errors.New("reminders are disabled")

// Outcome statuses.
const (
	StatusSent        = "sent"
	StatusAlreadySent = "already_sent"
	StatusSuppressed  = "suppressed"
	StatusLocked      = "locked"
	StatusNotDue      = "not_due"
	StatusFailed      = "failed"
)

// Triggers.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

const (
	// DefaultHour is the local hour of the daily scan.
	DefaultHour = 9

	// DefaultLockTTL bounds how long one record can be held by a scan.
	DefaultLockTTL = 30 * time.Second

	lockPrefix = "reminder:"
)

// Outcome is the result for one due threshold.
type Outcome struct {
	RecordID  string              `json:"recordId"`
	Flow      records.FlowType    `json:"flow"`
	Threshold records.ReminderKey `json:"threshold"`
	Status    string              `json:"status"`
	Error     string              `json:"error,omitempty"`
}

// RunResult summarizes one scan.
type RunResult struct {
	RunID    string    `json:"runId,omitempty"`
	Trigger  string    `json:"trigger,omitempty"`
	Records  int       `json:"records"`
	Sent     int       `json:"sent"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	Outcomes []Outcome `json:"outcomes"`
	Disabled bool      `json:"disabled,omitempty"`
	Canceled bool      `json:"canceled,omitempty"`
}

func (r *RunResult) add(o Outcome) {
	switch o.Status {
	case StatusSent:
		r.Sent++
	case StatusFailed:
		r.Failed++
	default:
		r.Skipped++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocker sets the per-record lock. Defaults to an in-process locker.
func WithLocker(l lock.Locker) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithLocation sets the zone used for dates, same-day checks and the daily run.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDisabled turns every scan into a no-op that reports Disabled.
func WithDisabled(cause error) Option {
	return func(s *Scheduler) {
		if cause == nil {
			cause = ErrDisabled
		}
		s.disabled = cause
	}
}

// WithHour sets the local hour of the daily run.
func WithHour(hour int) Option {
	return func(s *Scheduler) {
		s.hour = hour
	}
}

// WithLockTTL sets the per-record lock expiry.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Scheduler) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = metrics
	}
}

// WithScanHook registers fn to observe every scheduled scan.
func WithScanHook(fn func(RunResult, error)) Option {
	return func(s *Scheduler) {
		s.onScan = fn
	}
}

// Scheduler scans records and dispatches due reminders.
type Scheduler struct {
	store    records.Store
	notifier notify.Notifier
	locker   lock.Locker
	loc      *time.Location
	now      func() time.Time
	hour     int
	lockTTL  time.Duration
	disabled error
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	onScan   func(RunResult, error)
}

// New creates a Scheduler.
func New(store records.Store, notifier notify.Notifier, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		store:    store,
		notifier: notifier,
		locker:   lock.NewMemoryLocker(),
		loc:      time.UTC,
		now:      time.Now,
		hour:     DefaultHour,
		lockTTL:  DefaultLockTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if store == nil {
		return nil, fmt.Errorf("reminder scheduler requires a record store")
	}
	if notifier == nil && s.disabled == nil {
		return nil, fmt.Errorf("reminder scheduler requires a notifier unless disabled")
	}
	if s.hour < 0 || s.hour > 23 {
		return nil, fmt.Errorf("reminder hour %d out of range 0-23", s.hour)
	}
	s.logger = logging.WithComponent(s.logger, "reminder")
	return s, nil
}

// Disabled returns the reason the scheduler is disabled, or nil.
func (s *Scheduler) Disabled() error {
	return s.disabled
}

// RunDailyCheck runs one scan as the periodic job does.
func (s *Scheduler) RunDailyCheck(ctx context.Context) (RunResult, error) {
	return s.scan(ctx, TriggerScheduled)
}

// TriggerManually runs the same scan on demand. Idempotency is identical to
// the periodic run.
func (s *Scheduler) TriggerManually(ctx context.Context) (RunResult, error) {
	return s.scan(ctx, TriggerManual)
}

func (s *Scheduler) scan(ctx context.Context, trigger string) (result RunResult, err error) {
	if s.disabled != nil {
		return RunResult{Trigger: trigger, Disabled: true}, nil
	}
	result.RunID = ulid.Make().String()
	result.Trigger = trigger
	ctx, span := instrumentation.StartScanSpan(ctx, instrumentation.ScanReminders, result.RunID)
	start := time.Now()
	logger := logging.WithRun(s.logger, result.RunID)
	defer func() {
		s.metrics.RecordScan(ctx, instrumentation.ScanReminders, instrumentation.StatusFor(err), time.Since(start))
		instrumentation.EndSpan(span, err)
	}()

	recs, err := s.store.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list records: %w", err)
	}
	result.Records = len(recs)

	now := s.now()
	for i := range recs {
		if err := ctx.Err(); err != nil {
			result.Canceled = true
			return result, err
		}
		rec := &recs[i]
		for _, flow := range records.Flows {
			scheduled := rec.Flow(flow).ScheduledAt
			if scheduled == nil {
				continue
			}
			for _, th := range Thresholds[flow] {
				if !due(th, *scheduled, now, s.loc) {
					continue
				}
				if _, skip := blocked(rec, th, now, s.loc); skip {
					continue
				}
				result.add(s.dispatch(ctx, logger, rec.ID, th, now))
			}
		}
	}

	logger.Info("reminder scan complete",
		slog.String("trigger", trigger),
		slog.Int("records", result.Records),
		slog.Int("sent", result.Sent),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed))
	return result, nil
}

// dispatch sends one reminder under the record lock. The marker is only
// written after the notifier accepted the message.
func (s *Scheduler) dispatch(ctx context.Context, logger *slog.Logger, recordID string, th Threshold, now time.Time) Outcome {
	out := Outcome{RecordID: recordID, Flow: th.Flow, Threshold: th.Key()}
	logger = logger.With(logging.RecordHash(recordID), logging.Flow(th.Flow.String()), logging.Threshold(string(th.Key())))
	finish := func(status string, err error) Outcome {
		out.Status = status
		if err != nil {
			out.Error = err.Error()
		}
		s.metrics.RecordReminder(ctx, th.Flow.String(), string(th.Key()), status)
		return out
	}

	release, err := s.locker.TryAcquire(ctx, lockPrefix+recordID, s.lockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		logger.Debug("record locked by another scan, skipping")
		return finish(StatusLocked, nil)
	}
	if err != nil {
		logger.Error("failed to lock record", logging.Err(err))
		return finish(StatusFailed, err)
	}
	defer release()

	// Another scan may have finished this record between listing and locking.
	rec, err := s.store.GetOrCreate(ctx, recordID)
	if err != nil {
		logger.Error("failed to reload record", logging.Err(err))
		return finish(StatusFailed, err)
	}
	scheduled := rec.Flow(th.Flow).ScheduledAt
	if scheduled == nil || !due(th, *scheduled, now, s.loc) {
		return finish(StatusNotDue, nil)
	}
	if status, skip := blocked(&rec, th, now, s.loc); skip {
		return finish(status, nil)
	}

	msg := Render(&rec, th, *scheduled, s.loc)
	if err := s.notifier.Enqueue(ctx, recordID, msg); err != nil {
		logger.Warn("reminder hand-off failed, will retry on next scan", logging.Err(err))
		return finish(StatusFailed, err)
	}

	won, err := s.store.RecordReminder(ctx, recordID, th.Key(), s.now())
	if err != nil {
		logger.Error("reminder handed off but marker not written", logging.Err(err))
		return finish(StatusFailed, err)
	}
	if !won {
		logger.Warn("reminder marker already present after hand-off")
		return finish(StatusAlreadySent, nil)
	}

	logger.Info("reminder dispatched", logging.Status(logging.StatusSuccess))
	return finish(StatusSent, nil)
}
