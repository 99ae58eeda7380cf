package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/teemow/milestonesync/internal/calendar"
	"github.com/teemow/milestonesync/internal/instrumentation"
	"github.com/teemow/milestonesync/internal/lock"
	"github.com/teemow/milestonesync/internal/logging"
	"github.com/teemow/milestonesync/internal/records"
)

// ErrDisabled is the cause reported when the calendar integration is off.
var ErrDisabled = errors.New("calendar sync is disabled")

const (
	// DefaultLockTTL bounds how long one (record, flow) can be held by a call.
	DefaultLockTTL = 2 * time.Minute

	lockPrefix = "sync:"
)

// Gateway is the subset of the calendar gateway the orchestrator needs.
type Gateway interface {
	CreateEvent(ctx context.Context, spec calendar.EventSpec) (*calendar.Event, error)
	UpdateEvent(ctx context.Context, eventID string, patch calendar.EventPatch) (*calendar.Event, error)
	DeleteEvent(ctx context.Context, eventID string) (bool, error)
	CheckStatus(ctx context.Context, eventID string, lastKnownStart time.Time) (calendar.Status, error)
}

// PushOptions adjusts the event created by PushFlow. Zero values fall back to
// what the record stores or to the flow defaults.
type PushOptions struct {
	Notes     string
	Venue     string // event day only
	Location  string
	Duration  time.Duration
	Attendees []string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

// WithLocker sets the per-flow lock. Defaults to an in-process locker; use a
// shared one when several processes sync the same records.
func WithLocker(l lock.Locker) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.locker = l
		}
	}
}

// WithLockTTL sets the per-flow lock expiry.
func WithLockTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		if ttl > 0 {
			o.lockTTL = ttl
		}
	}
}

// WithDisabled turns every operation into a no-op that reports Disabled.
// cause is kept for Disabled() and the logs.
func WithDisabled(cause error) Option {
	return func(o *Orchestrator) {
		if cause == nil {
			cause = ErrDisabled
		}
		o.disabled = cause
	}
}

// Orchestrator runs the push, pull and delete flows.
type Orchestrator struct {
	store    records.Store
	gw       Gateway
	locker   lock.Locker
	lockTTL  time.Duration
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	disabled error
}

// New creates an Orchestrator. gw may be nil only when the orchestrator is
// disabled.
func New(store records.Store, gw Gateway, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		store:   store,
		gw:      gw,
		locker:  lock.NewMemoryLocker(),
		lockTTL: DefaultLockTTL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if store == nil {
		return nil, fmt.Errorf("syncer requires a record store")
	}
	if gw == nil && o.disabled == nil {
		return nil, fmt.Errorf("syncer requires a calendar gateway unless disabled")
	}
	o.logger = logging.WithComponent(o.logger, "syncer")
	return o, nil
}

// Disabled returns the reason the orchestrator is disabled, or nil.
func (o *Orchestrator) Disabled() error {
	return o.disabled
}

// lockFlow serializes work on one (record, flow) across callers sharing the
// locker. wait blocks until the lock is free; otherwise a held lock returns
// lock.ErrNotAcquired.
func (o *Orchestrator) lockFlow(ctx context.Context, recordID string, flow records.FlowType, wait bool) (func(), error) {
	key := lockPrefix + recordID + ":" + flow.String()
	if wait {
		return o.locker.Acquire(ctx, key, o.lockTTL)
	}
	return o.locker.TryAcquire(ctx, key, o.lockTTL)
}

// PushFlow creates the calendar event for flow and links it to the record.
// A flow that is already linked is left alone. A concurrent push of the same
// flow is waited for, so it finds the flow linked.
func (o *Orchestrator) PushFlow(ctx context.Context, recordID string, flow records.FlowType, when time.Time, opts PushOptions) (PushResult, error) {
	res := PushResult{RecordID: recordID, Flow: flow}
	if o.disabled != nil {
		res.Status, res.Disabled = StatusDisabled, true
		return res, nil
	}
	if when.IsZero() {
		return res, fmt.Errorf("push %s: scheduled time is required", flow)
	}
	if _, err := templateFor(flow); err != nil {
		return res, err
	}

	return o.push(ctx, recordID, flow, when, opts, true)
}

// push links one flow under its lock. The record is read after the lock is
// held, so a push that lost the race sees the winner's event. A zero when
// uses the stored scheduled time. Without wait a held lock reports
// StatusLocked.
func (o *Orchestrator) push(ctx context.Context, recordID string, flow records.FlowType, when time.Time, opts PushOptions, wait bool) (PushResult, error) {
	res := PushResult{RecordID: recordID, Flow: flow}
	logger := o.logger.With(logging.RecordHash(recordID), logging.Flow(flow.String()))

	release, err := o.lockFlow(ctx, recordID, flow, wait)
	if !wait && errors.Is(err, lock.ErrNotAcquired) {
		logger.Debug("flow locked by another push, skipping")
		res.Status = StatusLocked
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("push %s: failed to lock flow: %w", flow, err)
	}
	defer release()

	loaded, err := o.store.GetOrCreate(ctx, recordID)
	if err != nil {
		return res, fmt.Errorf("failed to load record: %w", err)
	}
	rec := &loaded

	state := rec.Flow(flow)
	if state.Synced() {
		res.Status, res.EventID = StatusAlreadySynced, state.EventID()
		o.metrics.RecordFlowOperation(ctx, flow.String(), instrumentation.ActionCreate, instrumentation.StatusSkipped)
		logger.Debug("flow already linked, skipping push", logging.EventID(res.EventID))
		return res, nil
	}
	if when.IsZero() {
		if state.ScheduledAt == nil {
			res.Status = StatusNotLinked
			return res, nil
		}
		when = *state.ScheduledAt
	}

	if opts.Notes == "" && state.Notes != nil {
		opts.Notes = *state.Notes
	}
	if flow == records.FlowEventDay && opts.Venue == "" && state.Venue != nil {
		opts.Venue = *state.Venue
	}

	spec, err := buildSpec(rec, flow, when, opts)
	if err != nil {
		return res, err
	}
	ev, err := o.gw.CreateEvent(ctx, spec)
	if err != nil {
		o.metrics.RecordFlowOperation(ctx, flow.String(), instrumentation.ActionCreate, instrumentation.StatusError)
		logger.Error("failed to create calendar event", logging.Err(err))
		return res, fmt.Errorf("push %s: %w", flow, err)
	}

	patch := records.LinkEvent(flow, when, ev.ID, nonEmpty(opts.Notes))
	if flow == records.FlowEventDay {
		patch.Flows[0].Venue = nonEmpty(opts.Venue)
	}
	if _, err := o.store.Update(ctx, rec.ID, patch); err != nil {
		// The record does not know about the event, so remove it to keep one
		// event per flow.
		if _, delErr := o.gw.DeleteEvent(context.WithoutCancel(ctx), ev.ID); delErr != nil {
			logger.Error("failed to roll back unlinked calendar event",
				logging.EventID(ev.ID), logging.Err(delErr))
		}
		o.metrics.RecordFlowOperation(ctx, flow.String(), instrumentation.ActionCreate, instrumentation.StatusError)
		return res, fmt.Errorf("push %s: failed to link event to record: %w", flow, err)
	}

	o.metrics.RecordFlowOperation(ctx, flow.String(), instrumentation.ActionCreate, instrumentation.StatusSuccess)
	logger.Info("calendar event linked", logging.EventID(ev.ID))
	res.Status, res.EventID, res.HTMLLink = StatusCreated, ev.ID, ev.HTMLLink
	return res, nil
}

// RescheduleFlow moves the flow to when. A linked flow has its calendar event
// moved first; the local time is only written after the calendar accepted it.
// When the event turns out to be gone, the flow is unlinked and keeps the new
// time so the next push recreates it.
func (o *Orchestrator) RescheduleFlow(ctx context.Context, recordID string, flow records.FlowType, when time.Time) (PushResult, error) {
	res := PushResult{RecordID: recordID, Flow: flow}
	if o.disabled != nil {
		res.Status, res.Disabled = StatusDisabled, true
		return res, nil
	}
	if when.IsZero() {
		return res, fmt.Errorf("reschedule %s: scheduled time is required", flow)
	}
	if _, err := templateFor(flow); err != nil {
		return res, err
	}

	release, err := o.lockFlow(ctx, recordID, flow, true)
	if err != nil {
		return res, fmt.Errorf("reschedule %s: failed to lock flow: %w", flow, err)
	}
	defer release()

	rec, err := o.store.GetOrCreate(ctx, recordID)
	if err != nil {
		return res, fmt.Errorf("failed to load record: %w", err)
	}
	logger := o.logger.With(logging.RecordHash(recordID), logging.Flow(flow.String()))

	state := rec.Flow(flow)
	if !state.Synced() {
		if _, err := o.store.Update(ctx, recordID, records.Reschedule(flow, when)); err != nil {
			return res, fmt.Errorf("reschedule %s: %w", flow, err)
		}
		res.Status = StatusUpdated
		return res, nil
	}

	eventID := state.EventID()
	res.EventID = eventID
	ev, err := o.gw.UpdateEvent(ctx, eventID, calendar.EventPatch{Start: &when})
	switch {
	case calendar.IsNotFound(err):
		patch := records.Patch{Flows: []records.FlowPatch{{
			Flow:                 flow,
			ScheduledAt:          &when,
			ClearExternalEventID: true,
		}}}
		if _, err := o.store.Update(ctx, recordID, patch); err != nil {
			return res, fmt.Errorf("reschedule %s: %w", flow, err)
		}
		o.metrics.RecordFlowOperation(ctx, flow.String(), instrumentation.ActionDriftClear, instrumentation.StatusSuccess)
		logger.Warn("calendar event vanished during reschedule, flow unlinked", logging.EventID(eventID))
		res.Status, res.EventID = StatusUnlinked, ""
		return res, nil
	case err != nil:
		o.metrics.RecordFlowOperation(ctx, flow.String(), instrumentation.ActionUpdate, instrumentation.StatusError)
		return res, fmt.Errorf("reschedule %s: %w", flow, err)
	}

	if _, err := o.store.Update(ctx, recordID, records.Reschedule(flow, when)); err != nil {
		o.metrics.RecordFlowOperation(ctx, flow.String(), instrumentation.ActionUpdate, instrumentation.StatusError)
		return res, fmt.Errorf("reschedule %s: %w", flow, err)
	}
	o.metrics.RecordFlowOperation(ctx, flow.String(), instrumentation.ActionUpdate, instrumentation.StatusSuccess)
	logger.Info("calendar event rescheduled", logging.EventID(eventID))
	res.Status, res.HTMLLink = StatusUpdated, ev.HTMLLink
	return res, nil
}

// DeleteFlow deletes the flow's calendar event and unlinks it locally, also
// when the event had already disappeared. A failed delete leaves the record
// untouched.
func (o *Orchestrator) DeleteFlow(ctx context.Context, recordID string, flow records.FlowType) (DeleteResult, error) {
	res := DeleteResult{RecordID: recordID, Flow: flow}
	if o.disabled != nil {
		res.Status, res.Disabled = StatusDisabled, true
		return res, nil
	}
	if _, err := templateFor(flow); err != nil {
		return res, err
	}

	release, err := o.lockFlow(ctx, recordID, flow, true)
	if err != nil {
		return res, fmt.Errorf("delete %s: failed to lock flow: %w", flow, err)
	}
	defer release()

	rec, err := o.store.GetOrCreate(ctx, recordID)
	if err != nil {
		return res, fmt.Errorf("failed to load record: %w", err)
	}
	state := rec.Flow(flow)
	if !state.Synced() {
		res.Status = StatusNotLinked
		return res, nil
	}

	eventID := state.EventID()
	res.EventID = eventID
	deleted, err := o.gw.DeleteEvent(ctx, eventID)
	if err != nil {
		o.metrics.RecordFlowOperation(ctx, flow.String(), instrumentation.ActionDelete, instrumentation.StatusError)
		return res, fmt.Errorf("delete %s: %w", flow, err)
	}
	if _, err := o.store.Update(ctx, recordID, records.UnlinkEvent(flow)); err != nil {
		o.metrics.RecordFlowOperation(ctx, flow.String(), instrumentation.ActionDelete, instrumentation.StatusError)
		return res, fmt.Errorf("delete %s: failed to unlink record: %w", flow, err)
	}

	o.metrics.RecordFlowOperation(ctx, flow.String(), instrumentation.ActionDelete, instrumentation.StatusSuccess)
	o.logger.Info("calendar event deleted and flow unlinked",
		logging.RecordHash(recordID), logging.Flow(flow.String()), logging.EventID(eventID))
	res.Status, res.ExternallyDeleted = StatusDeleted, deleted
	return res, nil
}

// BatchPushPending pushes every flow that has a scheduled time but no
// calendar event. The returned error is only set when the records cannot be
// listed or ctx ends; per-flow failures are in the result.
func (o *Orchestrator) BatchPushPending(ctx context.Context) (result BatchResult, err error) {
	if o.disabled != nil {
		return BatchResult{Disabled: true}, nil
	}
	result.RunID = ulid.Make().String()
	ctx, span := instrumentation.StartScanSpan(ctx, instrumentation.ScanBatchPush, result.RunID)
	start := time.Now()
	logger := logging.WithRun(o.logger, result.RunID)
	defer func() {
		o.metrics.RecordScan(ctx, instrumentation.ScanBatchPush, instrumentation.StatusFor(err), time.Since(start))
		instrumentation.EndSpan(span, err)
	}()

	recs, err := o.store.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list records: %w", err)
	}

	for i := range recs {
		if err := ctx.Err(); err != nil {
			result.Canceled = true
			return result, err
		}
		rec := &recs[i]
		for _, flow := range records.Flows {
			if !rec.Flow(flow).Pending() {
				continue
			}
			res, err := o.push(ctx, rec.ID, flow, time.Time{}, PushOptions{}, false)
			if err != nil {
				result.add(errorOutcome(rec.ID, flow, "", err))
				continue
			}
			result.add(successOutcome(rec.ID, flow, res.Status, res.EventID))
		}
	}

	logger.Info("batch push complete",
		slog.Int("created", result.Created), slog.Int("failed", result.Failed))
	return result, nil
}

// PullDrift reconciles every linked flow against the calendar. Deleted events
// unlink the flow; moved events overwrite the local scheduled time.
func (o *Orchestrator) PullDrift(ctx context.Context) (result DriftResult, err error) {
	if o.disabled != nil {
		return DriftResult{Disabled: true}, nil
	}
	result.RunID = ulid.Make().String()
	ctx, span := instrumentation.StartScanSpan(ctx, instrumentation.ScanPullDrift, result.RunID)
	start := time.Now()
	logger := logging.WithRun(o.logger, result.RunID)
	defer func() {
		o.metrics.RecordScan(ctx, instrumentation.ScanPullDrift, instrumentation.StatusFor(err), time.Since(start))
		instrumentation.EndSpan(span, err)
	}()

	recs, err := o.store.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list records: %w", err)
	}

	for i := range recs {
		if err := ctx.Err(); err != nil {
			result.Canceled = true
			return result, err
		}
		rec := &recs[i]
		for _, flow := range records.Flows {
			if !rec.Flow(flow).Synced() {
				continue
			}
			result.add(o.reconcile(ctx, logger, rec.ID, flow))
		}
	}

	logger.Info("drift pull complete",
		slog.Int("checked", result.Checked),
		slog.Int("updated", result.Updated),
		slog.Int("deleted", result.Deleted),
		slog.Int("failed", result.Failed))
	return result, nil
}

// reconcile checks one linked flow under its lock. A flow held by a push,
// reschedule or delete is skipped until the next pull.
func (o *Orchestrator) reconcile(ctx context.Context, logger *slog.Logger, recordID string, flow records.FlowType) Outcome {
	logger = logger.With(logging.RecordHash(recordID), logging.Flow(flow.String()))

	release, err := o.lockFlow(ctx, recordID, flow, false)
	if errors.Is(err, lock.ErrNotAcquired) {
		logger.Debug("flow locked, skipping drift check")
		return successOutcome(recordID, flow, StatusLocked, "")
	}
	if err != nil {
		return errorOutcome(recordID, flow, "", err)
	}
	defer release()

	rec, err := o.store.GetOrCreate(ctx, recordID)
	if err != nil {
		return errorOutcome(recordID, flow, "", err)
	}
	state := rec.Flow(flow)
	if !state.Synced() {
		return successOutcome(recordID, flow, StatusNotLinked, "")
	}
	eventID := state.EventID()
	logger = logger.With(logging.EventID(eventID))

	var lastKnown time.Time
	if state.ScheduledAt != nil {
		lastKnown = *state.ScheduledAt
	}
	st, err := o.gw.CheckStatus(ctx, eventID, lastKnown)
	if err != nil {
		logger.Warn("drift check failed", logging.Err(err))
		return errorOutcome(recordID, flow, eventID, err)
	}
	// A linked flow without a local time takes the calendar's.
	if state.ScheduledAt == nil && st.Exists && st.CurrentStart != nil {
		st.Modified = true
	}

	switch {
	case !st.Exists:
		if _, err := o.store.Update(ctx, recordID, records.UnlinkEvent(flow)); err != nil {
			o.metrics.RecordFlowOperation(ctx, flow.String(), instrumentation.ActionDriftClear, instrumentation.StatusError)
			return errorOutcome(recordID, flow, eventID, err)
		}
		o.metrics.RecordFlowOperation(ctx, flow.String(), instrumentation.ActionDriftClear, instrumentation.StatusSuccess)
		logger.Info("calendar event deleted externally, flow unlinked")
		return successOutcome(recordID, flow, StatusUnlinked, eventID)

	case st.Modified && st.CurrentStart != nil:
		if _, err := o.store.Update(ctx, recordID, records.Reschedule(flow, *st.CurrentStart)); err != nil {
			o.metrics.RecordFlowOperation(ctx, flow.String(), instrumentation.ActionDriftUpdate, instrumentation.StatusError)
			return errorOutcome(recordID, flow, eventID, err)
		}
		o.metrics.RecordFlowOperation(ctx, flow.String(), instrumentation.ActionDriftUpdate, instrumentation.StatusSuccess)
		logger.Info("calendar event moved externally, local time updated",
			slog.Time("scheduled_at", *st.CurrentStart))
		return successOutcome(recordID, flow, StatusUpdated, eventID)
	}
	return successOutcome(recordID, flow, StatusUnchanged, eventID)
}
