package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/teemow/milestonesync/internal/instrumentation"
	"github.com/teemow/milestonesync/internal/logging"
)

const (
	// DefaultCalendarID is the calendar used when none is configured.
	DefaultCalendarID = "primary"

	// sendUpdates notifies attendees on every mutation.
	sendUpdates = "all"

	defaultListMax = 10
)

// Credentials supplies authenticated HTTP clients. *credentials.Manager
// satisfies it.
type Credentials interface {
	Client(ctx context.Context) (*http.Client, error)
	Refresh(ctx context.Context) error
}

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	// CalendarID defaults to "primary".
	CalendarID string

	// Location is the zone event times are expressed in. Defaults to UTC.
	Location *time.Location

	// Endpoint overrides the API base URL. Used for tests.
	Endpoint string
}

// GatewayOption configures optional Gateway dependencies.
type GatewayOption func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *instrumentation.Metrics) GatewayOption {
	return func(g *Gateway) {
		g.metrics = metrics
	}
}

// Gateway talks to one Google calendar.
type Gateway struct {
	creds      Credentials
	calendarID string
	loc        *time.Location
	endpoint   string
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
}

// NewGateway creates a Gateway backed by creds.
func NewGateway(creds Credentials, cfg GatewayConfig, opts ...GatewayOption) (*Gateway, error) {
	if creds == nil {
		return nil, fmt.Errorf("calendar gateway requires credentials")
	}
	g := &Gateway{
		creds:      creds,
		calendarID: cfg.CalendarID,
		loc:        cfg.Location,
		endpoint:   cfg.Endpoint,
		logger:     slog.Default(),
	}
	if g.calendarID == "" {
		g.calendarID = DefaultCalendarID
	}
	if g.loc == nil {
		g.loc = time.UTC
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.WithComponent(g.logger, "calendar")
	return g, nil
}

// Location returns the zone event times are expressed in.
func (g *Gateway) Location() *time.Location {
	return g.loc
}

func (g *Gateway) service(ctx context.Context) (*calendar.Service, error) {
	client, err := g.creds.Client(ctx)
	if err != nil {
		return nil, err
	}
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}

// withAuthRetry runs call once, and on an authorization failure refreshes the
// credentials and runs it exactly once more.
func (g *Gateway) withAuthRetry(ctx context.Context, op string, eventID string, call func(context.Context, *calendar.Service) error) error {
	err := g.attempt(ctx, op, eventID, 1, call)
	if err == nil || !errors.Is(err, ErrAuth) {
		return err
	}

	g.logger.Warn("calendar call unauthorized, refreshing credentials",
		logging.Operation(op), logging.EventID(eventID))
	if rerr := g.creds.Refresh(ctx); rerr != nil {
		return &AuthError{Op: op, Err: rerr}
	}

	err = g.attempt(ctx, op, eventID, 2, call)
	if err != nil && errors.Is(err, ErrAuth) {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return err
		}
		return &AuthError{Op: op, Err: err}
	}
	return err
}

func (g *Gateway) attempt(ctx context.Context, op, eventID string, n int, call func(context.Context, *calendar.Service) error) (err error) {
	ctx, span := instrumentation.StartCalendarSpan(ctx, op,
		attribute.String(instrumentation.SpanAttrEventID, eventID),
		attribute.Int(instrumentation.SpanAttrAttempt, n),
	)
	start := time.Now()
	defer func() {
		g.metrics.RecordCalendarOperation(ctx, op, instrumentation.StatusFor(err), time.Since(start))
		instrumentation.EndSpan(span, err)
	}()

	svc, err := g.service(ctx)
	if err != nil {
		return &AuthError{Op: op, Err: err}
	}
	return classify(op, call(ctx, svc))
}

// CreateEvent inserts a new event and returns it with the assigned id.
func (g *Gateway) CreateEvent(ctx context.Context, spec EventSpec) (*Event, error) {
	if spec.Title == "" {
		return nil, fmt.Errorf("event title is required")
	}
	if spec.Start.IsZero() || spec.End.IsZero() {
		return nil, fmt.Errorf("event start and end are required")
	}
	if spec.End.Before(spec.Start) {
		return nil, fmt.Errorf("event end %s is before start %s", spec.End, spec.Start)
	}

	body := g.toAPIEvent(spec)
	var created *calendar.Event
	err := g.withAuthRetry(ctx, instrumentation.OperationCreate, "", func(ctx context.Context, svc *calendar.Service) error {
		var err error
		created, err = svc.Events.Insert(g.calendarID, body).SendUpdates(sendUpdates).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	ev, err := g.fromAPIEvent(created)
	if err != nil {
		return nil, err
	}
	g.logger.Info("calendar event created", logging.EventID(ev.ID))
	return &ev, nil
}

// UpdateEvent reads the current event, merges patch over it and writes it
// back. Fields absent from patch keep their current values.
func (g *Gateway) UpdateEvent(ctx context.Context, eventID string, patch EventPatch) (*Event, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event id is required")
	}

	var updated *calendar.Event
	err := g.withAuthRetry(ctx, instrumentation.OperationUpdate, eventID, func(ctx context.Context, svc *calendar.Service) error {
		current, err := svc.Events.Get(g.calendarID, eventID).Context(ctx).Do()
		if err != nil {
			return err
		}
		g.merge(current, patch)
		updated, err = svc.Events.Update(g.calendarID, eventID, current).SendUpdates(sendUpdates).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	ev, err := g.fromAPIEvent(updated)
	if err != nil {
		return nil, err
	}
	g.logger.Info("calendar event updated", logging.EventID(ev.ID))
	return &ev, nil
}

func (g *Gateway) merge(ev *calendar.Event, patch EventPatch) {
	if patch.Title != nil {
		ev.Summary = *patch.Title
	}
	if patch.Description != nil {
		ev.Description = *patch.Description
	}
	if patch.Location != nil {
		ev.Location = *patch.Location
	}
	if patch.Start != nil && patch.End == nil {
		// Moving only the start keeps the current duration.
		oldStart, serr := g.parseDateTime(ev.Start)
		oldEnd, eerr := g.parseDateTime(ev.End)
		if serr == nil && eerr == nil && !oldEnd.Before(oldStart) {
			end := patch.Start.Add(oldEnd.Sub(oldStart))
			ev.End = g.dateTime(end)
		}
	}
	if patch.Start != nil {
		ev.Start = g.dateTime(*patch.Start)
	}
	if patch.End != nil {
		ev.End = g.dateTime(*patch.End)
	}
}

// DeleteEvent removes an event. An event that is already gone is not an
// error; deleted is false in that case.
func (g *Gateway) DeleteEvent(ctx context.Context, eventID string) (deleted bool, err error) {
	if eventID == "" {
		return false, fmt.Errorf("event id is required")
	}
	err = g.withAuthRetry(ctx, instrumentation.OperationDelete, eventID, func(ctx context.Context, svc *calendar.Service) error {
		return svc.Events.Delete(g.calendarID, eventID).SendUpdates(sendUpdates).Context(ctx).Do()
	})
	if IsNotFound(err) {
		g.logger.Info("calendar event already absent", logging.EventID(eventID))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	g.logger.Info("calendar event deleted", logging.EventID(eventID))
	return true, nil
}

// GetEvent returns the event, or nil without error when it does not exist.
// Cancelled events count as absent.
func (g *Gateway) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event id is required")
	}
	var got *calendar.Event
	err := g.withAuthRetry(ctx, instrumentation.OperationGet, eventID, func(ctx context.Context, svc *calendar.Service) error {
		var err error
		got, err = svc.Events.Get(g.calendarID, eventID).Context(ctx).Do()
		return err
	})
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if got.Status == "cancelled" {
		return nil, nil
	}
	ev, err := g.fromAPIEvent(got)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListUpcoming lists single events ordered by start time.
func (g *Gateway) ListUpcoming(ctx context.Context, w Window) ([]Event, error) {
	from := w.From
	if from.IsZero() {
		from = time.Now()
	}
	limit := w.MaxResults
	if limit <= 0 {
		limit = defaultListMax
	}

	var items []*calendar.Event
	err := g.withAuthRetry(ctx, instrumentation.OperationList, "", func(ctx context.Context, svc *calendar.Service) error {
		call := svc.Events.List(g.calendarID).
			SingleEvents(true).
			OrderBy("startTime").
			TimeMin(from.Format(time.RFC3339)).
			MaxResults(limit).
			Context(ctx)
		if !w.To.IsZero() {
			call = call.TimeMax(w.To.Format(time.RFC3339))
		}
		resp, err := call.Do()
		if err != nil {
			return err
		}
		items = resp.Items
		return nil
	})
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(items))
	for _, item := range items {
		ev, err := g.fromAPIEvent(item)
		if err != nil {
			g.logger.Warn("skipping unparseable event", logging.EventID(item.Id), logging.Err(err))
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// CheckStatus reports whether eventID still exists and whether its start
// differs from lastKnownStart at second granularity. A zero lastKnownStart
// means the caller has no local time, which counts as modified. Errors other
// than not-found are returned as is so callers do not mistake an outage for a
// deletion.
func (g *Gateway) CheckStatus(ctx context.Context, eventID string, lastKnownStart time.Time) (Status, error) {
	ev, err := g.GetEvent(ctx, eventID)
	if err != nil {
		return Status{}, err
	}
	if ev == nil {
		return Status{Exists: false}, nil
	}
	current := ev.Start
	return Status{
		Exists:       true,
		Modified:     lastKnownStart.IsZero() || !current.Truncate(time.Second).Equal(lastKnownStart.Truncate(time.Second)),
		CurrentStart: &current,
	}, nil
}

// Probe lists a single upcoming event to verify connectivity and credentials.
func (g *Gateway) Probe(ctx context.Context) error {
	_, err := g.ListUpcoming(ctx, Window{MaxResults: 1})
	return err
}
