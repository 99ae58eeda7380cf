package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/teemow/milestonesync/internal/calendar"
	"github.com/teemow/milestonesync/internal/credentials"
	"github.com/teemow/milestonesync/internal/instrumentation"
	"github.com/teemow/milestonesync/internal/records"
	"github.com/teemow/milestonesync/internal/reminder"
	"github.com/teemow/milestonesync/internal/syncer"
)

// CredentialReporter is the read side of the credential manager.
type CredentialReporter interface {
	Status() credentials.Status
}

// Components are the long-lived collaborators shared by the MCP tools, the
// health endpoints and the background loops.
type Components struct {
	// Credentials is nil when the calendar integration is disabled.
	Credentials CredentialReporter

	// Gateway is nil when the calendar integration is disabled.
	Gateway *calendar.Gateway

	Orchestrator *syncer.Orchestrator
	Scheduler    *reminder.Scheduler
	Store        records.Store
	Metrics      *instrumentation.Metrics

	// Location is the configured zone used to read wall-clock inputs.
	Location *time.Location

	// Disabled is the reason the calendar integration is off, or nil.
	Disabled error
}

// ServerContext holds the components for the server and its tools
type ServerContext struct {
	ctx        context.Context
	cancel     context.CancelFunc
	components Components
	mu         sync.RWMutex
	shutdown   bool
	scans      map[string]ScanSummary
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, components Components) (*ServerContext, error) {
	if components.Store == nil {
		return nil, fmt.Errorf("server context requires a record store")
	}
	if components.Orchestrator == nil {
		return nil, fmt.Errorf("server context requires a sync orchestrator")
	}
	if components.Scheduler == nil {
		return nil, fmt.Errorf("server context requires a reminder scheduler")
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:        shutdownCtx,
		cancel:     cancel,
		components: components,
		scans:      make(map[string]ScanSummary),
	}, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Gateway returns the calendar gateway, or nil when the integration is disabled.
func (sc *ServerContext) Gateway() *calendar.Gateway {
	return sc.components.Gateway
}

// Orchestrator returns the sync orchestrator.
func (sc *ServerContext) Orchestrator() *syncer.Orchestrator {
	return sc.components.Orchestrator
}

// Scheduler returns the reminder scheduler.
func (sc *ServerContext) Scheduler() *reminder.Scheduler {
	return sc.components.Scheduler
}

// Store returns the record store.
func (sc *ServerContext) Store() records.Store {
	return sc.components.Store
}

// Metrics returns the metrics recorder. It may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.components.Metrics
}

// Location returns the configured zone, UTC when unset.
func (sc *ServerContext) Location() *time.Location {
	if sc.components.Location == nil {
		return time.UTC
	}
	return sc.components.Location
}

// DisabledReason returns why the calendar integration is off, or nil.
func (sc *ServerContext) DisabledReason() error {
	return sc.components.Disabled
}

// CredentialStatus returns the credential snapshot. ok is false when the
// integration runs without a credential manager.
func (sc *ServerContext) CredentialStatus() (status credentials.Status, ok bool) {
	if sc.components.Credentials == nil {
		return credentials.Status{}, false
	}
	return sc.components.Credentials.Status(), true
}

// RequiresReauthorization reports whether an operator has to re-run the
// consent flow before calendar calls can succeed again.
func (sc *ServerContext) RequiresReauthorization() bool {
	st, ok := sc.CredentialStatus()
	return ok && st.RequiresReauthorization
}

// RecordScan stores the latest summary for its scan name.
func (sc *ServerContext) RecordScan(summary ScanSummary) {
	if summary.At.IsZero() {
		summary.At = time.Now()
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.scans[summary.Scan] = summary
}

// LastScans returns the latest summary of every scan that has run, ordered by name.
func (sc *ServerContext) LastScans() []ScanSummary {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	out := make([]ScanSummary, 0, len(sc.scans))
	for _, s := range sc.scans {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scan < out[j].Scan })
	return out
}

// IsShutdown returns true if the server is shutting down
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown marks the context as shutting down and cancels it. It is safe to
// call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}
	sc.shutdown = true
	sc.cancel()
	return nil
}
