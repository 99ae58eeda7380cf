package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrStatus    = "status"
	attrOperation = "operation"
	attrResult    = "result"
	attrFlow      = "flow"
	attrAction    = "action"
	attrThreshold = "threshold"
	attrScan      = "scan"
	attrTool      = "tool"
)

// Metrics records the domain metrics. The zero value and a nil *Metrics are
// valid no-op recorders, so components can be built without instrumentation.
type Metrics struct {
	calendarOpsTotal    metric.Int64Counter
	calendarOpDuration  metric.Float64Histogram
	refreshTotal        metric.Int64Counter
	reauthRequired      metric.Int64Gauge
	flowOpsTotal        metric.Int64Counter
	remindersTotal      metric.Int64Counter
	scanDuration        metric.Float64Histogram
	toolInvocationTotal metric.Int64Counter
	toolDuration        metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.calendarOpsTotal, err = meter.Int64Counter(
		"calendar_api_operations_total",
		metric.WithDescription("Total number of calendar API calls"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create calendar_api_operations_total counter: %w", err)
	}

	if m.calendarOpDuration, err = meter.Float64Histogram(
		"calendar_api_operation_duration_seconds",
		metric.WithDescription("Calendar API call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	); err != nil {
		return nil, fmt.Errorf("failed to create calendar_api_operation_duration_seconds histogram: %w", err)
	}

	if m.refreshTotal, err = meter.Int64Counter(
		"credential_refresh_total",
		metric.WithDescription("Total number of credential refresh attempts by result"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create credential_refresh_total counter: %w", err)
	}

	if m.reauthRequired, err = meter.Int64Gauge(
		"credential_reauthorization_required",
		metric.WithDescription("1 while the stored refresh credential is invalid and needs an operator"),
	); err != nil {
		return nil, fmt.Errorf("failed to create credential_reauthorization_required gauge: %w", err)
	}

	if m.flowOpsTotal, err = meter.Int64Counter(
		"sync_flow_operations_total",
		metric.WithDescription("Total number of flow synchronization operations"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create sync_flow_operations_total counter: %w", err)
	}

	if m.remindersTotal, err = meter.Int64Counter(
		"reminders_dispatched_total",
		metric.WithDescription("Total number of reminder hand-offs by flow and threshold"),
		metric.WithUnit("{reminder}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create reminders_dispatched_total counter: %w", err)
	}

	if m.scanDuration, err = meter.Float64Histogram(
		"scan_duration_seconds",
		metric.WithDescription("Duration of batch push, drift pull and reminder scans"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 5.0, 15.0, 30.0, 60.0, 300.0),
	); err != nil {
		return nil, fmt.Errorf("failed to create scan_duration_seconds histogram: %w", err)
	}

	if m.toolInvocationTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	if m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	); err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordCalendarOperation records one calendar API call attempt.
func (m *Metrics) RecordCalendarOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil || m.calendarOpsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.calendarOpsTotal.Add(ctx, 1, attrs)
	m.calendarOpDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCredentialRefresh records a refresh attempt.
// Result should be one of: "success", "transient", "terminal"
func (m *Metrics) RecordCredentialRefresh(ctx context.Context, result string) {
	if m == nil || m.refreshTotal == nil {
		return
	}
	m.refreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// SetReauthorizationRequired publishes the terminal credential condition.
func (m *Metrics) SetReauthorizationRequired(ctx context.Context, required bool) {
	if m == nil || m.reauthRequired == nil {
		return
	}
	var v int64
	if required {
		v = 1
	}
	m.reauthRequired.Record(ctx, v)
}

// RecordFlowOperation records a push, reschedule, delete or drift action on a flow.
func (m *Metrics) RecordFlowOperation(ctx context.Context, flow, action, status string) {
	if m == nil || m.flowOpsTotal == nil {
		return
	}
	m.flowOpsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrFlow, flow),
		attribute.String(attrAction, action),
		attribute.String(attrStatus, status),
	))
}

// RecordReminder records a reminder hand-off attempt.
func (m *Metrics) RecordReminder(ctx context.Context, flow, threshold, status string) {
	if m == nil || m.remindersTotal == nil {
		return
	}
	m.remindersTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrFlow, flow),
		attribute.String(attrThreshold, threshold),
		attribute.String(attrStatus, status),
	))
}

// RecordScan records the duration of a full scan.
func (m *Metrics) RecordScan(ctx context.Context, scan, status string, duration time.Duration) {
	if m == nil || m.scanDuration == nil {
		return
	}
	m.scanDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrScan, scan),
		attribute.String(attrStatus, status),
	))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	)
	m.toolInvocationTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}

// StatusFor maps an error to a status label.
func StatusFor(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
