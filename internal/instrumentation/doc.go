// Package instrumentation provides OpenTelemetry metrics and tracing for milestonesync.
//
// # Metrics
//
// Calendar API:
//   - calendar_api_operations_total: calls by operation and status
//   - calendar_api_operation_duration_seconds: call latency
//
// Credentials:
//   - credential_refresh_total: refresh attempts by result (success, transient, terminal)
//   - credential_reauthorization_required: 1 while an operator must re-authorize
//
// Synchronization and reminders:
//   - sync_flow_operations_total: flow actions by flow, action and status
//   - reminders_dispatched_total: reminder hand-offs by flow, threshold and status
//   - scan_duration_seconds: batch push, drift pull and reminder scan durations
//
// Operator tools:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds
//
// # Tracing
//
// Client spans are created per calendar API call (calendar.<operation>) and
// internal spans per scan (scan.<name>).
//
// # Configuration
//
// Environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: milestonesync)
package instrumentation
