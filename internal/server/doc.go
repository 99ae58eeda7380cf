// Package server provides the shared ServerContext and the HTTP surface of
// milestonesync.
//
// ServerContext aggregates the long-lived components (credential manager,
// calendar gateway, sync orchestrator, reminder scheduler, record store) so
// MCP tools and background loops reach them through one handle. It also keeps
// the latest summary of each scan.
//
// HealthChecker serves Kubernetes probes:
//   - /healthz: liveness, always ok while the process runs
//   - /readyz: not ready while credentials require reauthorization or the
//     process shuts down
//   - /healthz/detailed: credential status and last scan summaries
//
// HTTPServer mounts the health endpoints and the MCP streamable HTTP
// transport on one port. MetricsServer exposes /metrics on a dedicated port.
package server
