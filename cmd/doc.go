// Package cmd implements the command-line interface for milestonesync.
//
// This package provides the following commands:
//   - serve: Run the refresh, sync and reminder loops with the health and MCP HTTP server
//   - mcp: Serve the operator MCP tools over stdio
//   - sync: One-shot calendar operations (push, pull, pending, delete, reschedule)
//   - remind: Run the reminder scan once
//   - status: Show credential status and probe the calendar
//   - records import: Load client records from a JSON file
//   - auth: Authorize calendar access and store the refresh token
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
package cmd
