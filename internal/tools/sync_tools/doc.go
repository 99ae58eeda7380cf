// Package sync_tools provides MCP tools that drive the sync orchestrator by
// hand: pushing pending flows, pulling drift, pushing, rescheduling and
// deleting single flows. Everything except records_list changes the calendar
// or the record store and is only registered outside read-only mode.
package sync_tools
