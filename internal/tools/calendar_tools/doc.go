// Package calendar_tools provides read-only MCP tools for the calendar
// integration: credential status, a connectivity probe and a listing of
// upcoming events on the synced calendar.
package calendar_tools
