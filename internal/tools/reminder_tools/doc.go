// Package reminder_tools provides MCP tools for the reminder scheduler:
// inspecting the schedule, previewing a rendered reminder and triggering an
// out-of-band scan.
package reminder_tools
