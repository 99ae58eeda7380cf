package calendar_tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/milestonesync/internal/calendar"
	"github.com/teemow/milestonesync/internal/credentials"
	"github.com/teemow/milestonesync/internal/server"
	"github.com/teemow/milestonesync/internal/tools/common"
)

const maxListResults = 50

// statusReport is the credential_status payload.
type statusReport struct {
	Credentials             *credentials.Status  `json:"credentials,omitempty"`
	CalendarDisabled        string               `json:"calendarDisabled,omitempty"`
	RequiresReauthorization bool                 `json:"requiresReauthorization"`
	Action                  string               `json:"action,omitempty"`
	Scans                   []server.ScanSummary `json:"scans,omitempty"`
}

// RegisterCalendarTools registers the calendar tools. All of them are read-only.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	credentialStatusTool := mcp.NewTool("credential_status",
		mcp.WithDescription("Show the Google credential lifecycle state and the latest scan summaries"),
	)
	s.AddTool(credentialStatusTool, common.InstrumentedToolHandler("credential_status", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCredentialStatus(ctx, request, sc)
		}))

	probeTool := mcp.NewTool("calendar_probe",
		mcp.WithDescription("Check that the calendar API is reachable with the current credentials"),
	)
	s.AddTool(probeTool, common.InstrumentedToolHandler("calendar_probe", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleProbe(ctx, request, sc)
		}))

	listTool := mcp.NewTool("calendar_list_upcoming",
		mcp.WithDescription("List upcoming events on the synced calendar"),
		mcp.WithNumber("days",
			mcp.Description("Only list events starting within this many days (default: unbounded)"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of events to return (default: 10, max: 50)"),
		),
	)
	s.AddTool(listTool, common.InstrumentedToolHandler("calendar_list_upcoming", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListUpcoming(ctx, request, sc)
		}))

	return nil
}

// gateway returns the calendar gateway or a tool error explaining why there is none.
func gateway(sc *server.ServerContext) (*calendar.Gateway, *mcp.CallToolResult) {
	gw := sc.Gateway()
	if gw != nil {
		return gw, nil
	}
	reason := sc.DisabledReason()
	if reason == nil {
		reason = errors.New("no calendar gateway configured")
	}
	return nil, mcp.NewToolResultError(fmt.Sprintf("Calendar integration is disabled: %v", reason))
}

func handleCredentialStatus(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	report := statusReport{
		RequiresReauthorization: sc.RequiresReauthorization(),
		Scans:                   sc.LastScans(),
	}
	if st, ok := sc.CredentialStatus(); ok {
		report.Credentials = &st
	}
	if reason := sc.DisabledReason(); reason != nil {
		report.CalendarDisabled = reason.Error()
	}
	if report.RequiresReauthorization {
		report.Action = "run 'milestonesync auth' to issue a new refresh token, then restart the service"
	}
	return common.JSONResult(report), nil
}

func handleProbe(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	gw, errResult := gateway(sc)
	if errResult != nil {
		return errResult, nil
	}
	if err := gw.Probe(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Calendar probe failed: %v", err)), nil
	}
	return mcp.NewToolResultText("Calendar API reachable"), nil
}

func handleListUpcoming(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	gw, errResult := gateway(sc)
	if errResult != nil {
		return errResult, nil
	}

	window := calendar.Window{From: time.Now()}
	if days, ok := args["days"].(float64); ok && days > 0 {
		window.To = window.From.Add(time.Duration(days * float64(24*time.Hour)))
	}
	if maxVal, ok := args["maxResults"].(float64); ok && maxVal > 0 {
		window.MaxResults = int64(maxVal)
		if window.MaxResults > maxListResults {
			window.MaxResults = maxListResults
		}
	}

	events, err := gw.ListUpcoming(ctx, window)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list events: %v", err)), nil
	}

	loc := gw.Location()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d events:\n\n", len(events))
	for i, event := range events {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, event.Title)
		fmt.Fprintf(&sb, "   ID: %s\n", event.ID)
		fmt.Fprintf(&sb, "   Start: %s\n", event.Start.In(loc).Format(time.RFC3339))
		fmt.Fprintf(&sb, "   End: %s\n", event.End.In(loc).Format(time.RFC3339))
		if event.Location != "" {
			fmt.Fprintf(&sb, "   Location: %s\n", event.Location)
		}
		if len(event.Attendees) > 0 {
			fmt.Fprintf(&sb, "   Attendees: %d\n", len(event.Attendees))
		}
		sb.WriteString("\n")
	}

	return mcp.NewToolResultText(sb.String()), nil
}
