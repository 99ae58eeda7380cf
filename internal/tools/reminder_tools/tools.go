package reminder_tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/milestonesync/internal/instrumentation"
	"github.com/teemow/milestonesync/internal/records"
	"github.com/teemow/milestonesync/internal/reminder"
	"github.com/teemow/milestonesync/internal/server"
	"github.com/teemow/milestonesync/internal/tools/common"
)

// RegisterReminderTools registers the reminder tools with the MCP server
func RegisterReminderTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	statusTool := mcp.NewTool("reminders_status",
		mcp.WithDescription("Show when the daily reminder scan runs next and the result of the last scan"),
	)
	s.AddTool(statusTool, common.InstrumentedToolHandler("reminders_status", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleStatus(ctx, request, sc)
		}))

	previewTool := mcp.NewTool("reminders_preview",
		mcp.WithDescription("Render the reminder message a record would receive for one flow and lead time"),
		mcp.WithString("recordId",
			mcp.Required(),
			mcp.Description("Record id (the counterparty's chat address)"),
		),
		mcp.WithString("flow",
			mcp.Required(),
			mcp.Description("Milestone flow: 'meeting', 'ticketSale' or 'eventDay'"),
		),
		mcp.WithNumber("days",
			mcp.Description("Lead time in days (default: the first threshold of the flow)"),
		),
	)
	s.AddTool(previewTool, common.InstrumentedToolHandler("reminders_preview", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handlePreview(ctx, request, sc)
		}))

	if readOnly {
		return nil
	}

	triggerTool := mcp.NewTool("reminders_trigger",
		mcp.WithDescription("Run the reminder scan now. Reminders already sent are not sent again"),
	)
	s.AddTool(triggerTool, common.InstrumentedToolHandler("reminders_trigger", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleTrigger(ctx, request, sc)
		}))

	return nil
}

type statusReport struct {
	Disabled string              `json:"disabled,omitempty"`
	NextScan *time.Time          `json:"nextScan,omitempty"`
	LastScan *server.ScanSummary `json:"lastScan,omitempty"`
}

func handleStatus(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	var report statusReport
	if err := sc.Scheduler().Disabled(); err != nil {
		report.Disabled = err.Error()
	}
	if next := sc.Scheduler().NextScan(); !next.IsZero() {
		next = next.In(sc.Location())
		report.NextScan = &next
	}
	for _, scan := range sc.LastScans() {
		if scan.Scan == instrumentation.ScanReminders {
			scan := scan
			report.LastScan = &scan
		}
	}
	return common.JSONResult(report), nil
}

func handlePreview(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	recordID, err := common.RequiredString(args, "recordId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	flow, err := common.FlowArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	thresholds := reminder.Thresholds[flow]
	th := thresholds[0]
	if v, ok := args["days"]; ok && v != nil {
		days, ok := v.(float64)
		if !ok {
			return mcp.NewToolResultError("days must be a number"), nil
		}
		found := false
		for _, candidate := range thresholds {
			if candidate.Days == int(days) {
				th, found = candidate, true
				break
			}
		}
		if !found {
			return mcp.NewToolResultError(fmt.Sprintf("no %s reminder is sent %d days ahead", flow, int(days))), nil
		}
	}

	// Listing keeps the preview from creating records as a side effect.
	recs, err := sc.Store().ListActive(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load records: %v", err)), nil
	}
	var rec *records.ClientRecord
	for i := range recs {
		if recs[i].ID == recordID {
			rec = &recs[i]
			break
		}
	}
	if rec == nil {
		return mcp.NewToolResultError(fmt.Sprintf("No active record %s", recordID)), nil
	}
	scheduled := rec.Flow(flow).ScheduledAt
	if scheduled == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Record %s has no %s scheduled", recordID, flow)), nil
	}

	return mcp.NewToolResultText(reminder.Render(rec, th, *scheduled, sc.Location())), nil
}

func handleTrigger(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	res, err := sc.Scheduler().TriggerManually(ctx)
	sc.RecordScan(server.ReminderSummary(res, err))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Reminder scan failed: %v", err)), nil
	}
	return common.JSONResult(res), nil
}
