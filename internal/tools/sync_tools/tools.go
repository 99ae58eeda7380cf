package sync_tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/milestonesync/internal/records"
	"github.com/teemow/milestonesync/internal/server"
	"github.com/teemow/milestonesync/internal/syncer"
	"github.com/teemow/milestonesync/internal/tools/batch"
	"github.com/teemow/milestonesync/internal/tools/common"
)

const flowDescription = "Milestone flow: 'meeting', 'ticketSale' or 'eventDay'"

// RegisterSyncTools registers the sync tools with the MCP server
func RegisterSyncTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	// List records tool (read-only, always available)
	listRecordsTool := mcp.NewTool("records_list",
		mcp.WithDescription("List active records with their milestone state"),
		mcp.WithBoolean("pendingOnly",
			mcp.Description("Only list records with a scheduled but unsynced flow"),
		),
	)
	s.AddTool(listRecordsTool, common.InstrumentedToolHandler("records_list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListRecords(ctx, request, sc)
		}))

	if readOnly {
		return nil
	}

	pushPendingTool := mcp.NewTool("sync_push_pending",
		mcp.WithDescription("Create calendar events for every scheduled flow that has none yet"),
	)
	s.AddTool(pushPendingTool, common.InstrumentedToolHandler("sync_push_pending", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handlePushPending(ctx, request, sc)
		}))

	pullDriftTool := mcp.NewTool("sync_pull_drift",
		mcp.WithDescription("Reconcile linked flows with the calendar: adopt moved start times and unlink deleted events"),
	)
	s.AddTool(pullDriftTool, common.InstrumentedToolHandler("sync_pull_drift", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handlePullDrift(ctx, request, sc)
		}))

	pushFlowTool := mcp.NewTool("sync_push_flow",
		mcp.WithDescription("Schedule one flow of a record and create its calendar event"),
		mcp.WithString("recordId",
			mcp.Required(),
			mcp.Description("Record id (the counterparty's chat address)"),
		),
		mcp.WithString("flow",
			mcp.Required(),
			mcp.Description(flowDescription),
		),
		mcp.WithString("when",
			mcp.Required(),
			mcp.Description("Start time, RFC3339 or wall clock 'YYYY-MM-DDTHH:MM' in the configured zone"),
		),
		mcp.WithString("notes",
			mcp.Description("Notes to include in the event description"),
		),
		mcp.WithString("venue",
			mcp.Description("Venue for the event day flow"),
		),
		mcp.WithString("location",
			mcp.Description("Override the default event location"),
		),
		mcp.WithNumber("durationMinutes",
			mcp.Description("Override the default event duration"),
		),
		mcp.WithString("attendees",
			mcp.Description("Comma-separated list of attendee email addresses"),
		),
	)
	s.AddTool(pushFlowTool, common.InstrumentedToolHandler("sync_push_flow", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handlePushFlow(ctx, request, sc)
		}))

	rescheduleTool := mcp.NewTool("sync_reschedule_flow",
		mcp.WithDescription("Move one flow of a record to a new time, updating its calendar event"),
		mcp.WithString("recordId",
			mcp.Required(),
			mcp.Description("Record id (the counterparty's chat address)"),
		),
		mcp.WithString("flow",
			mcp.Required(),
			mcp.Description(flowDescription),
		),
		mcp.WithString("when",
			mcp.Required(),
			mcp.Description("New start time, RFC3339 or wall clock 'YYYY-MM-DDTHH:MM' in the configured zone"),
		),
	)
	s.AddTool(rescheduleTool, common.InstrumentedToolHandler("sync_reschedule_flow", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRescheduleFlow(ctx, request, sc)
		}))

	deleteFlowTool := mcp.NewTool("sync_delete_flow",
		mcp.WithDescription("Delete the calendar event of a flow for one or more records and unlink it"),
		mcp.WithString("recordIds",
			mcp.Required(),
			mcp.Description("Record id (string) or array of record ids"),
		),
		mcp.WithString("flow",
			mcp.Required(),
			mcp.Description(flowDescription),
		),
	)
	s.AddTool(deleteFlowTool, common.InstrumentedToolHandler("sync_delete_flow", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDeleteFlow(ctx, request, sc)
		}))

	return nil
}

func handleListRecords(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	pendingOnly, _ := args["pendingOnly"].(bool)

	recs, err := sc.Store().ListActive(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list records: %v", err)), nil
	}
	if pendingOnly {
		filtered := recs[:0]
		for _, r := range recs {
			for _, flow := range records.Flows {
				if r.Flow(flow).Pending() {
					filtered = append(filtered, r)
					break
				}
			}
		}
		recs = filtered
	}
	return common.JSONResult(recs), nil
}

func handlePushPending(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	res, err := sc.Orchestrator().BatchPushPending(ctx)
	sc.RecordScan(server.BatchSummary(res, err))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Batch push failed: %v", err)), nil
	}
	return common.JSONResult(res), nil
}

func handlePullDrift(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	res, err := sc.Orchestrator().PullDrift(ctx)
	sc.RecordScan(server.DriftSummary(res, err))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Drift pull failed: %v", err)), nil
	}
	return common.JSONResult(res), nil
}

func handlePushFlow(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	recordID, err := common.RequiredString(args, "recordId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	flow, err := common.FlowArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	when, err := common.TimeArg(args, "when", sc.Location())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	duration, err := common.MinutesArg(args, "durationMinutes")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	opts := syncer.PushOptions{
		Notes:     common.StringArg(args, "notes"),
		Venue:     common.StringArg(args, "venue"),
		Location:  common.StringArg(args, "location"),
		Duration:  duration,
		Attendees: splitList(common.StringArg(args, "attendees")),
	}

	res, err := sc.Orchestrator().PushFlow(ctx, recordID, flow, when, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to push %s: %v", flow, err)), nil
	}
	return common.JSONResult(res), nil
}

func handleRescheduleFlow(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	recordID, err := common.RequiredString(args, "recordId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	flow, err := common.FlowArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	when, err := common.TimeArg(args, "when", sc.Location())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := sc.Orchestrator().RescheduleFlow(ctx, recordID, flow, when)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to reschedule %s: %v", flow, err)), nil
	}
	return common.JSONResult(res), nil
}

func handleDeleteFlow(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	recordIDs, err := batch.ParseStringOrArray(args["recordIds"], "recordIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	flow, err := common.FlowArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results := batch.ProcessBatch(ctx, recordIDs, func(ctx context.Context, id string) (any, error) {
		res, err := sc.Orchestrator().DeleteFlow(ctx, id, flow)
		if err != nil {
			return nil, err
		}
		return res, nil
	})

	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
