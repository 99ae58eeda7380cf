package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/milestonesync/internal/records"
	"github.com/teemow/milestonesync/internal/syncer"
	"github.com/teemow/milestonesync/internal/tools/batch"
	"github.com/teemow/milestonesync/internal/tools/common"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "One-shot calendar sync operations",
		Long: `Run a single calendar operation against the configured record store.

Times are RFC3339 (2026-05-08T19:00:00+07:00) or wall clock in
CALENDAR_TIMEZONE (2026-05-08T19:00). Flows are meeting, ticketSale and eventDay.`,
	}

	cmd.AddCommand(newSyncPushCmd())
	cmd.AddCommand(newSyncRescheduleCmd())
	cmd.AddCommand(newSyncDeleteCmd())
	cmd.AddCommand(newSyncPendingCmd())
	cmd.AddCommand(newSyncPullCmd())
	return cmd
}

func newSyncPushCmd() *cobra.Command {
	var opts syncer.PushOptions

	cmd := &cobra.Command{
		Use:   "push <recordId> <flow> <when>",
		Short: "Schedule a flow and create its calendar event",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				flow, when, err := parseFlowAndTime(args[1], args[2], a.location)
				if err != nil {
					return err
				}
				res, err := a.orchestrator.PushFlow(ctx, args[0], flow, when, opts)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Notes, "notes", "", "Notes for the event description")
	cmd.Flags().StringVar(&opts.Venue, "venue", "", "Venue (event day only)")
	cmd.Flags().StringVar(&opts.Location, "location", "", "Override the default event location")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "Override the default event duration (e.g. 90m)")
	cmd.Flags().StringSliceVar(&opts.Attendees, "attendees", nil, "Attendee email addresses (comma-separated)")
	return cmd
}

func newSyncRescheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule <recordId> <flow> <when>",
		Short: "Move a flow to a new time and update its calendar event",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				flow, when, err := parseFlowAndTime(args[1], args[2], a.location)
				if err != nil {
					return err
				}
				res, err := a.orchestrator.RescheduleFlow(ctx, args[0], flow, when)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newSyncDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <flow> <recordId>[,<recordId>...]...",
		Short: "Delete the calendar event of a flow and unlink it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := records.ParseFlow(args[0])
			if err != nil {
				return err
			}
			var ids []string
			for _, arg := range args[1:] {
				ids = append(ids, parseCommaSeparatedList(arg)...)
			}
			if len(ids) == 0 {
				return fmt.Errorf("at least one record id is required")
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				results := batch.ProcessBatch(ctx, ids, func(ctx context.Context, id string) (any, error) {
					return a.orchestrator.DeleteFlow(ctx, id, flow)
				})
				summary := batch.Summarize(results)
				if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
					return err
				}
				if summary.Failed > 0 {
					return fmt.Errorf("%d of %d deletes failed", summary.Failed, summary.Total)
				}
				return nil
			})
		},
	}
}

func newSyncPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Create calendar events for every scheduled flow that has none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.orchestrator.BatchPushPending(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newSyncPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Reconcile linked flows with calendar changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.orchestrator.PullDrift(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func parseFlowAndTime(flowArg, whenArg string, loc *time.Location) (records.FlowType, time.Time, error) {
	flow, err := records.ParseFlow(flowArg)
	if err != nil {
		return "", time.Time{}, err
	}
	when, err := common.ParseTime(whenArg, loc)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid time %q: %w", whenArg, err)
	}
	return flow, when, nil
}
