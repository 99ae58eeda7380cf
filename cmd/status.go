package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/milestonesync/internal/credentials"
)

type statusReport struct {
	CalendarDisabled string              `json:"calendarDisabled,omitempty"`
	Credentials      *credentials.Status `json:"credentials,omitempty"`
	Probe            string              `json:"probe,omitempty"`
	ProbeError       string              `json:"probeError,omitempty"`
	NextReminderScan *time.Time          `json:"nextReminderScan,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var skipProbe bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show credential status and probe the calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return printJSON(cmd.OutOrStdout(), collectStatus(ctx, a, !skipProbe))
			})
		},
	}

	cmd.Flags().BoolVar(&skipProbe, "no-probe", false, "Skip the calendar API call")
	return cmd
}

func collectStatus(ctx context.Context, a *app, probe bool) statusReport {
	var report statusReport
	if a.disabled != nil {
		report.CalendarDisabled = a.disabled.Error()
	}
	if a.creds != nil {
		st := a.creds.Status()
		report.Credentials = &st
	}
	if next := a.scheduler.NextScan(); !next.IsZero() {
		next = next.In(a.location)
		report.NextReminderScan = &next
	}

	if probe && a.gateway != nil {
		if err := a.gateway.Probe(ctx); err != nil {
			report.ProbeError = err.Error()
		} else {
			report.Probe = "ok"
		}
		// The probe may have refreshed or exhausted the credentials.
		st := a.creds.Status()
		report.Credentials = &st
	}
	return report
}
