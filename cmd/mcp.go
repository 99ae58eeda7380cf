package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/milestonesync/internal/server"
	"github.com/teemow/milestonesync/internal/tools/calendar_tools"
	"github.com/teemow/milestonesync/internal/tools/reminder_tools"
	"github.com/teemow/milestonesync/internal/tools/sync_tools"
)

func newMCPCmd() *cobra.Command {
	var yolo bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the operator MCP tools over stdio",
		Long: `Start the Model Context Protocol (MCP) server on standard input/output with
the same components as serve. The credential refresh loop and the notification
queue run for the lifetime of the session; the sync and reminder loops do not.

Safety Mode:
  By default, the server provides only read-only tools.
  Use --yolo to enable tools that change the calendar or send reminders.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runMCP(ctx, loadConfig(), !yolo)
		},
	}

	cmd.Flags().BoolVar(&yolo, "yolo", false, "Enable write tools. Default is read-only mode.")
	return cmd
}

func runMCP(ctx context.Context, cfg Config, readOnly bool) error {
	logger := newLogger(cfg)

	provider, err := newInstrumentation(ctx)
	if err != nil {
		return err
	}
	defer shutdownInstrumentation(provider, logger)

	a, err := newApp(ctx, cfg, logger, provider.Metrics())
	if err != nil {
		return err
	}
	defer a.close()

	sc, err := a.serverContext(ctx)
	if err != nil {
		return err
	}

	mcpSrv := newMCPServer()
	if err := registerAllTools(mcpSrv, sc, readOnly); err != nil {
		return err
	}

	bgCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = a.queue.Run(bgCtx, queueDrainTimeout) }()
	if a.creds != nil {
		go func() { _ = superviseCredentials(bgCtx, a) }()
	}

	return runStdioServer(mcpSrv)
}

func newMCPServer() *mcpserver.MCPServer {
	return mcpserver.NewMCPServer("milestonesync", version,
		mcpserver.WithToolCapabilities(true),
	)
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func registerAllTools(mcpSrv *mcpserver.MCPServer, ctx *server.ServerContext, readOnly bool) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Calendar",
			register: func() error {
				return calendar_tools.RegisterCalendarTools(mcpSrv, ctx)
			},
		},
		{
			name: "Sync",
			register: func() error {
				return sync_tools.RegisterSyncTools(mcpSrv, ctx, readOnly)
			},
		},
		{
			name: "Reminders",
			register: func() error {
				return reminder_tools.RegisterReminderTools(mcpSrv, ctx, readOnly)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}

	return nil
}
