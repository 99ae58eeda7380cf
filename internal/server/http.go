package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

const (
	// DefaultHTTPAddr is the default address for health and MCP traffic.
	DefaultHTTPAddr = ":8080"

	// MCPEndpointPath is where the streamable HTTP transport is mounted.
	MCPEndpointPath = "/mcp"
)

// HTTPServer serves the health endpoints and, when an MCP server is given,
// the MCP streamable HTTP transport.
type HTTPServer struct {
	addr   string
	health *HealthChecker
	mcp    *mcpserver.MCPServer
	logger *slog.Logger

	// disableStreaming answers MCP requests with plain JSON instead of SSE.
	disableStreaming bool

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// HTTPServerConfig configures NewHTTPServer.
type HTTPServerConfig struct {
	Addr             string
	Health           *HealthChecker
	MCPServer        *mcpserver.MCPServer
	DisableStreaming bool
	Logger           *slog.Logger
}

// NewHTTPServer creates the main HTTP server.
func NewHTTPServer(cfg HTTPServerConfig) (*HTTPServer, error) {
	if cfg.Health == nil {
		return nil, fmt.Errorf("health checker is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultHTTPAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTPServer{
		addr:             cfg.Addr,
		health:           cfg.Health,
		mcp:              cfg.MCPServer,
		logger:           cfg.Logger,
		disableStreaming: cfg.DisableStreaming,
	}, nil
}

// Handler builds the request mux.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.health.RegisterHealthEndpoints(mux)

	if s.mcp != nil {
		opts := []mcpserver.StreamableHTTPOption{mcpserver.WithEndpointPath(MCPEndpointPath)}
		if s.disableStreaming {
			opts = append(opts, mcpserver.WithDisableStreaming(true))
		}
		mux.Handle(MCPEndpointPath, mcpserver.NewStreamableHTTPServer(s.mcp, opts...))
	}
	return mux
}

// Start listens and serves until Shutdown.
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("starting http server", slog.String("addr", ln.Addr().String()), slog.Bool("mcp", s.mcp != nil))
	return srv.Serve(ln)
}

// Run serves until ctx is done and then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Fail readiness first so load balancers stop routing here.
	s.health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// Addr returns the bound address once started, or the configured address.
func (s *HTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
