// Package mcpserver is a thin MCP tool surface (spec.md §6) over C10
// (search) and C6 (job enqueue/inspect/cancel): one mcp-go server, one
// stdio Serve loop with signal-driven graceful shutdown, tools registered
// through composable AddXTool(s, ...) functions.
package mcpserver

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/panoptikon-go/panoptikon/internal/config"
	"github.com/panoptikon-go/panoptikon/internal/jobs"
	"github.com/panoptikon-go/panoptikon/internal/search"
)

// Server manages the MCP server lifecycle: one search facade shared across
// read-only search calls, one job manager owning the worker queue for the
// process's lifetime (spec.md §5 - queue state lives exactly as long as
// the process that owns it).
type Server struct {
	cfg     *config.Config
	facade  *search.Facade
	manager *jobs.Manager
	mcp     *server.MCPServer
}

// New builds the MCP server and registers its tools. workerBinary is the
// path to the panoptikon-worker executable C6 spawns per job.
func New(cfg *config.Config, workerBinary string) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mcpserver: config is required")
	}

	facade := search.NewFacade(cfg.ToStorePaths())
	manager := jobs.NewManager(jobs.DefaultSpawner(workerBinary))

	mcpServer := server.NewMCPServer(
		"panoptikon-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	AddSearchTool(mcpServer, facade)
	AddJobsEnqueueTool(mcpServer, manager, cfg)
	AddJobsStatusTool(mcpServer, manager)
	AddJobsCancelTool(mcpServer, manager)

	return &Server{cfg: cfg, facade: facade, manager: manager, mcp: mcpServer}, nil
}

// Serve starts the MCP server on stdio and blocks until a shutdown signal
// or server error.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("starting panoptikon MCP server on stdio...")
		if err := server.ServeStdio(s.mcp); err != nil {
			errCh <- fmt.Errorf("mcp server error: %w", err)
		}
	}()

	select {
	case <-sigCh:
		log.Printf("received shutdown signal, stopping gracefully...")
		cancel()
		return nil
	case err := <-errCh:
		cancel()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the job manager's consumer goroutine.
func (s *Server) Close() error {
	if s.manager != nil {
		s.manager.Stop()
	}
	return nil
}
