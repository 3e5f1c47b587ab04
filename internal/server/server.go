// Package server wires the bridge together and binds it to an MCP
// transport. No business logic lives here: it builds the remote client, the
// tier cache, and the dispatcher, registers the tools, and serves.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"planbridge/internal/config"
	"planbridge/internal/dispatch"
	"planbridge/internal/gate"
	"planbridge/internal/metrics"
	"planbridge/internal/remote"
	"planbridge/internal/tool"
)

// New creates the MCP server with every tool registered. This is the single
// place where dependencies are resolved.
func New(cfg *config.Config, version string, logger *slog.Logger) *mcpserver.MCPServer {
	client := remote.New(remote.Config{
		BaseURL:           cfg.Remote.BaseURL,
		APIKey:            cfg.Remote.APIKey,
		ReadTimeout:       time.Duration(cfg.Remote.ReadTimeoutSeconds) * time.Second,
		MonteCarloTimeout: time.Duration(cfg.Remote.MonteCarloTimeoutSecs) * time.Second,
		MaxAttempts:       cfg.Remote.MaxAttempts,
		Logger:            logger,
	})

	tiers := gate.NewTierCache(client.ProbeTier, logger)
	dispatcher := dispatch.New(tiers, client, logger)

	s := mcpserver.NewMCPServer(
		"planbridge",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions(instructions()),
	)
	tool.Register(s, dispatcher, logger)
	return s
}

// Serve binds the server to the configured transport and blocks until the
// context is canceled or the transport fails.
func Serve(ctx context.Context, cfg *config.Config, s *mcpserver.MCPServer, logger *slog.Logger) error {
	switch cfg.Transport.Mode {
	case "stdio":
		logger.Info("serving on stdio")
		return mcpserver.ServeStdio(s)
	case "http":
		return serveHTTP(ctx, cfg, s, logger)
	case "sse":
		return serveSSE(ctx, cfg, s, logger)
	}
	return fmt.Errorf("unknown transport mode %q", cfg.Transport.Mode)
}

func serveHTTP(ctx context.Context, cfg *config.Config, s *mcpserver.MCPServer, logger *slog.Logger) error {
	addr := fmt.Sprintf("%s:%d", cfg.Transport.Host, cfg.Transport.Port)

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(s))
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Endpoint, metrics.Collector.Handler())
	}

	httpServer := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("serving streamable HTTP", "addr", addr, "endpoint", "/mcp")
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func serveSSE(ctx context.Context, cfg *config.Config, s *mcpserver.MCPServer, logger *slog.Logger) error {
	addr := fmt.Sprintf("%s:%d", cfg.Transport.Host, cfg.Transport.Port)
	sse := mcpserver.NewSSEServer(s)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sse.Shutdown(shutdownCtx)
	}()

	logger.Info("serving SSE (legacy transport)", "addr", addr)
	if err := sse.Start(addr); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func instructions() string {
	return `You have access to a retirement-planning bridge backed by a tax-aware
computation service for Canadian retirement scenarios.

Tools:
- sustainable_spend: "how much can I spend per month?" — needs only
  current_age and total_savings; accounts, retirement age, and longevity are
  defaulted sensibly. Use explicit savings_rrsp/savings_tfsa/savings_non_reg
  when the user states them.
- detailed_cashflow: year-by-year projection for a target monthly_spend.
- monte_carlo_risk: success-probability simulation (premium API keys only;
  takes several seconds).
- list_parameters: discover supported parameters and assumptions.

Provide spouse_age to model a couple; savings split evenly unless stated.
Every tool returns a JSON envelope with a "status" field: on
"premium_required", tell the user which feature needs an upgraded key; on
"validation_error", fix the named field and retry; never retry "timeout"
Monte Carlo calls automatically.`
}
