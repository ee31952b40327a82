package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/tendant/simple-document/internal/mcp"
	"github.com/tendant/simple-document/pkg/docstore/api"
	"github.com/tendant/simple-document/pkg/docstore/config"
	"github.com/tendant/simple-document/pkg/docstore/janitor"
)

func main() {
	// Load environment variables from .env file before reading flags so
	// MCP_TRANSPORT can supply the default mode
	cfg, err := config.Load(config.WithDotEnv(), config.WithEnv())
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	var mode = flag.String("mode", cfg.MCP.Transport, "Server mode: 'stdio', 'sse', 'http' or 'streamable-http'")
	flag.Parse()

	// stdout carries the protocol in stdio mode; logs always go to stderr
	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	ctx := context.Background()
	app, err := cfg.Build(ctx, logger)
	if err != nil {
		slog.Error("Failed to build document service", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	if cfg.CleanupSchedule != "" {
		jan, err := janitor.New(cfg.CleanupSchedule,
			[]janitor.Cleaner{app.Documents, app.Templates.Store()},
			janitor.WithLogger(logger),
		)
		if err != nil {
			slog.Error("Invalid cleanup schedule", "err", err)
			os.Exit(1)
		}
		jan.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			jan.Stop(stopCtx)
		}()
	}

	s := server.NewMCPServer(
		api.ServiceName,
		api.ServiceVersion,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
	)
	mcp.NewHandler(app.Registry, logger).RegisterTools(s)

	addr := net.JoinHostPort(cfg.MCP.Host, cfg.MCP.Port)
	switch *mode {
	case "sse":
		baseURL := fmt.Sprintf("http://%s", addr)
		if cfg.PublicBaseURL != "" {
			baseURL = cfg.BaseURL()
		}
		sseServer := server.NewSSEServer(s, server.WithBaseURL(baseURL))
		slog.Info("Starting SSE server", "addr", addr, "base url", baseURL)
		if err := sseServer.Start(addr); err != nil {
			slog.Error("Failed to start SSE server", "err", err)
			os.Exit(1)
		}
	case "http", "streamable-http":
		httpServer := server.NewStreamableHTTPServer(s, server.WithEndpointPath(cfg.MCP.Path))
		slog.Info("HTTP server listening", "addr", addr, "path", cfg.MCP.Path)
		if err := httpServer.Start(addr); err != nil {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	default:
		slog.Info("Starting in stdio mode", "tools", app.Registry.Len())
		if err := server.ServeStdio(s); err != nil {
			slog.Error("Failed to start stdio server", "err", err)
			os.Exit(1)
		}
	}
}
