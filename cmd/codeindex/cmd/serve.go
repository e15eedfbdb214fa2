package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codeindex/internal/config"
	"github.com/Aman-CERP/codeindex/internal/logging"
	"github.com/Aman-CERP/codeindex/internal/mcp"
	"github.com/Aman-CERP/codeindex/internal/ui"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		path        string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index to AI assistants over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout.

Tools: index_project, semantic_search, find_files, find_elements_by_type,
get_file_structure and index_status. Every indexed file is also exposed as a
file:// resource.

stdout carries the protocol; logs go to ~/.codeindex/logs/codeindex.log.
With --metrics-addr, Prometheus metrics are served on /metrics.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationOwnLogging: "mcp"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, root, path, metricsAddr)
		},
	}

	cmd.Flags().StringVarP(&path, "path", "p", ".", "Project directory")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")

	return cmd
}

func runServe(ctx context.Context, root *rootOptions, path, metricsAddr string) error {
	projectRoot, err := resolveRoot(path)
	if err != nil {
		return err
	}
	cfg, err := config.LoadFile(projectRoot, root.configPath)
	if err != nil {
		return err
	}

	level := cfg.Server.LogLevel
	if root.debug {
		level = "debug"
	}
	if err := root.setupLogging(logging.MCPConfig(level)); err != nil {
		return err
	}
	defer root.stopLogging()

	p, err := openWithConfig(ctx, projectRoot, cfg, readWrite)
	if err != nil {
		slog.Error("serve_open_failed", slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = p.Close() }()

	b, err := p.builder(ui.Nop{})
	if err != nil {
		return err
	}
	engine, err := p.engine()
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(engine, mcp.Options{
		Root:     p.root,
		Config:   p.config,
		Indexer:  b,
		Store:    p.store,
		Embedder: p.embedder,
		Metrics:  p.metrics,
		Logger:   slog.Default(),
	})
	if err != nil {
		return err
	}
	if _, err := server.RegisterFileResources(ctx); err != nil {
		slog.Warn("mcp_resources_unavailable", slog.String("error", err.Error()))
	}

	if metricsAddr == "" {
		metricsAddr = p.config.Server.MetricsAddr
	}
	if metricsAddr != "" {
		stopMetrics, err := serveMetrics(metricsAddr, p.metrics.Handler())
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	return server.Serve(ctx)
}

// serveMetrics listens on addr in the background and returns a shutdown func.
func serveMetrics(addr string, handler http.Handler) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics_server_failed", slog.String("error", err.Error()))
		}
	}()
	slog.Info("metrics_server_started", slog.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
