package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rochus-keller/FlowLine2/internal/maintenance"
	"github.com/rochus-keller/FlowLine2/internal/streaming"
	flowmcp "github.com/rochus-keller/FlowLine2/pkg/mcp"
)

func newServeCmd(o *rootOptions) *cobra.Command {
	var (
		sse     bool
		listen  string
		baseURL string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the repository to agents over MCP",
		Long: `Serve the repository as MCP tools, on stdio by default or over SSE with
--sse. Committed changes are pushed to the sessions that looked at the
changed diagram. When maintenance.schedule is set, orphaned items are
swept on that schedule.

Over SSE, SIGHUP reloads the settings: log_level, read_only,
strict_syntax and layout.ortho apply at once, other fields need a
restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("listen") {
				o.cfg.ListenAddr = listen
				if !cmd.Flags().Changed("base-url") {
					o.cfg.BaseURL = "http://localhost" + listen
				}
			}
			if cmd.Flags().Changed("base-url") {
				o.cfg.BaseURL = baseURL
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return o.serve(ctx, sse)
		},
	}
	cmd.Flags().BoolVar(&sse, "sse", false, "Serve over SSE instead of stdio")
	cmd.Flags().StringVar(&listen, "listen", "", "SSE listen address (default from listen_addr)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Public SSE base URL (default from base_url)")
	return cmd
}

func (o *rootOptions) serve(ctx context.Context, sse bool) error {
	a, err := o.openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	hub := streaming.NewChangeHub(o.logger)
	detach := hub.Attach(a.store)
	defer detach()

	if schedule := o.cfg.Maintenance.Schedule; schedule != "" && !o.cfg.ReadOnly {
		sw, err := maintenance.NewSweeper(a.store, schedule,
			maintenance.WithVacuum(a.db),
			maintenance.WithLock(&a.lock),
			maintenance.WithLogger(o.logger),
		)
		if err != nil {
			return fmt.Errorf("maintenance.schedule: %w", err)
		}
		if err := sw.Start(ctx); err != nil {
			return err
		}
		defer sw.Stop()
	}

	if !sse {
		return a.toolServer(hub).Serve(ctx)
	}
	return a.serveSSE(ctx, hub)
}

func (a *app) toolServer(hub streaming.Hub) *flowmcp.FlowServer {
	cfg := a.o.cfg
	return flowmcp.NewFlowServer(flowmcp.ServerDeps{
		Store:        a.store,
		Bridge:       a.bridge(),
		Hub:          hub,
		Logger:       a.o.logger,
		Lock:         &a.lock,
		ReadOnly:     cfg.ReadOnly,
		StrictSyntax: cfg.StrictSyntax,
		Ortho:        cfg.Layout.Ortho,
	})
}

// serveSSE serves until ctx is done, rebuilding the tool server on SIGHUP
// when the reloaded settings require it.
func (a *app) serveSSE(ctx context.Context, hub streaming.Hub) error {
	o := a.o
	tools := newToolHandler(o.logger)
	install := func() {
		toolCtx, stop := context.WithCancel(ctx)
		tools.Install(a.toolServer(hub).SSEHandler(toolCtx, o.cfg.BaseURL), stop)
	}
	install()
	defer tools.Close()

	srv := &http.Server{Addr: o.cfg.ListenAddr, Handler: tools, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	o.logger.Info("mcp sse listening", "addr", o.cfg.ListenAddr, "base_url", o.cfg.BaseURL)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("serve sse on %s: %w", o.cfg.ListenAddr, err)
		case <-hup:
			d, err := o.reload()
			if err != nil {
				o.logger.Error("reload settings", "error", err)
				continue
			}
			if len(d.RestartNeeded) > 0 {
				o.logger.Warn("settings need a restart", "fields", d.RestartNeeded)
			}
			if d.ToolsChanged {
				install()
				o.logger.Info("tool server rebuilt", "read_only", o.cfg.ReadOnly, "ortho", o.cfg.Layout.Ortho)
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	}
}
