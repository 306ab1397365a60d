package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stentech/gerberstack/internal/api"
	"github.com/stentech/gerberstack/pkg/history"
	"github.com/stentech/gerberstack/pkg/render"
)

type serveOpts struct {
	addr      string
	logFormat string
}

// serveCommand creates the serve command that runs the HTTP API until the
// context is cancelled.
func (c *CLI) serveCommand() *cobra.Command {
	var opts serveOpts

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the render HTTP API",
		Long: `Run the render HTTP API.

Endpoints:
  POST /api/render      multipart "files" and optional "config" JSON
  POST /api/layers      list the layers an upload contains
  GET  /api/extensions  accepted file extensions
  GET  /api/renders     recent renders (needs a history backend)
  GET  /healthz         liveness probe

The server shuts down gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), opts, nil)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", logFormatText, "log format: text or json")

	return cmd
}

// runServe serves until ctx ends. If ready is non-nil it receives the bound
// address once the listener is open.
func (c *CLI) runServe(ctx context.Context, opts serveOpts, ready chan<- string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}

	logger, err := newFormattedLogger(os.Stderr, c.Logger.GetLevel(), opts.logFormat)
	if err != nil {
		return err
	}

	runner, store, err := c.newRunner(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close history store", "err", err)
		}
	}()

	srv := api.New(runner, store, cfg, logger).HTTPServer()
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	logger.Info("Listening",
		"addr", ln.Addr().String(),
		"renderer", render.Name(runner.Renderer),
		"history", history.Name(store))
	if ready != nil {
		ready <- ln.Addr().String()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("Shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
