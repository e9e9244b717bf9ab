package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/uadiscover/internal/cli/config"
	"github.com/conduit-lang/uadiscover/internal/cli/ui"
	"github.com/conduit-lang/uadiscover/internal/inspect"
	"github.com/conduit-lang/uadiscover/internal/watch"
)

const shutdownTimeout = 5 * time.Second

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run discovery and serve the registered types over HTTP",
		Long: `Run discovery once, then serve a read-only JSON view of the result:

  GET /namespaces
  GET /namespaces/{ns}/types
  GET /namespaces/{ns}/types/{name}
  GET /report`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	addSourceFlags(cmd)
	cmd.Flags().String("addr", "", "Listen address (default from serve.addr)")
	cmd.Flags().Bool("watch", false, "Run discovery again whenever the snapshot file changes")

	return cmd
}

var errWatchNeedsSnapshot = errors.New("--watch needs a snapshot source")

func runServe(cmd *cobra.Command, _ []string) error {
	nc := noColor(cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		ui.ConfigError(err, nc).Write(cmd.ErrOrStderr())
		return err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	watchSnapshot, _ := cmd.Flags().GetBool("watch")
	if watchSnapshot && cfg.Snapshot == "" {
		return errWatchNeedsSnapshot
	}

	r, err := discover(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	handler := &swapHandler{}
	handler.current.Store(newInspectHandler(r, logger))

	if watchSnapshot {
		fw, err := watch.NewFileWatcher([]string{cfg.Snapshot}, func([]string) {
			rediscover(cmd.Context(), cfg, handler, logger)
		}, watch.WithLogger(logger.Named("watch")))
		if err != nil {
			return err
		}
		if err := fw.Start(); err != nil {
			return err
		}
		defer fw.Stop()
	}

	ln, err := net.Listen("tcp", cfg.Serve.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Serve.Addr, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("%d types registered, serving on http://%s", r.report.Registered(), ln.Addr()), nc))

	return serve(cmd.Context(), ln, handler, logger)
}

func newInspectHandler(r *run, logger *zap.Logger) *inspect.Handler {
	return inspect.New(r.manager,
		inspect.WithLogger(logger.Named("inspect")),
		inspect.WithReport(r.report),
	)
}

// swapHandler serves the latest inspect handler
type swapHandler struct {
	current atomic.Pointer[inspect.Handler]
}

func (h *swapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.current.Load().ServeHTTP(w, r)
}

// rediscover replaces the served registries with a fresh discovery run. A
// failed run keeps the previous ones.
func rediscover(ctx context.Context, cfg *config.Config, h *swapHandler, logger *zap.Logger) {
	r, err := discover(ctx, cfg, logger)
	if err != nil {
		logger.Warn("rediscovery failed, keeping previous types", zap.String("snapshot", cfg.Snapshot), zap.Error(err))
		return
	}
	h.current.Store(newInspectHandler(r, logger))
	logger.Info("types reloaded", zap.String("snapshot", cfg.Snapshot), zap.Int("registered", r.report.Registered()))
}

// serve runs handler on ln until ctx is done, then shuts the server down
func serve(ctx context.Context, ln net.Listener, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Stringer("addr", ln.Addr()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
