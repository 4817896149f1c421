// Package app wires predictx together from configuration and runs it until
// its context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/efreitasn/predictx/internal/config"
	"golang.org/x/sync/errgroup"
)

// App owns the configuration and the cleanup funcs of everything Wire
// opened.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Run serves HTTP on the configured port. See Serve.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Port))
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve wires dependencies and serves HTTP on ln alongside the change
// broadcaster and the periodic reconciler. When ctx is cancelled the server
// drains within ShutdownTimeout and in-flight notifications are awaited
// before Serve returns.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	srv := &http.Server{
		Handler:      deps.Router,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("server starting",
			slog.String("addr", ln.Addr().String()),
			slog.String("store", a.cfg.StoreBackend),
			slog.String("lock", a.cfg.LockBackend),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return deps.Hub.Run(gctx, deps.Store)
	})
	g.Go(func() error {
		return deps.Reconciler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	deps.Notifier.Wait()
	a.logger.Info("server stopped")
	return err
}

// Close releases every resource in reverse order. Later calls are no-ops.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
