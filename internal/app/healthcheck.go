package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/specialistvlad/liveresolver/internal/ctxlog"
)

const shutdownTimeout = 5 * time.Second

// healthHandler answers liveness probes.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// mountOps adds /health, and /metrics when enabled, to mux.
func (a *App) mountOps(mux *http.ServeMux) {
	mux.HandleFunc("/health", a.healthHandler)
	if a.metrics != nil {
		mux.Handle("/metrics", a.metrics.Handler())
	}
}

// healthCheckServer builds the standalone health check HTTP server.
func (a *App) healthCheckServer() *http.Server {
	mux := http.NewServeMux()
	a.mountOps(mux)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.HealthcheckPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

// serveHTTP runs srv on ln until ctx is done, then shuts it down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server, ln net.Listener, name string) error {
	logger := ctxlog.FromContext(ctx).With("server", name)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting.", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s server failed: %w", name, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	logger.Info("Shutting down HTTP server.")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed.", "error", err)
		return err
	}
	logger.Debug("HTTP server shut down gracefully.")
	return nil
}

// runHealthCheckServer serves health checks until ctx is done.
func (a *App) runHealthCheckServer(ctx context.Context) error {
	srv := a.healthCheckServer()
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen for health checks: %w", err)
	}
	return serveHTTP(ctx, srv, ln, "healthcheck")
}
