package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/specialistvlad/liveresolver/internal/config"
	"github.com/specialistvlad/liveresolver/internal/ctxlog"
	"github.com/specialistvlad/liveresolver/internal/transport/socketio"
	"github.com/specialistvlad/liveresolver/internal/transport/stdio"
	"golang.org/x/sync/errgroup"
)

// Serve runs the worker on the configured transport. With socket.io it
// runs until ctx is done; with stdio until stdin is exhausted.
func (a *App) Serve(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.logger.Info("Starting worker.", "transport", a.config.Transport, "resolver_types", a.handlers.Names(), "max_concurrency", a.config.MaxConcurrency)

	g, gctx := errgroup.WithContext(ctx)
	if a.config.HealthcheckPort > 0 {
		g.Go(func() error { return a.runHealthCheckServer(gctx) })
	}
	g.Go(func() error {
		// The ops server only lives as long as the transport.
		defer cancel()
		switch a.config.Transport {
		case config.TransportStdio:
			return stdio.Serve(gctx, stdin, stdout, a.NewRegistry(gctx))
		case config.TransportSocketIO:
			return a.serveSocketIO(gctx)
		default:
			return fmt.Errorf("unknown transport %q", a.config.Transport)
		}
	})

	err := g.Wait()
	a.logger.Info("Worker stopped.", "error", err)
	return err
}

func (a *App) serveSocketIO(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.config.Listen, err)
	}

	srv := socketio.New(ctx, a.NewRegistry)
	defer srv.Close()

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", srv.Handler())
	a.mountOps(mux)

	httpSrv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	a.setListening(ln.Addr().String())
	return serveHTTP(ctx, httpSrv, ln, "socketio")
}
