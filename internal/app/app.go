package app

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/specialistvlad/liveresolver/internal/config"
	"github.com/specialistvlad/liveresolver/internal/ctxlog"
	"github.com/specialistvlad/liveresolver/internal/handlers"
	"github.com/specialistvlad/liveresolver/internal/localsession"
	"github.com/specialistvlad/liveresolver/internal/metrics"
	"github.com/specialistvlad/liveresolver/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	ctx      context.Context
	config   *config.Config
	handlers *handlers.Handlers
	metrics  *metrics.Recorder

	mu         sync.Mutex
	listening  chan struct{}
	listenAddr string
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger. Without modules
// the built-in resolver types are registered.
func NewApp(outW io.Writer, cfg *config.Config, modules ...handlers.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	if len(modules) == 0 {
		modules = coreModules()
	}
	hndls := handlers.New(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules), "resolver_types", hndls.Names())

	var rec *metrics.Recorder
	if cfg.MetricsEnabled {
		rec = metrics.New()
	}

	return &App{
		outW:      outW,
		logger:    logger,
		ctx:       ctx,
		config:    cfg,
		handlers:  hndls,
		metrics:   rec,
		listening: make(chan struct{}),
	}
}

// Handlers returns the registered resolver types. This is primarily for testing.
func (a *App) Handlers() *handlers.Handlers {
	return a.handlers
}

// Metrics returns the metrics recorder, nil when metrics are disabled.
func (a *App) Metrics() *metrics.Recorder {
	return a.metrics
}

// Logger returns the application's logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// NewRegistry creates the registry for one host connection.
func (a *App) NewRegistry(ctx context.Context) *registry.Registry {
	factory := &localsession.SessionFactory{
		MaxConcurrency: a.config.MaxConcurrency,
		Metrics:        a.metrics,
	}
	return registry.New(ctx, a.handlers, factory, registry.WithMetrics(a.metrics))
}

// WaitListening blocks until the socket.io listener is bound and returns
// its address.
func (a *App) WaitListening(ctx context.Context) (string, error) {
	select {
	case <-a.listening:
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.listenAddr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (a *App) setListening(addr string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listenAddr = addr
	close(a.listening)
}
