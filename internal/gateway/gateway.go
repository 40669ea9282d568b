// ABOUTME: Gateway orchestrator that wires store, event bus, registry, and HTTP server
// ABOUTME: Manages startup restore and graceful shutdown lifecycle

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/2389/zap-gateway/internal/bus"
	"github.com/2389/zap-gateway/internal/config"
	"github.com/2389/zap-gateway/internal/driver"
	"github.com/2389/zap-gateway/internal/session"
	"github.com/2389/zap-gateway/internal/store"
)

// Gateway orchestrates the zap-gateway server components. It owns the
// persistent store, the event bus, the session registry, and the HTTP server
// exposing the API.
type Gateway struct {
	config     *config.Config
	store      store.Store
	bus        *bus.Bus
	registry   *session.Registry
	httpServer *http.Server
	logger     *slog.Logger

	// restored flips once startup restore has completed; /health/ready
	// reports 503 until then.
	restored atomic.Bool
}

// initStore creates a store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("ZAP_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// driverFactory builds the driver factory selected by config.
func driverFactory(cfg *config.Config, logger *slog.Logger) driver.Factory {
	// "sim" is the only built-in mode; config validation rejects others.
	return driver.NewSimFactory(driver.SimConfig{
		PairingDelay: cfg.Driver.Sim.PairingDelay,
		ReadyDelay:   cfg.Driver.Sim.ReadyDelay,
		Registered:   cfg.Driver.Sim.Registered,
	}, logger)
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	return newGateway(cfg, s, driverFactory(cfg, logger), logger)
}

// newGateway wires the gateway from explicit dependencies. Tests inject their
// own store and driver factory here.
func newGateway(cfg *config.Config, s store.Store, factory driver.Factory, logger *slog.Logger) (*Gateway, error) {
	eventBus := bus.New(cfg.Webhooks.Timeout, logger)

	registry := session.NewRegistry(session.Config{
		Factory: factory,
		Store:   s,
		Bus:     eventBus,
		Logger:  logger,
		Retry: session.RetryPolicy{
			MaxAttempts: cfg.Sessions.MaxReconnectAttempts,
			Backoff:     cfg.Sessions.ReconnectBackoff,
			BackoffMax:  cfg.Sessions.ReconnectBackoffMax,
		},
	})

	gw := &Gateway{
		config:   cfg,
		store:    s,
		bus:      eventBus,
		registry: registry,
		logger:   logger.With("component", "gateway"),
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Run starts the gateway and blocks until the context is canceled. Persisted
// sessions are restored before the HTTP server accepts traffic. Returns nil
// on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	restored, err := g.registry.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restoring sessions: %w", err)
	}
	g.restored.Store(true)
	if restored > 0 {
		g.logger.Info("sessions restored, each awaiting pairing", "count", restored)
	}

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	serverErr := g.waitForShutdownSignal(ctx, errCh)
	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the HTTP server, stops all sessions, and releases
// resources. Persisted records stay in place for the next startup.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.registry.Close()
	g.bus.Close()

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once startup restore has completed.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if !g.restored.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("restoring sessions"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", len(g.registry.List()))
}
