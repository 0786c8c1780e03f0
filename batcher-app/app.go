package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/compose-network/batcher/batcher-app/config"
	apisrv "github.com/compose-network/batcher/server/api"
	codechttp "github.com/compose-network/batcher/x/channel/http"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the codec over HTTP",
		RunE:  runServe,
	}
	cmd.Flags().String("listen-addr", "", "HTTP listen address")
	cmd.Flags().Bool("metrics", true, "expose prometheus metrics")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Uint64("chain_id", cfg.ChainID).
		Msg("Starting dacodec")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	app, err := NewApp(ctx, cfg, logger.Logger)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}

// App serves the codec HTTP API.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	registry  *prometheus.Registry
	apiServer *apisrv.Server
	startedAt time.Time

	shutdownFns []func()
	cancel      context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg:       cfg,
		log:       log.With().Str("component", "app").Logger(),
		startedAt: time.Now(),
	}

	if err := app.initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

func (a *App) initialize(ctx context.Context) error {
	var reg prometheus.Registerer
	if a.cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		reg = a.registry
	}

	deps, closeDeps, err := buildDeps(ctx, a.cfg, a.log, reg)
	if err != nil {
		return err
	}
	a.shutdownFns = append(a.shutdownFns, closeDeps)

	a.initializeAPIServer(deps)
	return nil
}

// initializeAPIServer sets up the HTTP API server with all endpoints
func (a *App) initializeAPIServer(deps codechttp.Deps) {
	s := apisrv.NewServer(a.cfg.API, a.log)

	s.Router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)

	if a.registry != nil {
		s.Router.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	codecHandler := codechttp.NewHandler(deps, a.log)
	codecHandler.RegisterMux(s.Router)

	a.apiServer = s
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.apiServer.Start(runCtx)
	}()

	return a.runWithGracefulShutdown(runCtx, errCh)
}

// runWithGracefulShutdown handles shutdown signals.
func (a *App) runWithGracefulShutdown(ctx context.Context, errCh <-chan error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a.log.Info().Msg("dacodec started successfully")

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			a.log.Error().Err(err).Msg("API server error")
			runErr = fmt.Errorf("api server: %w", err)
		}
	}

	a.cancel()
	a.shutdown(errCh, runErr == nil)
	return runErr
}

// shutdown waits for the HTTP server to drain, then releases the store and
// the L1 client.
func (a *App) shutdown(errCh <-chan error, wait bool) {
	a.log.Info().Msg("Initiating graceful shutdown")

	if wait {
		timeout := a.cfg.API.ShutdownTimeout + time.Second
		select {
		case err := <-errCh:
			if err != nil {
				a.log.Error().Err(err).Msg("API server shutdown error")
			}
		case <-time.After(timeout):
			a.log.Warn().Dur("timeout", timeout).Msg("API server did not stop in time")
		}
	}

	for _, fn := range a.shutdownFns {
		fn()
	}

	a.log.Info().Msg("Graceful shutdown complete")
}

// handleHealth responds to health check requests.
func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	apisrv.WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        Version,
		"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
