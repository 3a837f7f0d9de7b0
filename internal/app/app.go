// Package app holds the assembled service and drives its lifecycle: recover
// unfinished workflow runs, serve webhooks, shut down cleanly.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/sevigo/review-warden/internal/config"
	"github.com/sevigo/review-warden/internal/jobs"
	"github.com/sevigo/review-warden/internal/quota"
	"github.com/sevigo/review-warden/internal/server"
	"github.com/sevigo/review-warden/internal/storage"
)

const shutdownTimeout = 30 * time.Second

// App holds the main application components.
type App struct {
	cfg        *config.Config
	server     *server.Server
	dispatcher jobs.Dispatcher
	store      storage.Store
	logger     *slog.Logger
}

// NewApp assembles the webhook service.
func NewApp(cfg *config.Config, srv *server.Server, dispatcher jobs.Dispatcher, store storage.Store, logger *slog.Logger) *App {
	return &App{
		cfg:        cfg,
		server:     srv,
		dispatcher: dispatcher,
		store:      store,
		logger:     logger,
	}
}

// Start re-dispatches runs left unfinished by a previous process, then runs
// the HTTP server until it is stopped.
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("starting review-warden",
		"server_port", a.cfg.Server.Port,
		"max_concurrent", a.cfg.Workflow.MaxConcurrent,
		"llm_provider", a.cfg.AI.LLMProvider,
		"database", a.cfg.Database.Driver)

	if _, err := jobs.Recover(ctx, a.store, a.dispatcher, a.logger); err != nil {
		a.logger.Error("failed to recover workflow runs", "error", err)
		return err
	}

	if err := a.server.Start(); err != nil {
		a.logger.Error("failed to start HTTP server", "error", err)
		return err
	}
	return nil
}

// Stop shuts down the application cleanly.
func (a *App) Stop() error {
	a.logger.Info("shutting down review-warden services")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop the HTTP server first to prevent new incoming requests.
	serverErr := a.server.Stop(ctx)
	if serverErr != nil {
		a.logger.Error("error during HTTP server shutdown", "error", serverErr)
	}

	a.dispatcher.Stop(ctx)

	if serverErr != nil {
		return serverErr
	}
	a.logger.Info("review-warden stopped successfully")
	return nil
}

// CLI holds the components the command line tool works with. Its workflows
// run inline on the calling goroutine.
type CLI struct {
	Config    *config.Config
	Store     storage.Store
	Gate      *quota.Gate
	Connector *jobs.Connector
	Logger    *slog.Logger
}

func NewCLI(cfg *config.Config, store storage.Store, gate *quota.Gate, connector *jobs.Connector, logger *slog.Logger) *CLI {
	return &CLI{Config: cfg, Store: store, Gate: gate, Connector: connector, Logger: logger}
}
