// Package app initializes and orchestrates the main components of the
// application: configuration, storage, the worker pool, the routing
// registries and the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/snowflake"

	"github.com/glpilot/glpilot/internal/config"
	"github.com/glpilot/glpilot/internal/db"
	"github.com/glpilot/glpilot/internal/gitlab"
	"github.com/glpilot/glpilot/internal/jobs"
	"github.com/glpilot/glpilot/internal/publish"
	"github.com/glpilot/glpilot/internal/routing"
	"github.com/glpilot/glpilot/internal/server"
	"github.com/glpilot/glpilot/internal/server/handler"
	"github.com/glpilot/glpilot/internal/service"
	"github.com/glpilot/glpilot/internal/store"
)

// App holds the main application components.
type App struct {
	ctx        context.Context
	cfg        *config.Config
	server     *server.Server
	dispatcher *jobs.Dispatcher
	closeDB    func()
	logger     *slog.Logger
}

// NewApp sets up the application with all its dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger.Info("initializing glpilot",
		"gitlab_base_url", cfg.GitLabBaseURL,
		"max_workers", cfg.MaxWorkers,
		"outbox_enabled", cfg.OutboxEnabled)

	dbConn, closeDB, err := db.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}

	tasks := store.NewTaskStore(dbConn.DB, node)
	projects := store.NewProjectStore(dbConn.DB, node)
	outbox := store.NewOutboxStore(dbConn.DB, node)
	deliveries := store.NewDeliveryStore(dbConn.DB)

	glClient, err := gitlab.NewClient(cfg.GitLabToken, cfg.GitLabBaseURL, logger)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("failed to create gitlab client: %w", err)
	}

	retry := jobs.NewRetryMiddleware(&jobs.LogAlerter{Logger: logger}, logger)
	dispatcher := jobs.NewDispatcher(retry, cfg.MaxWorkers, logger)
	effects := jobs.NewEffects(dispatcher, tasks, outbox, glClient, cfg.CommitStatusName, logger)

	outboxCfg := jobs.OutboxConfig{Enabled: cfg.OutboxEnabled, ShadowMode: cfg.OutboxShadowMode}
	failure := jobs.NewFailureHandler(tasks, outbox, effects, outboxCfg, logger)

	flags := publish.Flags{
		MemoryEnabled:  cfg.MemoryEnabled,
		ReviewLearning: cfg.MemoryReviewLearning,
	}
	publishers := publish.NewRegistry(logger, publish.DefaultPublishers(effects, flags)...)

	classifiers := routing.NewClassifierRegistry(logger,
		routing.MergeRequestLifecycleClassifier{},
		routing.NewMergeRequestNoteClassifier(effects),
		routing.IssueNoteClassifier{},
		routing.NewIssueLabelClassifier(cfg.TriggerLabel),
		routing.PushToMergeRequestClassifier{},
	)
	handlers := routing.NewHandlerRegistry(logger, routing.DefaultHandlers()...)

	intake := service.NewIntake(classifiers, handlers, tasks, outbox, cfg.BotAccountID, logger)

	newResultJob := func(taskID int64) jobs.Job {
		return jobs.NewProcessResultJob(taskID, tasks, outbox, publishers, failure, outboxCfg, logger)
	}

	webhookHandler := handler.NewWebhookHandler(cfg, projects, deliveries, glClient, intake, logger)
	resultHandler := handler.NewResultHandler(cfg.ResultCallbackToken, tasks, dispatcher, failure, newResultJob, logger)
	httpServer := server.NewServer(ctx, cfg, webhookHandler, resultHandler, logger)

	logger.Info("glpilot initialized successfully")
	return &App{
		ctx:        ctx,
		cfg:        cfg,
		server:     httpServer,
		dispatcher: dispatcher,
		closeDB:    closeDB,
		logger:     logger,
	}, nil
}

// Start runs the HTTP server and blocks until shutdown.
func (a *App) Start() error {
	a.logger.Info("starting glpilot",
		"server_port", a.cfg.ServerPort,
		"max_workers", a.cfg.MaxWorkers)

	if err := a.server.Start(); err != nil {
		a.logger.Error("failed to start HTTP server", "error", err)
		return err
	}
	return nil
}

// Stop shuts down the application cleanly.
func (a *App) Stop() error {
	a.logger.Info("shutting down glpilot services")

	// Stop the HTTP server first to prevent new incoming requests.
	err := a.server.Stop()
	if err != nil {
		a.logger.Error("error during HTTP server shutdown", "error", err)
	}

	a.dispatcher.Stop()
	a.closeDB()

	a.logger.Info("shutdown complete")
	return err
}
