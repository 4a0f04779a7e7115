package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/proxyforge/proxyforge/internal/config"
	"github.com/proxyforge/proxyforge/internal/database"
	"github.com/proxyforge/proxyforge/internal/database/migrations"
	"github.com/proxyforge/proxyforge/internal/engine"
	"github.com/proxyforge/proxyforge/internal/engine/ffmpegenc"
	"github.com/proxyforge/proxyforge/internal/engine/resolveenc"
	"github.com/proxyforge/proxyforge/internal/ingest"
	"github.com/proxyforge/proxyforge/internal/license"
	"github.com/proxyforge/proxyforge/internal/models"
	"github.com/proxyforge/proxyforge/internal/query"
	"github.com/proxyforge/proxyforge/internal/recovery"
	"github.com/proxyforge/proxyforge/internal/repository"
	"github.com/proxyforge/proxyforge/internal/scheduler"
)

// app bundles the wired services shared by the serve, run, and watch
// commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *database.DB
	jobs     repository.JobRepository
	tasks    repository.ClipTaskRepository
	events   repository.EventRepository
	folders  repository.WatchFolderRepository
	procs    repository.ProcessedFileRepository
	bindings repository.BindingRepository
	enforcer *license.Enforcer
	ffmpeg   *ffmpegenc.Adapter
	resolve  *resolveenc.Adapter
	ingest   *ingest.Service
	sched    *scheduler.Scheduler
	queries  *query.Service
	workerID string
}

// buildApp opens the store, runs migrations and recovery, and wires the
// services.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	if err := migrator.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing migrations: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	jobs := repository.NewJobRepository(db.DB)
	tasks := repository.NewClipTaskRepository(db.DB)
	events := repository.NewEventRepository(db.DB)
	folders := repository.NewWatchFolderRepository(db.DB)
	procs := repository.NewProcessedFileRepository(db.DB)
	bindings := repository.NewBindingRepository(db.DB)

	// Interrupted jobs from a previous process fail honestly before anything
	// else runs.
	recovered, err := recovery.New(jobs, tasks, events, logger).Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("running recovery: %w", err)
	}
	if recovered > 0 {
		logger.Info("startup recovery complete", slog.Int("jobs_failed", recovered))
	}

	lic := license.Resolve(cfg.License, logger)
	enforcer := license.NewEnforcer(lic, logger)
	workerID := processWorkerID()

	ffmpegAdapter := ffmpegenc.New(cfg.FFmpeg, logger)
	engines := map[models.EngineKind]engine.Engine{
		models.EngineFFmpeg: ffmpegAdapter,
	}

	var resolveAdapter *resolveenc.Adapter
	var gate ingest.ResolveGate
	if cfg.Resolve.Enabled {
		resolveAdapter = resolveenc.New(cfg.Resolve, logger)
		engines[models.EngineResolve] = resolveAdapter
		gate = resolveAdapter
	}

	ingestSvc := ingest.NewService(jobs, events, ffmpegAdapter.Prober(), gate, cfg.Resolve.Enabled, logger)
	sched := scheduler.New(jobs, tasks, events, engines, enforcer, workerID, logger)
	queries := query.NewService(jobs, events, bindings, cfg.Reports.Directory)

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		jobs:     jobs,
		tasks:    tasks,
		events:   events,
		folders:  folders,
		procs:    procs,
		bindings: bindings,
		enforcer: enforcer,
		ffmpeg:   ffmpegAdapter,
		resolve:  resolveAdapter,
		ingest:   ingestSvc,
		sched:    sched,
		queries:  queries,
		workerID: workerID,
	}, nil
}

// Close releases the store.
func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}

// processWorkerID returns the hostname-scoped id of this process's worker.
func processWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
