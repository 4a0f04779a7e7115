// Package watchfolder polls monitored directories and turns newly stable
// media files into one-clip pending jobs. Auto-execution is opt-in per folder
// and gated by disk headroom and the concurrent-job cap.
package watchfolder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/proxyforge/proxyforge/internal/config"
	"github.com/proxyforge/proxyforge/internal/ingest"
	"github.com/proxyforge/proxyforge/internal/models"
	"github.com/proxyforge/proxyforge/internal/repository"
)

// proxySubdir is created inside each watched folder to receive its proxies.
const proxySubdir = "proxies"

// JobCreator is the slice of the ingestion service the engine uses.
type JobCreator interface {
	Create(ctx context.Context, req ingest.Request) (*models.Job, error)
}

// JobStarter starts a specific pending job.
type JobStarter interface {
	StartJob(ctx context.Context, id models.UUID) error
}

// Engine is the watch-folder poller.
type Engine struct {
	folders   repository.WatchFolderRepository
	processed repository.ProcessedFileRepository
	jobs      repository.JobRepository
	creator   JobCreator
	starter   JobStarter
	cfg       config.WatchConfig
	auto      config.AutomationConfig
	tracker   *StabilityTracker
	cron      *cron.Cron
	logger    *slog.Logger

	// freeDisk is swappable in tests.
	freeDisk func(path string) (uint64, error)
}

// New creates the watch-folder engine.
func New(folders repository.WatchFolderRepository, processed repository.ProcessedFileRepository, jobs repository.JobRepository, creator JobCreator, starter JobStarter, cfg config.WatchConfig, auto config.AutomationConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		folders:   folders,
		processed: processed,
		jobs:      jobs,
		creator:   creator,
		starter:   starter,
		cfg:       cfg,
		auto:      auto,
		tracker:   NewStabilityTracker(cfg.StabilityMinAge, cfg.RequiredStableChecks),
		logger:    logger.With(slog.String("component", "watchfolder")),
		freeDisk: func(path string) (uint64, error) {
			usage, err := disk.Usage(path)
			if err != nil {
				return 0, err
			}
			return usage.Free, nil
		},
	}
}

// SyncFolders reconciles the configured folder list into the store. Existing
// rows keep their id; their flags follow the configuration.
func (e *Engine) SyncFolders(ctx context.Context) error {
	for _, fc := range e.cfg.Folders {
		existing, err := e.folders.GetByPath(ctx, fc.Path)
		if err != nil {
			return fmt.Errorf("looking up folder %q: %w", fc.Path, err)
		}
		if existing == nil {
			folder := &models.WatchFolder{
				Path:        fc.Path,
				Enabled:     fc.Enabled,
				Recursive:   fc.Recursive,
				PresetID:    fc.PresetID,
				AutoExecute: fc.AutoExecute,
			}
			if err := e.folders.Create(ctx, folder); err != nil {
				return fmt.Errorf("creating folder %q: %w", fc.Path, err)
			}
			continue
		}
		existing.Enabled = fc.Enabled
		existing.Recursive = fc.Recursive
		existing.PresetID = fc.PresetID
		existing.AutoExecute = fc.AutoExecute
		if err := e.folders.Update(ctx, existing); err != nil {
			return fmt.Errorf("updating folder %q: %w", fc.Path, err)
		}
	}
	return nil
}

// Start schedules sweeps at the configured poll interval and blocks until the
// context is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.cron = cron.New()
	_, err := e.cron.AddFunc(fmt.Sprintf("@every %s", e.cfg.PollInterval), func() {
		if err := e.Sweep(ctx); err != nil {
			e.logger.Error("sweep failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling sweeps: %w", err)
	}
	e.cron.Start()
	e.logger.Info("watch-folder engine started", slog.Duration("poll_interval", e.cfg.PollInterval))

	<-ctx.Done()
	<-e.cron.Stop().Done()
	return nil
}

// Sweep runs one poll pass over every enabled folder. Per-file failures are
// logged and skipped; a sweep never aborts on a single bad file.
func (e *Engine) Sweep(ctx context.Context) error {
	folders, err := e.folders.GetEnabled(ctx)
	if err != nil {
		return fmt.Errorf("listing enabled folders: %w", err)
	}
	for _, folder := range folders {
		e.sweepFolder(ctx, folder)
	}
	return nil
}

func (e *Engine) sweepFolder(ctx context.Context, folder *models.WatchFolder) {
	log := e.logger.With(slog.String("folder", folder.Path))

	candidates, err := e.scanBounded(folder)
	if err != nil {
		log.Warn("scan failed", slog.String("error", err.Error()))
		return
	}

	for _, cand := range candidates {
		done, err := e.processed.IsProcessed(ctx, cand.path)
		if err != nil {
			log.Warn("dedupe lookup failed", slog.String("error", err.Error()))
			continue
		}
		if done {
			continue
		}

		check := e.tracker.Observe(cand.path, cand.info)
		if !check.Stable {
			log.Debug("file not yet stable",
				slog.String("file", cand.path),
				slog.String("reason", check.Reason),
			)
			continue
		}

		e.ingestFile(ctx, folder, cand.path, log)
	}
}

// scanBounded runs the filesystem walk under the scan timeout so a hung
// network mount cannot stall the sweep loop.
func (e *Engine) scanBounded(folder *models.WatchFolder) ([]candidate, error) {
	type scanResult struct {
		candidates []candidate
		err        error
	}
	results := make(chan scanResult, 1)
	go func() {
		cands, err := scanFolder(folder.Path, folder.Recursive)
		results <- scanResult{cands, err}
	}()

	if e.cfg.ScanTimeout <= 0 {
		res := <-results
		return res.candidates, res.err
	}

	select {
	case res := <-results:
		return res.candidates, res.err
	case <-time.After(e.cfg.ScanTimeout):
		return nil, fmt.Errorf("scan of %q exceeded %s", folder.Path, e.cfg.ScanTimeout)
	}
}

// ingestFile creates a one-clip pending job for a stable file. Validation
// errors mark the file processed so it is not retried every sweep; transient
// errors leave it for the next pass.
func (e *Engine) ingestFile(ctx context.Context, folder *models.WatchFolder, path string, log *slog.Logger) {
	outDir := filepath.Join(folder.Path, proxySubdir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Warn("creating proxy directory failed", slog.String("error", err.Error()))
		return
	}

	job, err := e.creator.Create(ctx, ingest.Request{
		SourcePaths:       []string{path},
		PresetID:          folder.PresetID,
		OutputDirOverride: &outDir,
	})
	if err != nil {
		if _, ok := models.AsValidationError(err); ok {
			log.Warn("file rejected at ingest",
				slog.String("file", path),
				slog.String("error", err.Error()),
			)
			e.markProcessed(ctx, folder, path, log)
			e.tracker.Forget(path)
		} else {
			log.Warn("ingest failed, will retry",
				slog.String("file", path),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	e.markProcessed(ctx, folder, path, log)
	e.tracker.Forget(path)
	log.Info("file ingested",
		slog.String("file", path),
		slog.String("job_id", job.ID.String()),
	)

	if folder.AutoExecute {
		e.maybeAutoExecute(ctx, folder, job, log)
	}
}

func (e *Engine) markProcessed(ctx context.Context, folder *models.WatchFolder, path string, log *slog.Logger) {
	if err := e.processed.MarkProcessed(ctx, path, folder.ID); err != nil {
		log.Warn("recording processed file failed", slog.String("error", err.Error()))
	}
}

// maybeAutoExecute starts the freshly ingested job when every gate passes.
// Each denial is logged with its reason; the job stays pending for manual
// start.
func (e *Engine) maybeAutoExecute(ctx context.Context, folder *models.WatchFolder, job *models.Job, log *slog.Logger) {
	if job.Status != models.JobStatusPending {
		log.Info("auto-execute denied", slog.String("reason", fmt.Sprintf("job is %s", job.Status)))
		return
	}
	if folder.PresetID == "" {
		log.Info("auto-execute denied", slog.String("reason", "no preset bound to folder"))
		return
	}

	free, err := e.freeDisk(folder.Path)
	if err != nil {
		log.Warn("auto-execute denied", slog.String("reason", "disk usage query failed: "+err.Error()))
		return
	}
	if free < uint64(e.auto.MinFreeDisk) {
		log.Info("auto-execute denied",
			slog.String("reason", "insufficient free disk"),
			slog.Uint64("free_bytes", free),
			slog.Uint64("required_bytes", uint64(e.auto.MinFreeDisk)),
		)
		return
	}

	running, err := e.jobs.CountRunning(ctx)
	if err != nil {
		log.Warn("auto-execute denied", slog.String("reason", "running-job query failed: "+err.Error()))
		return
	}
	if running >= int64(e.auto.MaxConcurrentJobs) {
		log.Info("auto-execute denied",
			slog.String("reason", "concurrent job limit reached"),
			slog.Int64("running", running),
			slog.Int("limit", e.auto.MaxConcurrentJobs),
		)
		return
	}

	if err := e.starter.StartJob(ctx, job.ID); err != nil {
		log.Warn("auto-execute start failed", slog.String("error", err.Error()))
		return
	}
	log.Info("auto-execute started", slog.String("job_id", job.ID.String()))
}
