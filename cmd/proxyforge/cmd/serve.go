package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/proxyforge/proxyforge/internal/http"
	"github.com/proxyforge/proxyforge/internal/http/handlers"
	"github.com/proxyforge/proxyforge/internal/version"
	"github.com/proxyforge/proxyforge/internal/watchfolder"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxyforge service",
	Long: `Starts the HTTP control and monitor surfaces, the scheduler, and the
watch-folder engine, and blocks until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fail(exitIO, "%v", err)
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return fail(exitIO, "%v", err)
	}
	defer a.Close()

	// Register this process's worker against the license before anything
	// dispatches.
	if ok, verr := a.enforcer.Heartbeat(a.workerID, nil); !ok {
		return fail(exitExecution, "worker refused by license: %s", verr.Message)
	}
	defer a.enforcer.Deregister(a.workerID)

	go heartbeatLoop(ctx, a, cfg.License.HeartbeatInterval, cfg.License.OfflineThreshold)

	watcher := watchfolder.New(a.folders, a.procs, a.jobs, a.ingest, a.sched, cfg.Watch, cfg.Automation, logger)
	if err := watcher.SyncFolders(ctx); err != nil {
		return fail(exitIO, "syncing watch folders: %v", err)
	}

	srv := httpserver.NewServer(cfg.Server, logger, version.Short())
	handlers.NewControlHandler(a.ingest, a.sched, a.jobs).Register(srv.API())
	handlers.NewMonitorHandler(a.queries, a.enforcer, version.Short(), "/").Register(srv.API())

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- watcher.Start(ctx)
	}()

	logger.Info("proxyforge started",
		slog.String("version", version.Short()),
		slog.String("worker_id", a.workerID),
		slog.String("license_tier", string(a.enforcer.License().Tier)),
	)

	if err := srv.ListenAndServe(ctx); err != nil {
		return fail(exitExecution, "http server: %v", err)
	}

	stop()
	if err := <-watchErr; err != nil {
		logger.Warn("watch-folder engine stopped with error", slog.String("error", err.Error()))
	}
	a.sched.Wait()

	logger.Info("proxyforge stopped")
	return nil
}

// heartbeatLoop keeps this process's worker slot alive and purges workers
// whose last heartbeat passed the offline threshold.
func heartbeatLoop(ctx context.Context, a *app, interval, offlineAfter time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.enforcer.Refresh(a.workerID)
			for _, id := range a.enforcer.PurgeStale(offlineAfter) {
				a.logger.Warn("worker purged as offline", slog.String("worker_id", id))
			}
		}
	}
}
