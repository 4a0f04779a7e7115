package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/proxyforge/proxyforge/internal/config"
	"github.com/proxyforge/proxyforge/internal/watchfolder"
)

var (
	watchPollSeconds int
	watchMaxWorkers  int
	watchOnce        bool
	watchPreset      string
	watchRecursive   bool
	watchAutoExecute bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <folder>",
	Short: "Watch a folder and create jobs for stable media files",
	Long: `Polls the folder for new media files, waits until each file is stable,
and creates a one-clip job per file. With --auto-execute the job is also
started when the automation gates pass. Proxies land in a "proxies"
subdirectory of the watched folder.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchPollSeconds, "poll-seconds", 0, "poll interval in seconds (default from config)")
	watchCmd.Flags().IntVar(&watchMaxWorkers, "max-workers", 0, "cap on concurrently running jobs for auto-execution (default from config)")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "run one stability cycle of sweeps and exit")
	watchCmd.Flags().StringVar(&watchPreset, "preset", "proxy_h264_medium", "proxy profile bound to the folder")
	watchCmd.Flags().BoolVar(&watchRecursive, "recursive", false, "descend into subdirectories")
	watchCmd.Flags().BoolVar(&watchAutoExecute, "auto-execute", true, "start created jobs when the automation gates pass")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fail(exitIO, "%v", err)
	}
	logger := slog.Default()

	folder, err := filepath.Abs(args[0])
	if err != nil {
		return fail(exitIO, "resolving folder path: %v", err)
	}
	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return fail(exitIO, "%q is not a directory", folder)
	}

	if watchPollSeconds > 0 {
		cfg.Watch.PollInterval = time.Duration(watchPollSeconds) * time.Second
	}
	if watchMaxWorkers > 0 {
		cfg.Automation.MaxConcurrentJobs = watchMaxWorkers
	}
	// The positional folder replaces any folders from the config file.
	cfg.Watch.Folders = []config.FolderConfig{{
		Path:        folder,
		Enabled:     true,
		Recursive:   watchRecursive,
		PresetID:    watchPreset,
		AutoExecute: watchAutoExecute,
	}}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return fail(exitIO, "%v", err)
	}
	defer a.Close()

	if ok, verr := a.enforcer.Heartbeat(a.workerID, nil); !ok {
		return fail(exitExecution, "worker refused by license: %s", verr.Message)
	}

	watcher := watchfolder.New(a.folders, a.procs, a.jobs, a.ingest, a.sched, cfg.Watch, cfg.Automation, logger)
	if err := watcher.SyncFolders(ctx); err != nil {
		return fail(exitIO, "syncing watch folders: %v", err)
	}

	if watchOnce {
		// A file needs one observation plus required_stable_checks unchanged
		// sizes before it counts as stable, so a one-shot run sweeps that many
		// times with the poll interval between passes.
		sweeps := cfg.Watch.RequiredStableChecks + 1
		for i := range sweeps {
			if i > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(cfg.Watch.PollInterval):
				}
			}
			if err := watcher.Sweep(ctx); err != nil {
				return fail(exitIO, "sweep: %v", err)
			}
		}
		a.sched.Wait()
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		return fail(exitExecution, "watch-folder engine: %v", err)
	}
	a.sched.Wait()
	return nil
}
