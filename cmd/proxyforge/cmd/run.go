package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/proxyforge/proxyforge/internal/ingest"
	"github.com/proxyforge/proxyforge/internal/jobspec"
	"github.com/proxyforge/proxyforge/internal/models"
)

var runCmd = &cobra.Command{
	Use:   "run <jobspec.json>",
	Short: "Create a job from a JobSpec file and execute it to completion",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fail(exitIO, "%v", err)
	}
	logger := slog.Default()
	ctx := cmd.Context()

	spec, err := jobspec.Load(args[0])
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return fail(exitIO, "%v", err)
		}
		return fail(exitValidation, "%v", err)
	}
	if err := spec.Validate(); err != nil {
		return fail(exitValidation, "%v", err)
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return fail(exitIO, "%v", err)
	}
	defer a.Close()

	if ok, verr := a.enforcer.Heartbeat(a.workerID, nil); !ok {
		return fail(exitExecution, "worker refused by license: %s", verr.Message)
	}

	settings := spec.Settings()
	job, err := a.ingest.Create(ctx, ingest.Request{
		SourcePaths: spec.Sources,
		Settings:    &settings,
	})
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) || errors.Is(err, ingest.ErrResolveNotSupported) {
			return fail(exitValidation, "%v", err)
		}
		return fail(exitIO, "%v", err)
	}

	// Ingest can return a terminal job without an error (Resolve unavailable,
	// edition mismatch). Nothing to execute then.
	if job.Status == models.JobStatusPending {
		if err := a.sched.StartJob(ctx, job.ID); err != nil {
			return fail(exitExecution, "starting job: %v", err)
		}
		a.sched.Wait()

		job, err = a.jobs.GetByID(ctx, job.ID)
		if err != nil {
			return fail(exitIO, "reading final job state: %v", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "job %s finished: %s\n", job.ID, job.Status)
	switch job.Status {
	case models.JobStatusCompleted, models.JobStatusSkipped:
		return nil
	case models.JobStatusPartial:
		return fail(exitPartial, "job %s completed partially", job.ID)
	default:
		return fail(exitExecution, "job %s ended %s: %s", job.ID, job.Status, job.FailureReason)
	}
}
