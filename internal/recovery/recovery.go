// Package recovery reconciles persisted state with reality at startup. A job
// found RUNNING or PAUSED after a restart cannot still be executing; it is
// failed honestly rather than silently resumed.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/proxyforge/proxyforge/internal/models"
	"github.com/proxyforge/proxyforge/internal/repository"
)

// Manager fails interrupted jobs on startup.
type Manager struct {
	jobs   repository.JobRepository
	tasks  repository.ClipTaskRepository
	events repository.EventRepository
	logger *slog.Logger
}

// New creates a recovery manager.
func New(jobs repository.JobRepository, tasks repository.ClipTaskRepository, events repository.EventRepository, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		jobs:   jobs,
		tasks:  tasks,
		events: events,
		logger: logger.With(slog.String("component", "recovery")),
	}
}

// Run sweeps RUNNING and PAUSED jobs into FAILED and returns how many were
// recovered. Pending and terminal jobs are untouched. Run is idempotent; a
// second sweep finds nothing.
func (m *Manager) Run(ctx context.Context) (int, error) {
	recovered := 0
	for _, status := range []models.JobStatus{models.JobStatusRunning, models.JobStatusPaused} {
		jobs, err := m.jobs.GetByStatus(ctx, status)
		if err != nil {
			return recovered, fmt.Errorf("listing %s jobs: %w", status, err)
		}
		for _, job := range jobs {
			if err := m.recoverJob(ctx, job); err != nil {
				return recovered, err
			}
			recovered++
		}
	}
	if recovered > 0 {
		m.logger.Info("recovered interrupted jobs", slog.Int("count", recovered))
	}
	return recovered, nil
}

func (m *Manager) recoverJob(ctx context.Context, job *models.Job) error {
	reason := models.ExecutionFailure(models.TagInterruptedByRestart, "service restarted during execution")

	for i := range job.Tasks {
		task := &job.Tasks[i]
		if task.Status.IsTerminal() {
			continue
		}
		// Queued tasks never ran; they fail with the same reason so the
		// operator sees one consistent cause across the job.
		if err := task.MarkFailed(reason); err != nil {
			return fmt.Errorf("failing task %s: %w", task.ID, err)
		}
		if err := m.tasks.Update(ctx, task); err != nil {
			return fmt.Errorf("persisting task %s: %w", task.ID, err)
		}
	}

	if err := job.MarkFailed(reason); err != nil {
		return fmt.Errorf("failing job %s: %w", job.ID, err)
	}
	if err := m.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persisting job %s: %w", job.ID, err)
	}

	err := m.events.Append(ctx, &models.ExecutionEvent{
		JobID:   job.ID,
		Type:    models.EventExecutionFailed,
		Message: reason,
	})
	if err != nil {
		m.logger.Warn("failed to append recovery event",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	m.logger.Warn("interrupted job failed on recovery", slog.String("job_id", job.ID.String()))
	return nil
}
