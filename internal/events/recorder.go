// Package events provides the per-job execution timeline recorder.
// Recording is a best-effort side observation: a failed append is logged and
// swallowed so observation never destabilises execution.
package events

import (
	"context"
	"log/slog"

	"github.com/proxyforge/proxyforge/internal/models"
	"github.com/proxyforge/proxyforge/internal/repository"
)

// Recorder appends timeline entries for a single job.
type Recorder struct {
	jobID  models.UUID
	repo   repository.EventRepository
	logger *slog.Logger
}

// NewRecorder creates a recorder owned by one job.
func NewRecorder(jobID models.UUID, repo repository.EventRepository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		jobID:  jobID,
		repo:   repo,
		logger: logger.With(slog.String("job_id", jobID.String())),
	}
}

// JobID returns the owning job's id.
func (r *Recorder) JobID() models.UUID {
	return r.jobID
}

// Record appends an event. It never returns an error.
func (r *Recorder) Record(ctx context.Context, eventType models.EventType, clipID *models.UUID, message string) {
	event := &models.ExecutionEvent{
		JobID:   r.jobID,
		Type:    eventType,
		ClipID:  clipID,
		Message: message,
	}
	if err := r.repo.Append(ctx, event); err != nil {
		r.logger.Warn("failed to record execution event",
			slog.String("event_type", string(eventType)),
			slog.String("error", err.Error()),
		)
	}
}

// Snapshot returns the job's timeline in recorded order. A limit of 0 means
// the full timeline.
func (r *Recorder) Snapshot(ctx context.Context, limit int) ([]*models.ExecutionEvent, error) {
	return r.repo.GetByJobID(ctx, r.jobID, limit)
}
