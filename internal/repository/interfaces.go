// Package repository defines data access interfaces for proxyforge entities.
// All database access goes through these interfaces, enabling easy testing.
package repository

import (
	"context"
	"time"

	"github.com/proxyforge/proxyforge/internal/models"
)

// JobRepository defines operations for job persistence.
type JobRepository interface {
	// CreateWithTasks persists a job, its clip tasks, and its optional preset
	// binding in a single transaction. Either everything lands or nothing does.
	CreateWithTasks(ctx context.Context, job *models.Job, binding *models.JobPresetBinding) error
	// GetByID retrieves a job with its tasks preloaded.
	// Returns models.ErrJobNotFound when no job has that id.
	GetByID(ctx context.Context, id models.UUID) (*models.Job, error)
	// GetAll retrieves all jobs with tasks, newest first.
	GetAll(ctx context.Context) ([]*models.Job, error)
	// GetByStatus retrieves jobs in the given status, oldest first.
	GetByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)
	// NextPending returns the oldest pending job, ties broken by id.
	// Returns nil when no job is pending.
	NextPending(ctx context.Context) (*models.Job, error)
	// AnyRunning reports whether any job is currently running.
	AnyRunning(ctx context.Context) (bool, error)
	// CountRunning returns how many jobs are currently running.
	CountRunning(ctx context.Context) (int64, error)
	// Update persists the job row. Task rows are not touched.
	Update(ctx context.Context, job *models.Job) error
	// DeleteTerminal deletes all jobs in terminal states, cascading to their
	// tasks and bindings, and returns how many jobs were removed.
	DeleteTerminal(ctx context.Context) (int64, error)
}

// ClipTaskRepository defines operations for clip task persistence.
type ClipTaskRepository interface {
	// GetByJobID retrieves a job's tasks ordered by position.
	GetByJobID(ctx context.Context, jobID models.UUID) ([]*models.ClipTask, error)
	// Update persists a task row.
	Update(ctx context.Context, task *models.ClipTask) error
	// UpdateBatch persists multiple task rows in one transaction.
	UpdateBatch(ctx context.Context, tasks []*models.ClipTask) error
}

// WatchFolderRepository defines operations for watch folder persistence.
type WatchFolderRepository interface {
	// Create creates a new watch folder.
	Create(ctx context.Context, folder *models.WatchFolder) error
	// GetByID retrieves a watch folder by id.
	GetByID(ctx context.Context, id models.UUID) (*models.WatchFolder, error)
	// GetByPath retrieves a watch folder by its configured path.
	GetByPath(ctx context.Context, path string) (*models.WatchFolder, error)
	// GetEnabled retrieves all enabled watch folders.
	GetEnabled(ctx context.Context) ([]*models.WatchFolder, error)
	// GetAll retrieves all watch folders.
	GetAll(ctx context.Context) ([]*models.WatchFolder, error)
	// Update updates an existing watch folder.
	Update(ctx context.Context, folder *models.WatchFolder) error
	// Delete deletes a watch folder by id.
	Delete(ctx context.Context, id models.UUID) error
}

// ProcessedFileRepository is the dedupe ledger for the watch-folder engine.
type ProcessedFileRepository interface {
	// IsProcessed reports whether a source path has already produced a job.
	IsProcessed(ctx context.Context, path string) (bool, error)
	// MarkProcessed records a source path. Recording an already-recorded
	// path is a no-op.
	MarkProcessed(ctx context.Context, path string, folderID models.UUID) error
	// CountForFolder returns how many files a folder has ingested.
	CountForFolder(ctx context.Context, folderID models.UUID) (int64, error)
}

// EventRepository is the append-only store for execution timeline entries.
type EventRepository interface {
	// Append records an event. Events are never updated or deleted.
	Append(ctx context.Context, event *models.ExecutionEvent) error
	// GetByJobID returns a job's events ordered by recorded instant, ties
	// broken by event id. A limit of 0 means no limit.
	GetByJobID(ctx context.Context, jobID models.UUID, limit int) ([]*models.ExecutionEvent, error)
	// GetByJobIDSince returns a job's events recorded at or after the given
	// instant, in timeline order.
	GetByJobIDSince(ctx context.Context, jobID models.UUID, since time.Time) ([]*models.ExecutionEvent, error)
}

// BindingRepository defines operations for job preset bindings.
type BindingRepository interface {
	// GetByJobID retrieves the binding for a job, or nil if the job was not
	// created from a preset.
	GetByJobID(ctx context.Context, jobID models.UUID) (*models.JobPresetBinding, error)
}
