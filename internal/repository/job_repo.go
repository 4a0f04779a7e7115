package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/proxyforge/proxyforge/internal/models"
	"gorm.io/gorm"
)

// jobRepo implements JobRepository using GORM.
type jobRepo struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *jobRepo {
	return &jobRepo{db: db}
}

var _ JobRepository = (*jobRepo)(nil)

// CreateWithTasks persists the job, its tasks, and the optional preset
// binding atomically. GORM creates the associated tasks with the job row.
func (r *jobRepo) CreateWithTasks(ctx context.Context, job *models.Job, binding *models.JobPresetBinding) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("creating job: %w", err)
		}
		if binding != nil {
			binding.JobID = job.ID
			if err := tx.Create(binding).Error; err != nil {
				return fmt.Errorf("creating preset binding: %w", err)
			}
		}
		return nil
	})
}

// GetByID retrieves a job with its tasks preloaded in position order.
func (r *jobRepo) GetByID(ctx context.Context, id models.UUID) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ?", id).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrJobNotFound
		}
		return nil, fmt.Errorf("getting job by id: %w", err)
	}
	return &job, nil
}

// GetAll retrieves all jobs with tasks, newest first.
func (r *jobRepo) GetAll(ctx context.Context) ([]*models.Job, error) {
	var jobs []*models.Job
	err := r.db.WithContext(ctx).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Order("created_at DESC, id DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("getting all jobs: %w", err)
	}
	return jobs, nil
}

// GetByStatus retrieves jobs in the given status, oldest first.
func (r *jobRepo) GetByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	var jobs []*models.Job
	err := r.db.WithContext(ctx).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("status = ?", status).
		Order("created_at ASC, id ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("getting jobs by status: %w", err)
	}
	return jobs, nil
}

// NextPending returns the head of the FIFO queue: the oldest pending job,
// ties broken by id so the order is total and stable.
func (r *jobRepo) NextPending(ctx context.Context) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("status = ?", models.JobStatusPending).
		Order("created_at ASC, id ASC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting next pending job: %w", err)
	}
	return &job, nil
}

// AnyRunning reports whether any job is currently running.
func (r *jobRepo) AnyRunning(ctx context.Context) (bool, error) {
	count, err := r.CountRunning(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountRunning returns how many jobs are currently running.
func (r *jobRepo) CountRunning(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("status = ?", models.JobStatusRunning).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting running jobs: %w", err)
	}
	return count, nil
}

// Update persists the job row only.
func (r *jobRepo) Update(ctx context.Context, job *models.Job) error {
	err := r.db.WithContext(ctx).
		Omit("Tasks").
		Save(job).Error
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	return nil
}

// DeleteTerminal deletes all terminal jobs. Tasks and bindings go with them
// through the cascade; timeline events for removed jobs are deleted too so
// the store does not accumulate orphaned history.
func (r *jobRepo) DeleteTerminal(ctx context.Context) (int64, error) {
	terminal := []models.JobStatus{
		models.JobStatusCompleted,
		models.JobStatusFailed,
		models.JobStatusPartial,
		models.JobStatusCancelled,
		models.JobStatusSkipped,
	}

	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []models.UUID
		if err := tx.Model(&models.Job{}).
			Where("status IN ?", terminal).
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("listing terminal jobs: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("job_id IN ?", ids).Delete(&models.ClipTask{}).Error; err != nil {
			return fmt.Errorf("deleting clip tasks: %w", err)
		}
		if err := tx.Where("job_id IN ?", ids).Delete(&models.JobPresetBinding{}).Error; err != nil {
			return fmt.Errorf("deleting preset bindings: %w", err)
		}
		if err := tx.Where("job_id IN ?", ids).Delete(&models.ExecutionEvent{}).Error; err != nil {
			return fmt.Errorf("deleting execution events: %w", err)
		}

		result := tx.Where("id IN ?", ids).Delete(&models.Job{})
		if result.Error != nil {
			return fmt.Errorf("deleting jobs: %w", result.Error)
		}
		removed = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
