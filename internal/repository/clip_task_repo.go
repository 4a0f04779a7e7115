package repository

import (
	"context"
	"fmt"

	"github.com/proxyforge/proxyforge/internal/models"
	"gorm.io/gorm"
)

// clipTaskRepo implements ClipTaskRepository using GORM.
type clipTaskRepo struct {
	db *gorm.DB
}

// NewClipTaskRepository creates a new ClipTaskRepository.
func NewClipTaskRepository(db *gorm.DB) *clipTaskRepo {
	return &clipTaskRepo{db: db}
}

var _ ClipTaskRepository = (*clipTaskRepo)(nil)

// GetByJobID retrieves a job's tasks ordered by position.
func (r *clipTaskRepo) GetByJobID(ctx context.Context, jobID models.UUID) ([]*models.ClipTask, error) {
	var tasks []*models.ClipTask
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("position ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("getting tasks by job id: %w", err)
	}
	return tasks, nil
}

// Update persists a task row.
func (r *clipTaskRepo) Update(ctx context.Context, task *models.ClipTask) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("updating clip task: %w", err)
	}
	return nil
}

// UpdateBatch persists multiple task rows in one transaction.
func (r *clipTaskRepo) UpdateBatch(ctx context.Context, tasks []*models.ClipTask) error {
	if len(tasks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, task := range tasks {
			if err := tx.Save(task).Error; err != nil {
				return fmt.Errorf("updating clip task %s: %w", task.ID, err)
			}
		}
		return nil
	})
}
