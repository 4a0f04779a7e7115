package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/proxyforge/proxyforge/internal/models"
	"gorm.io/gorm"
)

// bindingRepo implements BindingRepository using GORM.
type bindingRepo struct {
	db *gorm.DB
}

// NewBindingRepository creates a new BindingRepository.
func NewBindingRepository(db *gorm.DB) *bindingRepo {
	return &bindingRepo{db: db}
}

var _ BindingRepository = (*bindingRepo)(nil)

// GetByJobID retrieves the binding for a job, or nil when the job was not
// created from a preset.
func (r *bindingRepo) GetByJobID(ctx context.Context, jobID models.UUID) (*models.JobPresetBinding, error) {
	var binding models.JobPresetBinding
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&binding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting preset binding: %w", err)
	}
	return &binding, nil
}
