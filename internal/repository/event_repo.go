package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/proxyforge/proxyforge/internal/models"
	"gorm.io/gorm"
)

// eventRepo implements EventRepository using GORM. The table is append-only;
// no update or delete methods exist on the interface.
type eventRepo struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *gorm.DB) *eventRepo {
	return &eventRepo{db: db}
}

var _ EventRepository = (*eventRepo)(nil)

// Append records an event.
func (r *eventRepo) Append(ctx context.Context, event *models.ExecutionEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("appending execution event: %w", err)
	}
	return nil
}

// GetByJobID returns a job's timeline. Event ids are ULIDs, so ordering by
// id within an instant reproduces insertion order.
func (r *eventRepo) GetByJobID(ctx context.Context, jobID models.UUID, limit int) ([]*models.ExecutionEvent, error) {
	query := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("recorded_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var events []*models.ExecutionEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("getting events by job id: %w", err)
	}
	return events, nil
}

// GetByJobIDSince returns a job's events recorded at or after since.
func (r *eventRepo) GetByJobIDSince(ctx context.Context, jobID models.UUID, since time.Time) ([]*models.ExecutionEvent, error) {
	var events []*models.ExecutionEvent
	err := r.db.WithContext(ctx).
		Where("job_id = ? AND recorded_at >= ?", jobID, since).
		Order("recorded_at ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("getting events since: %w", err)
	}
	return events, nil
}
