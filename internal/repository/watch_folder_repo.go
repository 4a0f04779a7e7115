package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/proxyforge/proxyforge/internal/models"
	"gorm.io/gorm"
)

// watchFolderRepo implements WatchFolderRepository using GORM.
type watchFolderRepo struct {
	db *gorm.DB
}

// NewWatchFolderRepository creates a new WatchFolderRepository.
func NewWatchFolderRepository(db *gorm.DB) *watchFolderRepo {
	return &watchFolderRepo{db: db}
}

var _ WatchFolderRepository = (*watchFolderRepo)(nil)

// Create creates a new watch folder.
func (r *watchFolderRepo) Create(ctx context.Context, folder *models.WatchFolder) error {
	if err := r.db.WithContext(ctx).Create(folder).Error; err != nil {
		return fmt.Errorf("creating watch folder: %w", err)
	}
	return nil
}

// GetByID retrieves a watch folder by id.
func (r *watchFolderRepo) GetByID(ctx context.Context, id models.UUID) (*models.WatchFolder, error) {
	var folder models.WatchFolder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&folder).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting watch folder by id: %w", err)
	}
	return &folder, nil
}

// GetByPath retrieves a watch folder by its configured path.
func (r *watchFolderRepo) GetByPath(ctx context.Context, path string) (*models.WatchFolder, error) {
	var folder models.WatchFolder
	if err := r.db.WithContext(ctx).Where("path = ?", path).First(&folder).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting watch folder by path: %w", err)
	}
	return &folder, nil
}

// GetEnabled retrieves all enabled watch folders.
func (r *watchFolderRepo) GetEnabled(ctx context.Context) ([]*models.WatchFolder, error) {
	var folders []*models.WatchFolder
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("created_at ASC").
		Find(&folders).Error
	if err != nil {
		return nil, fmt.Errorf("getting enabled watch folders: %w", err)
	}
	return folders, nil
}

// GetAll retrieves all watch folders.
func (r *watchFolderRepo) GetAll(ctx context.Context) ([]*models.WatchFolder, error) {
	var folders []*models.WatchFolder
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&folders).Error; err != nil {
		return nil, fmt.Errorf("getting all watch folders: %w", err)
	}
	return folders, nil
}

// Update updates an existing watch folder.
func (r *watchFolderRepo) Update(ctx context.Context, folder *models.WatchFolder) error {
	if err := r.db.WithContext(ctx).Save(folder).Error; err != nil {
		return fmt.Errorf("updating watch folder: %w", err)
	}
	return nil
}

// Delete deletes a watch folder by id. The processed-file ledger is kept so
// re-adding the same folder does not re-ingest old files.
func (r *watchFolderRepo) Delete(ctx context.Context, id models.UUID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.WatchFolder{}).Error; err != nil {
		return fmt.Errorf("deleting watch folder: %w", err)
	}
	return nil
}
