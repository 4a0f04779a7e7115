package repository

import (
	"context"
	"fmt"

	"github.com/proxyforge/proxyforge/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// processedFileRepo implements ProcessedFileRepository using GORM. The
// file_path primary key gives the dedupe check an index lookup regardless of
// ledger size.
type processedFileRepo struct {
	db *gorm.DB
}

// NewProcessedFileRepository creates a new ProcessedFileRepository.
func NewProcessedFileRepository(db *gorm.DB) *processedFileRepo {
	return &processedFileRepo{db: db}
}

var _ ProcessedFileRepository = (*processedFileRepo)(nil)

// IsProcessed reports whether a source path has already produced a job.
func (r *processedFileRepo) IsProcessed(ctx context.Context, path string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProcessedFile{}).
		Where("file_path = ?", path).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking processed file: %w", err)
	}
	return count > 0, nil
}

// MarkProcessed records a source path, ignoring conflicts so concurrent
// polls of the same folder cannot fail on the same new file.
func (r *processedFileRepo) MarkProcessed(ctx context.Context, path string, folderID models.UUID) error {
	record := models.ProcessedFile{
		FilePath:      path,
		WatchFolderID: folderID,
		ProcessedAt:   models.Now(),
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("marking file processed: %w", err)
	}
	return nil
}

// CountForFolder returns how many files a folder has ingested.
func (r *processedFileRepo) CountForFolder(ctx context.Context, folderID models.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProcessedFile{}).
		Where("watch_folder_id = ?", folderID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting processed files: %w", err)
	}
	return count, nil
}
