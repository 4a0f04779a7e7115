package models

import (
	"time"

	"gorm.io/gorm"
)

// WatchFolder is a monitored directory that ingests newly stable files as
// pending jobs. AutoExecute is advisory only: the core never starts a job
// automatically unless the flag is set, a preset is bound, and every gating
// check passes.
type WatchFolder struct {
	ID UUID `gorm:"primarykey;type:varchar(36)" json:"id"`

	Path        string `gorm:"not null;size:4096;uniqueIndex" json:"path"`
	Enabled     bool   `gorm:"not null" json:"enabled"`
	Recursive   bool   `gorm:"not null;default:false" json:"recursive"`
	PresetID    string `gorm:"size:255" json:"preset_id,omitempty"`
	AutoExecute bool   `gorm:"not null;default:false" json:"auto_execute"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for WatchFolder.
func (WatchFolder) TableName() string {
	return "watch_folders"
}

// BeforeCreate generates a UUID and creation instant if not already set.
func (w *WatchFolder) BeforeCreate(tx *gorm.DB) error {
	if w.ID.IsZero() {
		w.ID = NewUUID()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = Now()
	}
	return nil
}

// ProcessedFile is a ledger entry guaranteeing the watch-folder engine
// creates at most one job per source path per lifetime. The absolute path is
// the unique key.
type ProcessedFile struct {
	FilePath      string    `gorm:"primarykey;size:4096" json:"file_path"`
	WatchFolderID UUID      `gorm:"not null;type:varchar(36);index" json:"watch_folder_id"`
	ProcessedAt   time.Time `gorm:"not null" json:"processed_at"`
}

// TableName returns the table name for ProcessedFile.
func (ProcessedFile) TableName() string {
	return "processed_files"
}

// BeforeCreate stamps the processed instant if not already set.
func (p *ProcessedFile) BeforeCreate(tx *gorm.DB) error {
	if p.ProcessedAt.IsZero() {
		p.ProcessedAt = Now()
	}
	return nil
}

// JobPresetBinding maps a job to the preset it was created from. The binding
// is recorded once and never mutated; deletion cascades with the job.
type JobPresetBinding struct {
	JobID    UUID      `gorm:"primarykey;type:varchar(36)" json:"job_id"`
	PresetID string    `gorm:"not null;size:255" json:"preset_id"`
	BoundAt  time.Time `gorm:"not null" json:"bound_at"`
}

// TableName returns the table name for JobPresetBinding.
func (JobPresetBinding) TableName() string {
	return "preset_bindings"
}

// BeforeCreate stamps the binding instant if not already set.
func (b *JobPresetBinding) BeforeCreate(tx *gorm.DB) error {
	if b.BoundAt.IsZero() {
		b.BoundAt = Now()
	}
	return nil
}
