package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// TaskStatus represents the lifecycle state of a single clip task.
// Transitions form a DAG: queued -> running -> {completed, failed}; queued may
// also go directly to skipped when the job is cancelled.
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusSkipped   TaskStatus = "skipped"
)

// IsTerminal returns true for absorbing task states.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped:
		return true
	}
	return false
}

// DeliveryStage is the coarse, monotone phase indicator on a running task.
type DeliveryStage string

const (
	StageQueued     DeliveryStage = "queued"
	StageStarting   DeliveryStage = "starting"
	StageEncoding   DeliveryStage = "encoding"
	StageFinalizing DeliveryStage = "finalizing"
	StageCompleted  DeliveryStage = "completed"
	StageFailed     DeliveryStage = "failed"
)

// stageRank orders delivery stages; within a running task the stage only
// advances.
var stageRank = map[DeliveryStage]int{
	StageQueued:     0,
	StageStarting:   1,
	StageEncoding:   2,
	StageFinalizing: 3,
	StageCompleted:  4,
	StageFailed:     4,
}

// MediaInfo is the optional metadata captured for a source at ingest time.
type MediaInfo struct {
	Resolution string  `json:"resolution,omitempty"`
	Codec      string  `json:"codec,omitempty"`
	Container  string  `json:"container,omitempty"`
	Fps        float64 `json:"fps,omitempty"`
	DurationMs int64   `json:"duration_ms,omitempty"`
	Audio      string  `json:"audio,omitempty"`
	ColorSpace string  `json:"color_space,omitempty"`
}

// Value implements driver.Valuer.
func (m MediaInfo) Value() (driver.Value, error) {
	return jsonValue(m, "media info")
}

// Scan implements sql.Scanner.
func (m *MediaInfo) Scan(value any) error {
	return scanJSON(value, m, "media info")
}

// GormDataType returns the GORM data type for MediaInfo.
func (MediaInfo) GormDataType() string {
	return "text"
}

// ClipTask is one source clip within a job. Tasks execute in Position order.
type ClipTask struct {
	ID    UUID `gorm:"primarykey;type:varchar(36)" json:"id"`
	JobID UUID `gorm:"not null;type:varchar(36);index" json:"job_id"`

	// Position is the zero-based order of the task within its job.
	Position int `gorm:"not null" json:"position"`

	SourcePath string `gorm:"not null;size:4096" json:"source_path"`
	OutputPath string `gorm:"size:4096" json:"output_path,omitempty"`

	Status        TaskStatus    `gorm:"not null;default:'queued';size:20;index" json:"status"`
	DeliveryStage DeliveryStage `gorm:"not null;default:'queued';size:20" json:"delivery_stage"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// FailureReason is set only when status is failed.
	FailureReason string `gorm:"size:4096" json:"failure_reason,omitempty"`

	// Warnings is ordered and append-only.
	Warnings StringList `json:"warnings,omitempty"`

	// RetryCount is recorded but never incremented by the core; retry is an
	// operator decision performed by creating a new job.
	RetryCount int `gorm:"not null;default:0" json:"retry_count"`

	// ProgressPercent is nil until real encoder output has been parsed.
	ProgressPercent *float64 `json:"progress_percent,omitempty"`
	// ETASeconds is nil unless the encoder reported a usable speed.
	ETASeconds *float64 `json:"eta_seconds,omitempty"`

	Media *MediaInfo `json:"media,omitempty"`
}

// TableName returns the table name for ClipTask.
func (ClipTask) TableName() string {
	return "clip_tasks"
}

// BeforeCreate generates a UUID if not already set.
func (t *ClipTask) BeforeCreate(tx *gorm.DB) error {
	if t.ID.IsZero() {
		t.ID = NewUUID()
	}
	if t.Status == "" {
		t.Status = TaskStatusQueued
	}
	if t.DeliveryStage == "" {
		t.DeliveryStage = StageQueued
	}
	return nil
}

// MarkRunning transitions a queued task to running.
func (t *ClipTask) MarkRunning() error {
	if t.Status != TaskStatusQueued {
		return fmt.Errorf("task %s is %s, cannot start", t.ID, t.Status)
	}
	t.Status = TaskStatusRunning
	now := Now()
	t.StartedAt = &now
	return t.AdvanceStage(StageStarting)
}

// MarkCompleted transitions a running task to completed with its output path.
func (t *ClipTask) MarkCompleted(outputPath string) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("task %s is %s, cannot complete", t.ID, t.Status)
	}
	t.Status = TaskStatusCompleted
	t.DeliveryStage = StageCompleted
	t.OutputPath = outputPath
	now := Now()
	t.CompletedAt = &now
	return nil
}

// MarkFailed transitions the task to failed with a taxonomy-tagged reason.
func (t *ClipTask) MarkFailed(reason string) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("task %s is %s, cannot fail", t.ID, t.Status)
	}
	t.Status = TaskStatusFailed
	t.DeliveryStage = StageFailed
	t.FailureReason = reason
	now := Now()
	t.CompletedAt = &now
	return nil
}

// MarkSkipped transitions a queued task to skipped with the given reason.
func (t *ClipTask) MarkSkipped(reason string) error {
	if t.Status != TaskStatusQueued {
		return fmt.Errorf("task %s is %s, cannot skip", t.ID, t.Status)
	}
	t.Status = TaskStatusSkipped
	t.FailureReason = reason
	now := Now()
	t.CompletedAt = &now
	return nil
}

// AdvanceStage moves the delivery stage forward. Regressions are rejected;
// the stage is monotone within a running task.
func (t *ClipTask) AdvanceStage(stage DeliveryStage) error {
	cur, ok := stageRank[t.DeliveryStage]
	if !ok {
		return fmt.Errorf("unknown current stage %q", t.DeliveryStage)
	}
	next, ok := stageRank[stage]
	if !ok {
		return fmt.Errorf("unknown stage %q", stage)
	}
	if next < cur {
		return fmt.Errorf("stage %s cannot regress to %s", t.DeliveryStage, stage)
	}
	t.DeliveryStage = stage
	return nil
}

// SetProgress records honest progress parsed from real encoder output.
// etaSeconds may be nil when the encoder reported no usable speed.
func (t *ClipTask) SetProgress(percent float64, etaSeconds *float64) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	t.ProgressPercent = &percent
	t.ETASeconds = etaSeconds
}

// AddWarning appends a warning to the ordered list.
func (t *ClipTask) AddWarning(msg string) {
	t.Warnings = append(t.Warnings, msg)
}
