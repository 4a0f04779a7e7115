package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// JobStatus represents the lifecycle state of a proxy-generation job.
type JobStatus string

const (
	// JobStatusPending indicates the job is persisted and waiting for an
	// explicit start; ingestion never starts execution.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusPaused indicates execution is suspended between clips.
	JobStatusPaused JobStatus = "paused"
	// JobStatusCompleted indicates every clip task completed.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates at least one clip failed and none succeeded.
	JobStatusFailed JobStatus = "failed"
	// JobStatusPartial indicates mixed terminal outcomes across clips.
	JobStatusPartial JobStatus = "partial"
	// JobStatusCancelled indicates the operator cancelled the job.
	JobStatusCancelled JobStatus = "cancelled"
	// JobStatusSkipped indicates a precondition (e.g. Resolve edition) was
	// intentionally unmet. Distinct from failed.
	JobStatusSkipped JobStatus = "skipped"
)

// IsTerminal returns true for absorbing states. Any attempt to mutate a
// terminal job fails loudly.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusPartial, JobStatusCancelled, JobStatusSkipped:
		return true
	}
	return false
}

// SkipMetadata captures why a job was skipped rather than failed.
type SkipMetadata struct {
	Reason          string `json:"reason"`
	DetectedEdition string `json:"detected_edition,omitempty"`
	RequiredEdition string `json:"required_edition,omitempty"`
	ResolveVersion  string `json:"resolve_version,omitempty"`
}

// Value implements driver.Valuer.
func (m SkipMetadata) Value() (driver.Value, error) {
	return jsonValue(m, "skip metadata")
}

// Scan implements sql.Scanner.
func (m *SkipMetadata) Scan(value any) error {
	return scanJSON(value, m, "skip metadata")
}

// GormDataType returns the GORM data type for SkipMetadata.
func (SkipMetadata) GormDataType() string {
	return "text"
}

// JobCounters aggregates clip-task states for a job. Counters are derived
// from the task list, never stored independently.
type JobCounters struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Warnings  int `json:"warnings"`
}

// Job is a persisted proxy-generation job. The settings snapshot is frozen at
// creation; the optional override layer is applied on top without mutating it.
// Tasks refer to their job by id only.
type Job struct {
	ID UUID `gorm:"primarykey;type:varchar(36)" json:"id"`

	Status JobStatus `gorm:"not null;default:'pending';size:20;index" json:"status"`

	CreatedAt   time.Time  `gorm:"not null;index" json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Settings is the frozen deliver-settings snapshot.
	Settings DeliverSettings `gorm:"not null" json:"settings"`

	// Override is the optional settings layer applied atop the snapshot.
	Override *SettingsOverride `json:"override,omitempty"`

	// FailureReason carries the taxonomy-tagged reason for failed jobs.
	FailureReason string `gorm:"size:4096" json:"failure_reason,omitempty"`

	// SkipMeta is populated only for skipped jobs.
	SkipMeta *SkipMetadata `json:"skip_metadata,omitempty"`

	// Tasks is the ordered list of clip tasks (position ASC).
	Tasks []ClipTask `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"tasks,omitempty"`
}

// TableName returns the table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// BeforeCreate generates a UUID and creation instant if not already set.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID.IsZero() {
		j.ID = NewUUID()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = Now()
	}
	if j.Status == "" {
		j.Status = JobStatusPending
	}
	return nil
}

// EffectiveSettings returns override-over-snapshot settings.
func (j *Job) EffectiveSettings() DeliverSettings {
	return j.Override.Apply(j.Settings)
}

// IsTerminal returns true if the job is in an absorbing state.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// EnsureMutable returns an error if the job is terminal.
func (j *Job) EnsureMutable() error {
	if j.IsTerminal() {
		return fmt.Errorf("job %s is %s: %w", j.ID, j.Status, ErrJobTerminal)
	}
	return nil
}

// MarkRunning transitions a pending or paused job to running.
func (j *Job) MarkRunning() error {
	if err := j.EnsureMutable(); err != nil {
		return err
	}
	j.Status = JobStatusRunning
	if j.StartedAt == nil {
		now := Now()
		j.StartedAt = &now
	}
	return nil
}

// MarkPaused transitions a running job to paused. Only a running job has an
// execution to suspend.
func (j *Job) MarkPaused() error {
	if err := j.EnsureMutable(); err != nil {
		return err
	}
	if j.Status != JobStatusRunning {
		return fmt.Errorf("job %s is %s, cannot pause", j.ID, j.Status)
	}
	j.Status = JobStatusPaused
	return nil
}

// MarkCancelled transitions the job to cancelled with the operator's reason.
func (j *Job) MarkCancelled(reason string) error {
	if err := j.EnsureMutable(); err != nil {
		return err
	}
	j.Status = JobStatusCancelled
	j.FailureReason = reason
	now := Now()
	j.CompletedAt = &now
	return nil
}

// MarkFailed transitions the job to failed with a taxonomy-tagged reason.
func (j *Job) MarkFailed(reason string) error {
	if err := j.EnsureMutable(); err != nil {
		return err
	}
	j.Status = JobStatusFailed
	j.FailureReason = reason
	now := Now()
	j.CompletedAt = &now
	return nil
}

// MarkSkipped transitions the job to skipped with skip metadata.
func (j *Job) MarkSkipped(meta SkipMetadata) error {
	if err := j.EnsureMutable(); err != nil {
		return err
	}
	j.Status = JobStatusSkipped
	j.SkipMeta = &meta
	now := Now()
	j.CompletedAt = &now
	return nil
}

// Counters derives aggregate counters from the loaded task list.
func (j *Job) Counters() JobCounters {
	var c JobCounters
	for i := range j.Tasks {
		switch j.Tasks[i].Status {
		case TaskStatusQueued:
			c.Queued++
		case TaskStatusRunning:
			c.Running++
		case TaskStatusCompleted:
			c.Completed++
		case TaskStatusFailed:
			c.Failed++
		case TaskStatusSkipped:
			c.Skipped++
		}
		c.Warnings += len(j.Tasks[i].Warnings)
	}
	return c
}

// DeriveTerminalStatus computes the job's aggregate status once no task is
// queued or running: completed iff all completed, failed iff at least one
// failed and none succeeded, partial for mixed terminal outcomes.
func (j *Job) DeriveTerminalStatus() JobStatus {
	c := j.Counters()
	if c.Queued > 0 || c.Running > 0 {
		return JobStatusRunning
	}
	switch {
	case c.Failed == 0 && c.Skipped == 0:
		return JobStatusCompleted
	case c.Completed == 0 && c.Failed > 0:
		return JobStatusFailed
	case c.Failed > 0 || c.Skipped > 0:
		return JobStatusPartial
	default:
		return JobStatusCompleted
	}
}

// FinishFromTasks applies the derived terminal status and completion instant.
func (j *Job) FinishFromTasks() error {
	if err := j.EnsureMutable(); err != nil {
		return err
	}
	j.Status = j.DeriveTerminalStatus()
	if j.Status.IsTerminal() {
		now := Now()
		j.CompletedAt = &now
	}
	return nil
}

// jsonValue marshals v as JSON text for storage.
func jsonValue(v any, what string) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", what, err)
	}
	return string(data), nil
}
