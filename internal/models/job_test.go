package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJobWithTasks(statuses ...TaskStatus) *Job {
	job := &Job{ID: NewUUID(), Status: JobStatusRunning, CreatedAt: Now()}
	for i, s := range statuses {
		job.Tasks = append(job.Tasks, ClipTask{
			ID:       NewUUID(),
			JobID:    job.ID,
			Position: i,
			Status:   s,
		})
	}
	return job
}

func TestJob_DeriveTerminalStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []TaskStatus
		expected JobStatus
	}{
		{"all completed", []TaskStatus{TaskStatusCompleted, TaskStatusCompleted}, JobStatusCompleted},
		{"all failed", []TaskStatus{TaskStatusFailed, TaskStatusFailed}, JobStatusFailed},
		{"mixed", []TaskStatus{TaskStatusCompleted, TaskStatusFailed}, JobStatusPartial},
		{"completed and skipped", []TaskStatus{TaskStatusCompleted, TaskStatusSkipped}, JobStatusPartial},
		{"still running", []TaskStatus{TaskStatusCompleted, TaskStatusRunning}, JobStatusRunning},
		{"still queued", []TaskStatus{TaskStatusCompleted, TaskStatusQueued}, JobStatusRunning},
		{"single completed", []TaskStatus{TaskStatusCompleted}, JobStatusCompleted},
		{"single failed", []TaskStatus{TaskStatusFailed}, JobStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := newJobWithTasks(tt.statuses...)
			assert.Equal(t, tt.expected, job.DeriveTerminalStatus())
		})
	}
}

func TestJob_Counters(t *testing.T) {
	job := newJobWithTasks(TaskStatusQueued, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped)
	job.Tasks[2].AddWarning("color space unknown")
	job.Tasks[2].AddWarning("fps estimated")

	c := job.Counters()
	assert.Equal(t, 1, c.Queued)
	assert.Equal(t, 1, c.Running)
	assert.Equal(t, 1, c.Completed)
	assert.Equal(t, 1, c.Failed)
	assert.Equal(t, 1, c.Skipped)
	assert.Equal(t, 2, c.Warnings)
}

func TestJob_TerminalIsAbsorbing(t *testing.T) {
	job := &Job{ID: NewUUID(), Status: JobStatusCompleted}

	assert.ErrorIs(t, job.MarkRunning(), ErrJobTerminal)
	assert.ErrorIs(t, job.MarkPaused(), ErrJobTerminal)
	assert.ErrorIs(t, job.MarkFailed("x"), ErrJobTerminal)
	assert.ErrorIs(t, job.MarkCancelled("x"), ErrJobTerminal)
	assert.ErrorIs(t, job.MarkSkipped(SkipMetadata{Reason: "x"}), ErrJobTerminal)
}

func TestJob_MarkPausedRequiresRunning(t *testing.T) {
	job := &Job{ID: NewUUID(), Status: JobStatusPending, CreatedAt: Now()}
	assert.Error(t, job.MarkPaused())
	assert.Equal(t, JobStatusPending, job.Status)

	require.NoError(t, job.MarkRunning())
	require.NoError(t, job.MarkPaused())
	assert.Equal(t, JobStatusPaused, job.Status)
}

func TestJob_InstantsMonotonic(t *testing.T) {
	job := &Job{ID: NewUUID(), Status: JobStatusPending, CreatedAt: Now()}

	require.NoError(t, job.MarkRunning())
	require.NotNil(t, job.StartedAt)
	assert.False(t, job.StartedAt.Before(job.CreatedAt))

	job.Tasks = []ClipTask{{Status: TaskStatusCompleted}}
	require.NoError(t, job.FinishFromTasks())
	require.NotNil(t, job.CompletedAt)
	assert.False(t, job.CompletedAt.Before(*job.StartedAt))
	assert.Equal(t, JobStatusCompleted, job.Status)
}

func TestJob_EffectiveSettings(t *testing.T) {
	snapshot := DeliverSettings{
		OutputDir:  "/out",
		Engine:     EngineFFmpeg,
		Resolution: Resolution720p,
	}
	job := &Job{Settings: snapshot}

	// No override: effective == snapshot.
	assert.Equal(t, snapshot, job.EffectiveSettings())

	dir := "/elsewhere"
	job.Override = &SettingsOverride{OutputDir: &dir}
	effective := job.EffectiveSettings()
	assert.Equal(t, "/elsewhere", effective.OutputDir)
	assert.Equal(t, Resolution720p, effective.Resolution)

	// Snapshot is untouched.
	assert.Equal(t, "/out", job.Settings.OutputDir)
}

func TestClipTask_StageMonotone(t *testing.T) {
	task := &ClipTask{ID: NewUUID(), Status: TaskStatusQueued, DeliveryStage: StageQueued}

	require.NoError(t, task.MarkRunning())
	assert.Equal(t, StageStarting, task.DeliveryStage)
	require.NoError(t, task.AdvanceStage(StageEncoding))
	require.NoError(t, task.AdvanceStage(StageFinalizing))

	assert.Error(t, task.AdvanceStage(StageStarting))
	assert.Equal(t, StageFinalizing, task.DeliveryStage)
}

func TestClipTask_Transitions(t *testing.T) {
	task := &ClipTask{ID: NewUUID(), Status: TaskStatusQueued, DeliveryStage: StageQueued}

	require.NoError(t, task.MarkRunning())
	require.NoError(t, task.MarkCompleted("/out/a_proxy.mp4"))
	assert.Equal(t, "/out/a_proxy.mp4", task.OutputPath)
	assert.Error(t, task.MarkFailed("too late"))

	skipped := &ClipTask{ID: NewUUID(), Status: TaskStatusQueued}
	require.NoError(t, skipped.MarkSkipped("job cancelled"))
	assert.Equal(t, TaskStatusSkipped, skipped.Status)

	running := &ClipTask{ID: NewUUID(), Status: TaskStatusRunning}
	assert.Error(t, running.MarkSkipped("cannot skip running"))
}

func TestClipTask_SetProgressClamps(t *testing.T) {
	task := &ClipTask{}
	assert.Nil(t, task.ProgressPercent)

	eta := 12.5
	task.SetProgress(104.2, &eta)
	require.NotNil(t, task.ProgressPercent)
	assert.Equal(t, 100.0, *task.ProgressPercent)
	assert.Equal(t, 12.5, *task.ETASeconds)

	task.SetProgress(-3, nil)
	assert.Equal(t, 0.0, *task.ProgressPercent)
	assert.Nil(t, task.ETASeconds)
}

func TestInstantRoundTrip(t *testing.T) {
	now := Now()
	parsed, err := ParseInstant(FormatInstant(now))
	require.NoError(t, err)
	assert.True(t, now.Equal(parsed))
	assert.Equal(t, time.UTC, parsed.Location())
}

func TestUUID_Short(t *testing.T) {
	id := MustParseUUID("a3bb189e-8bf9-3888-9912-ace4e6543002")
	assert.Equal(t, "a3bb189e", id.Short())
}
