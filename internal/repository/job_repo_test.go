package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/proxyforge/proxyforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupRepoTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Job{},
		&models.ClipTask{},
		&models.JobPresetBinding{},
		&models.WatchFolder{},
		&models.ProcessedFile{},
		&models.ExecutionEvent{},
	)
	require.NoError(t, err)

	return db
}

func makeJob(sources ...string) *models.Job {
	job := &models.Job{
		Status: models.JobStatusPending,
		Settings: models.DeliverSettings{
			OutputDir:  "/proxies",
			Engine:     models.EngineFFmpeg,
			Resolution: models.ResolutionHalf,
		},
	}
	for i, src := range sources {
		job.Tasks = append(job.Tasks, models.ClipTask{
			Position:   i,
			SourcePath: src,
			Status:     models.TaskStatusQueued,
		})
	}
	return job
}

func TestJobRepo_CreateWithTasks(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := makeJob("/media/a.mov", "/media/b.mov")
	binding := &models.JobPresetBinding{PresetID: "proxy_h264_medium"}

	require.NoError(t, repo.CreateWithTasks(ctx, job, binding))
	assert.False(t, job.ID.IsZero())

	found, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, found.Tasks, 2)
	assert.Equal(t, "/media/a.mov", found.Tasks[0].SourcePath)
	assert.Equal(t, "/media/b.mov", found.Tasks[1].SourcePath)

	stored, err := NewBindingRepository(db).GetByJobID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "proxy_h264_medium", stored.PresetID)
}

func TestJobRepo_GetByID_NotFound(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewJobRepository(db)

	_, err := repo.GetByID(context.Background(), models.NewUUID())
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestJobRepo_NextPending_FIFO(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	base := models.Now().Add(-time.Minute)
	first := makeJob("/media/first.mov")
	first.CreatedAt = base
	second := makeJob("/media/second.mov")
	second.CreatedAt = base.Add(time.Second)

	// Insert out of order; the queue head depends on creation instant only.
	require.NoError(t, repo.CreateWithTasks(ctx, second, nil))
	require.NoError(t, repo.CreateWithTasks(ctx, first, nil))

	head, err := repo.NextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, first.ID, head.ID)
	require.Len(t, head.Tasks, 1)
}

func TestJobRepo_NextPending_SkipsNonPending(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	done := makeJob("/media/done.mov")
	done.Status = models.JobStatusCompleted
	require.NoError(t, repo.CreateWithTasks(ctx, done, nil))

	head, err := repo.NextPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, head)
}

func TestJobRepo_AnyRunning(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	running, err := repo.AnyRunning(ctx)
	require.NoError(t, err)
	assert.False(t, running)

	job := makeJob("/media/a.mov")
	job.Status = models.JobStatusRunning
	require.NoError(t, repo.CreateWithTasks(ctx, job, nil))

	running, err = repo.AnyRunning(ctx)
	require.NoError(t, err)
	assert.True(t, running)
}

func TestJobRepo_CountRunning(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	count, err := repo.CountRunning(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	for _, source := range []string{"/media/a.mov", "/media/b.mov"} {
		job := makeJob(source)
		job.Status = models.JobStatusRunning
		require.NoError(t, repo.CreateWithTasks(ctx, job, nil))
	}
	pending := makeJob("/media/c.mov")
	require.NoError(t, repo.CreateWithTasks(ctx, pending, nil))

	count, err = repo.CountRunning(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestJobRepo_DeleteTerminal(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewJobRepository(db)
	events := NewEventRepository(db)
	ctx := context.Background()

	finished := makeJob("/media/finished.mov")
	finished.Status = models.JobStatusCompleted
	require.NoError(t, repo.CreateWithTasks(ctx, finished, &models.JobPresetBinding{PresetID: "proxy_h264_low"}))
	require.NoError(t, events.Append(ctx, &models.ExecutionEvent{
		JobID: finished.ID,
		Type:  models.EventExecutionCompleted,
	}))

	active := makeJob("/media/active.mov")
	active.Status = models.JobStatusRunning
	require.NoError(t, repo.CreateWithTasks(ctx, active, nil))

	removed, err := repo.DeleteTerminal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = repo.GetByID(ctx, finished.ID)
	assert.ErrorIs(t, err, models.ErrJobNotFound)

	// Active job and its tasks survive.
	kept, err := repo.GetByID(ctx, active.ID)
	require.NoError(t, err)
	assert.Len(t, kept.Tasks, 1)

	// Cascade removed tasks, binding, and events of the finished job.
	var taskCount int64
	require.NoError(t, db.Model(&models.ClipTask{}).Where("job_id = ?", finished.ID).Count(&taskCount).Error)
	assert.Zero(t, taskCount)

	timeline, err := events.GetByJobID(ctx, finished.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, timeline)
}

func TestJobRepo_UpdateDoesNotTouchTasks(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := makeJob("/media/a.mov")
	require.NoError(t, repo.CreateWithTasks(ctx, job, nil))

	require.NoError(t, job.MarkRunning())
	job.Tasks = nil
	require.NoError(t, repo.Update(ctx, job))

	found, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, found.Status)
	assert.Len(t, found.Tasks, 1)
}
