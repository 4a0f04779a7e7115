package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/proxyforge/proxyforge/internal/http/handlers"
	"github.com/proxyforge/proxyforge/internal/ingest"
	"github.com/proxyforge/proxyforge/internal/license"
	"github.com/proxyforge/proxyforge/internal/models"
	"github.com/proxyforge/proxyforge/internal/query"
	"github.com/proxyforge/proxyforge/internal/repository"
	"github.com/proxyforge/proxyforge/internal/scheduler"
)

type fakeCreator struct {
	job *models.Job
	err error
}

func (f *fakeCreator) Create(ctx context.Context, req ingest.Request) (*models.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.job, nil
}

type fakeExec struct {
	startedHead bool
	started     []models.UUID
	paused      []models.UUID
	resumed     []models.UUID
	cancelled   []models.UUID
	reasons     []string
	err         error
}

func (f *fakeExec) StartExecution(ctx context.Context) (models.UUID, error) {
	if f.err != nil {
		return models.UUID{}, f.err
	}
	f.startedHead = true
	return models.NewUUID(), nil
}

func (f *fakeExec) StartJob(ctx context.Context, id models.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.started = append(f.started, id)
	return nil
}

func (f *fakeExec) Pause(ctx context.Context, id models.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.paused = append(f.paused, id)
	return nil
}

func (f *fakeExec) Resume(ctx context.Context, id models.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.resumed = append(f.resumed, id)
	return nil
}

func (f *fakeExec) Cancel(ctx context.Context, id models.UUID, reason string) error {
	if f.err != nil {
		return f.err
	}
	f.cancelled = append(f.cancelled, id)
	f.reasons = append(f.reasons, reason)
	return nil
}

type testEnv struct {
	router  *chi.Mux
	creator *fakeCreator
	exec    *fakeExec
	jobs    repository.JobRepository
	events  repository.EventRepository
}

func setupAPI(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Job{}, &models.ClipTask{}, &models.JobPresetBinding{}, &models.ExecutionEvent{},
	))

	jobs := repository.NewJobRepository(db)
	events := repository.NewEventRepository(db)
	bindings := repository.NewBindingRepository(db)

	creator := &fakeCreator{job: &models.Job{ID: models.NewUUID(), Status: models.JobStatusPending}}
	exec := &fakeExec{}
	enforcer := license.NewEnforcer(license.License{Tier: license.TierFacility}, nil)
	enforcer.Heartbeat("worker-1", nil)

	queries := query.NewService(jobs, events, bindings, t.TempDir())

	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("Test API", "1.0.0"))
	handlers.NewControlHandler(creator, exec, jobs).Register(api)
	handlers.NewMonitorHandler(queries, enforcer, "test", "").Register(api)

	return &testEnv{router: router, creator: creator, exec: exec, jobs: jobs, events: events}
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) seedJob(t *testing.T, status models.JobStatus) *models.Job {
	t.Helper()
	job := &models.Job{
		ID:        models.NewUUID(),
		Status:    status,
		CreatedAt: time.Now().UTC(),
		Settings: models.DeliverSettings{
			Engine: models.EngineFFmpeg,
			Video:  models.VideoSettings{Codec: "h264"},
			File:   models.FileSettings{Container: "mp4", NamingTemplate: "{source_name}_proxy"},
		},
		Tasks: []models.ClipTask{
			{ID: models.NewUUID(), Position: 0, SourcePath: "/m/a.mov", Status: models.TaskStatusQueued},
		},
	}
	require.NoError(t, env.jobs.CreateWithTasks(context.Background(), job, nil))
	return job
}

func TestCreateJob_OK(t *testing.T) {
	env := setupAPI(t)

	rec := env.do(t, "POST", "/control/jobs/create",
		`{"source_paths":["/m/a.mov"],"preset_id":"proxy_h264_low"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Job *models.Job `json:"job"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, models.JobStatusPending, resp.Job.Status)
}

func TestCreateJob_ValidationErrorIs400(t *testing.T) {
	env := setupAPI(t)
	env.creator.err = models.NewValidationError(models.TagSourceMissing, "source missing")

	rec := env.do(t, "POST", "/control/jobs/create", `{"source_paths":["/m/a.mov"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation.source_missing_or_not_file")
}

func TestCreateJob_UnknownFieldRejected(t *testing.T) {
	env := setupAPI(t)

	rec := env.do(t, "POST", "/control/jobs/create",
		`{"source_paths":["/m/a.mov"],"bogus_field":true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateJob_ResolveUnsupportedIs501(t *testing.T) {
	env := setupAPI(t)
	env.creator.err = ingest.ErrResolveNotSupported

	rec := env.do(t, "POST", "/control/jobs/create",
		`{"source_paths":["/m/a.braw"],"preset_id":"proxy_prores_proxy_resolve"}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestStartExecution_RefusedWhenRunning(t *testing.T) {
	env := setupAPI(t)
	env.exec.err = scheduler.ErrJobAlreadyRunning

	rec := env.do(t, "POST", "/control/jobs/start-execution", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartExecution_RefusedWhenEmpty(t *testing.T) {
	env := setupAPI(t)
	env.exec.err = scheduler.ErrNoPendingJobs

	rec := env.do(t, "POST", "/control/jobs/start-execution", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartExecution_OK(t *testing.T) {
	env := setupAPI(t)

	rec := env.do(t, "POST", "/control/jobs/start-execution", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.exec.startedHead)
}

func TestLifecycleEndpoints(t *testing.T) {
	env := setupAPI(t)
	id := models.NewUUID()

	rec := env.do(t, "POST", "/control/jobs/"+id.String()+"/start", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, "POST", "/control/jobs/"+id.String()+"/pause", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, "POST", "/control/jobs/"+id.String()+"/resume", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, "POST", "/control/jobs/"+id.String()+"/cancel", `{"reason":"operator"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []models.UUID{id}, env.exec.started)
	assert.Equal(t, []models.UUID{id}, env.exec.paused)
	assert.Equal(t, []models.UUID{id}, env.exec.resumed)
	assert.Equal(t, []models.UUID{id}, env.exec.cancelled)
	assert.Equal(t, []string{"operator"}, env.exec.reasons)
}

func TestCancel_DefaultReason(t *testing.T) {
	env := setupAPI(t)
	id := models.NewUUID()

	rec := env.do(t, "POST", "/control/jobs/"+id.String()+"/cancel", `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.exec.reasons, 1)
	assert.Equal(t, "cancelled by operator", env.exec.reasons[0])
}

func TestInvalidJobIDIs400(t *testing.T) {
	env := setupAPI(t)

	rec := env.do(t, "POST", "/control/jobs/not-a-uuid/start", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearTerminal(t *testing.T) {
	env := setupAPI(t)
	env.seedJob(t, models.JobStatusCompleted)
	env.seedJob(t, models.JobStatusPending)

	rec := env.do(t, "POST", "/control/jobs/clear-all", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Removed int64 `json:"removed"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(1), resp.Removed)

	remaining, err := env.jobs.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestHealth(t *testing.T) {
	env := setupAPI(t)

	rec := env.do(t, "GET", "/monitor/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, "facility", resp.LicenseTier)
}

func TestMonitorJobs(t *testing.T) {
	env := setupAPI(t)
	job := env.seedJob(t, models.JobStatusPending)

	rec := env.do(t, "GET", "/monitor/jobs", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs []query.JobSummary `json:"jobs"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, job.ID, resp.Jobs[0].ID)

	rec = env.do(t, "GET", "/monitor/jobs/"+job.ID.String(), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, "GET", "/monitor/jobs/"+models.NewUUID().String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMonitorReports_EmptyForJobWithoutArtifacts(t *testing.T) {
	env := setupAPI(t)
	job := env.seedJob(t, models.JobStatusCompleted)

	rec := env.do(t, "GET", "/monitor/jobs/"+job.ID.String()+"/reports", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Reports []query.ReportArtifact `json:"reports"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Reports)
}

func TestMonitorWorkers(t *testing.T) {
	env := setupAPI(t)

	rec := env.do(t, "GET", "/monitor/workers", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Workers []models.WorkerStatus `json:"workers"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Workers, 1)
	assert.Equal(t, "worker-1", resp.Workers[0].WorkerID)
}
