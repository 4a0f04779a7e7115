// Package scheduler services PENDING jobs in FIFO order of creation. One job
// runs at a time; within a job, tasks dispatch sequentially. Every state
// change is persisted before its timeline event so a post-crash replay never
// shows progress beyond the persisted state.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/proxyforge/proxyforge/internal/engine"
	"github.com/proxyforge/proxyforge/internal/events"
	"github.com/proxyforge/proxyforge/internal/license"
	"github.com/proxyforge/proxyforge/internal/models"
	"github.com/proxyforge/proxyforge/internal/repository"
)

// Errors mapped to 4xx by the control surface.
var (
	ErrNoPendingJobs     = errors.New("no job is pending")
	ErrJobAlreadyRunning = errors.New("a job is already running")
	ErrJobNotPending     = errors.New("job is not pending")
	ErrJobNotRunning     = errors.New("job is not running")
	ErrJobNotPaused      = errors.New("job is not paused")
)

// Scheduler owns job execution.
type Scheduler struct {
	jobs     repository.JobRepository
	tasks    repository.ClipTaskRepository
	events   repository.EventRepository
	engines  map[models.EngineKind]engine.Engine
	enforcer *license.Enforcer
	workerID string
	logger   *slog.Logger

	// taskConcurrency is the per-job dispatch cap. It is 1 for proxy
	// generation; the dispatch loop is the only place that assumes it.
	taskConcurrency int

	mu      sync.Mutex
	current *jobRun
	wg      sync.WaitGroup
}

// jobRun is the in-flight state of the currently executing job.
type jobRun struct {
	jobID models.UUID
	token *engine.CancelToken
	rec   *events.Recorder

	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}
}

func (r *jobRun) pause() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused {
		return false
	}
	r.paused = true
	r.resumeCh = make(chan struct{})
	return true
}

func (r *jobRun) resume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.paused {
		return false
	}
	r.paused = false
	close(r.resumeCh)
	return true
}

// waitWhilePaused blocks at the inter-task safe point until resumed or
// cancelled.
func (r *jobRun) waitWhilePaused() {
	for {
		r.mu.Lock()
		if !r.paused {
			r.mu.Unlock()
			return
		}
		ch := r.resumeCh
		r.mu.Unlock()

		select {
		case <-ch:
		case <-r.token.Done():
			return
		}
	}
}

// New creates a scheduler.
func New(jobs repository.JobRepository, tasks repository.ClipTaskRepository, events repository.EventRepository, engines map[models.EngineKind]engine.Engine, enforcer *license.Enforcer, workerID string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:            jobs,
		tasks:           tasks,
		events:          events,
		engines:         engines,
		enforcer:        enforcer,
		workerID:        workerID,
		logger:          logger.With(slog.String("component", "scheduler")),
		taskConcurrency: 1,
	}
}

// StartExecution starts the head of the FIFO queue. It fails when nothing is
// pending or a job is already running; there is no partial acceptance.
func (s *Scheduler) StartExecution(ctx context.Context) (models.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return models.UUID{}, ErrJobAlreadyRunning
	}
	running, err := s.jobs.AnyRunning(ctx)
	if err != nil {
		return models.UUID{}, fmt.Errorf("checking running jobs: %w", err)
	}
	if running {
		return models.UUID{}, ErrJobAlreadyRunning
	}

	head, err := s.jobs.NextPending(ctx)
	if err != nil {
		return models.UUID{}, fmt.Errorf("reading queue head: %w", err)
	}
	if head == nil {
		return models.UUID{}, ErrNoPendingJobs
	}

	return head.ID, s.startLocked(ctx, head)
}

// StartJob starts one specific PENDING job, bypassing queue order but not the
// single-running-job rule.
func (s *Scheduler) StartJob(ctx context.Context, id models.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return ErrJobAlreadyRunning
	}
	running, err := s.jobs.AnyRunning(ctx)
	if err != nil {
		return fmt.Errorf("checking running jobs: %w", err)
	}
	if running {
		return ErrJobAlreadyRunning
	}

	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusPending {
		return fmt.Errorf("%w: job %s is %s", ErrJobNotPending, id, job.Status)
	}

	return s.startLocked(ctx, job)
}

// startLocked transitions the job to RUNNING and spawns the dispatch loop.
// Caller holds s.mu.
func (s *Scheduler) startLocked(ctx context.Context, job *models.Job) error {
	if err := job.MarkRunning(); err != nil {
		return err
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persisting job start: %w", err)
	}
	rec := events.NewRecorder(job.ID, s.events, s.logger)
	rec.Record(ctx, models.EventExecutionStarted, nil, "")

	run := &jobRun{jobID: job.ID, token: engine.NewCancelToken(), rec: rec}
	s.current = run

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJob(context.WithoutCancel(ctx), job, run)
	}()

	s.logger.Info("execution started", slog.String("job_id", job.ID.String()))
	return nil
}

// Wait blocks until the in-flight job, if any, finishes. Used by the CLI run
// path and by tests.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// runJob dispatches the job's tasks sequentially to its engine adapter.
func (s *Scheduler) runJob(ctx context.Context, job *models.Job, run *jobRun) {
	defer func() {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
	}()

	settings := job.EffectiveSettings()
	eng, ok := s.engines[settings.Engine]
	if !ok {
		s.failJob(ctx, job, run.rec, fmt.Sprintf("no adapter for engine %q", settings.Engine))
		return
	}

	for i := range job.Tasks {
		run.waitWhilePaused()
		if run.token.Cancelled() {
			break
		}

		task := &job.Tasks[i]
		if task.Status != models.TaskStatusQueued {
			continue
		}

		// The license gate runs before every dispatch; a refused worker
		// never spawns a process.
		if admitted, verr := s.enforcer.Heartbeat(s.workerID, &job.ID); !admitted {
			reason := models.ExecutionFailure(models.TagWorkerLimitExceeded, verr.Message)
			s.finishTask(ctx, run.rec, task, engine.ExecutionResult{Kind: engine.ResultFailed, FailureReason: reason})
			continue
		}

		if err := task.MarkRunning(); err != nil {
			s.logger.Warn("task start rejected", slog.String("error", err.Error()))
			continue
		}
		if err := s.tasks.Update(ctx, task); err != nil {
			s.logger.Error("persisting task start", slog.String("error", err.Error()))
		}
		run.rec.Record(ctx, models.EventClipStarted, &task.ID, task.SourcePath)

		result := eng.Execute(ctx, task, settings, run.token, s.progressSink(ctx, run.rec, task))
		s.finishTask(ctx, run.rec, task, result)

		if run.token.Cancelled() {
			break
		}
	}

	s.finishJob(ctx, job, run)
}

// progressSink persists stage and percent changes and records a timeline
// event only when the stage itself changes.
func (s *Scheduler) progressSink(ctx context.Context, rec *events.Recorder, task *models.ClipTask) engine.ProgressFunc {
	return func(p engine.Progress) {
		stageChanged := false
		if p.Stage != "" && p.Stage != task.DeliveryStage {
			if err := task.AdvanceStage(p.Stage); err == nil {
				stageChanged = true
			}
		}
		if p.Percent != nil {
			task.SetProgress(*p.Percent, p.ETASeconds)
		}
		if err := s.tasks.Update(ctx, task); err != nil {
			s.logger.Warn("persisting progress", slog.String("error", err.Error()))
		}
		if stageChanged {
			rec.Record(ctx, models.EventProgressUpdate, &task.ID, string(p.Stage))
		}
	}
}

// finishTask applies a terminal execution result to the task, persists it,
// then records the timeline event.
func (s *Scheduler) finishTask(ctx context.Context, rec *events.Recorder, task *models.ClipTask, result engine.ExecutionResult) {
	switch result.Kind {
	case engine.ResultSuccess:
		if err := task.MarkCompleted(result.OutputPath); err != nil {
			s.logger.Warn("completing task", slog.String("error", err.Error()))
		}
	default:
		if err := task.MarkFailed(result.FailureReason); err != nil {
			s.logger.Warn("failing task", slog.String("error", err.Error()))
		}
	}

	if err := s.tasks.Update(ctx, task); err != nil {
		s.logger.Error("persisting task result", slog.String("error", err.Error()))
	}

	switch result.Kind {
	case engine.ResultSuccess:
		rec.Record(ctx, models.EventClipCompleted, &task.ID, result.OutputPath)
	default:
		rec.Record(ctx, models.EventClipFailed, &task.ID, result.FailureReason)
	}
}

// finishJob derives the terminal job status from its tasks, or applies
// cancellation bookkeeping.
func (s *Scheduler) finishJob(ctx context.Context, job *models.Job, run *jobRun) {
	if run.token.Cancelled() {
		reason := models.ExecutionFailure(models.TagCancelled, run.token.Reason())
		for i := range job.Tasks {
			task := &job.Tasks[i]
			if task.Status != models.TaskStatusQueued {
				continue
			}
			if err := task.MarkSkipped(reason); err == nil {
				if err := s.tasks.Update(ctx, task); err != nil {
					s.logger.Error("persisting skipped task", slog.String("error", err.Error()))
				}
			}
		}
		if err := job.MarkCancelled(reason); err != nil {
			s.logger.Warn("cancelling job", slog.String("error", err.Error()))
		}
		if err := s.jobs.Update(ctx, job); err != nil {
			s.logger.Error("persisting cancelled job", slog.String("error", err.Error()))
		}
		run.rec.Record(ctx, models.EventExecutionCancelled, nil, run.token.Reason())
		s.logger.Info("execution cancelled", slog.String("job_id", job.ID.String()))
		return
	}

	if err := job.FinishFromTasks(); err != nil {
		s.logger.Warn("finishing job", slog.String("error", err.Error()))
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		s.logger.Error("persisting finished job", slog.String("error", err.Error()))
	}

	counters := job.Counters()
	switch job.Status {
	case models.JobStatusFailed:
		run.rec.Record(ctx, models.EventExecutionFailed, nil,
			fmt.Sprintf("%d of %d clips failed", counters.Failed, len(job.Tasks)))
	default:
		run.rec.Record(ctx, models.EventExecutionCompleted, nil,
			fmt.Sprintf("%d completed, %d failed, %d skipped", counters.Completed, counters.Failed, counters.Skipped))
	}
	s.logger.Info("execution finished",
		slog.String("job_id", job.ID.String()),
		slog.String("status", string(job.Status)),
	)
}

// failJob marks the whole job failed before any task ran.
func (s *Scheduler) failJob(ctx context.Context, job *models.Job, rec *events.Recorder, reason string) {
	tagged := models.ExecutionFailure(models.TagEngineFailure, reason)
	for i := range job.Tasks {
		task := &job.Tasks[i]
		if task.Status == models.TaskStatusQueued {
			if err := task.MarkFailed(tagged); err == nil {
				if err := s.tasks.Update(ctx, task); err != nil {
					s.logger.Error("persisting failed task", slog.String("error", err.Error()))
				}
			}
		}
	}
	if err := job.MarkFailed(tagged); err != nil {
		s.logger.Warn("failing job", slog.String("error", err.Error()))
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		s.logger.Error("persisting failed job", slog.String("error", err.Error()))
	}
	rec.Record(ctx, models.EventExecutionFailed, nil, tagged)
}

// Pause sets the cooperative pause flag. The running clip continues to its
// own terminal state; no new clip starts until Resume. Pausing an already
// paused job is a no-op; a job that is not running has no execution to
// suspend and is refused.
func (s *Scheduler) Pause(ctx context.Context, id models.UUID) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == models.JobStatusPaused {
		return nil
	}
	if job.Status != models.JobStatusRunning {
		return fmt.Errorf("%w: job %s is %s", ErrJobNotRunning, id, job.Status)
	}

	if err := job.MarkPaused(); err != nil {
		return err
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persisting pause: %w", err)
	}

	s.mu.Lock()
	if s.current != nil && s.current.jobID == id {
		s.current.pause()
	}
	s.mu.Unlock()

	events.NewRecorder(id, s.events, s.logger).Record(ctx, models.EventExecutionPaused, nil, "")
	return nil
}

// Resume clears the pause flag and hands the job back to its dispatch loop.
// Resuming a running job is a no-op. A paused job with no in-flight run (a
// state only reachable through store corruption; restart recovery fails
// paused jobs) is refused rather than marked running with nothing behind it.
func (s *Scheduler) Resume(ctx context.Context, id models.UUID) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == models.JobStatusRunning {
		return nil
	}
	if job.Status != models.JobStatusPaused {
		return fmt.Errorf("%w: job %s is %s", ErrJobNotPaused, id, job.Status)
	}

	s.mu.Lock()
	run := s.current
	s.mu.Unlock()
	if run == nil || run.jobID != id {
		return fmt.Errorf("%w: job %s has no in-flight execution", ErrJobNotPaused, id)
	}

	if err := job.MarkRunning(); err != nil {
		return err
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persisting resume: %w", err)
	}
	run.resume()

	events.NewRecorder(id, s.events, s.logger).Record(ctx, models.EventExecutionResumed, nil, "")
	return nil
}

// Cancel signals the adapter to terminate and marks remaining queued tasks
// skipped. Cancelling a terminal job is a silent no-op.
func (s *Scheduler) Cancel(ctx context.Context, id models.UUID, reason string) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}

	s.mu.Lock()
	isCurrent := s.current != nil && s.current.jobID == id
	if isCurrent {
		s.current.token.Cancel(reason)
		s.current.resume()
	}
	s.mu.Unlock()

	if isCurrent {
		// The dispatch loop observes the token and finishes the bookkeeping.
		return nil
	}

	// Not in flight (PENDING, or left over from another path): cancel in
	// the store directly.
	tagged := models.ExecutionFailure(models.TagCancelled, reason)
	for i := range job.Tasks {
		task := &job.Tasks[i]
		if task.Status == models.TaskStatusQueued {
			if err := task.MarkSkipped(tagged); err == nil {
				if err := s.tasks.Update(ctx, task); err != nil {
					s.logger.Error("persisting skipped task", slog.String("error", err.Error()))
				}
			}
		}
	}
	if err := job.MarkCancelled(tagged); err != nil {
		return err
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persisting cancel: %w", err)
	}
	events.NewRecorder(id, s.events, s.logger).Record(ctx, models.EventExecutionCancelled, nil, reason)
	return nil
}
