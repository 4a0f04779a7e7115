// Package handlers provides HTTP API handlers for proxyforge. The control
// surface mutates state; the monitor surface is read-only.
package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/proxyforge/proxyforge/internal/ingest"
	"github.com/proxyforge/proxyforge/internal/models"
	"github.com/proxyforge/proxyforge/internal/repository"
	"github.com/proxyforge/proxyforge/internal/scheduler"
)

// JobCreator is the ingest slice used by the control surface.
type JobCreator interface {
	Create(ctx context.Context, req ingest.Request) (*models.Job, error)
}

// ExecutionController is the scheduler slice used by the control surface.
type ExecutionController interface {
	StartExecution(ctx context.Context) (models.UUID, error)
	StartJob(ctx context.Context, id models.UUID) error
	Pause(ctx context.Context, id models.UUID) error
	Resume(ctx context.Context, id models.UUID) error
	Cancel(ctx context.Context, id models.UUID, reason string) error
}

// ControlHandler handles the mutating control endpoints.
type ControlHandler struct {
	creator JobCreator
	exec    ExecutionController
	jobs    repository.JobRepository
}

// NewControlHandler creates a control handler.
func NewControlHandler(creator JobCreator, exec ExecutionController, jobs repository.JobRepository) *ControlHandler {
	return &ControlHandler{creator: creator, exec: exec, jobs: jobs}
}

// Register registers the control routes with the API.
func (h *ControlHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "createJob",
		Method:      "POST",
		Path:        "/control/jobs/create",
		Summary:     "Create job",
		Description: "Validates the request and persists a pending job; execution is never started implicitly",
		Tags:        []string{"Control"},
	}, h.CreateJob)

	huma.Register(api, huma.Operation{
		OperationID: "startExecution",
		Method:      "POST",
		Path:        "/control/jobs/start-execution",
		Summary:     "Start queue head",
		Description: "Starts the oldest pending job; fails when nothing is pending or a job is already running",
		Tags:        []string{"Control"},
	}, h.StartExecution)

	huma.Register(api, huma.Operation{
		OperationID: "startJob",
		Method:      "POST",
		Path:        "/control/jobs/{id}/start",
		Summary:     "Start specific job",
		Description: "Starts one pending job by id",
		Tags:        []string{"Control"},
	}, h.StartJob)

	huma.Register(api, huma.Operation{
		OperationID: "pauseJob",
		Method:      "POST",
		Path:        "/control/jobs/{id}/pause",
		Summary:     "Pause job",
		Description: "Suspends dispatch after the running clip finishes",
		Tags:        []string{"Control"},
	}, h.PauseJob)

	huma.Register(api, huma.Operation{
		OperationID: "resumeJob",
		Method:      "POST",
		Path:        "/control/jobs/{id}/resume",
		Summary:     "Resume job",
		Description: "Resumes a paused job",
		Tags:        []string{"Control"},
	}, h.ResumeJob)

	huma.Register(api, huma.Operation{
		OperationID: "cancelJob",
		Method:      "POST",
		Path:        "/control/jobs/{id}/cancel",
		Summary:     "Cancel job",
		Description: "Terminates the running clip and skips the rest; idempotent on terminal jobs",
		Tags:        []string{"Control"},
	}, h.CancelJob)

	huma.Register(api, huma.Operation{
		OperationID: "clearTerminalJobs",
		Method:      "POST",
		Path:        "/control/jobs/clear-all",
		Summary:     "Clear terminal jobs",
		Description: "Deletes every completed, failed, partial, cancelled, or skipped job",
		Tags:        []string{"Control"},
	}, h.ClearTerminal)
}

// CreateJobRequest is the create payload. Unknown fields are rejected.
type CreateJobRequest struct {
	SourcePaths []string                `json:"source_paths" minItems:"1" doc:"Absolute source file paths"`
	PresetID    string                  `json:"preset_id,omitempty" doc:"Proxy profile id; mutually exclusive with settings"`
	Settings    *models.DeliverSettings `json:"deliver_settings,omitempty" doc:"Inline deliver settings"`
	Engine      string                  `json:"engine,omitempty" enum:",ffmpeg,resolve" doc:"Force a specific engine"`
	OutputDir   string                  `json:"output_dir,omitempty" doc:"Override the output directory"`
}

// CreateJobInput is the input for job creation.
type CreateJobInput struct {
	Body CreateJobRequest
}

// JobOutput wraps a full job response.
type JobOutput struct {
	Body struct {
		Job *models.Job `json:"job"`
	}
}

// CreateJob validates and persists a new job.
func (h *ControlHandler) CreateJob(ctx context.Context, input *CreateJobInput) (*JobOutput, error) {
	req := ingest.Request{
		SourcePaths: input.Body.SourcePaths,
		PresetID:    input.Body.PresetID,
		Settings:    input.Body.Settings,
	}
	if input.Body.Engine != "" {
		kind := models.EngineKind(input.Body.Engine)
		req.EngineOverride = &kind
	}
	if input.Body.OutputDir != "" {
		dir := input.Body.OutputDir
		req.OutputDirOverride = &dir
	}

	job, err := h.creator.Create(ctx, req)
	if err != nil {
		return nil, mapControlError(err)
	}

	resp := &JobOutput{}
	resp.Body.Job = job
	return resp, nil
}

// StartExecutionInput is the input for starting the queue head.
type StartExecutionInput struct{}

// StartExecutionOutput carries the id of the started job.
type StartExecutionOutput struct {
	Body struct {
		JobID models.UUID `json:"job_id"`
	}
}

// StartExecution starts the head of the FIFO queue.
func (h *ControlHandler) StartExecution(ctx context.Context, input *StartExecutionInput) (*StartExecutionOutput, error) {
	id, err := h.exec.StartExecution(ctx)
	if err != nil {
		return nil, mapControlError(err)
	}
	resp := &StartExecutionOutput{}
	resp.Body.JobID = id
	return resp, nil
}

// JobIDInput identifies a job by path parameter.
type JobIDInput struct {
	ID string `path:"id" doc:"Job ID (UUID)"`
}

// AckOutput is the generic acknowledgement response.
type AckOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func ack() *AckOutput {
	out := &AckOutput{}
	out.Body.Status = "ok"
	return out
}

// StartJob starts one pending job by id.
func (h *ControlHandler) StartJob(ctx context.Context, input *JobIDInput) (*AckOutput, error) {
	id, err := parseJobID(input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.exec.StartJob(ctx, id); err != nil {
		return nil, mapControlError(err)
	}
	return ack(), nil
}

// PauseJob suspends dispatch for a running job.
func (h *ControlHandler) PauseJob(ctx context.Context, input *JobIDInput) (*AckOutput, error) {
	id, err := parseJobID(input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.exec.Pause(ctx, id); err != nil {
		return nil, mapControlError(err)
	}
	return ack(), nil
}

// ResumeJob resumes a paused job.
func (h *ControlHandler) ResumeJob(ctx context.Context, input *JobIDInput) (*AckOutput, error) {
	id, err := parseJobID(input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.exec.Resume(ctx, id); err != nil {
		return nil, mapControlError(err)
	}
	return ack(), nil
}

// CancelJobInput identifies the job and carries the optional reason.
type CancelJobInput struct {
	ID   string `path:"id" doc:"Job ID (UUID)"`
	Body struct {
		Reason string `json:"reason,omitempty" doc:"Operator-supplied cancellation reason"`
	}
}

// CancelJob cancels a job.
func (h *ControlHandler) CancelJob(ctx context.Context, input *CancelJobInput) (*AckOutput, error) {
	id, err := parseJobID(input.ID)
	if err != nil {
		return nil, err
	}
	reason := input.Body.Reason
	if reason == "" {
		reason = "cancelled by operator"
	}
	if err := h.exec.Cancel(ctx, id, reason); err != nil {
		return nil, mapControlError(err)
	}
	return ack(), nil
}

// ClearTerminalInput is the input for clearing terminal jobs.
type ClearTerminalInput struct{}

// ClearTerminalOutput reports how many jobs were removed.
type ClearTerminalOutput struct {
	Body struct {
		Removed int64 `json:"removed"`
	}
}

// ClearTerminal deletes all terminal jobs with their tasks and history.
func (h *ControlHandler) ClearTerminal(ctx context.Context, input *ClearTerminalInput) (*ClearTerminalOutput, error) {
	removed, err := h.jobs.DeleteTerminal(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to clear jobs", err)
	}
	resp := &ClearTerminalOutput{}
	resp.Body.Removed = removed
	return resp, nil
}

func parseJobID(s string) (models.UUID, error) {
	id, err := models.ParseUUID(s)
	if err != nil {
		return models.UUID{}, huma.Error400BadRequest("invalid job id", err)
	}
	return id, nil
}

// mapControlError translates domain errors to HTTP status codes: validation
// failures and scheduling refusals are 400, unsupported engines 501, missing
// jobs 404.
func mapControlError(err error) error {
	switch {
	case errors.Is(err, ingest.ErrResolveNotSupported):
		return huma.Error501NotImplemented("resolve engine is not supported in this deployment profile")
	case errors.Is(err, models.ErrJobNotFound):
		return huma.Error404NotFound("job not found")
	case errors.Is(err, scheduler.ErrNoPendingJobs),
		errors.Is(err, scheduler.ErrJobAlreadyRunning),
		errors.Is(err, scheduler.ErrJobNotPending),
		errors.Is(err, scheduler.ErrJobNotRunning),
		errors.Is(err, scheduler.ErrJobNotPaused):
		return huma.Error400BadRequest(err.Error())
	}
	if verr, ok := models.AsValidationError(err); ok {
		return huma.Error400BadRequest(fmt.Sprintf("[%s] %s", verr.Tag, verr.Message))
	}
	return huma.Error500InternalServerError("internal error", err)
}
