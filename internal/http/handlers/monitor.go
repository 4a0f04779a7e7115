package handlers

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/proxyforge/proxyforge/internal/license"
	"github.com/proxyforge/proxyforge/internal/models"
	"github.com/proxyforge/proxyforge/internal/query"
)

// MonitorHandler handles the read-only monitor endpoints.
type MonitorHandler struct {
	queries   *query.Service
	enforcer  *license.Enforcer
	version   string
	startTime time.Time
	// diskPath is the mount whose free space appears in the health report.
	diskPath string
}

// NewMonitorHandler creates a monitor handler.
func NewMonitorHandler(queries *query.Service, enforcer *license.Enforcer, version, diskPath string) *MonitorHandler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &MonitorHandler{
		queries:   queries,
		enforcer:  enforcer,
		version:   version,
		startTime: time.Now(),
		diskPath:  diskPath,
	}
}

// Register registers the monitor routes with the API.
func (h *MonitorHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/monitor/health",
		Summary:     "Health check",
		Description: "Returns service health, version, uptime, and disk headroom",
		Tags:        []string{"Monitor"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "listJobs",
		Method:      "GET",
		Path:        "/monitor/jobs",
		Summary:     "List jobs",
		Description: "Returns job summaries, newest first",
		Tags:        []string{"Monitor"},
	}, h.ListJobs)

	huma.Register(api, huma.Operation{
		OperationID: "getJob",
		Method:      "GET",
		Path:        "/monitor/jobs/{id}",
		Summary:     "Get job",
		Description: "Returns the full job with its recent timeline",
		Tags:        []string{"Monitor"},
	}, h.GetJob)

	huma.Register(api, huma.Operation{
		OperationID: "getJobReports",
		Method:      "GET",
		Path:        "/monitor/jobs/{id}/reports",
		Summary:     "List job reports",
		Description: "Returns report artifacts for the job, newest first",
		Tags:        []string{"Monitor"},
	}, h.GetReports)

	huma.Register(api, huma.Operation{
		OperationID: "listWorkers",
		Method:      "GET",
		Path:        "/monitor/workers",
		Summary:     "List workers",
		Description: "Returns every known worker with its admission state",
		Tags:        []string{"Monitor"},
	}, h.ListWorkers)
}

// HealthInput is the input for the health endpoint.
type HealthInput struct{}

// HealthResponse is the health report body.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	GoVersion     string `json:"go_version"`
	LicenseTier   string `json:"license_tier"`
	DiskFreeBytes uint64 `json:"disk_free_bytes,omitempty"`
}

// HealthOutput is the output for the health endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// GetHealth reports liveness. The disk probe is best effort; its failure does
// not fail the health check.
func (h *MonitorHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		GoVersion:     runtime.Version(),
	}
	if h.enforcer != nil {
		resp.LicenseTier = string(h.enforcer.License().Tier)
	}
	if usage, err := disk.Usage(h.diskPath); err == nil {
		resp.DiskFreeBytes = usage.Free
	}
	return &HealthOutput{Body: resp}, nil
}

// ListJobsInput is the input for listing jobs.
type ListJobsInput struct{}

// ListJobsOutput is the output for listing jobs.
type ListJobsOutput struct {
	Body struct {
		Jobs []query.JobSummary `json:"jobs"`
	}
}

// ListJobs returns all job summaries.
func (h *MonitorHandler) ListJobs(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	summaries, err := h.queries.ListJobs(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list jobs", err)
	}
	resp := &ListJobsOutput{}
	resp.Body.Jobs = summaries
	return resp, nil
}

// GetJobOutput is the output for the job detail endpoint.
type GetJobOutput struct {
	Body query.JobDetail
}

// GetJob returns the full job view.
func (h *MonitorHandler) GetJob(ctx context.Context, input *JobIDInput) (*GetJobOutput, error) {
	id, err := parseJobID(input.ID)
	if err != nil {
		return nil, err
	}
	detail, err := h.queries.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			return nil, huma.Error404NotFound("job not found")
		}
		return nil, huma.Error500InternalServerError("failed to get job", err)
	}
	return &GetJobOutput{Body: *detail}, nil
}

// GetReportsOutput is the output for the report listing endpoint.
type GetReportsOutput struct {
	Body struct {
		Reports []query.ReportArtifact `json:"reports"`
	}
}

// GetReports lists report artifacts for a job.
func (h *MonitorHandler) GetReports(ctx context.Context, input *JobIDInput) (*GetReportsOutput, error) {
	id, err := parseJobID(input.ID)
	if err != nil {
		return nil, err
	}
	reports, err := h.queries.Reports(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			return nil, huma.Error404NotFound("job not found")
		}
		return nil, huma.Error500InternalServerError("failed to list reports", err)
	}
	resp := &GetReportsOutput{}
	resp.Body.Reports = reports
	return resp, nil
}

// ListWorkersInput is the input for listing workers.
type ListWorkersInput struct{}

// ListWorkersOutput is the output for listing workers.
type ListWorkersOutput struct {
	Body struct {
		Workers []models.WorkerStatus `json:"workers"`
	}
}

// ListWorkers returns every known worker.
func (h *MonitorHandler) ListWorkers(ctx context.Context, input *ListWorkersInput) (*ListWorkersOutput, error) {
	resp := &ListWorkersOutput{}
	resp.Body.Workers = h.enforcer.Workers()
	return resp, nil
}
